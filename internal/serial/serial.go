// Package serial генерирует уникальные серийные номера единиц товара.
package serial

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrExhausted возвращается, если не удалось подобрать свободный
// серийный номер за отведённое число попыток.
var ErrExhausted = errors.New("serial number attempts exhausted")

const (
	maxAttempts    = 10
	suffixLength   = 8
	fallbackPrefix = "SN"
	hexAlphabet    = "0123456789ABCDEF"
)

// ExistsFunc проверяет, занят ли серийный номер в хранилище.
type ExistsFunc func(ctx context.Context, serial string) (bool, error)

// Prefix выводит префикс серийного номера из артикула товара:
// первые три символа в верхнем регистре, либо запасной токен,
// если артикул отсутствует.
func Prefix(sku string) string {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return fallbackPrefix
	}

	runes := []rune(strings.ToUpper(sku))
	if len(runes) > 3 {
		runes = runes[:3]
	}
	return string(runes)
}

// Allocate подбирает свободный серийный номер вида PREFIX-XXXXXXXX,
// где суффикс — восемь случайных шестнадцатеричных символов.
// Каждый кандидат проверяется на занятость; после maxAttempts коллизий
// возвращается ErrExhausted. Найденный номер не резервируется:
// вызывающая сторона должна сохранить единицу сразу, а гонку двух
// процессов закрывает уникальный индекс хранилища.
func Allocate(ctx context.Context, exists ExistsFunc, sku string) (string, error) {
	prefix := Prefix(sku)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		suffix, err := randomHex(suffixLength)
		if err != nil {
			return "", fmt.Errorf("generate suffix: %w", err)
		}

		candidate := prefix + "-" + suffix

		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("probe serial %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", ErrExhausted
}

// AllocateBatch подбирает n серийных номеров для одной партии заявки:
// CODE-YYYYMMDDHHMM-NNN, где NNN — порядковый номер внутри партии.
// Такие номера читаемы и сортируются лексикографически внутри партии.
// Если партийный номер занят, для этой позиции подбирается случайный
// номер через Allocate.
func AllocateBatch(ctx context.Context, exists ExistsFunc, productCode string, n int, now time.Time) ([]string, error) {
	code := strings.TrimSpace(productCode)
	if code == "" {
		code = fallbackPrefix
	}

	base := now.Format("200601021504")

	serials := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		candidate := fmt.Sprintf("%s-%s-%03d", code, base, i)

		taken, err := exists(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("probe serial %q: %w", candidate, err)
		}
		if taken {
			candidate, err = Allocate(ctx, exists, code)
			if err != nil {
				return nil, err
			}
		}

		serials = append(serials, candidate)
	}

	return serials, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	out := make([]byte, n)
	for i, b := range buf {
		out[i] = hexAlphabet[int(b)%len(hexAlphabet)]
	}
	return string(out), nil
}
