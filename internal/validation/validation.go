// Package validation содержит функции валидации входных данных.
package validation

import (
	"sort"
	"strings"
)

// MaxSerialNumberLength задаёт максимальную длину серийного номера.
const MaxSerialNumberLength = 100

// IsValidSerialNumber проверяет, что серийный номер непустой
// и не превышает максимальную длину.
func IsValidSerialNumber(serial string) bool {
	return serial != "" && len(serial) <= MaxSerialNumberLength
}

// FieldErrors содержит ошибки валидации, привязанные к полям.
type FieldErrors map[string]string

// Error собирает ошибки полей в одну строку в стабильном порядке.
func (f FieldErrors) Error() string {
	if len(f) == 0 {
		return "validation failed"
	}

	fields := make([]string, 0, len(f))
	for name := range f {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, name := range fields {
		parts = append(parts, name+": "+f[name])
	}
	return strings.Join(parts, "; ")
}
