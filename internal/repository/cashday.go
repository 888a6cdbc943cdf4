package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storeback-system/internal/model"
)

const cashDayColumns = `id, date, cash_sales_total, cash_sales_count, card_sales_total, card_sales_count, total_sales, is_closed`

func scanCashDay(row pgx.Row) (*model.CashDay, error) {
	var d model.CashDay
	err := row.Scan(&d.ID, &d.Date, &d.CashTotalCents, &d.CashCount,
		&d.CardTotalCents, &d.CardCount, &d.TotalSalesCents, &d.IsClosed)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// lockCashDay создаёт при необходимости строку торгового дня и блокирует её.
// Блокировка строки сериализует конкурирующие изменения итогов:
// два события одного дня читают и перезаписывают одни и те же суммы.
func lockCashDay(ctx context.Context, tx pgx.Tx, date time.Time) (*model.CashDay, error) {
	_, err := tx.Exec(ctx,
		`INSERT INTO cash_days (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("ensure cash day: %w", err)
	}

	row := tx.QueryRow(ctx,
		`SELECT `+cashDayColumns+` FROM cash_days WHERE date = $1 FOR UPDATE`,
		date,
	)

	day, err := scanCashDay(row)
	if err != nil {
		return nil, fmt.Errorf("lock cash day: %w", err)
	}
	return day, nil
}

// RecordSaleEvent добавляет запись в журнал кассовых событий и, если событие
// является продажей за наличные или по карте, обновляет итоги дня.
// Журнал и итоги меняются в одной транзакции под блокировкой строки дня.
func (r *PostgresRepository) RecordSaleEvent(ctx context.Context, date time.Time, eventType model.EventType, paymentType model.PaymentType, amountCents int64, notes string) (*model.SaleEvent, error) {
	var event *model.SaleEvent

	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		day, err := lockCashDay(ctx, tx, date)
		if err != nil {
			return err
		}

		if day.IsClosed {
			return fmt.Errorf("%w: %s", ErrDayClosed, date.Format("2006-01-02"))
		}

		e := model.SaleEvent{
			CashDayID:   day.ID,
			EventType:   eventType,
			PaymentType: paymentType,
			AmountCents: amountCents,
			Notes:       notes,
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO sale_events (cash_day_id, event_type, payment_type, amount, notes)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
			e.CashDayID, string(e.EventType), string(e.PaymentType), e.AmountCents, e.Notes,
		).Scan(&e.ID, &e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert sale event: %w", err)
		}

		if model.CountsTowardTotals(eventType, paymentType) {
			day.ApplySale(eventType, paymentType, amountCents)

			_, err = tx.Exec(ctx,
				`UPDATE cash_days
				 SET cash_sales_total = $2, cash_sales_count = $3,
				     card_sales_total = $4, card_sales_count = $5,
				     total_sales = $6
				 WHERE id = $1`,
				day.ID, day.CashTotalCents, day.CashCount,
				day.CardTotalCents, day.CardCount, day.TotalSalesCents,
			)
			if err != nil {
				return fmt.Errorf("update cash day totals: %w", err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		event = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	return event, nil
}

// CloseDay закрывает торговый день. День без событий создаётся пустым
// и сразу закрывается; повторное закрытие не является ошибкой.
func (r *PostgresRepository) CloseDay(ctx context.Context, date time.Time) (*model.CashDay, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	day, err := lockCashDay(ctx, tx, date)
	if err != nil {
		return nil, err
	}

	if !day.IsClosed {
		_, err = tx.Exec(ctx,
			`UPDATE cash_days SET is_closed = TRUE WHERE id = $1`,
			day.ID,
		)
		if err != nil {
			return nil, fmt.Errorf("close cash day: %w", err)
		}
		day.IsClosed = true
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return day, nil
}

// GetCashDay возвращает торговый день и его события, новые последними.
func (r *PostgresRepository) GetCashDay(ctx context.Context, date time.Time) (*model.CashDay, []model.SaleEvent, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+cashDayColumns+` FROM cash_days WHERE date = $1`,
		date,
	)

	day, err := scanCashDay(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrCashDayNotFound
		}
		return nil, nil, fmt.Errorf("get cash day: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, cash_day_id, event_type, payment_type, amount, created_at, notes
		 FROM sale_events WHERE cash_day_id = $1 ORDER BY created_at, id`,
		day.ID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("select sale events: %w", err)
	}
	defer rows.Close()

	var events []model.SaleEvent
	for rows.Next() {
		var e model.SaleEvent
		var eventType, paymentType string
		if err := rows.Scan(&e.ID, &e.CashDayID, &eventType, &paymentType, &e.AmountCents, &e.CreatedAt, &e.Notes); err != nil {
			return nil, nil, fmt.Errorf("scan sale event: %w", err)
		}
		e.EventType = model.EventType(eventType)
		e.PaymentType = model.PaymentType(paymentType)
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("rows error: %w", err)
	}

	return day, events, nil
}
