// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/storeback-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDuplicateSerial возвращается при попытке сохранить единицу товара
// с уже занятым серийным номером.
var (
	ErrDuplicateSerial = errors.New("serial number already exists")
	// ErrDuplicateProductCode возвращается при попытке создать товар с занятым кодом.
	ErrDuplicateProductCode = errors.New("product code already exists")
	// ErrUnitNotFound возвращается, если единица товара не найдена.
	ErrUnitNotFound = errors.New("unit not found")
	// ErrProductNotFound возвращается, если товар не найден.
	ErrProductNotFound = errors.New("product not found")
	// ErrRequestNotFound возвращается, если заявка не найдена.
	ErrRequestNotFound = errors.New("request not found")
	// ErrDeliveryNotFound возвращается, если поставка не найдена.
	ErrDeliveryNotFound = errors.New("delivery not found")
	// ErrCashDayNotFound возвращается, если торговый день не найден.
	ErrCashDayNotFound = errors.New("cash day not found")
	// ErrDayClosed возвращается при попытке изменить закрытый торговый день.
	ErrDayClosed = errors.New("cash day is closed")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// withRetry повторяет операцию при сбое сериализации или дедлоке.
// Две конкурирующие записи в один торговый день соревнуются за одну строку,
// поэтому такие сбои здесь штатная ситуация.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SerialExists проверяет, занят ли серийный номер.
func (r *PostgresRepository) SerialExists(ctx context.Context, serial string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM units WHERE serial_number = $1)`,
		serial,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe serial: %w", err)
	}
	return exists, nil
}

const unitColumns = `id, serial_number, product_id, request_item_id, supply_item_id, status, created_at, updated_at`

func scanUnit(row pgx.Row) (*model.Unit, error) {
	var u model.Unit
	var status string
	err := row.Scan(&u.ID, &u.SerialNumber, &u.ProductID, &u.RequestItemID, &u.SupplyItemID,
		&status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Status = model.UnitStatus(status)
	return &u, nil
}

// CreateUnit сохраняет новую единицу товара.
func (r *PostgresRepository) CreateUnit(ctx context.Context, unit model.Unit) (*model.Unit, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO units (serial_number, product_id, request_item_id, supply_item_id, status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+unitColumns,
		unit.SerialNumber, unit.ProductID, unit.RequestItemID, unit.SupplyItemID, string(unit.Status),
	)

	created, err := scanUnit(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSerial, unit.SerialNumber)
		}
		return nil, fmt.Errorf("create unit: %w", err)
	}
	return created, nil
}

// GetUnitByID возвращает единицу товара по идентификатору.
func (r *PostgresRepository) GetUnitByID(ctx context.Context, id int64) (*model.Unit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = $1`, id)

	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

// GetUnitBySerial возвращает единицу товара по серийному номеру.
func (r *PostgresRepository) GetUnitBySerial(ctx context.Context, serial string) (*model.Unit, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+unitColumns+` FROM units WHERE serial_number = $1`, serial)

	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("get unit by serial: %w", err)
	}
	return u, nil
}

// ListUnits возвращает единицы товара с необязательной фильтрацией
// по статусу и товару, новые первыми.
func (r *PostgresRepository) ListUnits(ctx context.Context, status *model.UnitStatus, productID *int64) ([]model.Unit, error) {
	query := `SELECT ` + unitColumns + ` FROM units WHERE 1=1`
	args := []any{}

	if status != nil {
		args = append(args, string(*status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if productID != nil {
		args = append(args, *productID)
		query += fmt.Sprintf(` AND product_id = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select units: %w", err)
	}
	defer rows.Close()

	var units []model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return units, nil
}

// UpdateUnitStatus переводит единицу товара в новый статус и обновляет updated_at.
func (r *PostgresRepository) UpdateUnitStatus(ctx context.Context, id int64, status model.UnitStatus) (*model.Unit, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE units SET status = $2, updated_at = now() WHERE id = $1
		 RETURNING `+unitColumns,
		id, string(status),
	)

	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnitNotFound
		}
		return nil, fmt.Errorf("update unit status: %w", err)
	}
	return u, nil
}

// CreateRequestWithUnits сохраняет заявку, её позиции и материализованные
// единицы товара в одной транзакции: частично созданная партия не должна
// пережить сбой.
// serialsByItem содержит серийные номера для каждой позиции в том же порядке,
// что и items; для позиций без материализации передаётся пустой срез.
func (r *PostgresRepository) CreateRequestWithUnits(ctx context.Context, req model.Request, serialsByItem [][]string) (*model.Request, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO requests (customer_id, notes) VALUES ($1, $2) RETURNING id, created_at`,
		req.CustomerID, req.Notes,
	).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}

	for i := range req.Items {
		item := &req.Items[i]
		item.RequestID = req.ID

		err = tx.QueryRow(ctx,
			`INSERT INTO request_items (request_id, product_id, quantity_ordered, is_customer_order)
			 VALUES ($1, $2, $3, $4) RETURNING id`,
			item.RequestID, item.ProductID, item.QuantityOrdered, item.IsCustomerOrder,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("insert request item: %w", err)
		}

		for _, serial := range serialsByItem[i] {
			_, err = tx.Exec(ctx,
				`INSERT INTO units (serial_number, product_id, request_item_id, status)
				 VALUES ($1, $2, $3, $4)`,
				serial, item.ProductID, item.ID, string(model.UnitStatusInRequest),
			)
			if err != nil {
				if isUniqueViolation(err) {
					return nil, fmt.Errorf("%w: %s", ErrDuplicateSerial, serial)
				}
				return nil, fmt.Errorf("insert unit: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &req, nil
}

// GetRequest возвращает заявку вместе с позициями.
func (r *PostgresRepository) GetRequest(ctx context.Context, id int64) (*model.Request, error) {
	var req model.Request
	err := r.pool.QueryRow(ctx,
		`SELECT id, customer_id, notes, created_at FROM requests WHERE id = $1`,
		id,
	).Scan(&req.ID, &req.CustomerID, &req.Notes, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, request_id, product_id, quantity_ordered, is_customer_order
		 FROM request_items WHERE request_id = $1 ORDER BY id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select request items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.RequestItem
		if err := rows.Scan(&item.ID, &item.RequestID, &item.ProductID, &item.QuantityOrdered, &item.IsCustomerOrder); err != nil {
			return nil, fmt.Errorf("scan request item: %w", err)
		}
		req.Items = append(req.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return &req, nil
}

// ListUnitsByRequestItem возвращает единицы товара, материализованные из позиции заявки.
func (r *PostgresRepository) ListUnitsByRequestItem(ctx context.Context, requestItemID int64) ([]model.Unit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+unitColumns+` FROM units WHERE request_item_id = $1 ORDER BY serial_number`,
		requestItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("select units by request item: %w", err)
	}
	defer rows.Close()

	var units []model.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *u)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return units, nil
}

// CreateDelivery сохраняет заголовок поставки.
func (r *PostgresRepository) CreateDelivery(ctx context.Context, d model.Delivery) (*model.Delivery, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO deliveries (supplier_id, delivery_date, total_amount, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		d.SupplierID, d.DeliveryDate, d.TotalAmountCents, d.Notes,
	).Scan(&d.ID)
	if err != nil {
		return nil, fmt.Errorf("insert delivery: %w", err)
	}
	return &d, nil
}

// GetDelivery возвращает поставку вместе с позициями и их единицами товара.
func (r *PostgresRepository) GetDelivery(ctx context.Context, id int64) (*model.Delivery, error) {
	var d model.Delivery
	err := r.pool.QueryRow(ctx,
		`SELECT id, supplier_id, delivery_date, total_amount, notes FROM deliveries WHERE id = $1`,
		id,
	).Scan(&d.ID, &d.SupplierID, &d.DeliveryDate, &d.TotalAmountCents, &d.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("get delivery: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT i.id, i.delivery_id, i.product_id, i.quantity_received, i.price_per_unit, i.request_item_id
		 FROM delivery_items i WHERE i.delivery_id = $1 ORDER BY i.id`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select delivery items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.DeliveryItem
		if err := rows.Scan(&item.ID, &item.DeliveryID, &item.ProductID, &item.QuantityReceived,
			&item.PricePerUnitCents, &item.RequestItemID); err != nil {
			return nil, fmt.Errorf("scan delivery item: %w", err)
		}
		d.Items = append(d.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	for i := range d.Items {
		ids, err := r.listDeliveryItemUnitIDs(ctx, d.Items[i].ID)
		if err != nil {
			return nil, err
		}
		d.Items[i].ReceivedUnitIDs = ids
	}

	return &d, nil
}

func (r *PostgresRepository) listDeliveryItemUnitIDs(ctx context.Context, deliveryItemID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT unit_id FROM delivery_item_units WHERE delivery_item_id = $1 ORDER BY unit_id`,
		deliveryItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("select delivery item units: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unit id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

// SaveDeliveryItem сохраняет позицию поставки и обновляет её единицы товара
// в одной транзакции: строка позиции, восстановление связей из снимка
// и перевод единиц в статус «в магазине».
func (r *PostgresRepository) SaveDeliveryItem(ctx context.Context, item model.DeliveryItem) (*model.DeliveryItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if item.ID == 0 {
		err = tx.QueryRow(ctx,
			`INSERT INTO delivery_items (delivery_id, product_id, quantity_received, price_per_unit, request_item_id)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			item.DeliveryID, item.ProductID, item.QuantityReceived, item.PricePerUnitCents, item.RequestItemID,
		).Scan(&item.ID)
		if err != nil {
			return nil, fmt.Errorf("insert delivery item: %w", err)
		}
	} else {
		cmdTag, err := tx.Exec(ctx,
			`UPDATE delivery_items
			 SET product_id = $2, quantity_received = $3, price_per_unit = $4, request_item_id = $5
			 WHERE id = $1`,
			item.ID, item.ProductID, item.QuantityReceived, item.PricePerUnitCents, item.RequestItemID,
		)
		if err != nil {
			return nil, fmt.Errorf("update delivery item: %w", err)
		}
		if cmdTag.RowsAffected() == 0 {
			return nil, ErrDeliveryNotFound
		}
	}

	// Связи восстанавливаются из снимка вызывающей стороны: состав связей
	// не обязан пережить сохранение строки, поэтому членство
	// устанавливается заново после того, как строка существует.
	_, err = tx.Exec(ctx,
		`DELETE FROM delivery_item_units WHERE delivery_item_id = $1`,
		item.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("clear delivery item units: %w", err)
	}

	for _, unitID := range item.ReceivedUnitIDs {
		_, err = tx.Exec(ctx,
			`INSERT INTO delivery_item_units (delivery_item_id, unit_id) VALUES ($1, $2)`,
			item.ID, unitID,
		)
		if err != nil {
			return nil, fmt.Errorf("attach unit %d: %w", unitID, err)
		}
	}

	if len(item.ReceivedUnitIDs) > 0 {
		_, err = tx.Exec(ctx,
			`UPDATE units
			 SET status = $1, supply_item_id = $2, updated_at = now()
			 WHERE id = ANY($3) AND status IN ($4, $5)`,
			string(model.UnitStatusInStore), item.ID, item.ReceivedUnitIDs,
			string(model.UnitStatusInRequest), string(model.UnitStatusInStore),
		)
		if err != nil {
			return nil, fmt.Errorf("update received units: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &item, nil
}
