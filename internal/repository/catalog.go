package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storeback-system/internal/model"
)

// CreateProduct сохраняет новый товар каталога.
func (r *PostgresRepository) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO products (code, sku, name, category_id)
		 VALUES ($1, $2, $3, $4) RETURNING id, created_at`,
		p.Code, p.SKU, p.Name, p.CategoryID,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProductCode, p.Code)
		}
		return nil, fmt.Errorf("create product: %w", err)
	}
	return &p, nil
}

// GetProduct возвращает товар по идентификатору.
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	var p model.Product
	err := r.pool.QueryRow(ctx,
		`SELECT id, code, sku, name, category_id, created_at FROM products WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.Code, &p.SKU, &p.Name, &p.CategoryID, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return &p, nil
}

// ListProducts возвращает все товары каталога по имени.
func (r *PostgresRepository) ListProducts(ctx context.Context) ([]model.Product, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, code, sku, name, category_id, created_at FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer rows.Close()

	var products []model.Product
	for rows.Next() {
		var p model.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.SKU, &p.Name, &p.CategoryID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return products, nil
}

// SlugExists проверяет, занят ли slug категории.
func (r *PostgresRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE slug = $1)`,
		slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe slug: %w", err)
	}
	return exists, nil
}

// CreateCategory сохраняет новую категорию каталога.
func (r *PostgresRepository) CreateCategory(ctx context.Context, c model.Category) (*model.Category, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO categories (name, parent_id, slug) VALUES ($1, $2, $3) RETURNING id`,
		c.Name, c.ParentID, c.Slug,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &c, nil
}

// ListCategories возвращает все категории каталога по имени.
func (r *PostgresRepository) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, parent_id, slug FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.ParentID, &c.Slug); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return categories, nil
}

// CreateSupplier сохраняет нового поставщика.
func (r *PostgresRepository) CreateSupplier(ctx context.Context, s model.Supplier) (*model.Supplier, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO suppliers (name, contact_person, phone, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		s.Name, s.ContactPerson, s.Phone, s.Notes,
	).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("create supplier: %w", err)
	}
	return &s, nil
}

// ListSuppliers возвращает всех поставщиков по имени.
func (r *PostgresRepository) ListSuppliers(ctx context.Context) ([]model.Supplier, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, contact_person, phone, notes FROM suppliers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select suppliers: %w", err)
	}
	defer rows.Close()

	var suppliers []model.Supplier
	for rows.Next() {
		var s model.Supplier
		if err := rows.Scan(&s.ID, &s.Name, &s.ContactPerson, &s.Phone, &s.Notes); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		suppliers = append(suppliers, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return suppliers, nil
}

// CreateCustomer сохраняет нового клиента.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO customers (name, phone, email, notes)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		c.Name, c.Phone, c.Email, c.Notes,
	).Scan(&c.ID)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &c, nil
}

// ListCustomers возвращает всех клиентов по имени.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, phone, email, notes FROM customers ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var customers []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Email, &c.Notes); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return customers, nil
}
