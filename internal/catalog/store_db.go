package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	pingTimeout         = 1 * time.Second
	defaultQueryTimeout = 3 * time.Second

	productColumns = `id, name, category, brand, price, description`
)

type PostgresStore struct {
	db           *sql.DB
	queryTimeout time.Duration
}

func NewPostgresStore(db *sql.DB, queryTimeout time.Duration) *PostgresStore {
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	return &PostgresStore{db: db, queryTimeout: queryTimeout}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Save(ctx context.Context, p *Product) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			INSERT INTO products (name, category, brand, price, description)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, p.Name, p.Category, p.Brand, p.Price, p.Description).Scan(&p.ID)
	})
}

func (s *PostgresStore) Update(ctx context.Context, p Product) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE products
			SET name = $1, category = $2, brand = $3, price = $4, description = $5
			WHERE id = $6
		`, p.Name, p.Category, p.Brand, p.Price, p.Description, p.ID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	return withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (s *PostgresStore) FindByID(ctx context.Context, id int64) (Product, bool, error) {
	var p Product

	err := withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		return scanProduct(s.db.QueryRowContext(ctx, `
			SELECT `+productColumns+`
			FROM products
			WHERE id = $1
		`, id), &p)
	})

	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) FindAll(ctx context.Context) ([]Product, error) {
	return s.query(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
}

func (s *PostgresStore) FindByCategory(ctx context.Context, category string) ([]Product, error) {
	return s.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE category = $1
		ORDER BY name ASC, id ASC
	`, category)
}

func (s *PostgresStore) FindByBrand(ctx context.Context, brand string) ([]Product, error) {
	return s.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE brand = $1
		ORDER BY name ASC, id ASC
	`, brand)
}

func (s *PostgresStore) FindByPriceRange(ctx context.Context, min, max decimal.Decimal) ([]Product, error) {
	return s.query(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE price BETWEEN $1 AND $2
		ORDER BY price ASC, id ASC
	`, min, max)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Product, error) {
	var out []Product

	err := withTimeout(ctx, s.queryTimeout, func(ctx context.Context) error {
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]Product, 0, 16)
		for rows.Next() {
			var p Product
			if err := scanProduct(rows, &p); err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	if err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner, p *Product) error {
	return row.Scan(&p.ID, &p.Name, &p.Category, &p.Brand, &p.Price, &p.Description)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrProductNotFound
	}
	return nil
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
