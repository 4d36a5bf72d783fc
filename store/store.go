// Package store persists products in SQLite.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/use-agent/pricewatch/models"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when no product has the requested id.
var ErrNotFound = errors.New("store: product not found")

// Default and maximum page sizes for List.
const (
	DefaultLimit = 10
	MaxLimit     = 1000
)

// Store is a product repository. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	slog.Info("product store opened", "path", path)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create inserts a product and returns it with its new id.
func (s *Store) Create(ctx context.Context, in *models.ProductCreate) (*models.Product, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (sku, url, output) VALUES (?, ?, ?)`,
		in.SKU, in.URL, nullable(in.Output))
	if err != nil {
		return nil, fmt.Errorf("store: insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: insert product: %w", err)
	}
	return &models.Product{ID: id, SKU: in.SKU, URL: in.URL, Output: in.Output}, nil
}

// Get returns the product with id or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*models.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, sku, url, output FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get product %d: %w", id, err)
	}
	return p, nil
}

// List returns up to limit products ordered by id after skipping skip rows.
// A non-positive limit selects DefaultLimit; limits above MaxLimit are clamped.
func (s *Store) List(ctx context.Context, skip, limit int) ([]models.Product, error) {
	skip, limit = page(skip, limit)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sku, url, output FROM products ORDER BY id LIMIT ? OFFSET ?`, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	products := make([]models.Product, 0, limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// Update overwrites the non-nil fields of in and returns the updated row.
func (s *Store) Update(ctx context.Context, id int64, in *models.ProductUpdate) (*models.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET
			sku    = COALESCE(?, sku),
			url    = COALESCE(?, url),
			output = COALESCE(?, output)
		WHERE id = ?`,
		nullable(in.SKU), nullable(in.URL), nullable(in.Output), id)
	if err != nil {
		return nil, fmt.Errorf("store: update product %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the product with id and returns the deleted row.
func (s *Store) Delete(ctx context.Context, id int64) (*models.Product, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, sku, url, output FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get product %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("store: delete product %d: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit: %w", err)
	}
	return p, nil
}

// SetOutputBySKU stores output on every product with sku and reports how
// many rows changed.
func (s *Store) SetOutputBySKU(ctx context.Context, sku, output string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE products SET output = ? WHERE sku = ?`, output, sku)
	if err != nil {
		return 0, fmt.Errorf("store: set output for sku %s: %w", sku, err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(sc scanner) (*models.Product, error) {
	var (
		p      models.Product
		output sql.NullString
	)
	if err := sc.Scan(&p.ID, &p.SKU, &p.URL, &output); err != nil {
		return nil, err
	}
	if output.Valid {
		p.Output = &output.String
	}
	return &p, nil
}

// nullable maps a nil pointer to SQL NULL.
func nullable(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func page(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return skip, limit
}
