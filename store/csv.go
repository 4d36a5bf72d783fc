package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// csvHeader is the first record of every export.
var csvHeader = []string{"id", "sku", "url", "output"}

// WriteCSV writes up to limit products ordered by id as CSV. A limit
// outside (0, MaxLimit] exports MaxLimit rows. A null output is written as
// an empty field.
func (s *Store) WriteCSV(ctx context.Context, w io.Writer, limit int) error {
	if limit <= 0 || limit > MaxLimit {
		limit = MaxLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sku, url, output FROM products ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return fmt.Errorf("store: export products: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("store: write csv header: %w", err)
	}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return fmt.Errorf("store: scan product: %w", err)
		}
		output := ""
		if p.Output != nil {
			output = *p.Output
		}
		if err := cw.Write([]string{strconv.FormatInt(p.ID, 10), p.SKU, p.URL, output}); err != nil {
			return fmt.Errorf("store: write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("store: export products: %w", err)
	}
	cw.Flush()
	return cw.Error()
}
