package gdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Cursor is a forward-only row reader over a fixed field list.
// Rows are returned in objectid order so traversal output is
// reproducible across runs against the same data.
type Cursor struct {
	rows   *sql.Rows
	fields []string
	id     int64
	values []string
	err    error
}

// Search opens a read cursor over the named fields of a dataset.
// The caller must Close the cursor.
func (w *Workspace) Search(ctx context.Context, dataset string, fields []string) (*Cursor, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("search %q: no fields requested", dataset)
	}

	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, "objectid")
	for _, f := range fields {
		cols = append(cols, quoteIdent(f))
	}

	query := fmt.Sprintf(
		"SELECT %s FROM %s ORDER BY objectid ASC",
		strings.Join(cols, ", "), quoteIdent(dataset),
	)
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("open cursor on %q: %w", dataset, err)
	}
	return &Cursor{rows: rows, fields: fields}, nil
}

// Next advances to the next row. Returns false at the end of the set or
// on error; check Err after the loop.
func (c *Cursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}

	nulls := make([]sql.NullString, len(c.fields))
	dest := make([]any, 0, len(nulls)+1)
	dest = append(dest, &c.id)
	for i := range nulls {
		dest = append(dest, &nulls[i])
	}
	if err := c.rows.Scan(dest...); err != nil {
		c.err = err
		return false
	}

	// SQL NULL and the empty string are both "no value" to governance
	// logic; collapse them here.
	c.values = make([]string, len(nulls))
	for i, n := range nulls {
		if n.Valid {
			c.values[i] = n.String
		}
	}
	return true
}

// Row returns the current row id and field values, positionally aligned
// with the field list passed to Search.
func (c *Cursor) Row() (int64, []string) {
	return c.id, c.values
}

// Err returns the first error encountered during iteration.
func (c *Cursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

// Close releases the cursor.
func (c *Cursor) Close() error {
	return c.rows.Close()
}

// RowCount returns the number of rows in a dataset.
func (w *Workspace) RowCount(ctx context.Context, dataset string) (int, error) {
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(dataset))
	if err := w.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows in %q: %w", dataset, err)
	}
	return n, nil
}
