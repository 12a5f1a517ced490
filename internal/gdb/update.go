package gdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DomainError reports a proposed value rejected by a field's declared
// constraints. Row-scoped: the caller records it and continues with the
// rest of the batch.
type DomainError struct {
	Dataset string
	Field   string
	Reason  string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("domain constraint on %s.%s: %s", e.Dataset, e.Field, e.Reason)
}

// IsDomainError reports whether err is a field domain rejection.
func IsDomainError(err error) bool {
	var de *DomainError
	return errors.As(err, &de)
}

// ErrRowNotFound is returned when an update addresses a row id that no
// longer exists in the dataset.
var ErrRowNotFound = errors.New("row not found")

// UpdateCursor applies row-level attribute updates to one dataset inside
// a single transaction. A failed row update leaves that row untouched;
// the transaction as a whole commits whatever succeeded (the store gives
// no sub-batch rollback, matching the underlying editing model).
type UpdateCursor struct {
	tx      *sql.Tx
	dataset Dataset
	fields  map[string]Field
	done    bool
}

// Update opens an update cursor on a dataset. The caller must finish
// with Commit or Rollback; Rollback after Commit is a no-op, so
// `defer u.Rollback()` is the safe idiom.
func (w *Workspace) Update(ctx context.Context, dataset string) (*UpdateCursor, error) {
	ds, err := w.Dataset(ctx, dataset)
	if err != nil {
		return nil, err
	}
	fields, err := w.Fields(ctx, dataset)
	if err != nil {
		return nil, err
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update on %q: %w", dataset, err)
	}

	byName := make(map[string]Field, len(fields))
	for _, f := range fields {
		byName[f.Name] = f
	}
	return &UpdateCursor{tx: tx, dataset: ds, fields: byName}, nil
}

// ReadValue returns the current stored value of one field on one row.
// NULL reads as the empty string.
func (u *UpdateCursor) ReadValue(ctx context.Context, rowID int64, field string) (string, error) {
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE objectid = ?",
		quoteIdent(field), quoteIdent(u.dataset.Name),
	)
	var v sql.NullString
	err := u.tx.QueryRowContext(ctx, query, rowID).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%s row %d: %w", u.dataset.Name, rowID, ErrRowNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s.%s row %d: %w", u.dataset.Name, field, rowID, err)
	}
	if !v.Valid {
		return "", nil
	}
	return v.String, nil
}

// UpdateRow writes one field value on one row, enforcing declared
// constraints first. Either the write fully succeeds or the stored value
// is untouched.
func (u *UpdateCursor) UpdateRow(ctx context.Context, rowID int64, field Field, value string) error {
	if err := u.checkDomain(field, value); err != nil {
		return err
	}

	query := fmt.Sprintf(
		"UPDATE %s SET %s = ? WHERE objectid = ?",
		quoteIdent(u.dataset.Name), quoteIdent(field.Name),
	)
	res, err := u.tx.ExecContext(ctx, query, value, rowID)
	if err != nil {
		return fmt.Errorf("update %s.%s row %d: %w", u.dataset.Name, field.Name, rowID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s.%s row %d: %w", u.dataset.Name, field.Name, rowID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s row %d: %w", u.dataset.Name, rowID, ErrRowNotFound)
	}
	return nil
}

// checkDomain validates a proposed value against the field's declared
// type and length.
func (u *UpdateCursor) checkDomain(field Field, value string) error {
	f, ok := u.fields[field.Name]
	if !ok {
		return &DomainError{Dataset: u.dataset.Name, Field: field.Name, Reason: "no such field"}
	}
	switch f.Type {
	case TypeOID, TypeGlobalID:
		return &DomainError{Dataset: u.dataset.Name, Field: f.Name, Reason: "system field is not writable"}
	case TypeText:
		if f.Length > 0 && len(value) > f.Length {
			return &DomainError{
				Dataset: u.dataset.Name,
				Field:   f.Name,
				Reason:  fmt.Sprintf("value length %d exceeds field length %d", len(value), f.Length),
			}
		}
	case TypeGUID:
		// GUID columns store the hyphenated 36-char form.
		if len(value) != 36 {
			return &DomainError{Dataset: u.dataset.Name, Field: f.Name, Reason: "value is not a 36-char identifier"}
		}
	}
	return nil
}

// Commit commits the batch.
func (u *UpdateCursor) Commit() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Commit(); err != nil {
		return fmt.Errorf("commit update on %q: %w", u.dataset.Name, err)
	}
	return nil
}

// Rollback abandons the batch. No-op after Commit.
func (u *UpdateCursor) Rollback() error {
	if u.done {
		return nil
	}
	u.done = true
	if err := u.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback update on %q: %w", u.dataset.Name, err)
	}
	return nil
}
