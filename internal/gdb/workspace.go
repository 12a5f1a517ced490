package gdb

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial catalog (pre-migration)
// 1 - Added UNIQUE constraint on gdb_fields (dataset, position)
const currentSchemaVersion = 1

// ErrDatasetNotFound is returned when a dataset name has no catalog entry.
var ErrDatasetNotFound = errors.New("dataset not found in workspace catalog")

// FieldType is the declared storage type of a field.
type FieldType string

const (
	TypeOID      FieldType = "OID"      // system row id, never writable
	TypeGlobalID FieldType = "GLOBALID" // platform identity field, protected
	TypeGUID     FieldType = "GUID"     // reassignable identifier field
	TypeText     FieldType = "TEXT"
	TypeInteger  FieldType = "INTEGER"
	TypeDouble   FieldType = "DOUBLE"
	TypeDate     FieldType = "DATE"
)

// Field is one column descriptor from the workspace catalog.
// Length applies to TEXT fields only; 0 means unbounded.
type Field struct {
	Name   string
	Alias  string
	Type   FieldType
	Length int
}

// Dataset is a named table or feature class discovered in the catalog.
// The engine holds transient references only; it never creates or
// deletes datasets.
type Dataset struct {
	Name        string
	CatalogPath string
	Kind        string
}

// Workspace is an open geodatabase. Each Workspace owns one editing
// session identity used for lock ownership; other sessions' locks are
// detected, never contended for.
type Workspace struct {
	db      *sql.DB
	path    string
	session string
}

// Open opens the workspace database at path, applying pragmas and
// catalog migrations. Idempotent - safe to call on an existing
// workspace file.
func Open(path string) (*Workspace, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to workspace: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between the cursor and lock probes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applyCatalog(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply catalog schema: %w", err)
	}

	return &Workspace{
		db:      db,
		path:    path,
		session: uuid.Must(uuid.NewRandom()).String(),
	}, nil
}

// Close closes the workspace connection.
func (w *Workspace) Close() error {
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

// Path returns the filesystem path the workspace was opened from.
func (w *Workspace) Path() string { return w.path }

// Session returns this workspace handle's editing session identity.
func (w *Workspace) Session() string { return w.session }

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer Workspace methods when available.
func (w *Workspace) DB() *sql.DB { return w.db }

// Dataset looks up one dataset by catalog name.
func (w *Workspace) Dataset(ctx context.Context, name string) (Dataset, error) {
	var ds Dataset
	err := w.db.QueryRowContext(ctx, `
		SELECT name, catalog_path, kind FROM gdb_datasets WHERE name = ?
	`, name).Scan(&ds.Name, &ds.CatalogPath, &ds.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return Dataset{}, fmt.Errorf("%q: %w", name, ErrDatasetNotFound)
	}
	if err != nil {
		return Dataset{}, fmt.Errorf("query dataset %q: %w", name, err)
	}
	return ds, nil
}

// Fields returns the dataset's field descriptors in declared order.
func (w *Workspace) Fields(ctx context.Context, dataset string) ([]Field, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT name, alias, type, length
		FROM gdb_fields
		WHERE dataset = ?
		ORDER BY position ASC
	`, dataset)
	if err != nil {
		return nil, fmt.Errorf("query fields for %q: %w", dataset, err)
	}
	defer rows.Close()

	var fields []Field
	for rows.Next() {
		var f Field
		if err := rows.Scan(&f.Name, &f.Alias, &f.Type, &f.Length); err != nil {
			return nil, fmt.Errorf("scan field for %q: %w", dataset, err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields for %q: %w", dataset, err)
	}
	return fields, nil
}

// quoteIdent quotes a catalog name for use as a SQL identifier.
// Dataset and field names come from the catalog, not user input, but
// quoting keeps names with spaces or mixed case working.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applyCatalog creates catalog tables if absent and runs migrations.
// Idempotent.
func applyCatalog(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute catalog schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		// v1 is carried by schema.sql itself; nothing incremental yet.
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}
