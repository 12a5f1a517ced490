// Package gdbtest builds throwaway workspace fixtures for tests.
// Production code never creates user schema; tests need to.
package gdbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldstone/gdbgov/internal/gdb"
)

// FieldSpec declares one field of a fixture dataset.
type FieldSpec struct {
	Name   string
	Alias  string
	Type   gdb.FieldType
	Length int
}

// RowSpec maps field name to stored value. A nil value stores SQL NULL.
type RowSpec map[string]any

// OpenTemp opens a fresh workspace in a test temp directory and closes
// it when the test finishes.
func OpenTemp(t *testing.T) *gdb.Workspace {
	t.Helper()
	ws, err := gdb.Open(filepath.Join(t.TempDir(), "workspace.gdb"))
	if err != nil {
		t.Fatalf("open temp workspace: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// CreateDataset registers a dataset in the catalog, creates its table,
// and inserts the given rows in order (objectid 1..n).
//
// A field of type OID is catalog-only: the physical row id column is
// always objectid and is created implicitly.
func CreateDataset(t *testing.T, ws *gdb.Workspace, name string, fields []FieldSpec, rows []RowSpec) {
	t.Helper()
	db := ws.DB()

	if _, err := db.Exec(`
		INSERT INTO gdb_datasets (name, catalog_path, kind) VALUES (?, ?, 'feature_class')
	`, name, "/workspace/"+name); err != nil {
		t.Fatalf("register dataset %q: %v", name, err)
	}

	cols := []string{"objectid INTEGER PRIMARY KEY"}
	for pos, f := range fields {
		if _, err := db.Exec(`
			INSERT INTO gdb_fields (dataset, position, name, alias, type, length)
			VALUES (?, ?, ?, ?, ?, ?)
		`, name, pos, f.Name, f.Alias, string(f.Type), f.Length); err != nil {
			t.Fatalf("register field %s.%s: %v", name, f.Name, err)
		}
		if f.Type == gdb.TypeOID {
			continue
		}
		cols = append(cols, fmt.Sprintf("%q %s", f.Name, affinity(f.Type)))
	}

	ddl := fmt.Sprintf("CREATE TABLE %q (%s)", name, strings.Join(cols, ", "))
	if _, err := db.Exec(ddl); err != nil {
		t.Fatalf("create table %q: %v", name, err)
	}

	for i, row := range rows {
		names := []string{"objectid"}
		marks := []string{"?"}
		args := []any{i + 1}
		for _, f := range fields {
			if f.Type == gdb.TypeOID {
				continue
			}
			if v, ok := row[f.Name]; ok {
				names = append(names, fmt.Sprintf("%q", f.Name))
				marks = append(marks, "?")
				args = append(args, v)
			}
		}
		stmt := fmt.Sprintf(
			"INSERT INTO %q (%s) VALUES (%s)",
			name, strings.Join(names, ", "), strings.Join(marks, ", "),
		)
		if _, err := db.Exec(stmt, args...); err != nil {
			t.Fatalf("insert row %d into %q: %v", i+1, name, err)
		}
	}
}

// HoldForeignLock records an exclusive lock on a dataset for a session
// other than the workspace's own, simulating another user's editing
// session.
func HoldForeignLock(t *testing.T, ws *gdb.Workspace, dataset, session string) {
	t.Helper()
	_, err := ws.DB().Exec(`
		INSERT INTO gdb_locks (dataset, session, exclusive, acquired_at)
		VALUES (?, ?, 1, ?)
	`, dataset, session, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		t.Fatalf("hold foreign lock on %q: %v", dataset, err)
	}
}

func affinity(ft gdb.FieldType) string {
	switch ft {
	case gdb.TypeInteger:
		return "INTEGER"
	case gdb.TypeDouble:
		return "REAL"
	default:
		return "TEXT"
	}
}
