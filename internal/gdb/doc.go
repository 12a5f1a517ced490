// Package gdb exposes a geodatabase workspace as an opaque attribute
// store: named datasets, ordered field descriptors, addressable rows,
// and coarse per-dataset session locks.
//
// The governance engine discovers and conditionally mutates pre-existing
// data; it never creates or drops user schema. The only schema this
// package manages is the workspace catalog (gdb_datasets, gdb_fields,
// gdb_locks), which belongs to the container format itself.
//
// Storage is SQLite. Each dataset is a table whose primary key is the
// stable row id (objectid); the catalog records its declared fields,
// aliases, and types. Locks are advisory rows in gdb_locks keyed by
// (dataset, session): an exclusive row held by a different session means
// the dataset cannot be edited in this run.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for file locks up to 5 seconds
//   - foreign_keys=ON: enforce catalog integrity
package gdb
