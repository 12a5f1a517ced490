package gdb

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// LockState is the result of probing a dataset's schema lock.
type LockState int

const (
	// LockFree means no session holds the dataset.
	LockFree LockState = iota
	// LockHeldBySelf means this workspace handle's session holds it.
	LockHeldBySelf
	// LockHeldByOther means a different editing session holds an
	// exclusive lock. The engine never contends: it reports and skips.
	LockHeldByOther
)

func (s LockState) String() string {
	switch s {
	case LockFree:
		return "free"
	case LockHeldBySelf:
		return "held-by-self"
	case LockHeldByOther:
		return "held-by-other"
	default:
		return fmt.Sprintf("LockState(%d)", int(s))
	}
}

// ErrLockHeld is returned by AcquireLock when another session holds the
// dataset exclusively.
var ErrLockHeld = errors.New("schema lock held by another session")

// ProbeLock reports the lock state of a dataset without acquiring
// anything.
func (w *Workspace) ProbeLock(ctx context.Context, dataset string) (LockState, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT session FROM gdb_locks
		WHERE dataset = ? AND exclusive = 1
		ORDER BY acquired_at ASC
	`, dataset)
	if err != nil {
		return LockFree, fmt.Errorf("probe lock on %q: %w", dataset, err)
	}
	defer rows.Close()

	state := LockFree
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return LockFree, fmt.Errorf("probe lock on %q: %w", dataset, err)
		}
		if session == w.session {
			if state == LockFree {
				state = LockHeldBySelf
			}
			continue
		}
		// Any foreign exclusive holder wins over held-by-self.
		return LockHeldByOther, nil
	}
	if err := rows.Err(); err != nil {
		return LockFree, fmt.Errorf("probe lock on %q: %w", dataset, err)
	}
	return state, nil
}

// AcquireLock takes the exclusive lock for this session. Fails with
// ErrLockHeld if another session already holds the dataset; re-acquiring
// a lock this session holds is a no-op.
func (w *Workspace) AcquireLock(ctx context.Context, dataset string) error {
	state, err := w.ProbeLock(ctx, dataset)
	if err != nil {
		return err
	}
	switch state {
	case LockHeldByOther:
		return fmt.Errorf("%q: %w", dataset, ErrLockHeld)
	case LockHeldBySelf:
		return nil
	}

	_, err = w.db.ExecContext(ctx, `
		INSERT INTO gdb_locks (dataset, session, exclusive, acquired_at)
		VALUES (?, ?, 1, ?)
		ON CONFLICT(dataset, session) DO NOTHING
	`, dataset, w.session, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("acquire lock on %q: %w", dataset, err)
	}
	return nil
}

// ReleaseLock drops this session's lock on a dataset. Releasing a lock
// that is not held is a no-op, which keeps release safe on every exit
// path.
func (w *Workspace) ReleaseLock(ctx context.Context, dataset string) error {
	_, err := w.db.ExecContext(ctx, `
		DELETE FROM gdb_locks WHERE dataset = ? AND session = ?
	`, dataset, w.session)
	if err != nil {
		return fmt.Errorf("release lock on %q: %w", dataset, err)
	}
	return nil
}
