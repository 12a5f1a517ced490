// Package mutate applies planned attribute edits to one dataset at a
// time under the workspace's coarse locking model.
//
// Each dataset moves through an explicit state machine:
//
//	Unlocked → LockAcquired → Editing → Committed | RolledBack
//
// with a terminal Skipped state when another session already holds the
// schema lock. Lock contention is never retried inside a run - it is
// reported so the operator can re-run once the external session closes.
// A single failing row is recorded and the batch continues; the lock is
// released on every exit path.
package mutate

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/fieldstone/gdbgov/internal/audit"
	"github.com/fieldstone/gdbgov/internal/gdb"
)

// State is the per-dataset progress of one apply.
type State int

const (
	StateUnlocked State = iota
	StateLockAcquired
	StateEditing
	StateCommitted
	StateRolledBack
	// StateSkipped is terminal: an external session holds the dataset,
	// no edit was attempted.
	StateSkipped
)

func (s State) String() string {
	switch s {
	case StateUnlocked:
		return "unlocked"
	case StateLockAcquired:
		return "lock-acquired"
	case StateEditing:
		return "editing"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	case StateSkipped:
		return "skipped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Edit is one row-level attribute update to attempt.
type Edit struct {
	RowID    int64
	Field    gdb.Field
	NewValue string
	Reason   string
}

// Mutator applies edit batches and records every outcome on the ledger.
type Mutator struct {
	ws     *gdb.Workspace
	ledger *audit.Ledger
	log    *slog.Logger
}

// New creates a mutator writing audit entries to ledger.
func New(ws *gdb.Workspace, ledger *audit.Ledger, log *slog.Logger) *Mutator {
	return &Mutator{ws: ws, ledger: ledger, log: log}
}

// Apply runs one dataset's batch. Row-scoped failures never abort the
// batch and never propagate; the returned error reports infrastructure
// failures only (lock probe, transaction open, commit).
func (m *Mutator) Apply(ctx context.Context, dataset string, edits []Edit) (State, error) {
	if len(edits) == 0 {
		return StateCommitted, nil
	}

	state := StateUnlocked
	if err := ctx.Err(); err != nil {
		// Cancelled before any work: the dataset is left untouched.
		for _, e := range edits {
			m.ledger.Append(audit.Entry{
				Dataset: dataset,
				RowID:   strconv.FormatInt(e.RowID, 10),
				Field:   e.Field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "run cancelled",
			})
		}
		return state, err
	}
	lock, err := m.ws.ProbeLock(ctx, dataset)
	if err != nil {
		return state, fmt.Errorf("probe lock: %w", err)
	}
	m.ledger.Tracef("lock probe: %s = %s", dataset, lock)

	if lock == gdb.LockHeldByOther {
		// No partial edits: every intended edit is recorded skipped.
		for _, e := range edits {
			m.ledger.Append(audit.Entry{
				Dataset: dataset,
				RowID:   strconv.FormatInt(e.RowID, 10),
				Field:   e.Field.Name,
				Outcome: audit.OutcomeSkipped,
				Reason:  "schema lock",
			})
		}
		m.log.Warn("dataset skipped: schema lock held by another session",
			"dataset", dataset, "edits", len(edits))
		return StateSkipped, nil
	}

	if err := m.ws.AcquireLock(ctx, dataset); err != nil {
		return state, fmt.Errorf("acquire lock: %w", err)
	}
	state = StateLockAcquired
	defer func() {
		if rerr := m.ws.ReleaseLock(context.WithoutCancel(ctx), dataset); rerr != nil {
			m.log.Error("failed to release lock", "dataset", dataset, "error", rerr)
		}
	}()

	u, err := m.ws.Update(ctx, dataset)
	if err != nil {
		return state, fmt.Errorf("open update cursor: %w", err)
	}
	defer u.Rollback()
	state = StateEditing

	// Row outcomes are held back until commit so the ledger never
	// claims an update that was rolled back.
	var applied []audit.Entry
	cancelled := false
	for i, e := range edits {
		if ctx.Err() != nil {
			cancelled = true
			for _, rest := range edits[i:] {
				m.ledger.Append(audit.Entry{
					Dataset: dataset,
					RowID:   strconv.FormatInt(rest.RowID, 10),
					Field:   rest.Field.Name,
					Outcome: audit.OutcomeSkipped,
					Reason:  "run cancelled",
				})
			}
			break
		}

		rowID := strconv.FormatInt(e.RowID, 10)
		old, err := u.ReadValue(ctx, e.RowID, e.Field.Name)
		if err != nil {
			m.ledger.Append(audit.Entry{
				Dataset: dataset, RowID: rowID, Field: e.Field.Name,
				Outcome: audit.OutcomeError,
				Reason:  "write rejected",
				Detail:  err.Error(),
			})
			continue
		}
		if err := u.UpdateRow(ctx, e.RowID, e.Field, e.NewValue); err != nil {
			// Domain/type violations are expected row-scoped outcomes;
			// anything else is still only a row error.
			m.ledger.Append(audit.Entry{
				Dataset: dataset, RowID: rowID, Field: e.Field.Name,
				Outcome: audit.OutcomeError,
				Reason:  "write rejected",
				Detail:  err.Error(),
			})
			continue
		}
		applied = append(applied, audit.Entry{
			Dataset: dataset, RowID: rowID, Field: e.Field.Name,
			Previous: old,
			New:      e.NewValue,
			Outcome:  audit.OutcomeUpdated,
			Reason:   e.Reason,
		})
	}

	if cancelled {
		if err := u.Rollback(); err != nil {
			m.log.Error("rollback after cancellation failed", "dataset", dataset, "error", err)
		}
		// Applied rows were rolled back with the transaction. Previous
		// is still the stored value and stays on the entry; New is
		// cleared because nothing was written.
		for _, e := range applied {
			e.Outcome = audit.OutcomeSkipped
			e.Reason = "run cancelled"
			e.New = ""
			m.ledger.Append(e)
		}
		return StateRolledBack, ctx.Err()
	}

	if err := u.Commit(); err != nil {
		for _, e := range applied {
			e.Outcome = audit.OutcomeError
			e.Reason = "commit failed"
			e.Detail = err.Error()
			e.New = ""
			m.ledger.Append(e)
		}
		return StateRolledBack, fmt.Errorf("commit: %w", err)
	}

	for _, e := range applied {
		m.ledger.Append(e)
	}
	state = StateCommitted
	m.ledger.Tracef("dataset committed: %s (%d applied, %d attempted)", dataset, len(applied), len(edits))
	return state, nil
}
