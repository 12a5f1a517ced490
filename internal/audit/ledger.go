// Package audit accumulates the run's append-only audit trail and
// flushes it to durable, timestamped reports.
//
// Every row considered for mutation anywhere in the engine produces
// exactly one Entry; entries are partitioned by outcome into three CSV
// streams (updated/skipped/error) plus one chronological plain-text
// log. The content is sufficient to reconstruct, for any row, what
// value it held before and after the run.
package audit

import (
	"fmt"
	"time"
)

// Outcome partitions entries into the three report streams.
type Outcome string

const (
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Entry records the outcome of considering a single row/field for
// mutation. RowID is empty for dataset-scoped entries (alias not found,
// ambiguous alias) that precede any row consideration.
type Entry struct {
	Dataset  string
	RowID    string
	Field    string
	Previous string
	New      string
	Outcome  Outcome
	Reason   string
	// Detail carries raw diagnostic text for error entries.
	Detail string
}

// Ledger owns the ordered entry sequence and the chronological trace
// for one run. Appends happen only from the single active thread of
// control; a parallel generalization must serialize them.
type Ledger struct {
	entries []Entry
	trace   []string
	now     func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithNow overrides the trace timestamp source. Tests use a fixed clock
// for golden comparison.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records one entry.
func (l *Ledger) Append(e Entry) {
	l.entries = append(l.entries, e)
}

// Tracef appends one timestamped line to the chronological log.
func (l *Ledger) Tracef(format string, args ...any) {
	line := fmt.Sprintf("%s | %s", l.now().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	l.trace = append(l.trace, line)
}

// Entries returns the full ordered entry sequence.
func (l *Ledger) Entries() []Entry {
	return l.entries
}

// Count returns the number of entries with the given outcome.
func (l *Ledger) Count(outcome Outcome) int {
	n := 0
	for _, e := range l.entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}
