// Package undo keeps a bounded, per-caller history of letter grade changes
// so the most recent one can be reverted.
package undo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// ErrNothingToUndo is returned by PopAndRevert on an empty history
var ErrNothingToUndo = errors.New("nothing to undo")

var undoTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "grading_undo_total",
	Help: "Undo attempts by result",
}, []string{"result"})

// Change is one letter grade mutation. An empty OldLetter means no grade was stored.
type Change struct {
	EnrollmentID int64              `json:"enrollment_id"`
	OldLetter    string             `json:"old_grade"`
	OldSource    shared.GradeSource `json:"old_source,omitempty"`
	NewLetter    string             `json:"new_grade"`
	NewSource    shared.GradeSource `json:"new_source,omitempty"`
	At           time.Time          `json:"at"`
}

// WriteGate is consulted before the revert writes
type WriteGate interface {
	CheckWrite(ctx context.Context, operation string) error
}

// Ledger holds up to capacity changes per caller, dropping the oldest.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	entries  map[string][]Change

	grades  store.GradeRepository
	gate    WriteGate
	audit   store.AuditLog
	timeout time.Duration
}

// NewLedger creates a ledger. A capacity below 1 is treated as 1 (single step).
func NewLedger(capacity int, grades store.GradeRepository, gate WriteGate, audit store.AuditLog, timeout time.Duration) *Ledger {
	if capacity < 1 {
		capacity = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ledger{
		capacity: capacity,
		entries:  map[string][]Change{},
		grades:   grades,
		gate:     gate,
		audit:    audit,
		timeout:  timeout,
	}
}

// Capacity returns the configured history depth
func (l *Ledger) Capacity() int { return l.capacity }

// Push records a change for the caller in ctx. A change that leaves both the
// letter and its source as they were is ignored.
func (l *Ledger) Push(ctx context.Context, c Change) {
	if c.OldLetter == c.NewLetter && c.OldSource == c.NewSource {
		return
	}
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	owner := shared.CallerFromContext(ctx).UserID

	l.mu.Lock()
	defer l.mu.Unlock()

	history := append(l.entries[owner], c)
	if len(history) > l.capacity {
		history = history[len(history)-l.capacity:]
	}
	l.entries[owner] = history
}

// Len returns how many changes the caller in ctx can undo
func (l *Ledger) Len(ctx context.Context) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries[shared.CallerFromContext(ctx).UserID])
}

// Peek returns the caller's most recent change without removing it
func (l *Ledger) Peek(ctx context.Context) (Change, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	history := l.entries[shared.CallerFromContext(ctx).UserID]
	if len(history) == 0 {
		return Change{}, false
	}
	return history[len(history)-1], true
}

// PopAndRevert re-applies the old letter of the caller's most recent change.
// The entry is taken off the history while the revert runs and put back when
// the gate or storage refuses it.
func (l *Ledger) PopAndRevert(ctx context.Context) (Change, error) {
	caller := shared.CallerFromContext(ctx)

	last, depth, ok := l.pop(caller.UserID)
	if !ok {
		undoTotal.WithLabelValues("empty").Inc()
		return Change{}, ErrNothingToUndo
	}

	if err := l.gate.CheckWrite(ctx, "undo grade change"); err != nil {
		l.restore(caller.UserID, last, depth)
		undoTotal.WithLabelValues("blocked").Inc()
		return Change{}, err
	}

	if err := l.revert(ctx, caller, last); err != nil {
		l.restore(caller.UserID, last, depth)
		undoTotal.WithLabelValues("error").Inc()
		return Change{}, err
	}

	undoTotal.WithLabelValues("ok").Inc()
	log.Printf("[UndoLedger] Enrollment %d reverted from %q to %q", last.EnrollmentID, last.NewLetter, last.OldLetter)
	store.LogAuditEvent(ctx, l.audit, shared.ActionGradeUndo, fmt.Sprintf("enrollment:%d", last.EnrollmentID),
		map[string]interface{}{"from": last.NewLetter, "to": last.OldLetter})
	return last, nil
}

// pop removes the owner's newest change and returns the position it held
func (l *Ledger) pop(owner string) (Change, int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[owner]
	if len(history) == 0 {
		return Change{}, 0, false
	}
	depth := len(history) - 1
	last := history[depth]
	if depth == 0 {
		delete(l.entries, owner)
	} else {
		l.entries[owner] = history[:depth:depth]
	}
	return last, depth, true
}

// restore puts a change back at the position it was popped from. Changes
// pushed in the meantime stay newer; the oldest entries go first if the
// history is over capacity.
func (l *Ledger) restore(owner string, c Change, depth int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[owner]
	if depth > len(history) {
		depth = len(history)
	}
	restored := make([]Change, 0, len(history)+1)
	restored = append(restored, history[:depth]...)
	restored = append(restored, c)
	restored = append(restored, history[depth:]...)
	if len(restored) > l.capacity {
		restored = restored[len(restored)-l.capacity:]
	}
	l.entries[owner] = restored
}

func (l *Ledger) revert(ctx context.Context, caller shared.Caller, c Change) error {
	writeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if c.OldLetter == "" {
		return shared.NewStorageError("delete grade", l.grades.DeleteGrade(writeCtx, c.EnrollmentID))
	}

	source := c.OldSource
	if source == "" {
		source = shared.SourceOverride
	}
	return shared.NewStorageError("restore grade", l.grades.UpsertGrade(writeCtx, shared.FinalGrade{
		EnrollmentID: c.EnrollmentID,
		Letter:       c.OldLetter,
		Source:       source,
		UpdatedBy:    caller.UserID,
		UpdatedAt:    time.Now().UTC(),
	}))
}
