// Package reconcile moves a section's component marks in and out of CSV.
package reconcile

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

var (
	importRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "grading_import_rows_total",
		Help: "Imported data rows by result",
	}, []string{"result"})

	cellIssuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "grading_import_cell_issues_total",
		Help: "Import cells rejected for a bad value",
	})
)

// Fixed leading columns of the marks sheet
const (
	ColEnrollmentID = "EnrollmentID"
	ColStudentID    = "StudentID"
	ColRollNo       = "RollNo"

	fixedColumns = 3
)

// WriteGate is consulted once before an import writes anything
type WriteGate interface {
	CheckWrite(ctx context.Context, operation string) error
}

// Reconciler exports and imports component marks for a section
type Reconciler struct {
	store   store.Store
	gate    WriteGate
	timeout time.Duration
}

// NewReconciler creates a reconciler over the given store
func NewReconciler(s store.Store, gate WriteGate, timeout time.Duration) *Reconciler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Reconciler{store: s, gate: gate, timeout: timeout}
}

func (r *Reconciler) components(ctx context.Context) ([]shared.GradingComponent, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.store.ListComponents(queryCtx)
	if err != nil {
		return nil, shared.NewStorageError("list components", err)
	}
	return list, nil
}

func (r *Reconciler) enrollments(ctx context.Context, sectionID int64) ([]shared.Enrollment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.store.EnrollmentsForSection(queryCtx, sectionID)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
