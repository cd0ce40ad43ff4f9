package grading

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// MarkStore stores raw component marks per enrollment
type MarkStore struct {
	repo    store.MarkRepository
	gate    WriteGate
	timeout time.Duration
}

// NewMarkStore creates a mark store
func NewMarkStore(repo store.MarkRepository, gate WriteGate, timeout time.Duration) *MarkStore {
	return &MarkStore{repo: repo, gate: gate, timeout: orDefault(timeout)}
}

// GetMark returns the stored mark. found is false when no row exists; a row
// holding an explicit "no mark" returns found with a nil mark.
func (m *MarkStore) GetMark(ctx context.Context, enrollmentID, componentID int64) (mark *decimal.Decimal, found bool, err error) {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	row, ok, err := m.repo.FindMark(queryCtx, enrollmentID, componentID)
	if err != nil {
		return nil, false, shared.NewStorageError("get mark", err)
	}
	if !ok {
		return nil, false, nil
	}
	return row.Marks, true, nil
}

// GetMarksForEnrollment returns present marks keyed by component id.
// Components without a mark are omitted, not zero filled.
func (m *MarkStore) GetMarksForEnrollment(ctx context.Context, enrollmentID int64) (map[int64]decimal.Decimal, error) {
	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	rows, err := m.repo.MarksForEnrollment(queryCtx, enrollmentID)
	if err != nil {
		return nil, shared.NewStorageError("get marks", err)
	}

	out := make(map[int64]decimal.Decimal, len(rows))
	for _, row := range rows {
		if row.Marks != nil {
			out[row.ComponentID] = *row.Marks
		}
	}
	return out, nil
}

// SetMark upserts one mark; nil records an explicit "no mark". Last write wins.
func (m *MarkStore) SetMark(ctx context.Context, enrollmentID, componentID int64, mark *decimal.Decimal) error {
	if err := m.gate.CheckWrite(ctx, "set mark"); err != nil {
		return err
	}
	if err := validateMark(mark); err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	return shared.NewStorageError("set mark", m.repo.UpsertMark(queryCtx, enrollmentID, componentID, mark))
}

// SetMarks saves several component marks of one enrollment. All values are
// validated first; writes then happen in component order and stop at the
// first storage failure.
func (m *MarkStore) SetMarks(ctx context.Context, enrollmentID int64, marks map[int64]*decimal.Decimal) error {
	if err := m.gate.CheckWrite(ctx, "set marks"); err != nil {
		return err
	}

	componentIDs := make([]int64, 0, len(marks))
	for componentID, mark := range marks {
		if err := validateMark(mark); err != nil {
			return err
		}
		componentIDs = append(componentIDs, componentID)
	}
	sort.Slice(componentIDs, func(i, j int) bool { return componentIDs[i] < componentIDs[j] })

	for _, componentID := range componentIDs {
		queryCtx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.repo.UpsertMark(queryCtx, enrollmentID, componentID, marks[componentID])
		cancel()
		if err != nil {
			return shared.NewStorageError("set marks", err)
		}
	}
	return nil
}

func validateMark(mark *decimal.Decimal) error {
	if mark == nil {
		return nil
	}
	return shared.CheckScore("marks", *mark)
}
