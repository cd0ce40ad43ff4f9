package grading

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// WriteGate is consulted by every mutating operation before any side effect
type WriteGate interface {
	CheckWrite(ctx context.Context, operation string) error
}

// WeightRegistry stores the percentage each component contributes to a section
type WeightRegistry struct {
	repo       store.WeightRepository
	components store.ComponentRepository
	gate       WriteGate
	audit      store.AuditLog
	timeout    time.Duration
}

// NewWeightRegistry creates a registry. audit may be nil.
func NewWeightRegistry(repo store.WeightRepository, components store.ComponentRepository, gate WriteGate, audit store.AuditLog, timeout time.Duration) *WeightRegistry {
	return &WeightRegistry{repo: repo, components: components, gate: gate, audit: audit, timeout: orDefault(timeout)}
}

// GetWeights returns the section's weights ordered by component id
func (r *WeightRegistry) GetWeights(ctx context.Context, sectionID int64) (Weights, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ws, err := r.repo.WeightsForSection(queryCtx, sectionID)
	if err != nil {
		return nil, shared.NewStorageError("get weights", err)
	}
	sort.Slice(ws, func(i, j int) bool { return ws[i].ComponentID < ws[j].ComponentID })
	return Weights(ws), nil
}

// WeightSum reports the configured weight total of a section
func (r *WeightRegistry) WeightSum(ctx context.Context, sectionID int64) (decimal.Decimal, error) {
	ws, err := r.GetWeights(ctx, sectionID)
	if err != nil {
		return decimal.Zero, err
	}
	return ws.Sum(), nil
}

// SetWeight upserts one component weight. The section total is not checked.
func (r *WeightRegistry) SetWeight(ctx context.Context, sectionID, componentID int64, weight decimal.Decimal) error {
	if err := r.gate.CheckWrite(ctx, "set weight"); err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.validate(queryCtx, componentID, weight); err != nil {
		return err
	}

	err := r.repo.UpsertWeight(queryCtx, shared.SectionWeight{SectionID: sectionID, ComponentID: componentID, Weight: weight})
	return shared.NewStorageError("set weight", err)
}

// ClearWeights removes every weight of a section and returns how many were removed
func (r *WeightRegistry) ClearWeights(ctx context.Context, sectionID int64) (int64, error) {
	if err := r.gate.CheckWrite(ctx, "clear weights"); err != nil {
		return 0, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	n, err := r.repo.DeleteWeightsForSection(queryCtx, sectionID)
	if err != nil {
		return 0, shared.NewStorageError("clear weights", err)
	}
	return n, nil
}

// ReplaceWeights swaps the whole weight table of a section in one atomic write.
// Every entry is validated before anything is written.
func (r *WeightRegistry) ReplaceWeights(ctx context.Context, sectionID int64, weights map[int64]decimal.Decimal) error {
	if err := r.gate.CheckWrite(ctx, "replace weights"); err != nil {
		return err
	}

	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows := make([]shared.SectionWeight, 0, len(weights))
	for componentID, w := range weights {
		if err := r.validate(queryCtx, componentID, w); err != nil {
			return err
		}
		rows = append(rows, shared.SectionWeight{SectionID: sectionID, ComponentID: componentID, Weight: w})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ComponentID < rows[j].ComponentID })

	if err := r.repo.ReplaceWeights(queryCtx, sectionID, rows); err != nil {
		return shared.NewStorageError("replace weights", err)
	}

	sum := Weights(rows).Sum()
	if !sum.Equal(hundred) {
		log.Printf("[WeightRegistry] Section %d weights sum to %s, not 100", sectionID, sum.String())
	}
	store.LogAuditEvent(ctx, r.audit, shared.ActionWeightsReplace, fmt.Sprintf("section:%d", sectionID),
		map[string]interface{}{"components": len(rows), "sum": sum.String()})
	return nil
}

func (r *WeightRegistry) validate(ctx context.Context, componentID int64, weight decimal.Decimal) error {
	if err := shared.CheckScore("weight", weight); err != nil {
		return err
	}
	_, ok, err := r.components.FindComponent(ctx, componentID)
	if err != nil {
		return shared.NewStorageError("find component", err)
	}
	if !ok {
		return &shared.NotFoundError{Resource: "grading component", ID: componentID}
	}
	return nil
}

func orDefault(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return 10 * time.Second
	}
	return timeout
}
