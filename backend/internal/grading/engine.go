package grading

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
	"univ_erp/backend/internal/undo"
)

var finalizedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "grading_finalized_total",
	Help: "Finalization outcomes per enrollment",
}, []string{"status"})

// Finalize outcomes
const (
	FinalizeWritten      = "written"
	FinalizeUnchanged    = "unchanged"
	FinalizeKeptOverride = "kept_override"
	FinalizeNoTotal      = "no_total"
)

// Letter sources reported by Evaluate
const (
	LetterFromStored   = "stored"
	LetterFromComputed = "computed"
)

// EngineConfig selects the grading policy
type EngineConfig struct {
	// FinalizeWithScaleNormalization makes Finalize store letters derived from
	// the normalized total instead of the plain weighted total.
	FinalizeWithScaleNormalization bool
	Timeout                        time.Duration
}

// Total is a weighted total. Available is false when the section has no weights.
type Total struct {
	Available  bool            `json:"available"`
	Raw        decimal.Decimal `json:"raw"`
	Percent    decimal.Decimal `json:"percent"`
	Normalized bool            `json:"normalized"`
	WeightSum  decimal.Decimal `json:"weight_sum"`
}

// Evaluation is the full grade picture of one enrollment
type Evaluation struct {
	EnrollmentID   int64              `json:"enrollment_id"`
	Total          Total              `json:"total"`
	CGPA           *decimal.Decimal   `json:"cgpa,omitempty"`
	ComputedLetter string             `json:"computed_grade,omitempty"`
	Stored         *shared.FinalGrade `json:"stored,omitempty"`
	Letter         string             `json:"grade,omitempty"`
	LetterSource   string             `json:"grade_source,omitempty"`
}

// FinalizeResult reports what Finalize did for one enrollment
type FinalizeResult struct {
	EnrollmentID int64           `json:"enrollment_id"`
	Status       string          `json:"status"`
	Percent      decimal.Decimal `json:"percent"`
	Previous     string          `json:"previous_grade,omitempty"`
	Letter       string          `json:"grade,omitempty"`
}

// Engine derives totals and letters and owns the stored final grade
type Engine struct {
	cfg     EngineConfig
	store   store.Store
	weights *WeightRegistry
	marks   *MarkStore
	gate    WriteGate
	ledger  *undo.Ledger
}

// NewEngine wires the engine to its registries, the gate and the undo ledger
func NewEngine(cfg EngineConfig, s store.Store, weights *WeightRegistry, marks *MarkStore, gate WriteGate, ledger *undo.Ledger) *Engine {
	cfg.Timeout = orDefault(cfg.Timeout)
	return &Engine{cfg: cfg, store: s, weights: weights, marks: marks, gate: gate, ledger: ledger}
}

// ============================================================================
// Totals
// ============================================================================

// WeightedTotalPercent is the plain path: the weighted sum rounded to 2 places.
func (e *Engine) WeightedTotalPercent(ctx context.Context, enrollmentID int64) (Total, error) {
	return e.totalFor(ctx, enrollmentID, false)
}

// WeightedTotalWithScaleNormalization is the bulk display path: the weighted
// sum lifted by NormalizeScale, clamped and rounded to 2 places.
func (e *Engine) WeightedTotalWithScaleNormalization(ctx context.Context, enrollmentID int64) (Total, error) {
	return e.totalFor(ctx, enrollmentID, true)
}

func (e *Engine) totalFor(ctx context.Context, enrollmentID int64, normalize bool) (Total, error) {
	enrollment, err := e.enrollment(ctx, enrollmentID)
	if err != nil {
		return Total{}, err
	}
	weights, err := e.weights.GetWeights(ctx, enrollment.SectionID)
	if err != nil {
		return Total{}, err
	}
	marks, err := e.marks.GetMarksForEnrollment(ctx, enrollmentID)
	if err != nil {
		return Total{}, err
	}
	return computeTotal(weights, marks, normalize), nil
}

func computeTotal(weights Weights, marks map[int64]decimal.Decimal, normalize bool) Total {
	if len(weights) == 0 {
		return Total{Available: false, Normalized: normalize}
	}

	raw := WeightedSum(weights, marks)
	percent := raw
	if normalize {
		percent = NormalizeScale(raw)
	}
	return Total{
		Available:  true,
		Raw:        raw,
		Percent:    RoundHalfUp2(percent),
		Normalized: normalize,
		WeightSum:  weights.Sum(),
	}
}

// ============================================================================
// Letters
// ============================================================================

// Evaluate reports the normalized total, the computed letter and the stored
// grade. A stored letter always wins over the computed one.
func (e *Engine) Evaluate(ctx context.Context, enrollmentID int64) (Evaluation, error) {
	total, err := e.WeightedTotalWithScaleNormalization(ctx, enrollmentID)
	if err != nil {
		return Evaluation{}, err
	}
	stored, ok, err := e.GetGrade(ctx, enrollmentID)
	if err != nil {
		return Evaluation{}, err
	}

	ev := Evaluation{EnrollmentID: enrollmentID, Total: total}
	if total.Available {
		cgpa := CGPAFor(total.Percent)
		ev.CGPA = &cgpa
		ev.ComputedLetter = LetterFor(total.Percent)
	}
	if ok {
		ev.Stored = &stored
	}
	ev.Letter, ev.LetterSource = effectiveLetter(ev.Stored, ev.ComputedLetter)
	return ev, nil
}

func effectiveLetter(stored *shared.FinalGrade, computed string) (string, string) {
	if stored != nil && stored.Letter != "" {
		return stored.Letter, LetterFromStored
	}
	if computed != "" {
		return computed, LetterFromComputed
	}
	return "", ""
}

// GetGrade returns the stored final grade, if any
func (e *Engine) GetGrade(ctx context.Context, enrollmentID int64) (shared.FinalGrade, bool, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	g, ok, err := e.store.FindGrade(queryCtx, enrollmentID)
	if err != nil {
		return shared.FinalGrade{}, false, shared.NewStorageError("get grade", err)
	}
	return g, ok, nil
}

// Finalize computes the letter for an enrollment and stores it. An instructor
// override already on file is kept.
func (e *Engine) Finalize(ctx context.Context, enrollmentID int64) (FinalizeResult, error) {
	if err := e.gate.CheckWrite(ctx, "finalize grade"); err != nil {
		return FinalizeResult{}, err
	}
	enrollment, err := e.enrollment(ctx, enrollmentID)
	if err != nil {
		return FinalizeResult{}, err
	}
	weights, err := e.weights.GetWeights(ctx, enrollment.SectionID)
	if err != nil {
		return FinalizeResult{}, err
	}
	return e.finalizeOne(ctx, enrollmentID, weights)
}

// FinalizeSection finalizes every enrollment of a section in id order. A
// storage failure stops the run and returns the results so far.
func (e *Engine) FinalizeSection(ctx context.Context, sectionID int64) ([]FinalizeResult, error) {
	if err := e.gate.CheckWrite(ctx, "finalize section"); err != nil {
		return nil, err
	}

	enrollments, err := e.sectionEnrollments(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	weights, err := e.weights.GetWeights(ctx, sectionID)
	if err != nil {
		return nil, err
	}

	out := make([]FinalizeResult, 0, len(enrollments))
	for _, en := range enrollments {
		res, err := e.finalizeOne(ctx, en.ID, weights)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	log.Printf("[GradeEngine] Finalized section %d: %d enrollments", sectionID, len(out))
	return out, nil
}

func (e *Engine) finalizeOne(ctx context.Context, enrollmentID int64, weights Weights) (FinalizeResult, error) {
	marks, err := e.marks.GetMarksForEnrollment(ctx, enrollmentID)
	if err != nil {
		return FinalizeResult{}, err
	}

	total := computeTotal(weights, marks, e.cfg.FinalizeWithScaleNormalization)
	result := FinalizeResult{EnrollmentID: enrollmentID, Percent: total.Percent}
	if !total.Available {
		result.Status = FinalizeNoTotal
		finalizedTotal.WithLabelValues(result.Status).Inc()
		return result, nil
	}

	existing, found, err := e.GetGrade(ctx, enrollmentID)
	if err != nil {
		return FinalizeResult{}, err
	}
	letter := LetterFor(total.Percent)
	result.Previous = existing.Letter
	result.Letter = letter

	switch {
	case found && existing.Source == shared.SourceOverride:
		result.Status = FinalizeKeptOverride
		result.Letter = existing.Letter
	case found && existing.Letter == letter:
		result.Status = FinalizeUnchanged
	default:
		if err := e.writeGrade(ctx, enrollmentID, letter, shared.SourceComputed); err != nil {
			return FinalizeResult{}, err
		}
		e.ledger.Push(ctx, undo.Change{
			EnrollmentID: enrollmentID,
			OldLetter:    existing.Letter,
			OldSource:    existing.Source,
			NewLetter:    letter,
			NewSource:    shared.SourceComputed,
		})
		result.Status = FinalizeWritten
		store.LogAuditEvent(ctx, e.store, shared.ActionGradeFinalize, fmt.Sprintf("enrollment:%d", enrollmentID),
			map[string]interface{}{"from": existing.Letter, "to": letter, "percent": total.Percent.String()})
	}

	finalizedTotal.WithLabelValues(result.Status).Inc()
	return result, nil
}

// SetGrade stores an instructor override. An empty letter removes the stored
// grade. The change is recorded for undo.
func (e *Engine) SetGrade(ctx context.Context, enrollmentID int64, letter string) (undo.Change, error) {
	if err := e.gate.CheckWrite(ctx, "override grade"); err != nil {
		return undo.Change{}, err
	}

	letter = strings.ToUpper(strings.TrimSpace(letter))
	if letter != "" && !shared.IsValidGrade(letter) {
		return undo.Change{}, shared.NewValidationError("grade", "%q is not one of %s", letter, strings.Join(shared.OverrideLetters, ", "))
	}
	if _, err := e.enrollment(ctx, enrollmentID); err != nil {
		return undo.Change{}, err
	}

	existing, found, err := e.GetGrade(ctx, enrollmentID)
	if err != nil {
		return undo.Change{}, err
	}
	change := undo.Change{EnrollmentID: enrollmentID, OldLetter: existing.Letter, OldSource: existing.Source, NewLetter: letter}
	if letter != "" {
		change.NewSource = shared.SourceOverride
	}
	if found && existing.Letter == letter && existing.Source == shared.SourceOverride {
		return change, nil
	}
	if !found && letter == "" {
		return change, nil
	}

	if err := e.writeGrade(ctx, enrollmentID, letter, shared.SourceOverride); err != nil {
		return undo.Change{}, err
	}
	e.ledger.Push(ctx, change)

	log.Printf("[GradeEngine] Enrollment %d grade override %q -> %q", enrollmentID, existing.Letter, letter)
	store.LogAuditEvent(ctx, e.store, shared.ActionGradeOverride, fmt.Sprintf("enrollment:%d", enrollmentID),
		map[string]interface{}{"from": existing.Letter, "to": letter})
	return change, nil
}

func (e *Engine) writeGrade(ctx context.Context, enrollmentID int64, letter string, source shared.GradeSource) error {
	writeCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	err := e.store.UpsertGrade(writeCtx, shared.FinalGrade{
		EnrollmentID: enrollmentID,
		Letter:       letter,
		Source:       source,
		UpdatedBy:    shared.CallerFromContext(ctx).UserID,
		UpdatedAt:    time.Now().UTC(),
	})
	return shared.NewStorageError("write grade", err)
}

// ============================================================================
// Lookups
// ============================================================================

func (e *Engine) enrollment(ctx context.Context, enrollmentID int64) (shared.Enrollment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	en, ok, err := e.store.FindEnrollment(queryCtx, enrollmentID)
	if err != nil {
		return shared.Enrollment{}, shared.NewStorageError("find enrollment", err)
	}
	if !ok {
		return shared.Enrollment{}, &shared.NotFoundError{Resource: "enrollment", ID: enrollmentID}
	}
	return en, nil
}

func (e *Engine) sectionEnrollments(ctx context.Context, sectionID int64) ([]shared.Enrollment, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	list, err := e.store.EnrollmentsForSection(queryCtx, sectionID)
	if err != nil {
		return nil, shared.NewStorageError("list enrollments", err)
	}
	return sortEnrollments(list), nil
}
