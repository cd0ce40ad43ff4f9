package grading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/maintenance"
	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store/memstore"
	"univ_erp/backend/internal/undo"
)

const (
	section     = int64(10)
	otherSect   = int64(11)
	quiz        = int64(1)
	midterm     = int64(2)
	finalExam   = int64(3)
	enrollAlice = int64(101)
	enrollBob   = int64(102)
	enrollCarol = int64(201)
)

type fixture struct {
	store      *memstore.Store
	gate       *maintenance.Gate
	ledger     *undo.Ledger
	weights    *WeightRegistry
	marks      *MarkStore
	engine     *Engine
	components *ComponentCatalog
}

func newFixture(t *testing.T, cfg EngineConfig) *fixture {
	t.Helper()
	s := memstore.New()
	admin := as(shared.RoleAdmin)
	for _, name := range []string{"Quiz", "Midterm", "Final"} {
		_, err := s.CreateComponent(admin, name)
		require.NoError(t, err)
	}
	s.AddEnrollment(shared.Enrollment{ID: enrollAlice, StudentID: 1, SectionID: section})
	s.AddEnrollment(shared.Enrollment{ID: enrollBob, StudentID: 2, SectionID: section})
	s.AddEnrollment(shared.Enrollment{ID: enrollCarol, StudentID: 3, SectionID: otherSect})
	s.AddStudent(shared.Student{UserID: 1, RollNo: "2024-001"})
	s.AddStudent(shared.Student{UserID: 2, RollNo: "2024-002"})

	gate := maintenance.NewGate(s, s, time.Second)
	ledger := undo.NewLedger(1, s, gate, s, time.Second)
	weights := NewWeightRegistry(s, s, gate, s, time.Second)
	marks := NewMarkStore(s, gate, time.Second)
	cfg.Timeout = time.Second
	return &fixture{
		store:      s,
		gate:       gate,
		ledger:     ledger,
		weights:    weights,
		marks:      marks,
		engine:     NewEngine(cfg, s, weights, marks, gate, ledger),
		components: NewComponentCatalog(s, gate, s, time.Second),
	}
}

func as(role string) context.Context {
	return shared.WithCaller(context.Background(), shared.Caller{UserID: "u-" + role, Role: role})
}

func (f *fixture) mark(t *testing.T, enrollmentID, componentID int64, v string) {
	t.Helper()
	m := d(v)
	require.NoError(t, f.marks.SetMark(as(shared.RoleInstructor), enrollmentID, componentID, &m))
}

func (f *fixture) maintenanceOn(t *testing.T) {
	t.Helper()
	_, err := f.gate.SetState(as(shared.RoleAdmin), true)
	require.NoError(t, err)
}

func TestWeightRegistry(t *testing.T) {
	ctx := as(shared.RoleInstructor)

	t.Run("set and get ordered by component", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		require.NoError(t, f.weights.SetWeight(ctx, section, midterm, d("60")))
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("40")))

		ws, err := f.weights.GetWeights(ctx, section)
		require.NoError(t, err)
		require.Len(t, ws, 2)
		assert.Equal(t, quiz, ws[0].ComponentID)
		assert.True(t, ws.Lookup(finalExam).IsZero())
	})

	t.Run("negative weight is rejected", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		err := f.weights.SetWeight(ctx, section, quiz, d("-1"))
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("weight outside the stored range is rejected", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		for _, v := range []string{"100000", "1e7000", "10.12345"} {
			err := f.weights.SetWeight(ctx, section, quiz, d(v))
			assert.True(t, errors.Is(err, shared.ErrValidation), v)
			assert.False(t, errors.Is(err, shared.ErrStorage), v)
		}
		err := f.weights.ReplaceWeights(ctx, section, map[int64]decimal.Decimal{quiz: d("50"), midterm: d("123456")})
		assert.True(t, errors.Is(err, shared.ErrValidation))
		ws, _ := f.weights.GetWeights(ctx, section)
		assert.Empty(t, ws)
	})

	t.Run("weight above one hundred is stored", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		assert.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("120")))
	})

	t.Run("unknown component", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		err := f.weights.SetWeight(ctx, section, 99, d("10"))
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("sum of seventy is accepted", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("30")))
		require.NoError(t, f.weights.SetWeight(ctx, section, midterm, d("40")))
		sum, err := f.weights.WeightSum(ctx, section)
		require.NoError(t, err)
		assert.True(t, sum.Equal(d("70")))

		f.mark(t, enrollAlice, quiz, "100")
		f.mark(t, enrollAlice, midterm, "100")
		total, err := f.engine.WeightedTotalPercent(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, "70.00", total.Percent.StringFixed(2))
	})

	t.Run("replace validates everything before writing", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("100")))

		err := f.weights.ReplaceWeights(ctx, section, map[int64]decimal.Decimal{midterm: d("50"), 99: d("50")})
		assert.True(t, errors.Is(err, shared.ErrNotFound))
		ws, _ := f.weights.GetWeights(ctx, section)
		require.Len(t, ws, 1)

		require.NoError(t, f.weights.ReplaceWeights(ctx, section, map[int64]decimal.Decimal{midterm: d("50"), finalExam: d("50")}))
		ws, _ = f.weights.GetWeights(ctx, section)
		require.Len(t, ws, 2)
		assert.Equal(t, midterm, ws[0].ComponentID)
	})

	t.Run("clear", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("100")))
		n, err := f.weights.ClearWeights(ctx, section)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestMarkStore(t *testing.T) {
	ctx := as(shared.RoleInstructor)
	f := newFixture(t, EngineConfig{})

	_, found, err := f.marks.GetMark(ctx, enrollAlice, quiz)
	require.NoError(t, err)
	assert.False(t, found)

	f.mark(t, enrollAlice, quiz, "9.5")
	require.NoError(t, f.marks.SetMark(ctx, enrollAlice, midterm, nil))

	m, found, err := f.marks.GetMark(ctx, enrollAlice, midterm)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Nil(t, m)

	all, err := f.marks.GetMarksForEnrollment(ctx, enrollAlice)
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.True(t, all[quiz].Equal(d("9.5")))

	neg := d("-2")
	err = f.marks.SetMark(ctx, enrollAlice, quiz, &neg)
	assert.True(t, errors.Is(err, shared.ErrValidation))

	huge := d("1e7000")
	err = f.marks.SetMark(ctx, enrollAlice, quiz, &huge)
	assert.True(t, errors.Is(err, shared.ErrValidation))
	assert.NotContains(t, err.Error(), "0000000000")

	ok, over := d("4"), d("123456")
	err = f.marks.SetMarks(ctx, enrollAlice, map[int64]*decimal.Decimal{midterm: &ok, finalExam: &over})
	assert.True(t, errors.Is(err, shared.ErrValidation))
	_, found, err = f.marks.GetMark(ctx, enrollAlice, finalExam)
	require.NoError(t, err)
	assert.False(t, found)

	ten, twenty := d("10"), d("20")
	require.NoError(t, f.marks.SetMarks(ctx, enrollBob, map[int64]*decimal.Decimal{quiz: &ten, midterm: &twenty, finalExam: nil}))
	all, err = f.marks.GetMarksForEnrollment(ctx, enrollBob)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTotals(t *testing.T) {
	ctx := as(shared.RoleInstructor)

	t.Run("both paths agree on consistent scales", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("40")))
		require.NoError(t, f.weights.SetWeight(ctx, section, midterm, d("60")))
		f.mark(t, enrollAlice, quiz, "8")
		f.mark(t, enrollAlice, midterm, "7")
		f.mark(t, enrollBob, quiz, "80")
		f.mark(t, enrollBob, midterm, "70")

		norm, err := f.engine.WeightedTotalWithScaleNormalization(ctx, enrollAlice)
		require.NoError(t, err)
		assert.True(t, norm.Raw.Equal(d("7.4")))
		assert.Equal(t, "74.00", norm.Percent.StringFixed(2))

		plain, err := f.engine.WeightedTotalPercent(ctx, enrollBob)
		require.NoError(t, err)
		assert.Equal(t, "74.00", plain.Percent.StringFixed(2))

		ev, err := f.engine.Evaluate(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, shared.GradeC, ev.Letter)
		assert.Equal(t, LetterFromComputed, ev.LetterSource)
		require.NotNil(t, ev.CGPA)
		assert.Equal(t, "7.4", ev.CGPA.String())
	})

	t.Run("no weights means no total", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		f.mark(t, enrollAlice, quiz, "90")
		total, err := f.engine.WeightedTotalPercent(ctx, enrollAlice)
		require.NoError(t, err)
		assert.False(t, total.Available)

		ev, err := f.engine.Evaluate(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Empty(t, ev.Letter)
		assert.Nil(t, ev.CGPA)
	})

	t.Run("unknown enrollment", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		_, err := f.engine.WeightedTotalPercent(ctx, 999)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})

	t.Run("storage failure is surfaced", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		f.store.SetFault("WeightsForSection", errors.New("socket closed"))
		_, err := f.engine.WeightedTotalPercent(ctx, enrollAlice)
		assert.True(t, errors.Is(err, shared.ErrStorage))
	})
}

func TestFinalize(t *testing.T) {
	ctx := as(shared.RoleInstructor)

	setup := func(t *testing.T, cfg EngineConfig) *fixture {
		f := newFixture(t, cfg)
		require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("40")))
		require.NoError(t, f.weights.SetWeight(ctx, section, midterm, d("60")))
		f.mark(t, enrollAlice, quiz, "95")
		f.mark(t, enrollAlice, midterm, "90")
		f.mark(t, enrollBob, quiz, "8")
		f.mark(t, enrollBob, midterm, "7")
		return f
	}

	t.Run("plain path by default", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		res, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, FinalizeWritten, res.Status)
		assert.Equal(t, shared.GradeA, res.Letter)

		res, err = f.engine.Finalize(ctx, enrollBob)
		require.NoError(t, err)
		assert.Equal(t, shared.GradeF, res.Letter)

		g, ok, err := f.engine.GetGrade(ctx, enrollAlice)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, shared.SourceComputed, g.Source)
		assert.Equal(t, "u-INSTRUCTOR", g.UpdatedBy)
	})

	t.Run("normalized path when configured", func(t *testing.T) {
		f := setup(t, EngineConfig{FinalizeWithScaleNormalization: true})
		res, err := f.engine.Finalize(ctx, enrollBob)
		require.NoError(t, err)
		assert.Equal(t, shared.GradeC, res.Letter)
	})

	t.Run("second run is unchanged", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		_, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		res, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, FinalizeUnchanged, res.Status)
	})

	t.Run("override wins over computed letter", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		_, err := f.engine.SetGrade(ctx, enrollAlice, "b+")
		require.NoError(t, err)

		res, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, FinalizeKeptOverride, res.Status)
		assert.Equal(t, "B+", res.Letter)

		ev, err := f.engine.Evaluate(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, shared.GradeA, ev.ComputedLetter)
		assert.Equal(t, "B+", ev.Letter)
		assert.Equal(t, LetterFromStored, ev.LetterSource)
	})

	t.Run("no weights is skipped", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		res, err := f.engine.Finalize(ctx, enrollCarol)
		require.NoError(t, err)
		assert.Equal(t, FinalizeNoTotal, res.Status)
		_, ok, _ := f.engine.GetGrade(ctx, enrollCarol)
		assert.False(t, ok)
	})

	t.Run("section in enrollment order", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		results, err := f.engine.FinalizeSection(ctx, section)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, enrollAlice, results[0].EnrollmentID)
		assert.Equal(t, enrollBob, results[1].EnrollmentID)
	})

	t.Run("pinning the computed letter as an override is undoable", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		_, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)

		change, err := f.engine.SetGrade(ctx, enrollAlice, shared.GradeA)
		require.NoError(t, err)
		assert.Equal(t, shared.SourceComputed, change.OldSource)
		assert.Equal(t, shared.SourceOverride, change.NewSource)
		require.Equal(t, 1, f.ledger.Len(ctx))

		res, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, FinalizeKeptOverride, res.Status)

		_, err = f.ledger.PopAndRevert(ctx)
		require.NoError(t, err)
		g, ok, err := f.engine.GetGrade(ctx, enrollAlice)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, shared.GradeA, g.Letter)
		assert.Equal(t, shared.SourceComputed, g.Source)

		res, err = f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)
		assert.Equal(t, FinalizeUnchanged, res.Status)
	})

	t.Run("finalize is undoable", func(t *testing.T) {
		f := setup(t, EngineConfig{})
		_, err := f.engine.Finalize(ctx, enrollAlice)
		require.NoError(t, err)

		_, err = f.ledger.PopAndRevert(ctx)
		require.NoError(t, err)
		_, ok, _ := f.engine.GetGrade(ctx, enrollAlice)
		assert.False(t, ok)
	})
}

func TestSetGrade(t *testing.T) {
	ctx := as(shared.RoleInstructor)

	t.Run("set then undo deletes the row", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		change, err := f.engine.SetGrade(ctx, enrollAlice, "A")
		require.NoError(t, err)
		assert.Equal(t, "", change.OldLetter)

		_, err = f.ledger.PopAndRevert(ctx)
		require.NoError(t, err)
		_, ok, err := f.engine.GetGrade(ctx, enrollAlice)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("set then undo restores the previous letter", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		_, err := f.engine.SetGrade(ctx, enrollAlice, "C")
		require.NoError(t, err)
		_, err = f.engine.SetGrade(ctx, enrollAlice, "A")
		require.NoError(t, err)

		_, err = f.ledger.PopAndRevert(ctx)
		require.NoError(t, err)
		g, ok, err := f.engine.GetGrade(ctx, enrollAlice)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "C", g.Letter)
	})

	t.Run("empty letter deletes", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		_, err := f.engine.SetGrade(ctx, enrollAlice, "D")
		require.NoError(t, err)
		_, err = f.engine.SetGrade(ctx, enrollAlice, "  ")
		require.NoError(t, err)
		_, ok, _ := f.engine.GetGrade(ctx, enrollAlice)
		assert.False(t, ok)
	})

	t.Run("invalid letter", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		_, err := f.engine.SetGrade(ctx, enrollAlice, "E")
		assert.True(t, errors.Is(err, shared.ErrValidation))
		assert.Equal(t, 0, f.ledger.Len(ctx))
	})

	t.Run("unknown enrollment", func(t *testing.T) {
		f := newFixture(t, EngineConfig{})
		_, err := f.engine.SetGrade(ctx, 404, "A")
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestMaintenanceBlocksWrites(t *testing.T) {
	f := newFixture(t, EngineConfig{})
	require.NoError(t, f.weights.SetWeight(as(shared.RoleAdmin), section, quiz, d("100")))
	f.mark(t, enrollAlice, quiz, "50")
	f.maintenanceOn(t)

	m := d("75")
	writes := map[string]func(ctx context.Context) error{
		"set weight": func(ctx context.Context) error { return f.weights.SetWeight(ctx, section, quiz, d("100")) },
		"clear weights": func(ctx context.Context) error {
			_, err := f.weights.ClearWeights(ctx, otherSect)
			return err
		},
		"replace weights": func(ctx context.Context) error {
			return f.weights.ReplaceWeights(ctx, otherSect, map[int64]decimal.Decimal{quiz: d("100")})
		},
		"set mark": func(ctx context.Context) error { return f.marks.SetMark(ctx, enrollAlice, quiz, &m) },
		"set marks": func(ctx context.Context) error {
			return f.marks.SetMarks(ctx, enrollAlice, map[int64]*decimal.Decimal{quiz: &m})
		},
		"finalize": func(ctx context.Context) error {
			_, err := f.engine.Finalize(ctx, enrollAlice)
			return err
		},
		"finalize section": func(ctx context.Context) error {
			_, err := f.engine.FinalizeSection(ctx, section)
			return err
		},
		"override": func(ctx context.Context) error {
			_, err := f.engine.SetGrade(ctx, enrollAlice, "B")
			return err
		},
	}

	for name, write := range writes {
		t.Run(name, func(t *testing.T) {
			for _, role := range []string{shared.RoleStudent, shared.RoleInstructor} {
				err := write(as(role))
				require.Error(t, err, role)
				var blocked *shared.MaintenanceBlockedError
				assert.True(t, errors.As(err, &blocked), "%s: %v", role, err)
			}
			assert.NoError(t, write(as(shared.RoleAdmin)))
		})
	}

	t.Run("reads are never blocked", func(t *testing.T) {
		ctx := as(shared.RoleStudent)
		_, err := f.weights.GetWeights(ctx, section)
		assert.NoError(t, err)
		_, err = f.engine.Evaluate(ctx, enrollAlice)
		assert.NoError(t, err)
		_, err = f.engine.SectionSheet(ctx, section)
		assert.NoError(t, err)
	})

	t.Run("blocked write has no side effect", func(t *testing.T) {
		got, _, err := f.marks.GetMark(as(shared.RoleStudent), enrollBob, quiz)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSectionSheet(t *testing.T) {
	ctx := as(shared.RoleInstructor)
	f := newFixture(t, EngineConfig{})
	require.NoError(t, f.weights.SetWeight(ctx, section, quiz, d("40")))
	require.NoError(t, f.weights.SetWeight(ctx, section, midterm, d("60")))
	f.mark(t, enrollAlice, quiz, "8")
	f.mark(t, enrollAlice, midterm, "7")
	_, err := f.engine.SetGrade(ctx, enrollBob, "W")
	require.NoError(t, err)

	sheet, err := f.engine.SectionSheet(ctx, section)
	require.NoError(t, err)
	assert.Len(t, sheet.Components, 3)
	assert.True(t, sheet.WeightSum.Equal(d("100")))
	require.Len(t, sheet.Rows, 2)

	alice := sheet.Rows[0]
	assert.Equal(t, "2024-001", alice.RollNo)
	assert.Equal(t, "74.00", alice.Total.Percent.StringFixed(2))
	assert.Equal(t, "C", alice.Letter)
	require.NotNil(t, alice.CGPA)
	assert.Equal(t, "7.40", alice.CGPA.StringFixed(2))

	bob := sheet.Rows[1]
	assert.Equal(t, "F", bob.ComputedLetter)
	assert.Equal(t, "W", bob.StoredLetter)
	assert.Equal(t, "W", bob.Letter)
}

func TestComponentCatalog(t *testing.T) {
	f := newFixture(t, EngineConfig{})

	_, err := f.components.Create(as(shared.RoleInstructor), "Lab")
	assert.True(t, errors.Is(err, shared.ErrPermission))

	c, err := f.components.Create(as(shared.RoleAdmin), "  Lab ")
	require.NoError(t, err)
	assert.Equal(t, "Lab", c.Name)

	_, err = f.components.Create(as(shared.RoleAdmin), "lab")
	assert.True(t, errors.Is(err, shared.ErrValidation))

	_, err = f.components.Create(as(shared.RoleAdmin), "Quiz, Part 2")
	assert.True(t, errors.Is(err, shared.ErrValidation))

	list, err := f.components.List(as(shared.RoleStudent))
	require.NoError(t, err)
	assert.Len(t, list, 4)
}
