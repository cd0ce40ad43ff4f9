// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// Run exercises the repository contracts against a fresh store per subtest.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	ctx := context.Background()

	t.Run("components are listed by id and names are unique ignoring case", func(t *testing.T) {
		s := newStore(t)
		quiz, err := s.CreateComponent(ctx, "Quiz")
		require.NoError(t, err)
		mid, err := s.CreateComponent(ctx, "Midterm")
		require.NoError(t, err)
		assert.Less(t, quiz.ID, mid.ID)

		_, err = s.CreateComponent(ctx, "quiz")
		assert.Error(t, err)

		list, err := s.ListComponents(ctx)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "Quiz", list[0].Name)
		assert.Equal(t, "Midterm", list[1].Name)

		found, ok, err := s.FindComponent(ctx, mid.ID)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, mid, found)

		_, ok, err = s.FindComponent(ctx, mid.ID+100)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("weights upsert, replace and clear per section", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertWeight(ctx, weight(7, 2, "60")))
		require.NoError(t, s.UpsertWeight(ctx, weight(7, 1, "40")))
		require.NoError(t, s.UpsertWeight(ctx, weight(7, 1, "45.5")))
		require.NoError(t, s.UpsertWeight(ctx, weight(8, 1, "100")))

		ws, err := s.WeightsForSection(ctx, 7)
		require.NoError(t, err)
		require.Len(t, ws, 2)
		assert.Equal(t, int64(1), ws[0].ComponentID)
		assert.True(t, ws[0].Weight.Equal(decimal.RequireFromString("45.5")))
		assert.Equal(t, int64(2), ws[1].ComponentID)

		require.NoError(t, s.ReplaceWeights(ctx, 7, []shared.SectionWeight{weight(7, 3, "100")}))
		ws, err = s.WeightsForSection(ctx, 7)
		require.NoError(t, err)
		require.Len(t, ws, 1)
		assert.Equal(t, int64(3), ws[0].ComponentID)

		n, err := s.DeleteWeightsForSection(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		ws, err = s.WeightsForSection(ctx, 7)
		require.NoError(t, err)
		assert.Empty(t, ws)

		other, err := s.WeightsForSection(ctx, 8)
		require.NoError(t, err)
		assert.Len(t, other, 1)
	})

	t.Run("marks distinguish absent from explicit null", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.FindMark(ctx, 1, 1)
		require.NoError(t, err)
		assert.False(t, ok)

		eighty := decimal.RequireFromString("80.25")
		require.NoError(t, s.UpsertMark(ctx, 1, 1, &eighty))
		require.NoError(t, s.UpsertMark(ctx, 1, 2, nil))

		m, ok, err := s.FindMark(ctx, 1, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, m.Marks)
		assert.True(t, m.Marks.Equal(eighty))

		m, ok, err = s.FindMark(ctx, 1, 2)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, m.Marks)

		seventy := decimal.NewFromInt(70)
		require.NoError(t, s.UpsertMark(ctx, 1, 1, &seventy))
		all, err := s.MarksForEnrollment(ctx, 1)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.True(t, all[0].Marks.Equal(seventy))
	})

	t.Run("empty grade letter deletes the row", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.UpsertGrade(ctx, shared.FinalGrade{EnrollmentID: 5, Letter: "B+", Source: shared.SourceOverride, UpdatedBy: "u1"}))

		g, ok, err := s.FindGrade(ctx, 5)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "B+", g.Letter)
		assert.Equal(t, shared.SourceOverride, g.Source)

		require.NoError(t, s.UpsertGrade(ctx, shared.FinalGrade{EnrollmentID: 5, Letter: ""}))
		_, ok, err = s.FindGrade(ctx, 5)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.UpsertGrade(ctx, shared.FinalGrade{EnrollmentID: 5, Letter: "C", Source: shared.SourceComputed}))
		require.NoError(t, s.DeleteGrade(ctx, 5))
		_, ok, err = s.FindGrade(ctx, 5)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("settings are created lazily", func(t *testing.T) {
		s := newStore(t)
		_, ok, err := s.GetSetting(ctx, shared.SettingMaintenance)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.PutSetting(ctx, shared.SettingMaintenance, shared.MaintenanceOn, "admin"))
		require.NoError(t, s.PutSetting(ctx, shared.SettingMaintenance, shared.MaintenanceOff, "admin"))
		v, ok, err := s.GetSetting(ctx, shared.SettingMaintenance)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, shared.MaintenanceOff, v)
	})

	t.Run("audit events are accepted", func(t *testing.T) {
		s := newStore(t)
		err := store.LogAuditEvent(shared.WithCaller(ctx, shared.Caller{UserID: "42", Role: shared.RoleAdmin}),
			s, shared.ActionMaintenanceToggle, shared.SettingMaintenance, map[string]interface{}{"value": "ON"})
		assert.NoError(t, err)
	})
}

// AssertStorageError checks that err is a wrapped storage failure.
func AssertStorageError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var se *shared.StorageError
	assert.True(t, errors.As(err, &se), "expected *shared.StorageError, got %T: %v", err, err)
}

func weight(section, component int64, w string) shared.SectionWeight {
	return shared.SectionWeight{SectionID: section, ComponentID: component, Weight: decimal.RequireFromString(w)}
}
