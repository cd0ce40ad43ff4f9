package reconcile

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"univ_erp/backend/internal/maintenance"
	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store/memstore"
)

const (
	section = int64(7)
	other   = int64(8)
)

func as(role string) context.Context {
	return shared.WithCaller(context.Background(), shared.Caller{UserID: "u-" + role, Role: role})
}

func seed(t *testing.T) (*memstore.Store, *maintenance.Gate, *Reconciler) {
	t.Helper()
	s := memstore.New()
	for _, name := range []string{"Quiz", "Midterm", "Final"} {
		_, err := s.CreateComponent(context.Background(), name)
		require.NoError(t, err)
	}
	s.AddEnrollment(shared.Enrollment{ID: 12, StudentID: 2, SectionID: section})
	s.AddEnrollment(shared.Enrollment{ID: 11, StudentID: 1, SectionID: section})
	s.AddEnrollment(shared.Enrollment{ID: 30, StudentID: 3, SectionID: other})
	s.AddStudent(shared.Student{UserID: 1, RollNo: "R-1"})
	s.AddStudent(shared.Student{UserID: 2, RollNo: "R,2"})

	gate := maintenance.NewGate(s, s, time.Second)
	return s, gate, NewReconciler(s, gate, time.Second)
}

func put(t *testing.T, s *memstore.Store, enrollmentID, componentID int64, v string) {
	t.Helper()
	m := decimal.RequireFromString(v)
	require.NoError(t, s.UpsertMark(context.Background(), enrollmentID, componentID, &m))
}

func markOf(t *testing.T, s *memstore.Store, enrollmentID, componentID int64) string {
	t.Helper()
	m, ok, err := s.FindMark(context.Background(), enrollmentID, componentID)
	require.NoError(t, err)
	if !ok || m.Marks == nil {
		return ""
	}
	return m.Marks.String()
}

func TestExport(t *testing.T) {
	s, _, r := seed(t)
	put(t, s, 11, 1, "8.5")
	put(t, s, 11, 3, "70")
	put(t, s, 12, 2, "65")
	require.NoError(t, s.UpsertMark(context.Background(), 12, 1, nil))

	var buf bytes.Buffer
	summary, err := r.Export(as(shared.RoleStudent), section, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 3, summary.Components)

	want := "EnrollmentID,StudentID,RollNo,Quiz,Midterm,Final\n" +
		"11,1,R-1,8.5,,70\n" +
		"12,2,\"R,2\",,65,\n"
	assert.Equal(t, want, buf.String())
}

func TestExportTrimsRollNo(t *testing.T) {
	s, _, r := seed(t)
	s.AddStudent(shared.Student{UserID: 3, RollNo: "  R-3\r"})

	var buf bytes.Buffer
	_, err := r.Export(as(shared.RoleInstructor), other, &buf)
	require.NoError(t, err)
	assert.Equal(t, "EnrollmentID,StudentID,RollNo,Quiz,Midterm,Final\n30,3,R-3,,,\n", buf.String())
}

func TestExportLeavesUnknownRollNoBlank(t *testing.T) {
	s, _, r := seed(t)
	s.SetFault("FindStudent", errors.New("directory offline"))

	var buf bytes.Buffer
	_, err := r.Export(as(shared.RoleInstructor), section, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "11,1,,,,\n")
}

func TestRoundTrip(t *testing.T) {
	s, _, r := seed(t)
	put(t, s, 11, 1, "8.5")
	put(t, s, 11, 2, "7")
	put(t, s, 12, 3, "91.25")

	var first bytes.Buffer
	_, err := r.Export(as(shared.RoleInstructor), section, &first)
	require.NoError(t, err)

	report, err := r.Import(as(shared.RoleInstructor), section, bytes.NewReader(first.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, report.Issues)
	assert.Equal(t, 2, report.RowsRead)
	assert.Equal(t, 3, report.CellsWritten)

	var second bytes.Buffer
	_, err = r.Export(as(shared.RoleInstructor), section, &second)
	require.NoError(t, err)
	assert.Equal(t, first.String(), second.String())
}

func TestImport(t *testing.T) {
	ctx := as(shared.RoleInstructor)

	t.Run("one bad cell rejects only that cell", func(t *testing.T) {
		s, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo,Quiz,Midterm,Final\n" +
			"11,1,R-1,9,abc,80\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)

		require.Len(t, report.Issues, 1)
		assert.Equal(t, "Line 2, col 5: invalid numeric 'abc'", report.Issues[0].String())
		assert.Equal(t, 2, report.CellsWritten)
		assert.Equal(t, "9", markOf(t, s, 11, 1))
		assert.Equal(t, "", markOf(t, s, 11, 2))
		assert.Equal(t, "80", markOf(t, s, 11, 3))
	})

	t.Run("unstorable cells are reported and the rest written", func(t *testing.T) {
		s, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo,Quiz,Midterm,Final\n" +
			"11,1,R-1,1e7000,55,123456\n" +
			"12,2,R-2,7.5,12.34567,99999.9999\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)

		assert.Equal(t, []string{
			"Line 2, col 4: mark '1e7000' must be below 100000",
			"Line 2, col 6: mark '123456' must be below 100000",
			"Line 3, col 5: mark '12.34567' must have at most 4 decimal places",
		}, report.Messages())
		assert.Equal(t, 3, report.CellsWritten)
		assert.Equal(t, "", markOf(t, s, 11, 1))
		assert.Equal(t, "55", markOf(t, s, 11, 2))
		assert.Equal(t, "7.5", markOf(t, s, 12, 1))
		assert.Equal(t, "99999.9999", markOf(t, s, 12, 3))
	})

	t.Run("row level problems skip the row", func(t *testing.T) {
		s, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo,Quiz\n" +
			"x1,1,R-1,9\n" +
			"30,3,R-3,9\n" +
			"12,2,R-2,-4\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)

		assert.Equal(t, 3, report.RowsRead)
		assert.Equal(t, 2, report.RowsSkipped)
		assert.Equal(t, []string{
			"Line 2: invalid EnrollmentID 'x1'",
			"Line 3: Enrollment 30 does not belong to section 7",
			"Line 4, col 4: negative mark '-4'",
		}, report.Messages())
		assert.Equal(t, "", markOf(t, s, 30, 1))
	})

	t.Run("unknown columns and blank lines are ignored", func(t *testing.T) {
		s, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo, QUIZ ,Attendance\n" +
			"\n" +
			"11,1,R-1,6,yes\n" +
			"   \n" +
			"12,2,R-2,,\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)

		assert.Empty(t, report.Issues)
		assert.Equal(t, 2, report.RowsRead)
		assert.Equal(t, 1, report.CellsWritten)
		assert.Equal(t, "6", markOf(t, s, 11, 1))
		assert.Equal(t, "", markOf(t, s, 12, 1))
	})

	t.Run("line numbers count skipped blank lines", func(t *testing.T) {
		_, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo,Quiz\n\n\nbad,,,\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)
		assert.Equal(t, []string{"Line 4: invalid EnrollmentID 'bad'"}, report.Messages())
	})

	t.Run("membership lookup failure proceeds with a warning", func(t *testing.T) {
		s, _, r := seed(t)
		s.SetFault("EnrollmentsForSection", errors.New("timeout"))
		in := "EnrollmentID,StudentID,RollNo,Quiz\n30,3,R-3,5\n"
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.NoError(t, err)

		require.Len(t, report.Issues, 1)
		assert.Contains(t, report.Issues[0].String(), "section membership check skipped")
		assert.Equal(t, "5", markOf(t, s, 30, 1))
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, r := seed(t)
		_, err := r.Import(ctx, section, strings.NewReader(""))
		assert.True(t, errors.Is(err, shared.ErrValidation))
	})

	t.Run("storage failure returns the partial report", func(t *testing.T) {
		s, _, r := seed(t)
		in := "EnrollmentID,StudentID,RollNo,Quiz\nbad,,,\n11,1,R-1,5\n"
		s.SetFault("UpsertMark", errors.New("disk full"))
		report, err := r.Import(ctx, section, strings.NewReader(in))
		require.Error(t, err)
		assert.True(t, errors.Is(err, shared.ErrStorage))
		require.NotNil(t, report)
		assert.Equal(t, 2, report.RowsRead)
		assert.Len(t, report.Issues, 1)
		assert.Equal(t, 0, report.CellsWritten)
	})

	t.Run("audited", func(t *testing.T) {
		s, _, r := seed(t)
		_, err := r.Import(ctx, section, strings.NewReader("EnrollmentID,StudentID,RollNo,Quiz\n11,1,R-1,5\n"))
		require.NoError(t, err)
		events := s.AuditEvents()
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, shared.ActionMarksImport, last.Action)
		assert.Equal(t, "u-INSTRUCTOR", last.UserID)
	})
}

func TestImportBlockedInMaintenance(t *testing.T) {
	s, gate, r := seed(t)
	_, err := gate.SetState(as(shared.RoleAdmin), true)
	require.NoError(t, err)

	in := "EnrollmentID,StudentID,RollNo,Quiz\n11,1,R-1,5\n"
	for _, role := range []string{shared.RoleStudent, shared.RoleInstructor} {
		report, err := r.Import(as(role), section, strings.NewReader(in))
		assert.True(t, errors.Is(err, shared.ErrMaintenance), role)
		assert.Nil(t, report)
	}
	assert.Equal(t, "", markOf(t, s, 11, 1))

	_, err = r.Import(as(shared.RoleAdmin), section, strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, "5", markOf(t, s, 11, 1))
}

func TestReportSummary(t *testing.T) {
	report := &ImportReport{RowsRead: 3, RowsSkipped: 1, CellsWritten: 4}
	assert.Equal(t, "3 rows read, 1 skipped, 4 marks written", report.Summary())

	report.addRowIssue(2, "invalid EnrollmentID '%s'", "x")
	report.addWarning("section membership check skipped")
	assert.True(t, report.HasIssues())
	assert.Equal(t, "3 rows read, 1 skipped, 4 marks written\n"+
		"Import completed with warnings/errors:\n"+
		"Line 2: invalid EnrollmentID 'x'\n"+
		"section membership check skipped", report.Summary())
}
