package reconcile

import (
	"context"
	"encoding/csv"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"

	"univ_erp/backend/internal/shared"
)

// ExportSummary reports what Export wrote
type ExportSummary struct {
	SectionID  int64 `json:"section_id"`
	Rows       int   `json:"rows"`
	Components int   `json:"components"`
}

// Export writes one row per enrollment of the section, ordered by enrollment
// id, with a column for every component of the master list. Missing marks
// are left blank. Roll numbers are written without surrounding whitespace, so
// only commas, quotes and line breaks inside a value cause quoting.
func (r *Reconciler) Export(ctx context.Context, sectionID int64, w io.Writer) (ExportSummary, error) {
	components, err := r.components(ctx)
	if err != nil {
		return ExportSummary{}, err
	}
	enrollments, err := r.enrollments(ctx, sectionID)
	if err != nil {
		return ExportSummary{}, shared.NewStorageError("list enrollments", err)
	}
	sort.Slice(enrollments, func(i, j int) bool { return enrollments[i].ID < enrollments[j].ID })

	cw := csv.NewWriter(w)
	header := []string{ColEnrollmentID, ColStudentID, ColRollNo}
	for _, c := range components {
		header = append(header, c.Name)
	}
	if err := cw.Write(header); err != nil {
		return ExportSummary{}, err
	}

	summary := ExportSummary{SectionID: sectionID, Components: len(components)}
	for _, en := range enrollments {
		marks, err := r.marksByComponent(ctx, en.ID)
		if err != nil {
			return summary, err
		}

		row := []string{
			strconv.FormatInt(en.ID, 10),
			strconv.FormatInt(en.StudentID, 10),
			r.rollNo(ctx, en.StudentID),
		}
		for _, c := range components {
			row = append(row, marks[c.ID])
		}
		if err := cw.Write(row); err != nil {
			return summary, err
		}
		summary.Rows++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return summary, err
	}
	log.Printf("[Reconciler] Exported section %d: %d rows, %d components", sectionID, summary.Rows, summary.Components)
	return summary, nil
}

func (r *Reconciler) marksByComponent(ctx context.Context, enrollmentID int64) (map[int64]string, error) {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.store.MarksForEnrollment(queryCtx, enrollmentID)
	if err != nil {
		return nil, shared.NewStorageError("list marks", err)
	}
	out := make(map[int64]string, len(list))
	for _, m := range list {
		if m.Marks != nil {
			out[m.ComponentID] = m.Marks.String()
		}
	}
	return out, nil
}

// rollNo leaves the cell blank when the student cannot be resolved
func (r *Reconciler) rollNo(ctx context.Context, studentID int64) string {
	queryCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	st, ok, err := r.store.FindStudent(queryCtx, studentID)
	if err != nil {
		log.Printf("[Reconciler] Roll number lookup for student %d failed: %v", studentID, err)
		return ""
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(st.RollNo)
}
