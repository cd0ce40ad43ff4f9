package grading

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
)

// Sheet is the bulk grade view of a section
type Sheet struct {
	SectionID  int64                     `json:"section_id"`
	Components []shared.GradingComponent `json:"components"`
	Weights    Weights                   `json:"weights"`
	WeightSum  decimal.Decimal           `json:"weight_sum"`
	Rows       []SheetRow                `json:"rows"`
}

// SheetRow is one enrollment on the sheet. Totals use the normalized path.
type SheetRow struct {
	EnrollmentID   int64                     `json:"enrollment_id"`
	StudentID      int64                     `json:"student_id"`
	RollNo         string                    `json:"roll_no"`
	Marks          map[int64]decimal.Decimal `json:"marks"`
	Total          Total                     `json:"total"`
	CGPA           *decimal.Decimal          `json:"cgpa,omitempty"`
	ComputedLetter string                    `json:"computed_grade,omitempty"`
	StoredLetter   string                    `json:"stored_grade,omitempty"`
	Letter         string                    `json:"grade,omitempty"`
}

// SectionSheet builds the grade sheet of a section. It never writes.
func (e *Engine) SectionSheet(ctx context.Context, sectionID int64) (Sheet, error) {
	components, err := e.listComponents(ctx)
	if err != nil {
		return Sheet{}, err
	}
	weights, err := e.weights.GetWeights(ctx, sectionID)
	if err != nil {
		return Sheet{}, err
	}
	enrollments, err := e.sectionEnrollments(ctx, sectionID)
	if err != nil {
		return Sheet{}, err
	}

	sheet := Sheet{
		SectionID:  sectionID,
		Components: components,
		Weights:    weights,
		WeightSum:  weights.Sum(),
		Rows:       make([]SheetRow, 0, len(enrollments)),
	}

	for _, en := range enrollments {
		marks, err := e.marks.GetMarksForEnrollment(ctx, en.ID)
		if err != nil {
			return Sheet{}, err
		}
		stored, found, err := e.GetGrade(ctx, en.ID)
		if err != nil {
			return Sheet{}, err
		}

		row := SheetRow{
			EnrollmentID: en.ID,
			StudentID:    en.StudentID,
			RollNo:       e.rollNo(ctx, en.StudentID),
			Marks:        marks,
			Total:        computeTotal(weights, marks, true),
		}
		if row.Total.Available {
			cgpa := CGPAFor(row.Total.Percent)
			row.CGPA = &cgpa
			row.ComputedLetter = LetterFor(row.Total.Percent)
		}
		var storedPtr *shared.FinalGrade
		if found {
			storedPtr = &stored
			row.StoredLetter = stored.Letter
		}
		row.Letter, _ = effectiveLetter(storedPtr, row.ComputedLetter)
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet, nil
}

// rollNo returns a blank roll number when the student cannot be resolved.
func (e *Engine) rollNo(ctx context.Context, studentID int64) string {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	st, ok, err := e.store.FindStudent(queryCtx, studentID)
	if err != nil || !ok {
		return ""
	}
	return st.RollNo
}

func (e *Engine) listComponents(ctx context.Context) ([]shared.GradingComponent, error) {
	queryCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	list, err := e.store.ListComponents(queryCtx)
	if err != nil {
		return nil, shared.NewStorageError("list components", err)
	}
	return list, nil
}

func sortEnrollments(list []shared.Enrollment) []shared.Enrollment {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}
