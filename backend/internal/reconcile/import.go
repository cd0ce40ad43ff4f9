package reconcile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/shared"
	"univ_erp/backend/internal/store"
)

// Import reads a marks sheet and upserts every valid cell. Bad rows and cells
// are recorded in the report and skipped; the import itself only fails when
// the gate refuses it, the input has no header, or storage fails. On a storage
// failure the partial report is returned together with the error. Rows are
// not applied atomically.
func (r *Reconciler) Import(ctx context.Context, sectionID int64, in io.Reader) (*ImportReport, error) {
	if err := r.gate.CheckWrite(ctx, "import marks"); err != nil {
		return nil, err
	}

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, shared.NewValidationError("csv", "CSV is empty")
	}
	if err != nil {
		return nil, shared.NewValidationError("csv", "unreadable header: %v", err)
	}

	columns, err := r.componentColumns(ctx, header)
	if err != nil {
		return nil, err
	}

	report := &ImportReport{SectionID: sectionID, Issues: []Issue{}}
	members, checkMembership := r.sectionMembers(ctx, sectionID, report)

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			report.RowsRead++
			report.RowsSkipped++
			report.addRowIssue(parseErr.StartLine, "malformed row: %v", parseErr.Err)
			importRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if err != nil {
			return report, fmt.Errorf("read marks sheet: %w", err)
		}
		if blankRecord(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		report.RowsRead++

		raw := strings.TrimSpace(record[0])
		enrollmentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			report.RowsSkipped++
			report.addRowIssue(line, "invalid EnrollmentID '%s'", raw)
			importRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if checkMembership && !members[enrollmentID] {
			report.RowsSkipped++
			report.addRowIssue(line, "Enrollment %d does not belong to section %d", enrollmentID, sectionID)
			importRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}

		if err := r.importRow(ctx, enrollmentID, line, record, columns, report); err != nil {
			return report, err
		}
		importRowsTotal.WithLabelValues("imported").Inc()
	}

	log.Printf("[Reconciler] Imported section %d: %d rows, %d skipped, %d marks written, %d issues",
		sectionID, report.RowsRead, report.RowsSkipped, report.CellsWritten, len(report.Issues))
	store.LogAuditEvent(ctx, r.store, shared.ActionMarksImport, fmt.Sprintf("section:%d", sectionID),
		map[string]interface{}{
			"rows_read":     report.RowsRead,
			"rows_skipped":  report.RowsSkipped,
			"cells_written": report.CellsWritten,
			"issues":        len(report.Issues),
		})
	return report, nil
}

func (r *Reconciler) importRow(ctx context.Context, enrollmentID int64, line int, record []string, columns map[int]int64, report *ImportReport) error {
	for ci := fixedColumns; ci < len(record); ci++ {
		componentID, ok := columns[ci]
		if !ok {
			continue
		}
		val := strings.TrimSpace(record[ci])
		if val == "" {
			continue
		}
		mark, err := decimal.NewFromString(val)
		if err != nil {
			report.addCellIssue(line, ci+1, "invalid numeric '%s'", val)
			continue
		}
		if mark.IsNegative() {
			report.addCellIssue(line, ci+1, "negative mark '%s'", val)
			continue
		}
		if problem := shared.ScoreProblem(mark); problem != "" {
			report.addCellIssue(line, ci+1, "mark '%s' %s", val, problem)
			continue
		}

		writeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err = r.store.UpsertMark(writeCtx, enrollmentID, componentID, &mark)
		cancel()
		if err != nil {
			return shared.NewStorageError(fmt.Sprintf("upsert mark (line %d)", line), err)
		}
		report.CellsWritten++
	}
	return nil
}

// componentColumns maps header positions past the fixed columns to component
// ids. Unknown names are left out and their cells ignored.
func (r *Reconciler) componentColumns(ctx context.Context, header []string) (map[int]int64, error) {
	components, err := r.components(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(components))
	for _, c := range components {
		byName[normalizeName(c.Name)] = c.ID
	}

	columns := map[int]int64{}
	for i := fixedColumns; i < len(header); i++ {
		if id, ok := byName[normalizeName(header[i])]; ok {
			columns[i] = id
		}
	}
	return columns, nil
}

// sectionMembers loads the section's enrollment ids. When the lookup fails
// the membership check is skipped and a warning is added to the report.
func (r *Reconciler) sectionMembers(ctx context.Context, sectionID int64, report *ImportReport) (map[int64]bool, bool) {
	list, err := r.enrollments(ctx, sectionID)
	if err != nil {
		log.Printf("[Reconciler] Section %d membership lookup failed, importing without the check: %v", sectionID, err)
		report.addWarning("section membership check skipped: %v", err)
		return nil, false
	}
	members := make(map[int64]bool, len(list))
	for _, e := range list {
		members[e.ID] = true
	}
	return members, true
}

func blankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
