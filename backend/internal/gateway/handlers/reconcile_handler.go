package handlers

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/reconcile"
	"univ_erp/backend/internal/shared"
)

// maxImportBytes bounds an uploaded marks sheet
const maxImportBytes = 8 << 20

// ReconcileHandler serves CSV export and import of a section's marks.
type ReconcileHandler struct {
	Reconciler *reconcile.Reconciler
}

// ExportMarks handles GET /sections/{section_id}/marks/export
// The sheet is buffered so a storage failure still yields a JSON error.
func (h *ReconcileHandler) ExportMarks(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	var buf bytes.Buffer
	summary, err := h.Reconciler.Export(r.Context(), sectionID, &buf)
	if err != nil {
		util.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="section-%d-marks.csv"`, sectionID))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("[Reconcile] Failed to write export for section %d: %v", sectionID, err)
		return
	}
	log.Printf("[Reconcile] Exported %d rows for section %d", summary.Rows, sectionID)
}

// ImportMarks handles POST /sections/{section_id}/marks/import
// Accepts a raw text/csv body or a multipart form with a "file" part.
func (h *ReconcileHandler) ImportMarks(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)
	in, closeFn, err := csvSource(r)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	defer closeFn()

	report, err := h.Reconciler.Import(r.Context(), sectionID, in)
	if err != nil {
		if report == nil {
			util.WriteError(w, err)
			return
		}
		// Some cells may already be written; hand the partial report back.
		util.WriteJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"success": false,
			"message": err.Error(),
			"report":  report,
		})
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"report":   report,
		"messages": report.Messages(),
		"summary":  report.Summary(),
	})
}

func csvSource(r *http.Request) (io.Reader, func(), error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, nil, shared.NewValidationError("file", "missing CSV upload: %v", err)
		}
		return file, func() { file.Close() }, nil
	}
	return r.Body, func() {}, nil
}
