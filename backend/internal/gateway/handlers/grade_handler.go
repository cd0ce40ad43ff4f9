package handlers

import (
	"errors"
	"net/http"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/grading"
	"univ_erp/backend/internal/undo"
)

// GradeHandler serves section-wide grade views, finalization and undo.
type GradeHandler struct {
	Engine *grading.Engine
	Ledger *undo.Ledger
}

// GetSectionSheet handles GET /sections/{section_id}/sheet
func (h *GradeHandler) GetSectionSheet(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	sheet, err := h.Engine.SectionSheet(r.Context(), sectionID)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, sheet)
}

// FinalizeSection handles POST /sections/{section_id}/finalize
// A storage failure part way reports the error; rows already finalized stay.
func (h *GradeHandler) FinalizeSection(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	results, err := h.Engine.FinalizeSection(r.Context(), sectionID)
	if err != nil {
		util.WriteError(w, err)
		return
	}

	counts := map[string]int{}
	for _, res := range results {
		counts[res.Status]++
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"section_id": sectionID,
		"results":    results,
		"counts":     counts,
	})
}

// Undo handles POST /grades/undo
// Reverts the caller's most recent grade change.
func (h *GradeHandler) Undo(w http.ResponseWriter, r *http.Request) {
	change, err := h.Ledger.PopAndRevert(r.Context())
	if errors.Is(err, undo.ErrNothingToUndo) {
		util.WriteJSONError(w, http.StatusConflict, "Nothing to undo")
		return
	}
	if err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"reverted": change,
		"message":  "last grade change reverted",
	})
}
