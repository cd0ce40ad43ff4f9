package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/grading"
)

// EnrollmentHandler serves the marks and the grade of a single enrollment.
type EnrollmentHandler struct {
	Marks  *grading.MarkStore
	Engine *grading.Engine
}

// -- Request Structs --

// RESTSetMarkRequest carries a mark; a null mark records "no mark"
type RESTSetMarkRequest struct {
	Marks *decimal.Decimal `json:"marks"`
}

// RESTSetGradeRequest carries an override letter; an empty letter clears the grade
type RESTSetGradeRequest struct {
	Grade string `json:"grade" validate:"max=3"`
}

// GetMarks handles GET /enrollments/{enrollment_id}/marks
func (h *EnrollmentHandler) GetMarks(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := util.IDParam(r, "enrollment_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	marks, err := h.Marks.GetMarksForEnrollment(r.Context(), enrollmentID)
	if err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"enrollment_id": enrollmentID,
		"marks":         marks,
	})
}

// SetMark handles PUT /enrollments/{enrollment_id}/marks/{component_id}
func (h *EnrollmentHandler) SetMark(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := util.IDParam(r, "enrollment_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	componentID, err := util.IDParam(r, "component_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	var req RESTSetMarkRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	if err := h.Marks.SetMark(r.Context(), enrollmentID, componentID, req.Marks); err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "mark saved",
	})
}

// GetGrade handles GET /enrollments/{enrollment_id}/grade
// Returns the normalized total, the computed letter and any stored letter.
func (h *EnrollmentHandler) GetGrade(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := util.IDParam(r, "enrollment_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	ev, err := h.Engine.Evaluate(r.Context(), enrollmentID)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, ev)
}

// SetGrade handles PUT /enrollments/{enrollment_id}/grade
func (h *EnrollmentHandler) SetGrade(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := util.IDParam(r, "enrollment_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	var req RESTSetGradeRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	change, err := h.Engine.SetGrade(r.Context(), enrollmentID, req.Grade)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, change)
}

// Finalize handles POST /enrollments/{enrollment_id}/grade/finalize
func (h *EnrollmentHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	enrollmentID, err := util.IDParam(r, "enrollment_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	res, err := h.Engine.Finalize(r.Context(), enrollmentID)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, res)
}
