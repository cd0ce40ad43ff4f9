package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/grading"
	"univ_erp/backend/internal/shared"
)

// WeightsHandler serves the per-section component weights.
type WeightsHandler struct {
	Weights *grading.WeightRegistry
}

// -- Request Structs --

type RESTWeightEntry struct {
	ComponentID int64           `json:"component_id" validate:"required,gt=0"`
	Weight      decimal.Decimal `json:"weight"`
}

type RESTReplaceWeightsRequest struct {
	Weights []RESTWeightEntry `json:"weights" validate:"dive"`
}

type RESTSetWeightRequest struct {
	Weight decimal.Decimal `json:"weight"`
}

// GetWeights handles GET /sections/{section_id}/weights
func (h *WeightsHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	weights, err := h.Weights.GetWeights(r.Context(), sectionID)
	if err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"section_id": sectionID,
		"weights":    weights,
		"weight_sum": weights.Sum(),
	})
}

// ReplaceWeights handles PUT /sections/{section_id}/weights
// Either every entry is stored or none is.
func (h *WeightsHandler) ReplaceWeights(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	var req RESTReplaceWeightsRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	weights := make(map[int64]decimal.Decimal, len(req.Weights))
	for _, entry := range req.Weights {
		if _, dup := weights[entry.ComponentID]; dup {
			util.WriteError(w, shared.NewValidationError("weights", "component %d listed twice", entry.ComponentID))
			return
		}
		weights[entry.ComponentID] = entry.Weight
	}

	if err := h.Weights.ReplaceWeights(r.Context(), sectionID, weights); err != nil {
		util.WriteError(w, err)
		return
	}
	h.GetWeights(w, r)
}

// SetWeight handles PUT /sections/{section_id}/weights/{component_id}
func (h *WeightsHandler) SetWeight(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}
	componentID, err := util.IDParam(r, "component_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	var req RESTSetWeightRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	if err := h.Weights.SetWeight(r.Context(), sectionID, componentID, req.Weight); err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "weight saved",
	})
}

// ClearWeights handles DELETE /sections/{section_id}/weights
func (h *WeightsHandler) ClearWeights(w http.ResponseWriter, r *http.Request) {
	sectionID, err := util.IDParam(r, "section_id")
	if err != nil {
		util.WriteError(w, err)
		return
	}

	removed, err := h.Weights.ClearWeights(r.Context(), sectionID)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}
