package handlers

import (
	"net/http"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/grading"
	"univ_erp/backend/internal/maintenance"
)

// AdminHandler serves the maintenance switch and the component master list.
type AdminHandler struct {
	Gate       *maintenance.Gate
	Components *grading.ComponentCatalog
}

// -- Request Structs --

type RESTSetMaintenanceRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type RESTCreateComponentRequest struct {
	Name string `json:"name" validate:"required,max=120"`
}

// GetMaintenance handles GET /admin/maintenance
func (h *AdminHandler) GetMaintenance(w http.ResponseWriter, r *http.Request) {
	state, err := h.Gate.State(r.Context())
	if err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"state":       state,
		"maintenance": state == maintenance.Maintenance,
	})
}

// SetMaintenance handles PUT /admin/maintenance
// Admin only. The response reports the state read back from storage.
func (h *AdminHandler) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	var req RESTSetMaintenanceRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	state, err := h.Gate.SetState(r.Context(), *req.Enabled)
	if err != nil {
		util.WriteError(w, err)
		return
	}

	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"state":       state,
		"maintenance": state == maintenance.Maintenance,
	})
}

// ListComponents handles GET /components
func (h *AdminHandler) ListComponents(w http.ResponseWriter, r *http.Request) {
	list, err := h.Components.List(r.Context())
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusOK, list)
}

// CreateComponent handles POST /components
func (h *AdminHandler) CreateComponent(w http.ResponseWriter, r *http.Request) {
	var req RESTCreateComponentRequest
	if err := util.DecodeJSON(r, &req); err != nil {
		util.WriteError(w, err)
		return
	}

	c, err := h.Components.Create(r.Context(), req.Name)
	if err != nil {
		util.WriteError(w, err)
		return
	}
	util.WriteJSON(w, http.StatusCreated, c)
}
