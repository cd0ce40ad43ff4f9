package handlers

import (
	"net/http"

	"univ_erp/backend/internal/gateway/util"
	"univ_erp/backend/internal/shared"
)

// AuthHandler reports the identity the bearer token resolved to.
// Tokens are issued by the university's auth service, or by gradectl for local use.
type AuthHandler struct{}

// ValidateToken handles GET /auth/validate
func (h *AuthHandler) ValidateToken(w http.ResponseWriter, r *http.Request) {
	caller := shared.CallerFromContext(r.Context())
	util.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success":    true,
		"valid":      true,
		"user_id":    caller.UserID,
		"role":       caller.Role,
		"privileged": caller.IsPrivileged(),
	})
}
