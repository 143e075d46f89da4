package handlers

import (
	"net/http"

	"github.com/bluewing/auth-core/middleware"
	"github.com/bluewing/auth-core/utils"
)

// HandleMe handles GET /api/me
func HandleMe(w http.ResponseWriter, r *http.Request) {
	member := middleware.GetMemberFromContext(r.Context())
	if member == nil {
		_ = utils.WriteUnauthorized(w, "Authentication required")
		return
	}
	_ = utils.WriteOK(w, member)
}
