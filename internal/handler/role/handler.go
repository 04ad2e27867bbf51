package role

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vetlink/companion/backend/internal/model/role"
	"github.com/vetlink/companion/backend/pkg/utils"
)

// Handler serves the assistant role catalogue.
type Handler struct {
	roles role.Store
}

func New(roles role.Store) *Handler {
	return &Handler{roles: roles}
}

// RegisterRoutes mounts the role routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/roles", h.handleListRoles)
	r.Get("/roles/{roleID}", h.handleGetRole)
}

func (h *Handler) handleListRoles(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.roles.List())
}

func (h *Handler) handleGetRole(w http.ResponseWriter, r *http.Request) {
	found, ok := h.roles.FindByID(chi.URLParam(r, "roleID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "role not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, found)
}
