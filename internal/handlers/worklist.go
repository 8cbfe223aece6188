package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type WorklistHandler struct {
	manager *services.LifecycleManager
	crud[models.WorklistEntry]
}

func NewWorklistHandler(manager *services.LifecycleManager) *WorklistHandler {
	return &WorklistHandler{
		manager: manager,
		crud: crud[models.WorklistEntry]{
			kind:   "worklist",
			create: manager.CreateWorklist,
			get:    manager.GetWorklist,
			list:   manager.ListWorklists,
			update: manager.UpdateWorklist,
			remove: manager.DeleteWorklist,
		},
	}
}

// Query runs a worklist C-FIND. The engine's rows are returned as data.
func (h *WorklistHandler) Query(w http.ResponseWriter, r *http.Request) {
	refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))

	rows, err := h.manager.QueryWorklist(r.Context(), chi.URLParam(r, "id"), refresh)
	if err != nil {
		fail(w, "Worklist query failed", err)
		return
	}
	ok(w, http.StatusOK, "worklist queried", rawOrString(rows))
}

// Verify echoes the worklist or MPPS AE of a worklist entry
func (h *WorklistHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.VerifyWorklist(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("target"))
	if err != nil {
		fail(w, "Verification failed", err)
		return
	}
	ok(w, http.StatusOK, verifyMessage(result.IsConnected), result)
}

func (h *WorklistHandler) Routes(r chi.Router) {
	h.mount(r)
	r.Post("/{id}/query", h.Query)
	r.Post("/{id}/verify", h.Verify)
}

func verifyMessage(connected bool) string {
	if connected {
		return "endpoint reachable"
	}
	return "endpoint unreachable"
}
