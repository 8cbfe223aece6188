package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type AuditHandler struct {
	manager *services.LifecycleManager
}

func NewAuditHandler(manager *services.LifecycleManager) *AuditHandler {
	return &AuditHandler{manager: manager}
}

// List returns audit records newest first. limit defaults to 100; 0 returns all.
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fail(w, "Failed to list audit records", &services.Error{
				Kind:    services.KindInvalidInput,
				Message: "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	records, err := h.manager.ListAudit(r.Context(), limit)
	if err != nil {
		fail(w, "Failed to list audit records", err)
		return
	}
	ok(w, http.StatusOK, "audit records", records)
}

func (h *AuditHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
}
