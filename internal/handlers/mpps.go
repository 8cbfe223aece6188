package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type MppsHandler struct {
	manager *services.LifecycleManager
	crud[models.MppsEntry]
}

func NewMppsHandler(manager *services.LifecycleManager) *MppsHandler {
	return &MppsHandler{
		manager: manager,
		crud: crud[models.MppsEntry]{
			kind:   "mpps entry",
			get:    manager.GetMpps,
			list:   manager.ListMpps,
			update: manager.UpdateMppsDetails,
		},
	}
}

type beginRequest struct {
	WorklistID string            `json:"worklist_id"`
	Entry      *models.MppsEntry `json:"entry"`
}

type completeRequest struct {
	DcmFile     string `json:"dcm_file"`
	Description string `json:"description"`
}

type discontinueRequest struct {
	Description string `json:"description"`
}

// Begin reports IN PROGRESS for a scheduled procedure
func (h *MppsHandler) Begin(w http.ResponseWriter, r *http.Request) {
	var req beginRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to begin procedure step", err)
		return
	}

	entry, err := h.manager.BeginProcedureStep(r.Context(), req.WorklistID, req.Entry)
	if err != nil {
		fail(w, "Failed to begin procedure step", err)
		return
	}
	ok(w, http.StatusCreated, "procedure step in progress", entry)
}

// Complete reports COMPLETED for an IN PROGRESS entry
func (h *MppsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to complete procedure step", err)
		return
	}

	entry, err := h.manager.CompleteProcedureStep(r.Context(), chi.URLParam(r, "id"), req.DcmFile, req.Description)
	if err != nil {
		fail(w, "Failed to complete procedure step", err)
		return
	}
	ok(w, http.StatusOK, "procedure step completed", entry)
}

// Discontinue reports DISCONTINUED for an IN PROGRESS entry
func (h *MppsHandler) Discontinue(w http.ResponseWriter, r *http.Request) {
	var req discontinueRequest
	if err := decodeOptional(w, r, &req); err != nil {
		fail(w, "Failed to discontinue procedure step", err)
		return
	}

	entry, err := h.manager.DiscontinueProcedureStep(r.Context(), chi.URLParam(r, "id"), req.Description)
	if err != nil {
		fail(w, "Failed to discontinue procedure step", err)
		return
	}
	ok(w, http.StatusOK, "procedure step discontinued", entry)
}

// Delete purges one entry, or every completed entry for the key "all"
func (h *MppsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	h.purge(w, r, services.ParsePurgeKey(chi.URLParam(r, "id")))
}

// PurgeByStatus purges by status; only COMPLETED is accepted
func (h *MppsHandler) PurgeByStatus(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if models.MppsStatus(status) != models.MppsStatusCompleted {
		fail(w, "Failed to purge mpps entries", &services.Error{
			Kind:    services.KindInvalidInput,
			Message: "status=COMPLETED is required to purge without a key",
		})
		return
	}
	h.purge(w, r, services.CompletedEntries())
}

func (h *MppsHandler) purge(w http.ResponseWriter, r *http.Request, sel services.PurgeSelector) {
	result, err := h.manager.Purge(r.Context(), sel)
	if err != nil {
		fail(w, "Failed to purge mpps entries", err)
		return
	}
	ok(w, http.StatusOK, purgeMessage(result), result)
}

func (h *MppsHandler) Routes(r chi.Router) {
	h.mount(r)
	r.Post("/", h.Begin)
	r.Delete("/", h.PurgeByStatus)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/discontinue", h.Discontinue)
}
