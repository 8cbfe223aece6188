package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type DestinationHandler struct {
	manager *services.LifecycleManager
	crud[models.MimEntry]
}

func NewDestinationHandler(manager *services.LifecycleManager) *DestinationHandler {
	return &DestinationHandler{
		manager: manager,
		crud: crud[models.MimEntry]{
			kind:   "destination",
			create: manager.CreateDestination,
			get:    manager.GetDestination,
			list:   manager.ListDestinations,
			update: manager.UpdateDestination,
			remove: manager.DeleteDestination,
		},
	}
}

type storeRequest struct {
	MppsID string `json:"mpps_id"`
}

type storePatientRequest struct {
	PatientID   string `json:"patient_id"`
	DcmFile     string `json:"dcm_file"`
	Description string `json:"description"`
	Generate    *bool  `json:"generate"`
}

type reportRequest struct {
	MppsID  string `json:"mpps_id"`
	DcmFile string `json:"dcm_file"`
}

// Verify echoes a storage destination
func (h *DestinationHandler) Verify(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.VerifyDestination(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, "Verification failed", err)
		return
	}
	ok(w, http.StatusOK, verifyMessage(result.IsConnected), result)
}

// Store sends the images of an MPPS entry
func (h *DestinationHandler) Store(w http.ResponseWriter, r *http.Request) {
	var req storeRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to store images", err)
		return
	}

	message, err := h.manager.TransmitImages(r.Context(), chi.URLParam(r, "id"), req.MppsID)
	if err != nil {
		fail(w, "Failed to store images", err)
		return
	}
	ok(w, http.StatusOK, message, req.MppsID)
}

// StorePatient sends a patient-level study
func (h *DestinationHandler) StorePatient(w http.ResponseWriter, r *http.Request) {
	var req storePatientRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to store patient study", err)
		return
	}

	patient, err := h.manager.TransmitPatientStudy(r.Context(), services.PatientTransmission{
		DestinationID: chi.URLParam(r, "id"),
		PatientID:     req.PatientID,
		DcmFile:       req.DcmFile,
		Description:   req.Description,
		Generate:      req.Generate,
	})
	if err != nil {
		fail(w, "Failed to store patient study", err)
		return
	}
	ok(w, http.StatusOK, "patient study sent", patient)
}

// Report sends a report for an MPPS entry
func (h *DestinationHandler) Report(w http.ResponseWriter, r *http.Request) {
	var req reportRequest
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to send report", err)
		return
	}

	message, err := h.manager.TransmitReport(r.Context(), chi.URLParam(r, "id"), req.MppsID, req.DcmFile)
	if err != nil {
		fail(w, "Failed to send report", err)
		return
	}
	ok(w, http.StatusOK, message, req.MppsID)
}

func (h *DestinationHandler) Routes(r chi.Router) {
	h.mount(r)
	r.Post("/{id}/verify", h.Verify)
	r.Post("/{id}/store", h.Store)
	r.Post("/{id}/store-patient", h.StorePatient)
	r.Post("/{id}/report", h.Report)
}
