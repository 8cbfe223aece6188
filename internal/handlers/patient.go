package handlers

import (
	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type PatientHandler struct {
	crud[models.PatientStudyEntry]
}

func NewPatientHandler(manager *services.LifecycleManager) *PatientHandler {
	return &PatientHandler{
		crud: crud[models.PatientStudyEntry]{
			kind:   "patient",
			create: manager.CreatePatient,
			get:    manager.GetPatient,
			list:   manager.ListPatients,
			update: manager.UpdatePatient,
			remove: manager.DeletePatient,
		},
	}
}

func (h *PatientHandler) Routes(r chi.Router) {
	h.mount(r)
}
