package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
)

type HL7Handler struct {
	manager  *services.LifecycleManager
	settings crud[models.Hl7SettingEntry]
	messages crud[models.Hl7MessageSetting]
}

func NewHL7Handler(manager *services.LifecycleManager) *HL7Handler {
	return &HL7Handler{
		manager: manager,
		settings: crud[models.Hl7SettingEntry]{
			kind:   "hl7 setting",
			create: manager.CreateHL7Setting,
			get:    manager.GetHL7Setting,
			list:   manager.ListHL7Settings,
			update: manager.UpdateHL7Setting,
			remove: manager.DeleteHL7Setting,
		},
		messages: crud[models.Hl7MessageSetting]{
			kind:   "hl7 message",
			create: manager.CreateHL7Message,
			get:    manager.GetHL7Message,
			list:   manager.ListHL7Messages,
			update: manager.UpdateHL7Message,
			remove: manager.DeleteHL7Message,
		},
	}
}

// Send delivers an HL7 message over MLLP or HTTP
func (h *HL7Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req services.HL7Request
	if err := decode(w, r, &req); err != nil {
		fail(w, "Failed to send HL7 message", err)
		return
	}

	result, err := h.manager.SendHL7(r.Context(), req)
	if err != nil {
		fail(w, "Failed to send HL7 message", err)
		return
	}
	ok(w, http.StatusOK, "hl7 message sent", result)
}

func (h *HL7Handler) Routes(r chi.Router) {
	r.Route("/settings", h.settings.mount)
	r.Route("/messages", h.messages.mount)
	r.Post("/send", h.Send)
}
