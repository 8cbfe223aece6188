package services

import (
	"context"
	"strings"
	"text/template"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
)

// HL7Request describes one HL7 send. The message is either given inline or taken from a
// stored template, and the receiver is either given inline or taken from a stored
// setting. With MppsID set the message is rendered as a template over that entry.
type HL7Request struct {
	Message   string              `json:"message"`
	MessageID string              `json:"message_id"`
	SettingID string              `json:"setting_id"`
	Address   string              `json:"server_address"`
	Port      int                 `json:"port"`
	Method    models.HL7Transport `json:"method"`
	MppsID    string              `json:"mpps_id"`
}

// HL7Result is the receiver's answer
type HL7Result struct {
	Response string `json:"response"`
	Address  string `json:"server_address"`
	Port     int    `json:"port"`
	Method   string `json:"method"`
}

// SendHL7 resolves the message and receiver under the session lock and sends outside it
func (m *LifecycleManager) SendHL7(ctx context.Context, req HL7Request) (*HL7Result, error) {
	start := time.Now()
	cmd := command{"send_hl7", "hl7", firstNonEmpty(req.SettingID, req.Address)}

	if m.hl7 == nil {
		return nil, m.finish(cmd, start, &Error{Kind: KindGateway, Message: "no hl7 transport configured"})
	}

	message, address, port, err := m.resolveHL7(ctx, req)
	if err != nil {
		return nil, m.record(ctx, cmd, start, err)
	}

	method := req.Method
	if method == "" {
		method = models.HL7TransportTCP
	}

	response, err := m.hl7.SendHL7(ctx, message, address, port, method)
	if err != nil {
		return nil, m.record(ctx, cmd, start, gatewayFailure("hl7 send", err))
	}

	return &HL7Result{
		Response: response,
		Address:  address,
		Port:     port,
		Method:   string(method),
	}, m.record(ctx, cmd, start, nil)
}

func (m *LifecycleManager) resolveHL7(ctx context.Context, req HL7Request) (message, address string, port int, err error) {
	err = m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		message = req.Message
		if req.MessageID != "" {
			tmpl, err := store.HL7Messages.Get(ctx, req.MessageID)
			if err != nil {
				return persistence("failed to load hl7 message", err)
			}
			if tmpl == nil {
				return notFound("hl7 message", req.MessageID)
			}
			message = tmpl.Message
		}
		if strings.TrimSpace(message) == "" {
			return invalidInput("message or message_id is required")
		}

		address, port = req.Address, req.Port
		if req.SettingID != "" {
			setting, err := store.HL7Settings.Get(ctx, req.SettingID)
			if err != nil {
				return persistence("failed to load hl7 setting", err)
			}
			if setting == nil {
				return notFound("hl7 setting", req.SettingID)
			}
			address, port = setting.IP, setting.Port
		}
		if err := validateAddress("hl7", address, port); err != nil {
			return err
		}

		if req.MppsID != "" {
			entry, err := loadMpps(ctx, store, req.MppsID)
			if err != nil {
				return err
			}
			rendered, err := RenderHL7(message, entry)
			if err != nil {
				return err
			}
			message = rendered
		}
		return nil
	})
	return message, address, port, err
}

func parseTemplate(name, body string) (*template.Template, error) {
	return template.New(name).Option("missingkey=zero").Parse(body)
}

// RenderHL7 fills an HL7 template with the fields of an MPPS entry, e.g. {{.PatientName}}
func RenderHL7(body string, entry *models.MppsEntry) (string, error) {
	tmpl, err := parseTemplate("hl7", body)
	if err != nil {
		return "", &Error{Kind: KindInvalidInput, Message: "message template does not parse", Err: err}
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, entry); err != nil {
		return "", &Error{Kind: KindInvalidInput, Message: "message template failed to render", Err: err}
	}
	return sb.String(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
