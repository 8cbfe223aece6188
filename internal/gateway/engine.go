package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/metrics"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/rs/zerolog/log"
)

// EngineRequest is written to the engine's stdin. Entities keep their canonical JSON
// field names so the engine reads them unchanged.
type EngineRequest struct {
	Operation   string                    `json:"operation"`
	CertPath    string                    `json:"cert_path,omitempty"`
	Worklist    *models.WorklistEntry     `json:"worklist,omitempty"`
	Mpps        *models.MppsEntry         `json:"mpps,omitempty"`
	Destination *models.MimEntry          `json:"destination,omitempty"`
	Patient     *models.PatientStudyEntry `json:"patient,omitempty"`
	DcmFile     string                    `json:"dcm_file,omitempty"`
}

// EngineConfig describes how to start the engine
type EngineConfig struct {
	Command  string
	Args     []string
	CertPath string
	Timeout  time.Duration
	Env      []string
}

// ScriptEngine runs the protocol engine as one subprocess per call. The request goes to
// stdin as JSON, and the last non-empty stdout line must be the JSON acknowledgement.
type ScriptEngine struct {
	cfg     EngineConfig
	metrics *metrics.Metrics
}

// NewScriptEngine creates an engine adapter
func NewScriptEngine(cfg EngineConfig, m *metrics.Metrics) (*ScriptEngine, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("engine command is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &ScriptEngine{cfg: cfg, metrics: m}, nil
}

// QueryWorklist runs a worklist C-FIND; the Ack result carries the serialized rows
func (e *ScriptEngine) QueryWorklist(ctx context.Context, worklist *models.WorklistEntry) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpQueryWorklist, Worklist: worklist})
}

// MppsCreate sends N-CREATE IN PROGRESS; the Ack result is the MPPS instance UID
func (e *ScriptEngine) MppsCreate(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpMppsCreate, Worklist: worklist, Mpps: mpps})
}

// MppsComplete sends N-SET COMPLETED; the Ack result is the serialized SOP instance set
func (e *ScriptEngine) MppsComplete(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry, dcmFile string) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpMppsComplete, Worklist: worklist, Mpps: mpps, DcmFile: dcmFile})
}

// MppsDiscontinue sends N-SET DISCONTINUED
func (e *ScriptEngine) MppsDiscontinue(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpMppsDiscontinue, Worklist: worklist, Mpps: mpps})
}

// StoreImages sends the instances recorded on a completed MPPS entry
func (e *ScriptEngine) StoreImages(ctx context.Context, mpps *models.MppsEntry, destination *models.MimEntry) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpStoreImages, Mpps: mpps, Destination: destination})
}

// StorePatient sends dcmFile re-tagged with the patient's demographics; the Ack result is
// the series instance UID used
func (e *ScriptEngine) StorePatient(ctx context.Context, patient *models.PatientStudyEntry, destination *models.MimEntry, dcmFile string) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpStorePatient, Patient: patient, Destination: destination, DcmFile: dcmFile})
}

// SendReport sends a structured report referencing the MPPS entry's instances
func (e *ScriptEngine) SendReport(ctx context.Context, destination *models.MimEntry, mpps *models.MppsEntry, dcmFile string) (Ack, error) {
	return e.call(ctx, EngineRequest{Operation: OpSendReport, Destination: destination, Mpps: mpps, DcmFile: dcmFile})
}

func (e *ScriptEngine) call(ctx context.Context, req EngineRequest) (Ack, error) {
	req.CertPath = e.cfg.CertPath
	start := time.Now()

	log.Debug().
		Str("operation", req.Operation).
		Str("command", e.cfg.Command).
		Msg("Calling protocol engine")

	ack, err := e.run(ctx, req)
	duration := time.Since(start)

	switch {
	case err != nil:
		e.metrics.ObserveGatewayCall(req.Operation, "error", duration)
		log.Warn().
			Err(err).
			Str("operation", req.Operation).
			Dur("duration", duration).
			Msg("Protocol engine call failed")
	case !ack.Success:
		e.metrics.ObserveGatewayCall(req.Operation, "refused", duration)
		log.Warn().
			Str("operation", req.Operation).
			Str("message", ack.Message).
			Dur("duration", duration).
			Msg("Protocol engine refused operation")
	default:
		e.metrics.ObserveGatewayCall(req.Operation, "success", duration)
		log.Info().
			Str("operation", req.Operation).
			Dur("duration", duration).
			Msg("Protocol engine call succeeded")
	}

	return ack, err
}

func (e *ScriptEngine) run(ctx context.Context, req EngineRequest) (Ack, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to encode %s request: %w", req.Operation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	args := append(append([]string{}, e.cfg.Args...), req.Operation)
	cmd := exec.CommandContext(ctx, e.cfg.Command, args...)
	cmd.Stdin = bytes.NewReader(payload)
	if len(e.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), e.cfg.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Ack{}, fmt.Errorf("%w: %s timed out after %s", ErrTransport, req.Operation, e.cfg.Timeout)
		}
		return Ack{}, fmt.Errorf("%w: %s: %v: %s", ErrTransport, req.Operation, err, tail(stderr.String()))
	}

	return parseAck(req.Operation, stdout.Bytes())
}

// parseAck decodes the last non-empty line of out; engines may log to stdout before it
func parseAck(operation string, out []byte) (Ack, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return Ack{}, fmt.Errorf("%w: %s returned no acknowledgement", ErrTransport, operation)
	}

	var ack Ack
	if err := json.Unmarshal([]byte(last), &ack); err != nil {
		return Ack{}, fmt.Errorf("%w: %s returned malformed acknowledgement: %v", ErrTransport, operation, err)
	}
	return ack, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 512 {
		return "..." + s[len(s)-512:]
	}
	return s
}
