package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
)

// Operation names understood by the protocol engine
const (
	OpQueryWorklist   = "query_worklist"
	OpMppsCreate      = "mpps_create"
	OpMppsComplete    = "mpps_complete"
	OpMppsDiscontinue = "mpps_discontinue"
	OpStoreImages     = "store_images"
	OpStorePatient    = "store_patient"
	OpSendReport      = "send_report"
)

// ErrTransport marks failures to reach the engine or to read its answer, as opposed to
// the engine reporting success=false
var ErrTransport = errors.New("protocol engine transport failure")

// Ack is the acknowledgement returned by stateful engine operations
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Result  string `json:"result,omitempty"`
}

// Gateway is the protocol engine as seen by the lifecycle manager. A returned error is a
// transport problem; a business refusal is an Ack with Success false.
type Gateway interface {
	QueryWorklist(ctx context.Context, worklist *models.WorklistEntry) (Ack, error)
	MppsCreate(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry) (Ack, error)
	MppsComplete(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry, dcmFile string) (Ack, error)
	MppsDiscontinue(ctx context.Context, worklist *models.WorklistEntry, mpps *models.MppsEntry) (Ack, error)
	StoreImages(ctx context.Context, mpps *models.MppsEntry, destination *models.MimEntry) (Ack, error)
	StorePatient(ctx context.Context, patient *models.PatientStudyEntry, destination *models.MimEntry, dcmFile string) (Ack, error)
	SendReport(ctx context.Context, destination *models.MimEntry, mpps *models.MppsEntry, dcmFile string) (Ack, error)
}

// HL7Sender delivers an HL7 message and returns the receiver's answer
type HL7Sender interface {
	SendHL7(ctx context.Context, message, address string, port int, method models.HL7Transport) (string, error)
}

// Endpoint is a DICOM application entity to verify
type Endpoint struct {
	CallingAETitle string
	CalledAETitle  string
	Host           string
	Port           int
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s@%s:%d", e.CalledAETitle, e.Host, e.Port)
}

// Verifier checks that an endpoint answers a C-ECHO
type Verifier interface {
	Verify(ctx context.Context, endpoint Endpoint) (VerifyResult, error)
}

// VerifyResult reports the outcome of an endpoint check
type VerifyResult struct {
	Endpoint     string `json:"endpoint"`
	IsConnected  bool   `json:"isConnected"`
	ResponseTime int64  `json:"responseTime"` // milliseconds
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// WorklistEndpoint returns the worklist SCP of w
func WorklistEndpoint(w *models.WorklistEntry) Endpoint {
	return Endpoint{
		CallingAETitle: w.CallingAETitle,
		CalledAETitle:  w.WorklistAETitle,
		Host:           w.WorklistIP,
		Port:           w.WorklistPort,
	}
}

// MppsEndpoint returns the MPPS SCP of w
func MppsEndpoint(w *models.WorklistEntry) Endpoint {
	return Endpoint{
		CallingAETitle: w.MppsCallingAETitle,
		CalledAETitle:  w.MppsAETitle,
		Host:           w.MppsAddress(),
		Port:           w.MppsPort,
	}
}

// DestinationEndpoint returns the storage SCP of d
func DestinationEndpoint(d *models.MimEntry) Endpoint {
	return Endpoint{
		CallingAETitle: d.CallingAETitle,
		CalledAETitle:  d.AETitle,
		Host:           d.IP,
		Port:           d.Port,
	}
}
