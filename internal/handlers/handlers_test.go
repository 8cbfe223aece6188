package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
	"github.com/otcheredev/ris-modality-workflow/internal/services"
	"github.com/otcheredev/ris-modality-workflow/internal/session"
)

// stubGateway accepts every operation unless refuse names it
type stubGateway struct {
	refuse map[string]string
	down   bool
}

func (g *stubGateway) ack(op, result string) (gateway.Ack, error) {
	if g.down {
		return gateway.Ack{}, gateway.ErrTransport
	}
	if msg, ok := g.refuse[op]; ok {
		return gateway.Ack{Message: msg}, nil
	}
	return gateway.Ack{Success: true, Message: op + " ok", Result: result}, nil
}

func (g *stubGateway) QueryWorklist(context.Context, *models.WorklistEntry) (gateway.Ack, error) {
	return g.ack(gateway.OpQueryWorklist, `[{"AccessionNumber":"ACC-1"}]`)
}

func (g *stubGateway) MppsCreate(context.Context, *models.WorklistEntry, *models.MppsEntry) (gateway.Ack, error) {
	return g.ack(gateway.OpMppsCreate, "1.2.3.4")
}

func (g *stubGateway) MppsComplete(context.Context, *models.WorklistEntry, *models.MppsEntry, string) (gateway.Ack, error) {
	return g.ack(gateway.OpMppsComplete, `[{"series_instance_uid":"1.2"}]`)
}

func (g *stubGateway) MppsDiscontinue(context.Context, *models.WorklistEntry, *models.MppsEntry) (gateway.Ack, error) {
	return g.ack(gateway.OpMppsDiscontinue, "")
}

func (g *stubGateway) StoreImages(context.Context, *models.MppsEntry, *models.MimEntry) (gateway.Ack, error) {
	return g.ack(gateway.OpStoreImages, "")
}

func (g *stubGateway) StorePatient(context.Context, *models.PatientStudyEntry, *models.MimEntry, string) (gateway.Ack, error) {
	return g.ack(gateway.OpStorePatient, "[]")
}

func (g *stubGateway) SendReport(context.Context, *models.MimEntry, *models.MppsEntry, string) (gateway.Ack, error) {
	return g.ack(gateway.OpSendReport, "")
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *string         `json:"error"`
}

type testServer struct {
	t       *testing.T
	handler http.Handler
	gw      *stubGateway
	store   *repository.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := repository.NewMemoryStore()
	gw := &stubGateway{refuse: map[string]string{}}
	manager := services.NewLifecycleManager(session.NewCoordinator(store, nil), gw)
	return &testServer{
		t:       t,
		handler: NewRouter(manager, RouterConfig{Driver: store.Driver()}),
		gw:      gw,
		store:   store,
	}
}

func (s *testServer) do(method, path string, body interface{}) (int, envelope) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		s.t.Fatalf("%s %s: response is not an envelope: %v (%s)", method, path, err, rec.Body.String())
	}
	if env.Success != (env.Error == nil) {
		s.t.Fatalf("%s %s: success must be true exactly when error is null: %s", method, path, rec.Body.String())
	}
	if !env.Success && string(env.Data) != "null" {
		s.t.Fatalf("%s %s: failed envelope carries data: %s", method, path, rec.Body.String())
	}
	return rec.Code, env
}

func (s *testServer) createWorklist() string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/worklists", map[string]interface{}{
		"name":              "CT",
		"calling_ae_title":  "RIS",
		"worklist_ae_title": "WORKLIST",
		"worklist_ip":       "10.0.0.5",
		"worklist_port":     104,
		"mpps_ae_title":     "MPPS",
		"mpps_port":         105,
	})
	if code != http.StatusCreated {
		s.t.Fatalf("create worklist: %d %+v", code, env)
	}
	var w models.WorklistEntry
	json.Unmarshal(env.Data, &w)
	return w.ID
}

func (s *testServer) begin(worklistID, accession string) string {
	s.t.Helper()
	code, env := s.do(http.MethodPost, "/api/v1/mpps", map[string]interface{}{
		"worklist_id": worklistID,
		"entry":       map[string]string{"AccessionNumber": accession, "PatientName": "DOE^JANE"},
	})
	if code != http.StatusCreated {
		s.t.Fatalf("begin: %d %+v", code, env)
	}
	var m models.MppsEntry
	json.Unmarshal(env.Data, &m)
	return m.ID
}

func TestStatusForKinds(t *testing.T) {
	tests := []struct {
		kind services.Kind
		want int
	}{
		{services.KindNotFound, http.StatusNotFound},
		{services.KindInvalidInput, http.StatusBadRequest},
		{services.KindInvariantViolation, http.StatusConflict},
		{services.KindBusiness, http.StatusUnprocessableEntity},
		{services.KindGateway, http.StatusBadGateway},
		{services.KindStoreUnavailable, http.StatusServiceUnavailable},
		{services.KindPersistence, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(&services.Error{Kind: tt.kind}); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
	if got := statusFor(errors.New("plain")); got != http.StatusInternalServerError {
		t.Errorf("statusFor(plain) = %d", got)
	}
}

func TestProcedureStepOverHTTP(t *testing.T) {
	s := newTestServer(t)
	worklistID := s.createWorklist()

	code, env := s.do(http.MethodPost, "/api/v1/worklists/"+worklistID+"/query", nil)
	if code != http.StatusOK || string(env.Data) != `[{"AccessionNumber":"ACC-1"}]` {
		t.Fatalf("query: %d %s", code, env.Data)
	}

	mppsID := s.begin(worklistID, "ACC-1")

	code, env = s.do(http.MethodPost, "/api/v1/mpps/"+mppsID+"/complete", map[string]string{"dcm_file": "/data/acc-1"})
	if code != http.StatusOK {
		t.Fatalf("complete: %d %+v", code, env)
	}
	var done models.MppsEntry
	json.Unmarshal(env.Data, &done)
	if done.Status != models.MppsStatusCompleted || done.MppsInstanceUID != "1.2.3.4" {
		t.Errorf("unexpected entry: %+v", done)
	}

	code, env = s.do(http.MethodPost, "/api/v1/mpps/"+mppsID+"/discontinue", nil)
	if code != http.StatusConflict || env.Success {
		t.Fatalf("discontinue after completion: %d %+v", code, env)
	}
}

func TestGatewayOutcomesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	worklistID := s.createWorklist()

	s.gw.refuse[gateway.OpMppsCreate] = "Association rejected"
	code, env := s.do(http.MethodPost, "/api/v1/mpps", map[string]interface{}{
		"worklist_id": worklistID,
		"entry":       map[string]string{"AccessionNumber": "ACC-1"},
	})
	if code != http.StatusUnprocessableEntity || env.Error == nil || *env.Error != "Association rejected" {
		t.Fatalf("refused begin: %d %+v", code, env)
	}

	delete(s.gw.refuse, gateway.OpMppsCreate)
	s.gw.down = true
	code, _ = s.do(http.MethodPost, "/api/v1/mpps", map[string]interface{}{
		"worklist_id": worklistID,
		"entry":       map[string]string{"AccessionNumber": "ACC-1"},
	})
	if code != http.StatusBadGateway {
		t.Fatalf("unreachable engine: %d", code)
	}

	entries, _ := s.store.Mpps.List(context.Background())
	if len(entries) != 0 {
		t.Fatalf("failed begins must not persist, found %d", len(entries))
	}
}

func TestPurgeOverHTTP(t *testing.T) {
	s := newTestServer(t)
	worklistID := s.createWorklist()

	for _, acc := range []string{"A", "B"} {
		id := s.begin(worklistID, acc)
		if code, env := s.do(http.MethodPost, "/api/v1/mpps/"+id+"/complete", map[string]string{"dcm_file": "/data/" + acc}); code != http.StatusOK {
			t.Fatalf("complete %s: %d %+v", acc, code, env)
		}
	}
	s.begin(worklistID, "C")

	code, env := s.do(http.MethodDelete, "/api/v1/mpps/all", nil)
	if code != http.StatusOK || env.Message != "purged 2 of 2" {
		t.Fatalf("purge all: %d %+v", code, env)
	}

	code, _ = s.do(http.MethodDelete, "/api/v1/mpps?status=IN_PROGRESS", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("purge by another status: %d", code)
	}
	code, env = s.do(http.MethodDelete, "/api/v1/mpps?status=COMPLETED", nil)
	if code != http.StatusOK || env.Message != "purged 0 of 0" {
		t.Fatalf("purge completed: %d %+v", code, env)
	}

	_, env = s.do(http.MethodGet, "/api/v1/mpps", nil)
	var left []models.MppsEntry
	json.Unmarshal(env.Data, &left)
	if len(left) != 1 || left[0].AccessionNumber != "C" {
		t.Fatalf("unexpected remaining entries: %+v", left)
	}
}

func TestCrudOverHTTP(t *testing.T) {
	s := newTestServer(t)

	code, env := s.do(http.MethodPost, "/api/v1/destinations", map[string]interface{}{"name": "PACS", "ae_title": "PACS", "ip": "10.0.0.9", "port": 104})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %+v", code, env)
	}
	var dest models.MimEntry
	json.Unmarshal(env.Data, &dest)

	code, _ = s.do(http.MethodGet, "/api/v1/destinations/"+dest.ID, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d", code)
	}
	code, _ = s.do(http.MethodPut, "/api/v1/destinations/"+dest.ID, map[string]interface{}{"name": "PACS", "ae_title": "PACS", "ip": "10.0.0.9", "port": 0})
	if code != http.StatusBadRequest {
		t.Fatalf("invalid update: %d", code)
	}
	code, _ = s.do(http.MethodDelete, "/api/v1/destinations/"+dest.ID, nil)
	if code != http.StatusOK {
		t.Fatalf("delete: %d", code)
	}
	code, _ = s.do(http.MethodGet, "/api/v1/destinations/"+dest.ID, nil)
	if code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", code)
	}

	code, env = s.do(http.MethodPost, "/api/v1/hl7/messages", map[string]string{"name": "ORU", "message": "MSH|{{.PatientName}}"})
	if code != http.StatusCreated {
		t.Fatalf("create hl7 message: %d %+v", code, env)
	}
	code, _ = s.do(http.MethodGet, "/api/v1/patients", nil)
	if code != http.StatusOK {
		t.Fatalf("list patients: %d", code)
	}
}

func TestMalformedBodies(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/worklists", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: %d", rec.Code)
	}

	code, _ := s.do(http.MethodPost, "/api/v1/mpps/x/complete", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("empty complete body: %d", code)
	}
	code, _ = s.do(http.MethodGet, "/api/v1/audit?limit=-1", nil)
	if code != http.StatusBadRequest {
		t.Fatalf("negative limit: %d", code)
	}
	code, _ = s.do(http.MethodGet, "/api/v1/nowhere", nil)
	if code != http.StatusNotFound {
		t.Fatalf("unknown route: %d", code)
	}
}

func TestAuditOverHTTP(t *testing.T) {
	s := newTestServer(t)
	worklistID := s.createWorklist()
	s.begin(worklistID, "ACC-1")

	code, env := s.do(http.MethodGet, "/api/v1/audit?limit=5", nil)
	if code != http.StatusOK {
		t.Fatalf("audit: %d", code)
	}
	var records []models.AuditLog
	json.Unmarshal(env.Data, &records)
	if len(records) != 1 || records[0].Operation != "begin_procedure_step" {
		t.Fatalf("unexpected audit: %+v", records)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"store:memory":"healthy"`) {
		t.Fatalf("health: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("ready: %d %s", rec.Code, rec.Body.String())
	}
}
