package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/dicomfs"
	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
)

type fakeScanner struct {
	err   error
	paths []string
}

func (s *fakeScanner) Collect(path string) ([]models.SopInstanceSeries, error) {
	s.paths = append(s.paths, path)
	if s.err != nil {
		return nil, s.err
	}
	return []models.SopInstanceSeries{{SeriesInstanceUID: "1.2.3"}}, nil
}

func TestBeginProcedureStep(t *testing.T) {
	f := newFixture(t)

	req := testMpps("ACC-1")
	req.MppsInstanceUID = "client-chosen"
	req.Status = models.MppsStatusCompleted

	entry, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, req)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if entry.Status != models.MppsStatusInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", entry.Status)
	}
	if entry.MppsInstanceUID != "1.2.840.10008.1" {
		t.Errorf("MPPS instance UID must come from the engine, got %q", entry.MppsInstanceUID)
	}
	if entry.WorklistID != f.worklist.ID {
		t.Errorf("worklist binding = %q", entry.WorklistID)
	}

	stored, _ := f.store.Mpps.Get(f.ctx, entry.ID)
	if stored == nil || stored.PatientName != "DOE^JANE" {
		t.Fatalf("entry not persisted: %+v", stored)
	}
}

func TestBeginRequiresAccessionNumber(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, testMpps(""))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
	if f.gw.count(gateway.OpMppsCreate) != 0 {
		t.Fatal("gateway must not be called for invalid input")
	}
}

func TestBeginUnknownWorklist(t *testing.T) {
	f := newFixture(t)

	_, err := f.manager.BeginProcedureStep(f.ctx, "missing", testMpps("ACC-1"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestBeginNothingPersistedOnGatewayFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *fakeGateway)
		want  error
	}{
		{
			name:  "transport error",
			setup: func(g *fakeGateway) { g.fail(gateway.OpMppsCreate, gateway.ErrTransport) },
			want:  ErrGateway,
		},
		{
			name:  "business refusal",
			setup: func(g *fakeGateway) { g.set(gateway.OpMppsCreate, gateway.Ack{Message: "association rejected"}) },
			want:  ErrBusiness,
		},
		{
			name:  "missing instance uid",
			setup: func(g *fakeGateway) { g.set(gateway.OpMppsCreate, gateway.Ack{Success: true}) },
			want:  ErrGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setup(f.gw)

			_, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, testMpps("ACC-1"))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			entries, _ := f.store.Mpps.List(f.ctx)
			if len(entries) != 0 {
				t.Fatalf("expected no entries, got %d", len(entries))
			}
		})
	}
}

func TestBusinessFailureCarriesEngineMessage(t *testing.T) {
	f := newFixture(t)
	f.gw.set(gateway.OpMppsCreate, gateway.Ack{Message: "association rejected"})

	_, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, testMpps("ACC-1"))
	if err == nil || err.Error() != "association rejected" {
		t.Fatalf("got %v", err)
	}
}

func TestBeginRejectsDuplicateAccession(t *testing.T) {
	f := newFixture(t)
	first := f.begin(t, "ACC-1")

	_, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, testMpps("ACC-1"))
	if !errors.Is(err, ErrInvariantViolation) {
		t.Fatalf("expected InvariantViolation, got %v", err)
	}
	if f.gw.count(gateway.OpMppsCreate) != 1 {
		t.Fatal("duplicate begin must not reach the gateway")
	}

	if _, err := f.manager.DiscontinueProcedureStep(f.ctx, first.ID, ""); err != nil {
		t.Fatalf("discontinue: %v", err)
	}
	if _, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, testMpps("ACC-1")); err != nil {
		t.Fatalf("a discontinued step must not block a new one: %v", err)
	}
}

func TestCompleteProcedureStep(t *testing.T) {
	scanner := &fakeScanner{}
	f := newFixture(t, WithScanner(scanner))
	entry := f.begin(t, "ACC-1")

	done, err := f.manager.CompleteProcedureStep(f.ctx, entry.ID, "/data/study", "acquired")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != models.MppsStatusCompleted {
		t.Errorf("status = %s", done.Status)
	}
	if done.MppsInstanceUID != entry.MppsInstanceUID {
		t.Errorf("MPPS instance UID changed from %q to %q", entry.MppsInstanceUID, done.MppsInstanceUID)
	}
	if done.SopInstanceUIDs == "" || done.DcmFile != "/data/study" || done.Description != "acquired" {
		t.Errorf("unexpected completion fields: %+v", done)
	}
	if len(scanner.paths) != 1 || scanner.paths[0] != "/data/study" {
		t.Errorf("scanner not consulted: %v", scanner.paths)
	}
}

func TestCompleteKeepsDescriptionWhenEmpty(t *testing.T) {
	f := newFixture(t)
	req := testMpps("ACC-1")
	req.Description = "scheduled"
	entry, err := f.manager.BeginProcedureStep(f.ctx, f.worklist.ID, req)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	done, err := f.manager.CompleteProcedureStep(f.ctx, entry.ID, "/data/study", "")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Description != "scheduled" {
		t.Errorf("description = %q", done.Description)
	}
}

func TestCompleteScannerPrecheck(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no instances", dicomfs.ErrNoInstances, ErrInvariantViolation},
		{"unreadable path", errors.New("stat /nope: no such file or directory"), ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, WithScanner(&fakeScanner{err: tt.err}))
			entry := f.begin(t, "ACC-1")

			_, err := f.manager.CompleteProcedureStep(f.ctx, entry.ID, "/nope", "")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if f.gw.count(gateway.OpMppsComplete) != 0 {
				t.Fatal("gateway must not be called when the precheck fails")
			}
			stored, _ := f.store.Mpps.Get(f.ctx, entry.ID)
			if stored.Status != models.MppsStatusInProgress {
				t.Fatalf("status changed to %s", stored.Status)
			}
		})
	}
}

func TestCompleteNothingPersistedOnGatewayFailure(t *testing.T) {
	f := newFixture(t)
	entry := f.begin(t, "ACC-1")
	f.gw.fail(gateway.OpMppsComplete, gateway.ErrTransport)

	_, err := f.manager.CompleteProcedureStep(f.ctx, entry.ID, "/data/study", "done")
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected GatewayError, got %v", err)
	}

	stored, _ := f.store.Mpps.Get(f.ctx, entry.ID)
	if stored.Status != models.MppsStatusInProgress || stored.SopInstanceUIDs != "" || stored.DcmFile != "" {
		t.Fatalf("entry modified on failure: %+v", stored)
	}
}

func TestTerminalEntriesRejectTransitions(t *testing.T) {
	f := newFixture(t)

	completed := f.begin(t, "ACC-1")
	if _, err := f.manager.CompleteProcedureStep(f.ctx, completed.ID, "/data/a", ""); err != nil {
		t.Fatalf("complete: %v", err)
	}
	discontinued := f.begin(t, "ACC-2")
	if _, err := f.manager.DiscontinueProcedureStep(f.ctx, discontinued.ID, "patient left"); err != nil {
		t.Fatalf("discontinue: %v", err)
	}

	completeCalls := f.gw.count(gateway.OpMppsComplete)
	discontinueCalls := f.gw.count(gateway.OpMppsDiscontinue)

	for _, id := range []string{completed.ID, discontinued.ID} {
		if _, err := f.manager.CompleteProcedureStep(f.ctx, id, "/data/b", ""); !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("complete %s: expected InvariantViolation, got %v", id, err)
		}
		if _, err := f.manager.DiscontinueProcedureStep(f.ctx, id, ""); !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("discontinue %s: expected InvariantViolation, got %v", id, err)
		}
		if _, err := f.manager.UpdateMppsDetails(f.ctx, id, testMpps("ACC-9")); !errors.Is(err, ErrInvariantViolation) {
			t.Errorf("update %s: expected InvariantViolation, got %v", id, err)
		}
	}

	if f.gw.count(gateway.OpMppsComplete) != completeCalls || f.gw.count(gateway.OpMppsDiscontinue) != discontinueCalls {
		t.Fatal("rejected transitions must not reach the gateway")
	}
}

func TestDiscontinueProcedureStep(t *testing.T) {
	f := newFixture(t)
	entry := f.begin(t, "ACC-1")

	stopped, err := f.manager.DiscontinueProcedureStep(f.ctx, entry.ID, "contrast reaction")
	if err != nil {
		t.Fatalf("discontinue: %v", err)
	}
	if stopped.Status != models.MppsStatusDiscontinued || stopped.Description != "contrast reaction" {
		t.Errorf("unexpected entry: %+v", stopped)
	}
	if stopped.MppsInstanceUID != entry.MppsInstanceUID {
		t.Error("MPPS instance UID must not change")
	}
}

func TestDiscontinueNothingPersistedOnGatewayFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(g *fakeGateway)
		want  error
	}{
		{"transport", func(g *fakeGateway) { g.fail(gateway.OpMppsDiscontinue, gateway.ErrTransport) }, ErrGateway},
		{"refused", func(g *fakeGateway) {
			g.set(gateway.OpMppsDiscontinue, gateway.Ack{Success: false, Message: "N-SET rejected"})
		}, ErrBusiness},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			entry := f.begin(t, "ACC-1")
			before, _ := f.store.Mpps.Get(f.ctx, entry.ID)
			tt.setup(f.gw)

			_, err := f.manager.DiscontinueProcedureStep(f.ctx, entry.ID, "patient left")
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}

			stored, _ := f.store.Mpps.Get(f.ctx, entry.ID)
			if stored.Status != before.Status || stored.Description != before.Description {
				t.Fatalf("entry modified on failure: %+v", stored)
			}
			if stored.MppsInstanceUID != before.MppsInstanceUID || stored.SopInstanceUIDs != before.SopInstanceUIDs || stored.DcmFile != before.DcmFile {
				t.Fatalf("protocol fields modified on failure: %+v", stored)
			}
		})
	}
}

func TestDescriptionReachesEngine(t *testing.T) {
	f := newFixture(t)
	completed := f.begin(t, "ACC-1")
	stopped := f.begin(t, "ACC-2")

	if _, err := f.manager.CompleteProcedureStep(f.ctx, completed.ID, "/data/study", "operator note"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := f.manager.DiscontinueProcedureStep(f.ctx, stopped.ID, "patient left"); err != nil {
		t.Fatalf("discontinue: %v", err)
	}

	sent, ok := f.gw.lastSent(gateway.OpMppsComplete)
	if !ok || sent.Description != "operator note" {
		t.Errorf("complete sent description %q", sent.Description)
	}
	sent, ok = f.gw.lastSent(gateway.OpMppsDiscontinue)
	if !ok || sent.Description != "patient left" || sent.Status != models.MppsStatusDiscontinued {
		t.Errorf("discontinue sent %+v", sent)
	}
}

func TestConcurrentCompletionsSucceedOnce(t *testing.T) {
	f := newFixture(t)
	entry := f.begin(t, "ACC-1")
	f.gw.delay = 20 * time.Millisecond

	const n = 5
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.manager.CompleteProcedureStep(context.Background(), entry.ID, "/data/study", "")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, ErrInvariantViolation):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one completion, got %d", succeeded)
	}
	if calls := f.gw.count(gateway.OpMppsComplete); calls != 1 {
		t.Fatalf("expected one gateway completion, got %d", calls)
	}
}

func TestUpdateMppsDetailsKeepsProtocolFields(t *testing.T) {
	f := newFixture(t)
	entry := f.begin(t, "ACC-1")

	details := testMpps("ACC-1")
	details.PatientName = "DOE^JOHN"
	details.MppsInstanceUID = "forged"
	details.Status = models.MppsStatusCompleted
	details.WorklistID = "other"

	updated, err := f.manager.UpdateMppsDetails(f.ctx, entry.ID, details)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.PatientName != "DOE^JOHN" {
		t.Errorf("patient name = %q", updated.PatientName)
	}
	if updated.MppsInstanceUID != entry.MppsInstanceUID || updated.Status != models.MppsStatusInProgress || updated.WorklistID != f.worklist.ID {
		t.Errorf("protocol fields changed: %+v", updated)
	}
}

func TestQueryWorklistUsesCache(t *testing.T) {
	f, backend := newCachedFixture(t)

	rows, err := f.manager.QueryWorklist(f.ctx, f.worklist.ID, false)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if rows != `[{"AccessionNumber":"ACC-1"}]` {
		t.Errorf("rows = %s", rows)
	}
	if backend.Len() != 1 {
		t.Fatalf("expected rows to be cached, cache holds %d", backend.Len())
	}

	if _, err := f.manager.QueryWorklist(f.ctx, f.worklist.ID, false); err != nil {
		t.Fatalf("cached query: %v", err)
	}
	if calls := f.gw.count(gateway.OpQueryWorklist); calls != 1 {
		t.Fatalf("expected cached answer, gateway called %d times", calls)
	}

	if _, err := f.manager.QueryWorklist(f.ctx, f.worklist.ID, true); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if calls := f.gw.count(gateway.OpQueryWorklist); calls != 2 {
		t.Fatalf("refresh must bypass the cache, gateway called %d times", calls)
	}

	updated := testWorklist()
	updated.Name = "renamed"
	if _, err := f.manager.UpdateWorklist(f.ctx, f.worklist.ID, updated); err != nil {
		t.Fatalf("update: %v", err)
	}
	if backend.Len() != 0 {
		t.Fatal("updating a worklist must drop its cached rows")
	}
}

func TestQueryWorklistEmptyAndFailure(t *testing.T) {
	f, backend := newCachedFixture(t)

	f.gw.set(gateway.OpQueryWorklist, gateway.Ack{Success: true})
	rows, err := f.manager.QueryWorklist(f.ctx, f.worklist.ID, true)
	if err != nil || rows != "[]" {
		t.Fatalf("rows = %q, err = %v", rows, err)
	}

	backend.Clear(f.ctx, "*")
	f.gw.set(gateway.OpQueryWorklist, gateway.Ack{Message: "C-FIND refused"})
	if _, err := f.manager.QueryWorklist(f.ctx, f.worklist.ID, false); !errors.Is(err, ErrBusiness) {
		t.Fatalf("expected BusinessFailure, got %v", err)
	}
	if backend.Len() != 0 {
		t.Fatal("failed queries must not be cached")
	}
}

func TestTransmitImagesAndReport(t *testing.T) {
	f := newFixture(t)
	entry := f.begin(t, "ACC-1")
	dest, err := f.manager.CreateDestination(f.ctx, &models.MimEntry{Name: "PACS", CallingAETitle: "RIS", AETitle: "PACS", IP: "10.0.0.9", Port: 11112})
	if err != nil {
		t.Fatalf("create destination: %v", err)
	}

	msg, err := f.manager.TransmitImages(f.ctx, dest.ID, entry.ID)
	if err != nil || msg != "images sent" {
		t.Fatalf("transmit images: %q, %v", msg, err)
	}

	msg, err = f.manager.TransmitReport(f.ctx, dest.ID, entry.ID, "/data/report.pdf")
	if err != nil || msg != "report sent" {
		t.Fatalf("transmit report: %q, %v", msg, err)
	}

	if _, err := f.manager.TransmitImages(f.ctx, "missing", entry.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.manager.TransmitReport(f.ctx, dest.ID, entry.ID, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}

	stored, _ := f.store.Mpps.Get(f.ctx, entry.ID)
	if stored.Status != models.MppsStatusInProgress {
		t.Fatal("transmission must not change the entry")
	}
}

func TestTransmitPatientStudy(t *testing.T) {
	f := newFixture(t)
	dest, _ := f.manager.CreateDestination(f.ctx, &models.MimEntry{Name: "PACS", CallingAETitle: "RIS", AETitle: "PACS", IP: "10.0.0.9", Port: 11112})
	patient, err := f.manager.CreatePatient(f.ctx, &models.PatientStudyEntry{PatientName: "DOE^JANE", PatientID: "P-1"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}

	generate := true
	updated, err := f.manager.TransmitPatientStudy(f.ctx, PatientTransmission{
		DestinationID: dest.ID,
		PatientID:     patient.ID,
		DcmFile:       "/data/outside",
		Description:   "outside study",
		Generate:      &generate,
	})
	if err != nil {
		t.Fatalf("transmit: %v", err)
	}
	if updated.SopInstanceUIDs != `[{"series_instance_uid":"9.9"}]` || updated.Description != "outside study" {
		t.Errorf("unexpected patient entry: %+v", updated)
	}
	if updated.Generate == nil || !*updated.Generate {
		t.Error("generate flag not recorded")
	}

	f.gw.fail(gateway.OpStorePatient, gateway.ErrTransport)
	_, err = f.manager.TransmitPatientStudy(f.ctx, PatientTransmission{DestinationID: dest.ID, PatientID: patient.ID, DcmFile: "/data/other"})
	if !errors.Is(err, ErrGateway) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	stored, _ := f.store.Patients.Get(f.ctx, patient.ID)
	if stored.SopInstanceUIDs != updated.SopInstanceUIDs {
		t.Fatal("failed transmission must not change the patient entry")
	}

	f.gw.fail(gateway.OpStorePatient, nil)
	f.gw.set(gateway.OpStorePatient, gateway.Ack{Success: true, Message: "patient sent"})
	again, err := f.manager.TransmitPatientStudy(f.ctx, PatientTransmission{DestinationID: dest.ID, PatientID: patient.ID, DcmFile: "/data/other"})
	if err != nil {
		t.Fatalf("transmit without result: %v", err)
	}
	if again.SopInstanceUIDs != updated.SopInstanceUIDs {
		t.Errorf("empty result replaced instances: %q", again.SopInstanceUIDs)
	}
}

func seedStatuses(t *testing.T, ctx context.Context, store *repository.Store) map[models.MppsStatus]*models.MppsEntry {
	t.Helper()
	seeded := map[models.MppsStatus]*models.MppsEntry{}
	for i, status := range []models.MppsStatus{
		models.MppsStatusScheduled,
		models.MppsStatusInProgress,
		models.MppsStatusCompleted,
		models.MppsStatusDiscontinued,
	} {
		entry, err := store.Mpps.Create(ctx, &models.MppsEntry{AccessionNumber: string(rune('A' + i)), Status: status})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		seeded[status] = entry
	}
	return seeded
}

func TestPurgeCompletedEntries(t *testing.T) {
	f := newFixture(t)
	seeded := seedStatuses(t, f.ctx, f.store)
	extra, _ := f.store.Mpps.Create(f.ctx, &models.MppsEntry{AccessionNumber: "E", Status: models.MppsStatusCompleted})

	result, err := f.manager.Purge(f.ctx, ParsePurgeKey(PurgeAllKey))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(result.Deleted) != 2 || result.Matched != 2 || len(result.Failures) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	left, _ := f.store.Mpps.List(f.ctx)
	if len(left) != 3 {
		t.Fatalf("expected 3 remaining entries, got %d", len(left))
	}
	for _, e := range left {
		if e.ID == extra.ID || e.ID == seeded[models.MppsStatusCompleted].ID {
			t.Fatalf("completed entry %s survived", e.ID)
		}
	}
}

func TestPurgeByKey(t *testing.T) {
	f := newFixture(t)
	seeded := seedStatuses(t, f.ctx, f.store)

	target := seeded[models.MppsStatusInProgress]
	result, err := f.manager.Purge(f.ctx, ParsePurgeKey(target.ID))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if len(result.Deleted) != 1 || result.Deleted[0].ID != target.ID {
		t.Fatalf("unexpected result: %+v", result)
	}

	if _, err := f.manager.Purge(f.ctx, ByKey(target.ID)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := f.manager.Purge(f.ctx, ByKey("")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected InvalidInput, got %v", err)
	}
}

type failingDelete struct {
	repository.Collection[models.MppsEntry]
	failKey string
}

func (f failingDelete) Delete(ctx context.Context, key string) (*models.MppsEntry, error) {
	if key == f.failKey {
		return nil, errors.New("row locked")
	}
	return f.Collection.Delete(ctx, key)
}

func (f failingDelete) DeleteWhere(ctx context.Context, match func(*models.MppsEntry) bool) (repository.DeleteResult[models.MppsEntry], error) {
	return repository.DeleteEach[models.MppsEntry](ctx, f, match)
}

func TestPurgePartialFailure(t *testing.T) {
	ctx := context.Background()
	base := repository.NewMemoryStore()
	first, _ := base.Mpps.Create(ctx, &models.MppsEntry{AccessionNumber: "A", Status: models.MppsStatusCompleted})
	second, _ := base.Mpps.Create(ctx, &models.MppsEntry{AccessionNumber: "B", Status: models.MppsStatusCompleted})

	store := base.WithMpps(failingDelete{Collection: base.Mpps, failKey: first.ID})
	f := newFixtureWithStore(t, store)

	result, err := f.manager.Purge(ctx, CompletedEntries())
	if err != nil {
		t.Fatalf("partial purge must not fail the command: %v", err)
	}
	if result.Matched != 2 || len(result.Deleted) != 1 || result.Deleted[0].ID != second.ID {
		t.Fatalf("unexpected deleted set: %+v", result)
	}
	if len(result.Failures) != 1 || result.Failures[0].Key != first.ID {
		t.Fatalf("unexpected failures: %+v", result.Failures)
	}

	left, _ := base.Mpps.Get(ctx, first.ID)
	if left == nil {
		t.Fatal("entry that failed to delete must remain")
	}
}
