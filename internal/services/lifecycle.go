package services

import (
	"context"
	"errors"
	"strings"

	"github.com/otcheredev/ris-modality-workflow/internal/dicomfs"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
	"github.com/rs/zerolog/log"
)

// PurgeAllKey is the legacy key that selects every completed entry instead of one entry
const PurgeAllKey = "all"

// PurgeSelector chooses which MPPS entries a purge removes
type PurgeSelector struct {
	key       string
	completed bool
}

// ByKey selects the single entry with key
func ByKey(key string) PurgeSelector {
	return PurgeSelector{key: key}
}

// CompletedEntries selects every COMPLETED entry
func CompletedEntries() PurgeSelector {
	return PurgeSelector{completed: true}
}

// ParsePurgeKey maps a host-supplied key onto a selector; "all" is reserved
func ParsePurgeKey(key string) PurgeSelector {
	if key == PurgeAllKey {
		return CompletedEntries()
	}
	return ByKey(key)
}

// PurgeResult lists what a purge removed and what it could not
type PurgeResult struct {
	Deleted  []*models.MppsEntry        `json:"deleted"`
	Failures []repository.DeleteFailure `json:"failures"`
	Matched  int                        `json:"matched"`
}

// QueryWorklist asks the worklist SCP for scheduled procedures and returns the rows as
// serialized by the engine. refresh bypasses the result cache.
func (m *LifecycleManager) QueryWorklist(ctx context.Context, worklistID string, refresh bool) (string, error) {
	var rows string
	err := m.run(ctx, command{"query_worklist", "worklist", worklistID}, func(ctx context.Context, store *repository.Store) error {
		worklist, err := loadWorklist(ctx, store, worklistID)
		if err != nil {
			return err
		}

		if !refresh {
			if cached, ok := m.worklist.Get(ctx, worklistID); ok {
				m.metrics.CacheHit()
				rows = cached
				return nil
			}
		}
		m.metrics.CacheMiss()

		ack, err := m.gateway.QueryWorklist(ctx, worklist)
		if err := exchange("worklist query", ack, err); err != nil {
			return err
		}

		rows = ack.Result
		if strings.TrimSpace(rows) == "" {
			rows = "[]"
		}
		m.worklist.Put(ctx, worklistID, rows)
		return nil
	})
	return rows, err
}

// BeginProcedureStep reports IN PROGRESS for a scheduled procedure of a worklist and
// records the new MPPS entry once the MPPS SCP accepted it
func (m *LifecycleManager) BeginProcedureStep(ctx context.Context, worklistID string, entry *models.MppsEntry) (*models.MppsEntry, error) {
	if entry == nil {
		return nil, invalidInput("mpps entry is required")
	}
	if strings.TrimSpace(entry.AccessionNumber) == "" {
		return nil, invalidInput("AccessionNumber is required")
	}

	var created *models.MppsEntry
	err := m.run(ctx, command{"begin_procedure_step", "worklist", worklistID}, func(ctx context.Context, store *repository.Store) error {
		worklist, err := loadWorklist(ctx, store, worklistID)
		if err != nil {
			return err
		}

		existing, err := store.Mpps.List(ctx)
		if err != nil {
			return persistence("failed to list mpps entries", err)
		}
		for _, e := range existing {
			if e.WorklistID != worklistID || e.AccessionNumber != entry.AccessionNumber {
				continue
			}
			if e.Status == models.MppsStatusInProgress || e.Status == models.MppsStatusCompleted {
				return invariant("accession %s already has a %s procedure step (%s)", e.AccessionNumber, e.Status, e.ID)
			}
		}

		candidate := &models.MppsEntry{WorklistID: worklistID}
		candidate.ApplyDetails(entry)

		ack, err := m.gateway.MppsCreate(ctx, worklist, candidate)
		if err := exchange("MPPS create", ack, err); err != nil {
			return err
		}
		if ack.Result == "" {
			return gatewayFailure("MPPS create", errors.New("engine returned no MPPS instance UID"))
		}

		candidate.Status = models.MppsStatusInProgress
		candidate.MppsInstanceUID = ack.Result

		created, err = store.Mpps.Create(ctx, candidate)
		if err != nil {
			log.Error().Err(err).
				Str("worklist_id", worklistID).
				Str("mpps_instance_uid", ack.Result).
				Msg("MPPS accepted remotely but could not be recorded")
			return persistence("failed to record mpps entry", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// CompleteProcedureStep reports COMPLETED for an IN PROGRESS entry together with the
// instances found under dcmFile
func (m *LifecycleManager) CompleteProcedureStep(ctx context.Context, mppsID, dcmFile, description string) (*models.MppsEntry, error) {
	if strings.TrimSpace(dcmFile) == "" {
		return nil, invalidInput("dcm_file is required")
	}

	var updated *models.MppsEntry
	err := m.run(ctx, command{"complete_procedure_step", "mpps", mppsID}, func(ctx context.Context, store *repository.Store) error {
		entry, worklist, err := loadInProgress(ctx, store, mppsID, models.MppsStatusCompleted)
		if err != nil {
			return err
		}

		if m.scanner != nil {
			if _, err := m.scanner.Collect(dcmFile); err != nil {
				if errors.Is(err, dicomfs.ErrNoInstances) {
					return invariant("no SOP instances found under %s", dcmFile)
				}
				return &Error{Kind: KindInvalidInput, Message: "dcm_file is not readable", Err: err}
			}
		}

		// the engine writes the description into the performed series
		next := *entry
		if description != "" {
			next.Description = description
		}

		ack, err := m.gateway.MppsComplete(ctx, worklist, &next, dcmFile)
		if err := exchange("MPPS complete", ack, err); err != nil {
			return err
		}
		if ack.Result == "" {
			return gatewayFailure("MPPS complete", errors.New("engine returned no SOP instance set"))
		}

		next.Status = models.MppsStatusCompleted
		next.SopInstanceUIDs = ack.Result
		next.DcmFile = dcmFile

		updated, err = writeMpps(ctx, store, mppsID, &next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DiscontinueProcedureStep reports DISCONTINUED for an IN PROGRESS entry
func (m *LifecycleManager) DiscontinueProcedureStep(ctx context.Context, mppsID, description string) (*models.MppsEntry, error) {
	var updated *models.MppsEntry
	err := m.run(ctx, command{"discontinue_procedure_step", "mpps", mppsID}, func(ctx context.Context, store *repository.Store) error {
		entry, worklist, err := loadInProgress(ctx, store, mppsID, models.MppsStatusDiscontinued)
		if err != nil {
			return err
		}

		next := *entry
		next.Status = models.MppsStatusDiscontinued
		if description != "" {
			next.Description = description
		}

		ack, err := m.gateway.MppsDiscontinue(ctx, worklist, &next)
		if err := exchange("MPPS discontinue", ack, err); err != nil {
			return err
		}

		updated, err = writeMpps(ctx, store, mppsID, &next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TransmitImages sends the instances of an MPPS entry to a storage destination. Nothing
// is persisted; the engine's message is returned.
func (m *LifecycleManager) TransmitImages(ctx context.Context, destinationID, mppsID string) (string, error) {
	var message string
	err := m.run(ctx, command{"transmit_images", "mpps", mppsID}, func(ctx context.Context, store *repository.Store) error {
		destination, err := loadDestination(ctx, store, destinationID)
		if err != nil {
			return err
		}
		entry, err := loadMpps(ctx, store, mppsID)
		if err != nil {
			return err
		}

		ack, err := m.gateway.StoreImages(ctx, entry, destination)
		if err := exchange("image storage", ack, err); err != nil {
			return err
		}
		message = ack.Message
		return nil
	})
	return message, err
}

// PatientTransmission describes a patient-level storage request
type PatientTransmission struct {
	DestinationID string
	PatientID     string
	DcmFile       string
	Description   string
	Generate      *bool
}

// TransmitPatientStudy sends files re-tagged with a patient's demographics and records
// the series the engine assigned on the patient entry
func (m *LifecycleManager) TransmitPatientStudy(ctx context.Context, req PatientTransmission) (*models.PatientStudyEntry, error) {
	if strings.TrimSpace(req.DcmFile) == "" {
		return nil, invalidInput("dcm_file is required")
	}

	var updated *models.PatientStudyEntry
	err := m.run(ctx, command{"transmit_patient_study", "patient", req.PatientID}, func(ctx context.Context, store *repository.Store) error {
		destination, err := loadDestination(ctx, store, req.DestinationID)
		if err != nil {
			return err
		}
		patient, err := store.Patients.Get(ctx, req.PatientID)
		if err != nil {
			return persistence("failed to load patient entry", err)
		}
		if patient == nil {
			return notFound("patient", req.PatientID)
		}

		next := *patient
		if req.Description != "" {
			next.Description = req.Description
		}
		if req.Generate != nil {
			generate := *req.Generate
			next.Generate = &generate
		}

		ack, err := m.gateway.StorePatient(ctx, &next, destination, req.DcmFile)
		if err := exchange("patient storage", ack, err); err != nil {
			return err
		}

		if ack.Result != "" {
			next.SopInstanceUIDs = ack.Result
		}
		updated, err = store.Patients.Update(ctx, req.PatientID, &next)
		if err != nil {
			return persistence("failed to update patient entry", err)
		}
		if updated == nil {
			return persistence("nothing to update", repository.ErrNoEntity)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// TransmitReport sends a report for an MPPS entry to a storage destination
func (m *LifecycleManager) TransmitReport(ctx context.Context, destinationID, mppsID, dcmFile string) (string, error) {
	if strings.TrimSpace(dcmFile) == "" {
		return "", invalidInput("dcm_file is required")
	}

	var message string
	err := m.run(ctx, command{"transmit_report", "mpps", mppsID}, func(ctx context.Context, store *repository.Store) error {
		destination, err := loadDestination(ctx, store, destinationID)
		if err != nil {
			return err
		}
		entry, err := loadMpps(ctx, store, mppsID)
		if err != nil {
			return err
		}

		ack, err := m.gateway.SendReport(ctx, destination, entry, dcmFile)
		if err := exchange("report transmission", ack, err); err != nil {
			return err
		}
		message = ack.Message
		return nil
	})
	return message, err
}

// Purge deletes MPPS entries chosen by sel. Selecting every completed entry is a
// partial-success operation: entries already removed stay removed when another fails.
func (m *LifecycleManager) Purge(ctx context.Context, sel PurgeSelector) (PurgeResult, error) {
	result := PurgeResult{Deleted: []*models.MppsEntry{}, Failures: []repository.DeleteFailure{}}

	resourceID := sel.key
	if sel.completed {
		resourceID = PurgeAllKey
	}

	err := m.run(ctx, command{"purge_mpps", "mpps", resourceID}, func(ctx context.Context, store *repository.Store) error {
		if !sel.completed {
			if sel.key == "" {
				return invalidInput("mpps key is required")
			}
			deleted, err := store.Mpps.Delete(ctx, sel.key)
			if err != nil {
				return persistence("failed to delete mpps entry", err)
			}
			if deleted == nil {
				return notFound("mpps entry", sel.key)
			}
			result.Matched = 1
			result.Deleted = append(result.Deleted, deleted)
			return nil
		}

		res, err := store.Mpps.DeleteWhere(ctx, func(e *models.MppsEntry) bool {
			return e.Status == models.MppsStatusCompleted
		})
		if err != nil {
			return persistence("failed to list mpps entries", err)
		}
		result.Deleted = append(result.Deleted, res.Deleted...)
		result.Failures = append(result.Failures, res.Failures...)
		result.Matched = len(res.Deleted) + len(res.Failures)
		return nil
	})
	return result, err
}

func loadWorklist(ctx context.Context, store *repository.Store, key string) (*models.WorklistEntry, error) {
	worklist, err := store.Worklists.Get(ctx, key)
	if err != nil {
		return nil, persistence("failed to load worklist entry", err)
	}
	if worklist == nil {
		return nil, notFound("worklist", key)
	}
	return worklist, nil
}

func loadMpps(ctx context.Context, store *repository.Store, key string) (*models.MppsEntry, error) {
	entry, err := store.Mpps.Get(ctx, key)
	if err != nil {
		return nil, persistence("failed to load mpps entry", err)
	}
	if entry == nil {
		return nil, notFound("mpps entry", key)
	}
	return entry, nil
}

func loadDestination(ctx context.Context, store *repository.Store, key string) (*models.MimEntry, error) {
	destination, err := store.Destinations.Get(ctx, key)
	if err != nil {
		return nil, persistence("failed to load destination", err)
	}
	if destination == nil {
		return nil, notFound("destination", key)
	}
	return destination, nil
}

// loadInProgress resolves an entry that may move to target and the worklist it was
// begun against
func loadInProgress(ctx context.Context, store *repository.Store, mppsID string, target models.MppsStatus) (*models.MppsEntry, *models.WorklistEntry, error) {
	entry, err := loadMpps(ctx, store, mppsID)
	if err != nil {
		return nil, nil, err
	}
	if entry.Status != models.MppsStatusInProgress {
		return nil, nil, invariant("cannot move mpps entry %s from %s to %s", mppsID, entry.Status, target)
	}
	if entry.WorklistID == "" {
		return nil, nil, notFound("worklist", "")
	}
	worklist, err := loadWorklist(ctx, store, entry.WorklistID)
	if err != nil {
		return nil, nil, err
	}
	return entry, worklist, nil
}

func writeMpps(ctx context.Context, store *repository.Store, key string, entry *models.MppsEntry) (*models.MppsEntry, error) {
	updated, err := store.Mpps.Update(ctx, key, entry)
	if err != nil {
		return nil, persistence("failed to update mpps entry", err)
	}
	if updated == nil {
		return nil, persistence("nothing to update", repository.ErrNoEntity)
	}
	return updated, nil
}
