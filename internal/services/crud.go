package services

import (
	"context"
	"strings"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
)

func worklists(s *repository.Store) repository.Collection[models.WorklistEntry] {
	return s.Worklists
}

func mppsEntries(s *repository.Store) repository.Collection[models.MppsEntry] {
	return s.Mpps
}

func destinations(s *repository.Store) repository.Collection[models.MimEntry] {
	return s.Destinations
}

func patients(s *repository.Store) repository.Collection[models.PatientStudyEntry] {
	return s.Patients
}

func hl7Settings(s *repository.Store) repository.Collection[models.Hl7SettingEntry] {
	return s.HL7Settings
}

func hl7Messages(s *repository.Store) repository.Collection[models.Hl7MessageSetting] {
	return s.HL7Messages
}

func getEntity[T any](ctx context.Context, m *LifecycleManager, kind string, coll func(*repository.Store) repository.Collection[T], key string) (*T, error) {
	var result *T
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		entity, err := coll(store).Get(ctx, key)
		if err != nil {
			return persistence("failed to load "+kind, err)
		}
		if entity == nil {
			return notFound(kind, key)
		}
		result = entity
		return nil
	})
	return result, err
}

func listEntities[T any](ctx context.Context, m *LifecycleManager, kind string, coll func(*repository.Store) repository.Collection[T]) ([]*T, error) {
	result := []*T{}
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		entities, err := coll(store).List(ctx)
		if err != nil {
			return persistence("failed to list "+kind+" entries", err)
		}
		result = append(result, entities...)
		return nil
	})
	return result, err
}

func createEntity[T any](ctx context.Context, m *LifecycleManager, kind string, coll func(*repository.Store) repository.Collection[T], entity *T) (*T, error) {
	var created *T
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		var err error
		created, err = coll(store).Create(ctx, entity)
		if err != nil {
			return persistence("failed to create "+kind, err)
		}
		return nil
	})
	return created, err
}

// updateEntity replaces the entry at key. check sees the stored and the proposed entry
// and may reject the change or adjust the proposal.
func updateEntity[T any](ctx context.Context, m *LifecycleManager, kind string, coll func(*repository.Store) repository.Collection[T], key string, entity *T,
	check func(ctx context.Context, store *repository.Store, prev, next *T) error) (*T, error) {
	var updated *T
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		prev, err := coll(store).Get(ctx, key)
		if err != nil {
			return persistence("failed to load "+kind, err)
		}
		if prev == nil {
			return notFound(kind, key)
		}
		if check != nil {
			if err := check(ctx, store, prev, entity); err != nil {
				return err
			}
		}

		updated, err = coll(store).Update(ctx, key, entity)
		if err != nil {
			return persistence("failed to update "+kind, err)
		}
		if updated == nil {
			return notFound(kind, key)
		}
		return nil
	})
	return updated, err
}

func deleteEntity[T any](ctx context.Context, m *LifecycleManager, kind string, coll func(*repository.Store) repository.Collection[T], key string,
	check func(ctx context.Context, store *repository.Store, prev *T) error) (*T, error) {
	var deleted *T
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		if check != nil {
			prev, err := coll(store).Get(ctx, key)
			if err != nil {
				return persistence("failed to load "+kind, err)
			}
			if prev == nil {
				return notFound(kind, key)
			}
			if err := check(ctx, store, prev); err != nil {
				return err
			}
		}

		var err error
		deleted, err = coll(store).Delete(ctx, key)
		if err != nil {
			return persistence("failed to delete "+kind, err)
		}
		if deleted == nil {
			return notFound(kind, key)
		}
		return nil
	})
	return deleted, err
}

// Worklists

func validateWorklist(w *models.WorklistEntry) error {
	if w == nil {
		return invalidInput("worklist entry is required")
	}
	if strings.TrimSpace(w.WorklistAETitle) == "" || strings.TrimSpace(w.CallingAETitle) == "" {
		return invalidInput("calling_ae_title and worklist_ae_title are required")
	}
	if err := validateAddress("worklist", w.WorklistIP, w.WorklistPort); err != nil {
		return err
	}
	if w.MppsPort != 0 {
		if err := validateAddress("mpps", w.MppsAddress(), w.MppsPort); err != nil {
			return err
		}
	}
	return nil
}

// inProgressFor returns an IN_PROGRESS entry begun against worklistID, if any
func inProgressFor(ctx context.Context, store *repository.Store, worklistID string) (*models.MppsEntry, error) {
	entries, err := store.Mpps.List(ctx)
	if err != nil {
		return nil, persistence("failed to list mpps entries", err)
	}
	for _, e := range entries {
		if e.WorklistID == worklistID && e.Status == models.MppsStatusInProgress {
			return e, nil
		}
	}
	return nil, nil
}

// CreateWorklist stores a new worklist source
func (m *LifecycleManager) CreateWorklist(ctx context.Context, w *models.WorklistEntry) (*models.WorklistEntry, error) {
	if err := validateWorklist(w); err != nil {
		return nil, err
	}
	w.ID = ""
	return createEntity(ctx, m, "worklist", worklists, w)
}

// GetWorklist loads a worklist source
func (m *LifecycleManager) GetWorklist(ctx context.Context, key string) (*models.WorklistEntry, error) {
	return getEntity(ctx, m, "worklist", worklists, key)
}

// ListWorklists lists worklist sources
func (m *LifecycleManager) ListWorklists(ctx context.Context) ([]*models.WorklistEntry, error) {
	return listEntities(ctx, m, "worklist", worklists)
}

// UpdateWorklist replaces a worklist source. Its AE identity can not change while a
// procedure step begun against it is in progress.
func (m *LifecycleManager) UpdateWorklist(ctx context.Context, key string, w *models.WorklistEntry) (*models.WorklistEntry, error) {
	if err := validateWorklist(w); err != nil {
		return nil, err
	}
	updated, err := updateEntity(ctx, m, "worklist", worklists, key, w,
		func(ctx context.Context, store *repository.Store, prev, next *models.WorklistEntry) error {
			if prev.SameIdentity(next) {
				return nil
			}
			busy, err := inProgressFor(ctx, store, key)
			if err != nil {
				return err
			}
			if busy != nil {
				return invariant("worklist %s has procedure step %s in progress; its AE settings can not change", key, busy.ID)
			}
			return nil
		})
	if err == nil {
		m.worklist.Invalidate(ctx, key)
	}
	return updated, err
}

// DeleteWorklist removes a worklist source that no procedure step is in progress on
func (m *LifecycleManager) DeleteWorklist(ctx context.Context, key string) (*models.WorklistEntry, error) {
	deleted, err := deleteEntity(ctx, m, "worklist", worklists, key,
		func(ctx context.Context, store *repository.Store, _ *models.WorklistEntry) error {
			busy, err := inProgressFor(ctx, store, key)
			if err != nil {
				return err
			}
			if busy != nil {
				return invariant("worklist %s has procedure step %s in progress", key, busy.ID)
			}
			return nil
		})
	if err == nil {
		m.worklist.Invalidate(ctx, key)
	}
	return deleted, err
}

// MPPS entries. They are created only by BeginProcedureStep and removed only by Purge.

// GetMpps loads an MPPS entry
func (m *LifecycleManager) GetMpps(ctx context.Context, key string) (*models.MppsEntry, error) {
	return getEntity(ctx, m, "mpps entry", mppsEntries, key)
}

// ListMpps lists MPPS entries
func (m *LifecycleManager) ListMpps(ctx context.Context) ([]*models.MppsEntry, error) {
	return listEntities(ctx, m, "mpps", mppsEntries)
}

// UpdateMppsDetails changes the descriptive and demographic fields of a non-terminal
// entry. Status, protocol identifiers, the file path and the worklist binding are kept.
func (m *LifecycleManager) UpdateMppsDetails(ctx context.Context, key string, details *models.MppsEntry) (*models.MppsEntry, error) {
	if details == nil {
		return nil, invalidInput("mpps entry is required")
	}
	next := &models.MppsEntry{}
	return updateEntity(ctx, m, "mpps entry", mppsEntries, key, next,
		func(_ context.Context, _ *repository.Store, prev, next *models.MppsEntry) error {
			if prev.Status.Terminal() {
				return invariant("mpps entry %s is %s and can not change", key, prev.Status)
			}
			*next = *prev
			next.ApplyDetails(details)
			return nil
		})
}

// Destinations

func validateDestination(d *models.MimEntry) error {
	if d == nil {
		return invalidInput("destination is required")
	}
	if strings.TrimSpace(d.AETitle) == "" {
		return invalidInput("ae_title is required")
	}
	return validateAddress("destination", d.IP, d.Port)
}

// CreateDestination stores a storage destination
func (m *LifecycleManager) CreateDestination(ctx context.Context, d *models.MimEntry) (*models.MimEntry, error) {
	if err := validateDestination(d); err != nil {
		return nil, err
	}
	d.ID = ""
	return createEntity(ctx, m, "destination", destinations, d)
}

// GetDestination loads a storage destination
func (m *LifecycleManager) GetDestination(ctx context.Context, key string) (*models.MimEntry, error) {
	return getEntity(ctx, m, "destination", destinations, key)
}

// ListDestinations lists storage destinations
func (m *LifecycleManager) ListDestinations(ctx context.Context) ([]*models.MimEntry, error) {
	return listEntities(ctx, m, "destination", destinations)
}

// UpdateDestination replaces a storage destination
func (m *LifecycleManager) UpdateDestination(ctx context.Context, key string, d *models.MimEntry) (*models.MimEntry, error) {
	if err := validateDestination(d); err != nil {
		return nil, err
	}
	return updateEntity(ctx, m, "destination", destinations, key, d, nil)
}

// DeleteDestination removes a storage destination
func (m *LifecycleManager) DeleteDestination(ctx context.Context, key string) (*models.MimEntry, error) {
	return deleteEntity(ctx, m, "destination", destinations, key, nil)
}

// Patients

func validatePatient(p *models.PatientStudyEntry) error {
	if p == nil {
		return invalidInput("patient entry is required")
	}
	if strings.TrimSpace(p.PatientID) == "" {
		return invalidInput("patient_id is required")
	}
	return nil
}

// CreatePatient stores a patient study entry
func (m *LifecycleManager) CreatePatient(ctx context.Context, p *models.PatientStudyEntry) (*models.PatientStudyEntry, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	p.ID = ""
	return createEntity(ctx, m, "patient", patients, p)
}

// GetPatient loads a patient study entry
func (m *LifecycleManager) GetPatient(ctx context.Context, key string) (*models.PatientStudyEntry, error) {
	return getEntity(ctx, m, "patient", patients, key)
}

// ListPatients lists patient study entries
func (m *LifecycleManager) ListPatients(ctx context.Context) ([]*models.PatientStudyEntry, error) {
	return listEntities(ctx, m, "patient", patients)
}

// UpdatePatient replaces a patient study entry, keeping the instances recorded by the
// last transmission
func (m *LifecycleManager) UpdatePatient(ctx context.Context, key string, p *models.PatientStudyEntry) (*models.PatientStudyEntry, error) {
	if err := validatePatient(p); err != nil {
		return nil, err
	}
	return updateEntity(ctx, m, "patient", patients, key, p,
		func(_ context.Context, _ *repository.Store, prev, next *models.PatientStudyEntry) error {
			next.SopInstanceUIDs = prev.SopInstanceUIDs
			return nil
		})
}

// DeletePatient removes a patient study entry
func (m *LifecycleManager) DeletePatient(ctx context.Context, key string) (*models.PatientStudyEntry, error) {
	return deleteEntity(ctx, m, "patient", patients, key, nil)
}

// HL7 settings and message templates

func validateHL7Setting(s *models.Hl7SettingEntry) error {
	if s == nil {
		return invalidInput("hl7 setting is required")
	}
	return validateAddress("hl7", s.IP, s.Port)
}

func validateHL7Message(s *models.Hl7MessageSetting) error {
	if s == nil {
		return invalidInput("hl7 message is required")
	}
	if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.Message) == "" {
		return invalidInput("name and message are required")
	}
	if _, err := parseTemplate(s.Name, s.Message); err != nil {
		return &Error{Kind: KindInvalidInput, Message: "message template does not parse", Err: err}
	}
	return nil
}

// CreateHL7Setting stores an HL7 receiver
func (m *LifecycleManager) CreateHL7Setting(ctx context.Context, s *models.Hl7SettingEntry) (*models.Hl7SettingEntry, error) {
	if err := validateHL7Setting(s); err != nil {
		return nil, err
	}
	s.ID = ""
	return createEntity(ctx, m, "hl7 setting", hl7Settings, s)
}

// GetHL7Setting loads an HL7 receiver
func (m *LifecycleManager) GetHL7Setting(ctx context.Context, key string) (*models.Hl7SettingEntry, error) {
	return getEntity(ctx, m, "hl7 setting", hl7Settings, key)
}

// ListHL7Settings lists HL7 receivers
func (m *LifecycleManager) ListHL7Settings(ctx context.Context) ([]*models.Hl7SettingEntry, error) {
	return listEntities(ctx, m, "hl7 setting", hl7Settings)
}

// UpdateHL7Setting replaces an HL7 receiver
func (m *LifecycleManager) UpdateHL7Setting(ctx context.Context, key string, s *models.Hl7SettingEntry) (*models.Hl7SettingEntry, error) {
	if err := validateHL7Setting(s); err != nil {
		return nil, err
	}
	return updateEntity(ctx, m, "hl7 setting", hl7Settings, key, s, nil)
}

// DeleteHL7Setting removes an HL7 receiver
func (m *LifecycleManager) DeleteHL7Setting(ctx context.Context, key string) (*models.Hl7SettingEntry, error) {
	return deleteEntity(ctx, m, "hl7 setting", hl7Settings, key, nil)
}

// CreateHL7Message stores an HL7 message template
func (m *LifecycleManager) CreateHL7Message(ctx context.Context, s *models.Hl7MessageSetting) (*models.Hl7MessageSetting, error) {
	if err := validateHL7Message(s); err != nil {
		return nil, err
	}
	s.ID = ""
	return createEntity(ctx, m, "hl7 message", hl7Messages, s)
}

// GetHL7Message loads an HL7 message template
func (m *LifecycleManager) GetHL7Message(ctx context.Context, key string) (*models.Hl7MessageSetting, error) {
	return getEntity(ctx, m, "hl7 message", hl7Messages, key)
}

// ListHL7Messages lists HL7 message templates
func (m *LifecycleManager) ListHL7Messages(ctx context.Context) ([]*models.Hl7MessageSetting, error) {
	return listEntities(ctx, m, "hl7 message", hl7Messages)
}

// UpdateHL7Message replaces an HL7 message template
func (m *LifecycleManager) UpdateHL7Message(ctx context.Context, key string, s *models.Hl7MessageSetting) (*models.Hl7MessageSetting, error) {
	if err := validateHL7Message(s); err != nil {
		return nil, err
	}
	return updateEntity(ctx, m, "hl7 message", hl7Messages, key, s, nil)
}

// DeleteHL7Message removes an HL7 message template
func (m *LifecycleManager) DeleteHL7Message(ctx context.Context, key string) (*models.Hl7MessageSetting, error) {
	return deleteEntity(ctx, m, "hl7 message", hl7Messages, key, nil)
}

func validateAddress(what, host string, port int) error {
	if strings.TrimSpace(host) == "" {
		return invalidInput("%s address is required", what)
	}
	if port <= 0 || port > 65535 {
		return invalidInput("%s port %d is out of range", what, port)
	}
	return nil
}
