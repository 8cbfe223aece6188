package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
)

// ErrNoEntity is returned when a write reports success but yields no record
var ErrNoEntity = errors.New("no entity returned")

// Entity constrains a collection's type parameter to pointers carrying record metadata
type Entity[T any] interface {
	*T
	models.Entity
}

// Collection is the uniform contract of one keyed entity collection. Absence is not an
// error: Get, Update and Delete return a nil entity when the key does not exist.
type Collection[T any] interface {
	Create(ctx context.Context, entity *T) (*T, error)
	Get(ctx context.Context, key string) (*T, error)
	List(ctx context.Context) ([]*T, error)
	Update(ctx context.Context, key string, entity *T) (*T, error)
	Delete(ctx context.Context, key string) (*T, error)
	DeleteWhere(ctx context.Context, match func(*T) bool) (DeleteResult[T], error)
}

// DeleteFailure records one entity a bulk delete could not remove
type DeleteFailure struct {
	Key   string `json:"id"`
	Error string `json:"error"`
}

// DeleteResult is the partial-success outcome of a bulk delete: entities already
// removed stay removed when a later one fails.
type DeleteResult[T any] struct {
	Deleted  []*T            `json:"deleted"`
	Failures []DeleteFailure `json:"failures,omitempty"`
}

// Backend is the storage engine behind a Store
type Backend interface {
	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Store groups the entity collections sharing one backend
type Store struct {
	Worklists    Collection[models.WorklistEntry]
	Mpps         Collection[models.MppsEntry]
	Destinations Collection[models.MimEntry]
	Patients     Collection[models.PatientStudyEntry]
	HL7Settings  Collection[models.Hl7SettingEntry]
	HL7Messages  Collection[models.Hl7MessageSetting]
	Audit        Collection[models.AuditLog]

	backend Backend
}

// Driver returns the backend name
func (s *Store) Driver() string {
	return s.backend.Name()
}

// Ping checks that the backend is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.backend.Ping(ctx)
}

// Close releases the backend
func (s *Store) Close() error {
	return s.backend.Close()
}

// DeleteEach lists the collection and deletes each match on its own, so every entity
// is either fully deleted or left untouched
func DeleteEach[T any, P Entity[T]](ctx context.Context, c Collection[T], match func(*T) bool) (DeleteResult[T], error) {
	var result DeleteResult[T]

	entries, err := c.List(ctx)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if !match(entry) {
			continue
		}
		key := P(entry).Meta().ID
		deleted, err := c.Delete(ctx, key)
		if err != nil {
			result.Failures = append(result.Failures, DeleteFailure{Key: key, Error: err.Error()})
			continue
		}
		if deleted != nil {
			result.Deleted = append(result.Deleted, deleted)
		}
	}

	return result, nil
}

// prepareCreate assigns a key when missing and stamps the timestamps
func prepareCreate[T any, P Entity[T]](entity *T) string {
	meta := P(entity).Meta()
	if meta.ID == "" {
		meta.ID = models.NewKey()
	}
	meta.CreatedAt = time.Time{}
	meta.Stamp(time.Now().UTC())
	return meta.ID
}

// prepareUpdate binds entity to key and carries the creation time of prev
func prepareUpdate[T any, P Entity[T]](key string, entity, prev *T) {
	meta := P(entity).Meta()
	meta.ID = key
	meta.CreatedAt = P(prev).Meta().CreatedAt
	meta.Stamp(time.Now().UTC())
}

func wrap(op, collection string, err error) error {
	return fmt.Errorf("failed to %s %s entry: %w", op, collection, err)
}
