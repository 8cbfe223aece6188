package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/otcheredev/ris-modality-workflow/internal/models"
)

// MemoryCollection keeps entries in a map. Entries are copied through JSON on the way in
// and out so callers never share state with the collection.
type MemoryCollection[T any, P Entity[T]] struct {
	mu    sync.RWMutex
	name  string
	data  map[string][]byte
	order map[string]int64
	seq   int64
}

// NewMemoryCollection creates an empty in-memory collection
func NewMemoryCollection[T any, P Entity[T]](name string) *MemoryCollection[T, P] {
	return &MemoryCollection[T, P]{
		name:  name,
		data:  make(map[string][]byte),
		order: make(map[string]int64),
	}
}

// Create inserts a new entry
func (m *MemoryCollection[T, P]) Create(ctx context.Context, entity *T) (*T, error) {
	key := prepareCreate[T, P](entity)

	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, wrap("create", m.name, err)
	}

	m.mu.Lock()
	m.seq++
	m.data[key] = payload
	m.order[key] = m.seq
	m.mu.Unlock()

	return m.Get(ctx, key)
}

// Get retrieves an entry by key
func (m *MemoryCollection[T, P]) Get(ctx context.Context, key string) (*T, error) {
	m.mu.RLock()
	payload, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	return m.decode(payload)
}

// List retrieves all entries in insertion order
func (m *MemoryCollection[T, P]) List(ctx context.Context) ([]*T, error) {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return m.order[keys[i]] < m.order[keys[j]] })

	payloads := make([][]byte, 0, len(keys))
	for _, key := range keys {
		payloads = append(payloads, m.data[key])
	}
	m.mu.RUnlock()

	result := make([]*T, 0, len(payloads))
	for _, payload := range payloads {
		entity, err := m.decode(payload)
		if err != nil {
			return nil, err
		}
		result = append(result, entity)
	}
	return result, nil
}

// Update replaces the content of an existing entry
func (m *MemoryCollection[T, P]) Update(ctx context.Context, key string, entity *T) (*T, error) {
	prev, err := m.Get(ctx, key)
	if err != nil || prev == nil {
		return nil, err
	}

	prepareUpdate[T, P](key, entity, prev)
	payload, err := json.Marshal(entity)
	if err != nil {
		return nil, wrap("update", m.name, err)
	}

	m.mu.Lock()
	if _, exists := m.data[key]; !exists {
		m.mu.Unlock()
		return nil, nil
	}
	m.data[key] = payload
	m.mu.Unlock()

	return m.Get(ctx, key)
}

// Delete removes an entry and returns what was removed
func (m *MemoryCollection[T, P]) Delete(ctx context.Context, key string) (*T, error) {
	m.mu.Lock()
	payload, exists := m.data[key]
	delete(m.data, key)
	delete(m.order, key)
	m.mu.Unlock()

	if !exists {
		return nil, nil
	}
	return m.decode(payload)
}

// DeleteWhere removes every entry matching the predicate
func (m *MemoryCollection[T, P]) DeleteWhere(ctx context.Context, match func(*T) bool) (DeleteResult[T], error) {
	return DeleteEach[T, P](ctx, m, match)
}

func (m *MemoryCollection[T, P]) decode(payload []byte) (*T, error) {
	var entity T
	if err := json.Unmarshal(payload, &entity); err != nil {
		return nil, wrap("decode", m.name, err)
	}
	return &entity, nil
}

type memoryBackend struct{}

func (memoryBackend) Name() string { return "memory" }

func (memoryBackend) Ping(ctx context.Context) error { return nil }

func (memoryBackend) Close() error { return nil }

// NewMemoryStore builds a Store that lives only for the lifetime of the process
func NewMemoryStore() *Store {
	return &Store{
		Worklists:    NewMemoryCollection[models.WorklistEntry]("worklist"),
		Mpps:         NewMemoryCollection[models.MppsEntry]("mpps"),
		Destinations: NewMemoryCollection[models.MimEntry]("mim"),
		Patients:     NewMemoryCollection[models.PatientStudyEntry]("patient"),
		HL7Settings:  NewMemoryCollection[models.Hl7SettingEntry]("hl7_setting"),
		HL7Messages:  NewMemoryCollection[models.Hl7MessageSetting]("hl7_message_setting"),
		Audit:        NewMemoryCollection[models.AuditLog]("audit"),
		backend:      memoryBackend{},
	}
}

// WithMpps returns a copy of the store using a different MPPS collection
func (s *Store) WithMpps(mpps Collection[models.MppsEntry]) *Store {
	clone := *s
	clone.Mpps = mpps
	return &clone
}
