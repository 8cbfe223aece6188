package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCacheMiss is returned when a key is not found in cache
var ErrCacheMiss = errors.New("cache miss")

// Cache defines the cache interface
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, pattern string) error
}

// WorklistKey generates the cache key of a worklist's query rows
func WorklistKey(worklistID string) string {
	return "worklist:" + worklistID + ":rows"
}

// WorklistCache keeps worklist query results for a short time. Cache failures are
// logged and treated as misses; they never fail a query.
type WorklistCache struct {
	backend Cache
	ttl     time.Duration
}

// NewWorklistCache wraps backend. A nil backend or a non-positive ttl disables caching.
func NewWorklistCache(backend Cache, ttl time.Duration) *WorklistCache {
	return &WorklistCache{backend: backend, ttl: ttl}
}

func (w *WorklistCache) enabled() bool {
	return w != nil && w.backend != nil && w.ttl > 0
}

// Get returns the cached rows of a worklist
func (w *WorklistCache) Get(ctx context.Context, worklistID string) (string, bool) {
	if !w.enabled() {
		return "", false
	}
	val, err := w.backend.Get(ctx, WorklistKey(worklistID))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("worklist_id", worklistID).Msg("Worklist cache read failed")
		}
		return "", false
	}
	return string(val), true
}

// Put stores the rows of a worklist
func (w *WorklistCache) Put(ctx context.Context, worklistID, rows string) {
	if !w.enabled() {
		return
	}
	if err := w.backend.Set(ctx, WorklistKey(worklistID), []byte(rows), w.ttl); err != nil {
		log.Warn().Err(err).Str("worklist_id", worklistID).Msg("Worklist cache write failed")
	}
}

// Invalidate drops the rows of a worklist
func (w *WorklistCache) Invalidate(ctx context.Context, worklistID string) {
	if !w.enabled() {
		return
	}
	if err := w.backend.Delete(ctx, WorklistKey(worklistID)); err != nil {
		log.Warn().Err(err).Str("worklist_id", worklistID).Msg("Worklist cache invalidation failed")
	}
}
