package session

import (
	"context"
	"fmt"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/repository"
	"github.com/rs/zerolog/log"
)

// Coordinator owns the record store handle and lets at most one read-modify-write
// sequence run against it at a time
type Coordinator struct {
	store       *repository.Store
	locker      Locker
	pingTimeout time.Duration
	onWait      func(time.Duration)
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithWaitObserver reports how long each sequence waited for the lock
func WithWaitObserver(fn func(time.Duration)) Option {
	return func(c *Coordinator) { c.onWait = fn }
}

// WithPingTimeout bounds the store liveness check done after acquiring the lock
func WithPingTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.pingTimeout = d }
}

// NewCoordinator creates a coordinator. A nil locker means a process-local lock.
func NewCoordinator(store *repository.Store, locker Locker, opts ...Option) *Coordinator {
	if locker == nil {
		locker = NewLocalLocker()
	}
	c := &Coordinator{
		store:       store,
		locker:      locker,
		pingTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do runs fn with exclusive access to the store. Waiting for the lock honors ctx; once
// the lock is held fn runs to completion even if ctx is cancelled, and the lock is
// released on every exit path.
func (c *Coordinator) Do(ctx context.Context, fn func(ctx context.Context, store *repository.Store) error) (err error) {
	started := time.Now()
	release, err := c.locker.Lock(ctx)
	if c.onWait != nil {
		c.onWait(time.Since(started))
	}
	if err != nil {
		return fmt.Errorf("failed to acquire session: %w", err)
	}
	defer release()

	seqCtx := context.WithoutCancel(ctx)

	pingCtx, cancel := context.WithTimeout(seqCtx, c.pingTimeout)
	pingErr := c.store.Ping(pingCtx)
	cancel()
	if pingErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, pingErr)
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Session sequence panicked")
			err = fmt.Errorf("session sequence panicked: %v", r)
		}
	}()

	return fn(seqCtx, c.store)
}

// Ping checks the store without taking the lock
func (c *Coordinator) Ping(ctx context.Context) error {
	return c.store.Ping(ctx)
}

// Driver returns the store backend name
func (c *Coordinator) Driver() string {
	return c.store.Driver()
}
