package services

import (
	"context"
	"time"

	"github.com/otcheredev/ris-modality-workflow/internal/cache"
	"github.com/otcheredev/ris-modality-workflow/internal/gateway"
	"github.com/otcheredev/ris-modality-workflow/internal/metrics"
	"github.com/otcheredev/ris-modality-workflow/internal/models"
	"github.com/otcheredev/ris-modality-workflow/internal/repository"
	"github.com/otcheredev/ris-modality-workflow/internal/session"
	"github.com/rs/zerolog/log"
)

// InstanceScanner finds the SOP instances produced under a path
type InstanceScanner interface {
	Collect(path string) ([]models.SopInstanceSeries, error)
}

// LifecycleManager drives procedure steps and their artifacts through their states. All
// store access goes through the session coordinator; protocol exchanges go through the
// gateway, and nothing is persisted unless the exchange succeeded.
type LifecycleManager struct {
	coord    *session.Coordinator
	gateway  gateway.Gateway
	hl7      gateway.HL7Sender
	verifier gateway.Verifier
	scanner  InstanceScanner
	worklist *cache.WorklistCache
	metrics  *metrics.Metrics
}

// Option configures a LifecycleManager
type Option func(*LifecycleManager)

// WithHL7Sender sets the HL7 transport
func WithHL7Sender(s gateway.HL7Sender) Option {
	return func(m *LifecycleManager) { m.hl7 = s }
}

// WithVerifier sets the endpoint verifier
func WithVerifier(v gateway.Verifier) Option {
	return func(m *LifecycleManager) { m.verifier = v }
}

// WithScanner enables the instance precheck before MPPS completion
func WithScanner(s InstanceScanner) Option {
	return func(m *LifecycleManager) { m.scanner = s }
}

// WithWorklistCache caches worklist query rows
func WithWorklistCache(c *cache.WorklistCache) Option {
	return func(m *LifecycleManager) { m.worklist = c }
}

// WithMetrics records command outcomes
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *LifecycleManager) { m.metrics = mt }
}

// NewLifecycleManager creates a manager
func NewLifecycleManager(coord *session.Coordinator, gw gateway.Gateway, opts ...Option) *LifecycleManager {
	m := &LifecycleManager{
		coord:   coord,
		gateway: gw,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// command identifies an audited lifecycle command
type command struct {
	operation    string
	resourceType string
	resourceID   string
}

// run executes fn as one serialized sequence and records its outcome. The audit record
// is written inside the same sequence; a failed audit write is only logged.
func (m *LifecycleManager) run(ctx context.Context, cmd command, fn func(ctx context.Context, store *repository.Store) error) error {
	start := time.Now()

	err := m.coord.Do(ctx, func(ctx context.Context, store *repository.Store) error {
		fnErr := fn(ctx, store)
		m.audit(ctx, store, cmd, fnErr, time.Since(start))
		return fnErr
	})

	return m.finish(cmd, start, err)
}

// record audits a command whose protocol exchange ran outside the session lock
func (m *LifecycleManager) record(ctx context.Context, cmd command, start time.Time, cmdErr error) error {
	auditErr := m.coord.Do(ctx, func(ctx context.Context, store *repository.Store) error {
		m.audit(ctx, store, cmd, cmdErr, time.Since(start))
		return nil
	})
	if auditErr != nil {
		log.Error().Err(auditErr).Str("operation", cmd.operation).Msg("Failed to write audit record")
	}
	return m.finish(cmd, start, cmdErr)
}

func (m *LifecycleManager) finish(cmd command, start time.Time, err error) error {
	outcome := "success"
	if err != nil {
		err = classify(err)
		outcome = string(KindOf(err))
	}
	m.metrics.ObserveCommand(cmd.operation, outcome, time.Since(start))

	event := log.Info()
	if err != nil {
		event = log.Warn().Err(err).Str("error_kind", outcome)
	}
	event.
		Str("operation", cmd.operation).
		Str("resource_type", cmd.resourceType).
		Str("resource_id", cmd.resourceID).
		Dur("duration", time.Since(start)).
		Msg("Lifecycle command finished")

	return err
}

// exclusive runs fn as a serialized sequence without auditing it
func (m *LifecycleManager) exclusive(ctx context.Context, fn func(ctx context.Context, store *repository.Store) error) error {
	if err := m.coord.Do(ctx, fn); err != nil {
		return classify(err)
	}
	return nil
}

func (m *LifecycleManager) audit(ctx context.Context, store *repository.Store, cmd command, cmdErr error, d time.Duration) {
	entry := &models.AuditLog{
		Operation:    cmd.operation,
		ResourceType: cmd.resourceType,
		ResourceID:   cmd.resourceID,
		Outcome:      models.AuditSuccess,
		Duration:     d.Milliseconds(),
		OccurredAt:   time.Now().UTC(),
	}
	if cmdErr != nil {
		classified := classify(cmdErr)
		entry.Outcome = models.AuditFailure
		entry.ErrorKind = string(classified.Kind)
		entry.ErrorMessage = classified.Error()
	}

	if _, err := store.Audit.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("operation", cmd.operation).Msg("Failed to write audit record")
	}
}

// ListAudit returns the newest audit records first, at most limit of them (0 means all)
func (m *LifecycleManager) ListAudit(ctx context.Context, limit int) ([]*models.AuditLog, error) {
	var result []*models.AuditLog
	err := m.exclusive(ctx, func(ctx context.Context, store *repository.Store) error {
		entries, err := store.Audit.List(ctx)
		if err != nil {
			return persistence("failed to list audit records", err)
		}
		for i := len(entries) - 1; i >= 0; i-- {
			result = append(result, entries[i])
			if limit > 0 && len(result) == limit {
				break
			}
		}
		return nil
	})
	if result == nil && err == nil {
		result = []*models.AuditLog{}
	}
	return result, err
}

// Ping reports whether the record store is reachable
func (m *LifecycleManager) Ping(ctx context.Context) error {
	if err := m.coord.Ping(ctx); err != nil {
		return &Error{Kind: KindStoreUnavailable, Message: "record store unavailable", Err: err}
	}
	return nil
}

// exchange classifies a gateway outcome: transport errors become GatewayError and
// refusals become BusinessFailure with the engine's message
func exchange(operation string, ack gateway.Ack, err error) error {
	if err != nil {
		return gatewayFailure(operation, err)
	}
	if !ack.Success {
		return business(ack.Message)
	}
	return nil
}
