// Package postgres provides PostgreSQL infrastructure components.
// Activity events are written to an outbox table and relayed to the event stream.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/automedic/clinic/internal/activity"
	"github.com/automedic/clinic/internal/observability/metrics"
)

const schema = `
CREATE TABLE IF NOT EXISTS activity_outbox (
	id            BIGSERIAL PRIMARY KEY,
	event_id      UUID        NOT NULL UNIQUE,
	event_type    TEXT        NOT NULL,
	doctor_id     TEXT        NOT NULL,
	payload       JSONB       NOT NULL,
	topic         TEXT        NOT NULL,
	partition_key TEXT        NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	processed_at  TIMESTAMPTZ,
	retry_count   INT         NOT NULL DEFAULT 0,
	last_error    TEXT
);
CREATE INDEX IF NOT EXISTS activity_outbox_pending_idx
	ON activity_outbox (created_at) WHERE processed_at IS NULL;
`

// ErrNoPublisher is returned by Start on a record-only outbox.
var ErrNoPublisher = errors.New("outbox has no publisher")

// OutboxEntry is one stored activity event.
type OutboxEntry struct {
	ID           int64
	EventID      string
	EventType    string
	DoctorID     string
	Payload      json.RawMessage
	Topic        string
	PartitionKey string
	CreatedAt    time.Time
	RetryCount   int
	LastError    *string
}

// OutboxConfig holds configuration for the outbox
type OutboxConfig struct {
	// Topic receives relayed events
	Topic string
	// DeadLetterTopic receives events that exhausted their retries
	DeadLetterTopic string
	// BatchSize is the number of entries relayed per poll
	BatchSize int
	// PollInterval is how often to poll for new entries
	PollInterval time.Duration
	// MaxRetries is the publish attempts before an entry is dead-lettered
	MaxRetries int
}

// DefaultOutboxConfig returns defaults for the activity stream.
func DefaultOutboxConfig() OutboxConfig {
	return OutboxConfig{
		Topic:           "clinic.activity",
		DeadLetterTopic: "clinic.activity.dlq",
		BatchSize:       100,
		PollInterval:    time.Second,
		MaxRetries:      5,
	}
}

// OutboxPublisher delivers relayed entries.
type OutboxPublisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Outbox records activity events and, when given a publisher, relays them.
type Outbox struct {
	pool      *pgxpool.Pool
	config    OutboxConfig
	publisher OutboxPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
	tracer    trace.Tracer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOutbox creates an outbox. publisher may be nil for a record-only outbox.
func NewOutbox(pool *pgxpool.Pool, publisher OutboxPublisher, cfg OutboxConfig, m *metrics.Metrics, logger *zap.Logger) *Outbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Outbox{
		pool:      pool,
		config:    cfg,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		tracer:    otel.Tracer("outbox"),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// EnsureSchema creates the outbox table if needed.
func (o *Outbox) EnsureSchema(ctx context.Context) error {
	if _, err := o.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create activity_outbox: %w", err)
	}
	return nil
}

// newEntry converts an event to its stored form.
func newEntry(e *activity.Event, topic string) (*OutboxEntry, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return &OutboxEntry{
		EventID:      e.ID,
		EventType:    string(e.Type),
		DoctorID:     e.DoctorID,
		Payload:      payload,
		Topic:        topic,
		PartitionKey: e.Key(),
		CreatedAt:    e.OccurredAt,
	}, nil
}

// Record stores e for relay. Recording the same event twice is a no-op.
func (o *Outbox) Record(ctx context.Context, e *activity.Event) error {
	ctx, span := o.tracer.Start(ctx, "outbox.record",
		trace.WithAttributes(attribute.String("event_type", string(e.Type))))
	defer span.End()

	entry, err := newEntry(e, o.config.Topic)
	if err != nil {
		return err
	}

	_, err = o.pool.Exec(ctx, `
		INSERT INTO activity_outbox (event_id, event_type, doctor_id, payload, topic, partition_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (event_id) DO NOTHING
	`, entry.EventID, entry.EventType, entry.DoctorID, entry.Payload, entry.Topic, entry.PartitionKey, entry.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("write outbox entry: %w", err)
	}
	return nil
}

// Start begins relaying entries in the background.
func (o *Outbox) Start() error {
	if o.publisher == nil {
		return ErrNoPublisher
	}
	go o.processLoop()
	o.logger.Info("outbox relay started",
		zap.String("topic", o.config.Topic),
		zap.Int("batch_size", o.config.BatchSize),
		zap.Duration("poll_interval", o.config.PollInterval))
	return nil
}

// Stop waits for the current batch and stops relaying.
func (o *Outbox) Stop() {
	o.cancel()
	<-o.done
	o.logger.Info("outbox relay stopped")
}

func (o *Outbox) processLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.processBatch(o.ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("outbox batch failed", zap.Error(err))
			}
		}
	}
}

// processBatch relays one batch inside a transaction. Rows are claimed with
// SKIP LOCKED so several relays can run against the same table.
func (o *Outbox) processBatch(ctx context.Context) (int, error) {
	ctx, span := o.tracer.Start(ctx, "outbox.process_batch")
	defer span.End()

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	entries, err := fetchUnprocessed(ctx, tx, o.config.MaxRetries, o.config.BatchSize)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	span.SetAttributes(attribute.Int("batch_size", len(entries)))

	published := 0
	for _, entry := range entries {
		if err := o.processEntry(ctx, tx, entry); err != nil {
			o.logger.Warn("outbox entry not relayed",
				zap.Int64("id", entry.ID),
				zap.String("event_type", entry.EventType),
				zap.Error(err))
			continue
		}
		published++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return published, nil
}

func fetchUnprocessed(ctx context.Context, tx pgx.Tx, maxRetries, limit int) ([]*OutboxEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id, event_type, doctor_id, payload, topic, partition_key,
		       created_at, retry_count, last_error
		FROM activity_outbox
		WHERE processed_at IS NULL
		  AND retry_count < $1
		ORDER BY created_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, maxRetries, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]*OutboxEntry, error) {
	defer rows.Close()

	var entries []*OutboxEntry
	for rows.Next() {
		e := &OutboxEntry{}
		if err := rows.Scan(
			&e.ID, &e.EventID, &e.EventType, &e.DoctorID, &e.Payload, &e.Topic,
			&e.PartitionKey, &e.CreatedAt, &e.RetryCount, &e.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (o *Outbox) processEntry(ctx context.Context, tx pgx.Tx, entry *OutboxEntry) error {
	ctx, span := o.tracer.Start(ctx, "outbox.process_entry",
		trace.WithAttributes(
			attribute.Int64("entry_id", entry.ID),
			attribute.String("event_type", entry.EventType),
		))
	defer span.End()

	if err := o.publisher.Publish(ctx, entry.Topic, entry.PartitionKey, entry.Payload); err != nil {
		o.metrics.OutboxResult(false)
		span.RecordError(err)
		if _, uerr := tx.Exec(ctx, `
			UPDATE activity_outbox
			SET retry_count = retry_count + 1, last_error = $1, updated_at = NOW()
			WHERE id = $2
		`, err.Error(), entry.ID); uerr != nil {
			return fmt.Errorf("publish: %v; record retry: %w", err, uerr)
		}
		return fmt.Errorf("publish: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE activity_outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1
	`, entry.ID); err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	o.metrics.OutboxResult(true)
	return nil
}

// deadLetter is the envelope published for an entry that exhausted its retries.
type deadLetter struct {
	OriginalTopic string          `json:"original_topic"`
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MoveToDeadLetter publishes exhausted entries to the dead letter topic and
// marks them processed.
func (o *Outbox) MoveToDeadLetter(ctx context.Context) (int64, error) {
	if o.publisher == nil {
		return 0, ErrNoPublisher
	}

	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, event_id, event_type, doctor_id, payload, topic, partition_key,
		       created_at, retry_count, last_error
		FROM activity_outbox
		WHERE processed_at IS NULL
		  AND retry_count >= $1
		FOR UPDATE SKIP LOCKED
	`, o.config.MaxRetries)
	if err != nil {
		return 0, fmt.Errorf("query exhausted: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return 0, err
	}

	var moved int64
	for _, entry := range entries {
		payload, err := json.Marshal(deadLetter{
			OriginalTopic: entry.Topic,
			EventID:       entry.EventID,
			EventType:     entry.EventType,
			Payload:       entry.Payload,
			RetryCount:    entry.RetryCount,
			LastError:     entry.LastError,
			CreatedAt:     entry.CreatedAt,
		})
		if err != nil {
			continue
		}
		if err := o.publisher.Publish(ctx, o.config.DeadLetterTopic, entry.PartitionKey, payload); err != nil {
			o.logger.Error("failed to publish dead letter", zap.Int64("id", entry.ID), zap.Error(err))
			continue
		}
		if _, err := tx.Exec(ctx, "UPDATE activity_outbox SET processed_at = NOW(), updated_at = NOW() WHERE id = $1", entry.ID); err != nil {
			return moved, fmt.Errorf("mark dead-lettered: %w", err)
		}
		moved++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return moved, nil
}

// CleanupProcessed removes processed entries older than olderThan.
func (o *Outbox) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := o.pool.Exec(ctx, `
		DELETE FROM activity_outbox
		WHERE processed_at IS NOT NULL
		  AND processed_at < $1
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	return result.RowsAffected(), nil
}

// OutboxStats summarizes the outbox.
type OutboxStats struct {
	Pending       int64
	Processed     int64
	Failed        int64
	OldestPending *time.Time
}

// GetStats returns current outbox statistics and updates the pending gauge.
func (o *Outbox) GetStats(ctx context.Context) (*OutboxStats, error) {
	stats := &OutboxStats{}

	err := o.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count < $1),
			COUNT(*) FILTER (WHERE processed_at IS NOT NULL AND processed_at > NOW() - INTERVAL '24 hours'),
			COUNT(*) FILTER (WHERE processed_at IS NULL AND retry_count >= $1),
			MIN(created_at) FILTER (WHERE processed_at IS NULL)
		FROM activity_outbox
	`, o.config.MaxRetries).Scan(&stats.Pending, &stats.Processed, &stats.Failed, &stats.OldestPending)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}

	o.metrics.SetOutboxPending(stats.Pending)
	return stats, nil
}
