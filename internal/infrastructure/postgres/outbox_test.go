package postgres

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automedic/clinic/internal/activity"
)

func TestNewEntry(t *testing.T) {
	e := activity.NewEvent(activity.TypePrescriptionShared, "doc-1")
	e.PrescriptionID = "rx-1"
	e.Method = "email"

	entry, err := newEntry(e, "clinic.activity")
	require.NoError(t, err)

	assert.Equal(t, e.ID, entry.EventID)
	assert.Equal(t, "prescription.shared", entry.EventType)
	assert.Equal(t, "rx-1", entry.PartitionKey)
	assert.Equal(t, "clinic.activity", entry.Topic)

	var decoded activity.Event
	require.NoError(t, json.Unmarshal(entry.Payload, &decoded))
	assert.Equal(t, "email", decoded.Method)
}

type capturePublisher struct {
	topics []string
}

func (c *capturePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	c.topics = append(c.topics, topic)
	return nil
}

// TestOutboxRoundTrip needs a disposable database in TEST_DATABASE_URL.
func TestOutboxRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()

	pub := &capturePublisher{}
	o := NewOutbox(pool, pub, DefaultOutboxConfig(), nil, nil)
	require.NoError(t, o.EnsureSchema(ctx))
	_, err = pool.Exec(ctx, "TRUNCATE activity_outbox")
	require.NoError(t, err)

	e := activity.NewEvent(activity.TypePrescriptionSubmitted, "doc-1")
	require.NoError(t, o.Record(ctx, e))
	require.NoError(t, o.Record(ctx, e))

	n, err := o.processBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"clinic.activity"}, pub.topics)

	stats, err := o.GetStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.EqualValues(t, 1, stats.Processed)
}
