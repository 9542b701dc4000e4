package queue

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ingest-pipeline/pkg/record"
)

func TestBackoffDelay(t *testing.T) {
	base := 500 * time.Millisecond

	assert.Equal(t, 500*time.Millisecond, BackoffDelay(base, 1))
	assert.Equal(t, 1000*time.Millisecond, BackoffDelay(base, 2))
	assert.Equal(t, 2000*time.Millisecond, BackoffDelay(base, 3))
	assert.Equal(t, 4000*time.Millisecond, BackoffDelay(base, 4))
}

func TestBackoffDelayCapped(t *testing.T) {
	base := 500 * time.Millisecond

	assert.Equal(t, maxBackoff, BackoffDelay(base, 20))
	// Shift overflow must not produce a negative delay either.
	assert.Equal(t, maxBackoff, BackoffDelay(base, 80))
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	base := 500 * time.Millisecond

	assert.Equal(t, 500*time.Millisecond, BackoffDelay(base, 0))
	assert.Equal(t, 500*time.Millisecond, BackoffDelay(base, -3))
}

func TestEnvelopeRoundTrip(t *testing.T) {
	value := 12.5
	rec := record.New(record.IngestItem{Source: "sensor-1", Value: &value})
	env := Envelope{Record: rec, Attempt: 1, MaxAttempts: 3, EnqueuedAt: time.Now().UnixMilli()}

	body, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, rec.ID, decoded.Record.ID, "job and record share identity")
	assert.Equal(t, record.StatusPending, decoded.Record.Status)
	assert.Equal(t, 3, decoded.MaxAttempts)
}

func TestRetryQueueNaming(t *testing.T) {
	assert.Equal(t, "data.retry.queue.500ms", retryQueueName(500*time.Millisecond))
	assert.Equal(t, "retry.1000ms", retryRoutingKey(time.Second))
}
