package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftworks/weft/internal/domain"
	"github.com/weftworks/weft/internal/xjson"
)

func newTestJournal(t *testing.T) *Journal {
	t.Helper()

	j, err := NewJournal(domain.JournalConfig{InMemory: true, TTL: time.Hour}, "", nil)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournalHistoryInSequenceOrder(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, domain.ExecutionStartedEvent{RunID: "run-1", WorkflowID: "wf-1"}))
	require.NoError(t, j.Append(ctx, domain.NodeStartedEvent{RunID: "run-1", NodeID: "n1"}))
	require.NoError(t, j.Append(ctx, domain.NodeCompletedEvent{RunID: "run-1", NodeID: "n1"}))
	require.NoError(t, j.Append(ctx, domain.ExecutionCompletedEvent{RunID: "run-1"}))

	records, err := j.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 4)

	names := make([]string, len(records))
	for i, r := range records {
		assert.Equal(t, uint64(i+1), r.Seq)
		assert.Equal(t, "run-1", r.RunID)
		names[i] = r.Name
	}
	assert.Equal(t, []string{
		domain.EventExecutionStarted,
		domain.EventNodeStarted,
		domain.EventNodeCompleted,
		domain.EventExecutionCompleted,
	}, names)
}

func TestJournalIsolatesRuns(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Append(ctx, domain.ExecutionStartedEvent{RunID: "run-1"}))
	require.NoError(t, j.Append(ctx, domain.ExecutionStartedEvent{RunID: "run-2"}))
	require.NoError(t, j.Append(ctx, domain.NodeStartedEvent{RunID: "run-2", NodeID: "n1"}))

	records, err := j.History(ctx, "run-2")
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = j.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestJournalPayloadRoundTrip(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	published := domain.NodeErrorEvent{
		RunID:    "run-1",
		NodeID:   "n1",
		NodeType: "http.request",
		Error:    "connection refused",
		Attempts: 3,
	}
	require.NoError(t, j.Append(ctx, published))

	records, err := j.History(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.EventNodeError, records[0].Name)

	var decoded domain.NodeErrorEvent
	require.NoError(t, xjson.Unmarshal(records[0].Payload, &decoded))
	assert.Equal(t, published.Error, decoded.Error)
	assert.Equal(t, published.Attempts, decoded.Attempts)
}

func TestJournalHistoryOfUnknownRun(t *testing.T) {
	j := newTestJournal(t)

	records, err := j.History(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestJournalRejectsBadEvents(t *testing.T) {
	j := newTestJournal(t)
	ctx := context.Background()

	err := j.Append(ctx, nil)
	assert.True(t, domain.IsValidation(err))

	err = j.Append(ctx, domain.ExecutionStartedEvent{})
	assert.True(t, domain.IsValidation(err))
}

func TestJournalFollowsManager(t *testing.T) {
	j := newTestJournal(t)
	m := newTestManager(64)
	defer m.Close()

	stop := j.Follow(m)
	defer stop()

	m.Publish(domain.ExecutionStartedEvent{RunID: "run-1"})
	m.Publish(domain.ExecutionCompletedEvent{RunID: "run-1"})

	deadline := time.Now().Add(time.Second)
	for {
		records, err := j.History(context.Background(), "run-1")
		require.NoError(t, err)
		if len(records) == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("journal never caught up, have %d records", len(records))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
