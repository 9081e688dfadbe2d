package intake

import (
	"context"
	"fmt"
	"testing"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/models"
	"github.com/ternarybob/vigil/internal/queue"
)

func newIntakeFixture(t *testing.T, maxLines int) (*Service, *queue.Manager) {
	t.Helper()

	opts := badgerdb.DefaultOptions(t.TempDir())
	opts.Logger = nil
	db, err := badgerdb.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		db.Close()
	})

	logsQueue, err := queue.NewManager(db, queue.QueueLogs, time.Minute, 3)
	require.NoError(t, err)

	config := common.NewDefaultConfig()
	config.Ingest.MaxLines = maxLines

	return NewService(config, logsQueue, common.GetLogger()), logsQueue
}

func validBatch(entries int) *models.LogBatch {
	batch := &models.LogBatch{
		RunID:  "run_a",
		Source: "api",
	}
	for i := 0; i < entries; i++ {
		batch.Entries = append(batch.Entries, models.LogEntry{
			Timestamp: fmt.Sprintf("2025-11-08T10:00:%02dZ", i%60),
			Level:     "info",
			Message:   fmt.Sprintf("line %d", i),
		})
	}
	return batch
}

func TestAccept_EnqueuesBatch(t *testing.T) {
	svc, logsQueue := newIntakeFixture(t, 500)
	ctx := context.Background()

	jobID, err := svc.Accept(ctx, validBatch(3))
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	delivery, ack, _, err := logsQueue.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, delivery.Message.JobID)
	assert.Equal(t, models.JobTypeLogBatch, delivery.Message.Type)
	require.NoError(t, ack())
}

func TestAccept_RejectsMissingFields(t *testing.T) {
	svc, logsQueue := newIntakeFixture(t, 500)
	ctx := context.Background()

	cases := []*models.LogBatch{
		{Source: "api", Entries: validBatch(1).Entries}, // no run id
		{RunID: "run_a", Entries: validBatch(1).Entries}, // no source
		{RunID: "run_a", Source: "api"},                  // no entries
	}

	for _, batch := range cases {
		_, err := svc.Accept(ctx, batch)
		require.Error(t, err)
		assert.True(t, IsValidationError(err), "expected a validation error, got %v", err)
	}

	// Rejection leaves nothing behind
	depth, err := logsQueue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestAccept_RejectsOversizedBatch(t *testing.T) {
	svc, logsQueue := newIntakeFixture(t, 500)
	ctx := context.Background()

	_, err := svc.Accept(ctx, validBatch(1000))
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "limit is 500")

	depth, err := logsQueue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
}

func TestAccept_AtTheLimitPasses(t *testing.T) {
	svc, _ := newIntakeFixture(t, 500)

	_, err := svc.Accept(context.Background(), validBatch(500))
	assert.NoError(t, err)
}
