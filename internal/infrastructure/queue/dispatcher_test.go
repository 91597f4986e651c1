package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/quizbuster/quizbuster-api/internal/core/domain"
	"github.com/quizbuster/quizbuster-api/internal/infrastructure/db/memory"
	"github.com/quizbuster/quizbuster-api/internal/pkg/metrics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var ts = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// blockingRecorder holds every Record call until release is closed.
type blockingRecorder struct {
	release chan struct{}
}

func (r *blockingRecorder) Record(ctx context.Context, _ domain.ScoreEvent) error {
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type failingRecorder struct {
	mu    sync.Mutex
	calls int
}

func (r *failingRecorder) Record(context.Context, domain.ScoreEvent) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return errors.New("insert failed")
}

func TestDispatcher_RecordsInOrderPerUser(t *testing.T) {
	rec := memory.NewScoreEventRecorder()
	d := NewDispatcher(4, rec, zerolog.Nop())
	d.Start(context.Background())

	for i := int64(1); i <= 50; i++ {
		d.Enqueue(domain.ScoreEvent{Username: "alice", Delta: 1, Total: i, Timestamp: ts})
		d.Enqueue(domain.ScoreEvent{Username: "bob", Delta: 2, Total: 2 * i, Timestamp: ts})
	}
	require.NoError(t, d.Shutdown(context.Background()))

	events := rec.Events()
	require.Len(t, events, 100)

	var aliceTotals, bobTotals []int64
	for _, e := range events {
		switch e.Username {
		case "alice":
			aliceTotals = append(aliceTotals, e.Total)
		case "bob":
			bobTotals = append(bobTotals, e.Total)
		}
	}
	for i := 1; i < len(aliceTotals); i++ {
		assert.Less(t, aliceTotals[i-1], aliceTotals[i], "alice's events out of order")
	}
	for i := 1; i < len(bobTotals); i++ {
		assert.Less(t, bobTotals[i-1], bobTotals[i], "bob's events out of order")
	}
}

func TestDispatcher_ShardIndexIsStable(t *testing.T) {
	d := NewDispatcher(8, memory.NewScoreEventRecorder(), zerolog.Nop())
	first := d.shardIndex("alice")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, d.shardIndex("alice"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestDispatcher_DefaultWorkers(t *testing.T) {
	d := NewDispatcher(0, memory.NewScoreEventRecorder(), zerolog.Nop())
	assert.Len(t, d.workers, defaultWorkers)
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	d := NewDispatcher(1, rec, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)

	dropped := testutil.ToFloat64(metrics.AuditEventsTotal.WithLabelValues("dropped"))

	done := make(chan struct{})
	go func() {
		// One event is held by the worker, channelBuffer fill the queue, the rest drop.
		for i := 0; i < channelBuffer+10; i++ {
			d.Enqueue(domain.ScoreEvent{Username: "alice", Total: int64(i), Timestamp: ts})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	assert.GreaterOrEqual(t, testutil.ToFloat64(metrics.AuditEventsTotal.WithLabelValues("dropped"))-dropped, float64(9))

	close(rec.release)
	cancel()
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestDispatcher_RecordFailureIsCounted(t *testing.T) {
	rec := &failingRecorder{}
	d := NewDispatcher(2, rec, zerolog.Nop())
	d.Start(context.Background())

	failed := testutil.ToFloat64(metrics.AuditEventsTotal.WithLabelValues("failed"))
	d.Enqueue(domain.ScoreEvent{Username: "alice", Timestamp: ts})
	require.NoError(t, d.Shutdown(context.Background()))

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.AuditEventsTotal.WithLabelValues("failed"))-failed)
}

func TestDispatcher_EnqueueAfterShutdownDrops(t *testing.T) {
	rec := memory.NewScoreEventRecorder()
	d := NewDispatcher(2, rec, zerolog.Nop())
	d.Start(context.Background())
	require.NoError(t, d.Shutdown(context.Background()))
	require.NoError(t, d.Shutdown(context.Background()), "shutdown is idempotent")

	d.Enqueue(domain.ScoreEvent{Username: "alice", Timestamp: ts})
	assert.Empty(t, rec.Events())
}

func TestDispatcher_ShutdownHonoursDeadline(t *testing.T) {
	rec := &blockingRecorder{release: make(chan struct{})}
	d := NewDispatcher(1, rec, zerolog.Nop())
	d.Start(context.Background())
	d.Enqueue(domain.ScoreEvent{Username: "alice", Timestamp: ts})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Shutdown(ctx), context.DeadlineExceeded)

	close(rec.release)
	require.NoError(t, d.Shutdown(context.Background()))
}
