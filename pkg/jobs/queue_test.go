package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueProcessesJobs(t *testing.T) {
	var handled int32
	done := make(chan struct{}, 3)
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&handled, 1)
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job", Type: "event"}))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&handled))
}

func TestQueueDropsFailuresWithoutRetry(t *testing.T) {
	var attempts int32
	q := NewQueue("test", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("sink down")
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())

	require.NoError(t, q.Enqueue(Job{ID: "job-1"}))
	q.Stop()
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestQueueStopDrainsBufferedJobs(t *testing.T) {
	var handled int32
	release := make(chan struct{})
	q := NewQueue("drain", func(ctx context.Context, job Job) error {
		<-release
		atomic.AddInt32(&handled, 1)
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(Job{ID: "job"}))
	}
	close(release)
	q.Stop()

	assert.Equal(t, int32(5), atomic.LoadInt32(&handled))
	assert.ErrorIs(t, q.Enqueue(Job{ID: "late"}), ErrQueueStopped)
}

func TestQueueEnqueueNeverBlocks(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("full", func(ctx context.Context, job Job) error {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 1, DrainTimeout: 10 * time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()
	defer close(block)

	var full error
	for i := 0; i < 4 && full == nil; i++ {
		full = q.Enqueue(Job{ID: "job"})
	}
	assert.ErrorIs(t, full, ErrQueueFull)
}

func TestQueueEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	assert.ErrorIs(t, q.Enqueue(Job{ID: "job-1"}), ErrQueueStopped)
}
