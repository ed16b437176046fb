package async

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beerberidie/cutflow/internal/pipeline"
)

type fakeReExtractor struct {
	mu    sync.Mutex
	seen  []uuid.UUID
	delay time.Duration
}

func (f *fakeReExtractor) ReExtract(ctx context.Context, id uuid.UUID) (pipeline.UploadResult, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return pipeline.UploadResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	f.seen = append(f.seen, id)
	f.mu.Unlock()
	return pipeline.UploadResult{Success: true, IngestID: id}, nil
}

func (f *fakeReExtractor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func TestQueueProcessesAllJobs(t *testing.T) {
	fake := &fakeReExtractor{}
	q := NewExtractQueue(fake, nil, WithWorkers(3), WithQueueSize(16))

	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{IngestID: uuid.New()}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 10, fake.count())
}

func TestQueueShutdownDrainsInFlight(t *testing.T) {
	fake := &fakeReExtractor{delay: 20 * time.Millisecond}
	q := NewExtractQueue(fake, nil, WithWorkers(1), WithQueueSize(8))

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Enqueue(context.Background(), Job{IngestID: uuid.New()}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	q.Shutdown(ctx)

	assert.Equal(t, 4, fake.count())
}

func TestQueueEnqueueAfterShutdownIsDropped(t *testing.T) {
	fake := &fakeReExtractor{}
	q := NewExtractQueue(fake, nil, WithWorkers(1))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)

	require.NoError(t, q.Enqueue(context.Background(), Job{IngestID: uuid.New()}))
	assert.Equal(t, 0, fake.count())
}

func TestQueueShutdownIsIdempotent(t *testing.T) {
	q := NewExtractQueue(&fakeReExtractor{}, nil, WithWorkers(1))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	q.Shutdown(ctx)
	q.Shutdown(ctx)
}
