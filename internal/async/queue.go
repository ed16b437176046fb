// Package async runs re-extraction jobs on a bounded worker pool so
// HTTP handlers can return immediately.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beerberidie/cutflow/internal/pipeline"
)

// Job is one queued re-extraction request.
type Job struct {
	IngestID    uuid.UUID
	SubmittedAt time.Time
}

// ReExtractor is the slice of the pipeline the workers need.
type ReExtractor interface {
	ReExtract(ctx context.Context, id uuid.UUID) (pipeline.UploadResult, error)
}

// Queue accepts jobs and drains them on shutdown.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

type ExtractQueue struct {
	proc    ReExtractor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*ExtractQueue)

func WithWorkers(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ExtractQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithProcessTimeout(d time.Duration) Option {
	return func(q *ExtractQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewExtractQueue(proc ReExtractor, logger *slog.Logger, opts ...Option) *ExtractQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ExtractQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 2 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ExtractQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					res, err := q.proc.ReExtract(ctx, job.IngestID)
					cancel()

					if err != nil {
						q.logger.Error("re-extraction failed", "worker_id", workerID, "ingest_id", job.IngestID, "error", err)
					} else {
						q.logger.Info("re-extraction finished",
							"worker_id", workerID,
							"ingest_id", job.IngestID,
							"stored_filename", res.StoredFilename,
						)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue queues a job, blocking when the buffer is full. A closed
// queue drops the job with a warning instead of panicking.
func (q *ExtractQueue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "ingest_id", job.IngestID)
		return nil
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now().UTC()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued re-extraction", "ingest_id", job.IngestID)
	default:
		q.logger.Warn("queue full, applying backpressure", "ingest_id", job.IngestID)
		q.ch <- job
	}
	return nil
}

// Shutdown stops intake and waits for in-flight jobs, or returns early
// when ctx expires.
func (q *ExtractQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
