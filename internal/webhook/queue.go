package webhook

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// QueueWorker periodically redelivers queued events whose retry time has
// elapsed. Start is idempotent; Stop lets an in-flight delivery finish.
type QueueWorker struct {
	store    *Store
	notifier *Notifier
	interval time.Duration
	logger   *slog.Logger

	startOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewQueueWorker(store *Store, notifier *Notifier, interval time.Duration, logger *slog.Logger) *QueueWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueWorker{
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start launches the scan loop. Calling it again is a no-op.
func (w *QueueWorker) Start() {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		w.cancel = cancel
		go w.run(ctx)
	})
}

// Stop signals the loop and waits for the current tick to finish.
func (w *QueueWorker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.done
}

func (w *QueueWorker) run(ctx context.Context) {
	defer close(w.done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("webhook queue worker started", "interval", w.interval)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("webhook queue worker stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

// tick redelivers each due entry at most once.
func (w *QueueWorker) tick(ctx context.Context) {
	due, err := w.store.Due(time.Now())
	if err != nil {
		w.logger.Error("failed to scan webhook queue", "error", err)
		return
	}
	for _, q := range due {
		if ctx.Err() != nil {
			return
		}
		claimed, err := w.store.Claim(q.ID)
		if err != nil {
			w.logger.Error("failed to claim queued webhook", "id", q.ID, "error", err)
			continue
		}
		if !claimed {
			continue
		}
		w.redeliver(ctx, q)
	}
}

func (w *QueueWorker) redeliver(ctx context.Context, q QueuedWebhook) {
	now := time.Now()
	status, err := w.notifier.Redeliver(ctx, q)
	if err == nil {
		if err := w.store.MarkCompleted(q.ID, now); err != nil {
			w.logger.Error("failed to complete queued webhook", "id", q.ID, "error", err)
		}
		w.logger.Info("queued webhook delivered", "id", q.ID, "attempts", q.Attempts+1)
		return
	}

	attempts := q.Attempts + 1
	terminal := (status >= 400 && status < 500) || attempts >= q.MaxAttempts
	if terminal {
		if err := w.store.MarkFailed(q.ID, attempts, err.Error(), now); err != nil {
			w.logger.Error("failed to dead-letter queued webhook", "id", q.ID, "error", err)
		}
		w.logger.Error("queued webhook permanently failed", "id", q.ID, "attempts", attempts, "error", err)
		return
	}

	next := now.Add(w.notifier.NextRetryDelay(attempts))
	if err := w.store.MarkRetry(q.ID, attempts, err.Error(), now, next); err != nil {
		w.logger.Error("failed to reschedule queued webhook", "id", q.ID, "error", err)
	}
}
