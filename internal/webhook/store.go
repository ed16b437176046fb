// Package webhook delivers outcome events to one configured endpoint
// with retry, signing, a durable retry queue, and delivery metrics. The
// queue and metrics live in their own SQLite file so undelivered events
// survive process restarts independently of the main database.
package webhook

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/beerberidie/cutflow/constants"
)

// QueuedWebhook is one undelivered event awaiting redelivery.
type QueuedWebhook struct {
	ID            string
	EventType     constants.EventType
	IngestID      string
	Payload       []byte
	Status        constants.WebhookStatus
	Attempts      int
	MaxAttempts   int
	LastError     string
	CreatedAt     time.Time
	LastAttemptAt time.Time
	NextRetryAt   time.Time
}

// Metric is one recorded delivery attempt. Append-only.
type Metric struct {
	RecordedAt time.Time
	EventType  constants.EventType
	IngestID   string
	Success    bool
	Attempt    int
	Duration   time.Duration
	StatusCode int
	Error      string
}

// Store wraps the SQLite database backing the queue and metrics.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the SQLite database at path and runs
// migrations.
func OpenStore(path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open webhook db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate webhook db: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS webhook_queue (
    id              TEXT PRIMARY KEY,
    event_type      TEXT NOT NULL,
    ingest_id       TEXT NOT NULL,
    payload         TEXT NOT NULL,
    status          TEXT NOT NULL DEFAULT 'pending',
    attempts        INTEGER NOT NULL DEFAULT 0,
    max_attempts    INTEGER NOT NULL,
    last_error      TEXT,
    created_at      TEXT NOT NULL,
    last_attempt_at TEXT,
    next_retry_at   TEXT
);

CREATE TABLE IF NOT EXISTS webhook_metrics (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at TEXT NOT NULL,
    event_type  TEXT NOT NULL,
    ingest_id   TEXT NOT NULL,
    success     INTEGER NOT NULL,
    attempt     INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    status_code INTEGER,
    error       TEXT
);

CREATE INDEX IF NOT EXISTS idx_queue_retry   ON webhook_queue(status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_metrics_time  ON webhook_metrics(recorded_at);
`
	_, err := s.db.Exec(ddl)
	return err
}

// Fixed-width so stored timestamps compare correctly as strings in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Enqueue persists an undelivered event. Entries arriving with their
// attempt budget already spent go straight to failed (dead-letter).
func (s *Store) Enqueue(q QueuedWebhook) error {
	if q.Status == "" {
		q.Status = constants.WebhookStatusPending
	}
	if q.Attempts >= q.MaxAttempts {
		q.Status = constants.WebhookStatusFailed
	}
	_, err := s.db.Exec(`
INSERT INTO webhook_queue (id, event_type, ingest_id, payload, status, attempts, max_attempts, last_error, created_at, last_attempt_at, next_retry_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, string(q.EventType), q.IngestID, string(q.Payload), string(q.Status),
		q.Attempts, q.MaxAttempts, q.LastError,
		q.CreatedAt.UTC().Format(timeLayout),
		q.LastAttemptAt.UTC().Format(timeLayout),
		q.NextRetryAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("enqueue webhook: %w", err)
	}
	return nil
}

// Due returns pending entries whose retry time has elapsed.
func (s *Store) Due(now time.Time) ([]QueuedWebhook, error) {
	rows, err := s.db.Query(`
SELECT id, event_type, ingest_id, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at, last_attempt_at, next_retry_at
FROM webhook_queue
WHERE status = 'pending' AND next_retry_at <= ?
ORDER BY next_retry_at ASC`, now.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("scan due webhooks: %w", err)
	}
	defer rows.Close()

	var out []QueuedWebhook
	for rows.Next() {
		var q QueuedWebhook
		var eventType, status, payload, createdAt, lastAttemptAt, nextRetryAt string
		if err := rows.Scan(&q.ID, &eventType, &q.IngestID, &payload, &status, &q.Attempts, &q.MaxAttempts, &q.LastError, &createdAt, &lastAttemptAt, &nextRetryAt); err != nil {
			return nil, fmt.Errorf("scan due webhooks: %w", err)
		}
		q.EventType = constants.EventType(eventType)
		q.Status = constants.WebhookStatus(status)
		q.Payload = []byte(payload)
		q.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		q.LastAttemptAt, _ = time.Parse(timeLayout, lastAttemptAt)
		q.NextRetryAt, _ = time.Parse(timeLayout, nextRetryAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

// Claim flips one entry from pending to processing. Returns false when
// another worker got there first.
func (s *Store) Claim(id string) (bool, error) {
	res, err := s.db.Exec(`UPDATE webhook_queue SET status = 'processing' WHERE id = ? AND status = 'pending'`, id)
	if err != nil {
		return false, fmt.Errorf("claim webhook: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

// MarkCompleted finalizes a delivered entry.
func (s *Store) MarkCompleted(id string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE webhook_queue SET status = 'completed', last_attempt_at = ? WHERE id = ?`,
		at.UTC().Format(timeLayout), id)
	return err
}

// MarkRetry releases a claimed entry back to pending with its next
// retry time recomputed.
func (s *Store) MarkRetry(id string, attempts int, lastError string, at, nextRetry time.Time) error {
	_, err := s.db.Exec(`
UPDATE webhook_queue SET status = 'pending', attempts = ?, last_error = ?, last_attempt_at = ?, next_retry_at = ?
WHERE id = ?`,
		attempts, lastError, at.UTC().Format(timeLayout), nextRetry.UTC().Format(timeLayout), id)
	return err
}

// MarkFailed dead-letters an entry permanently.
func (s *Store) MarkFailed(id string, attempts int, lastError string, at time.Time) error {
	_, err := s.db.Exec(`
UPDATE webhook_queue SET status = 'failed', attempts = ?, last_error = ?, last_attempt_at = ?
WHERE id = ?`,
		attempts, lastError, at.UTC().Format(timeLayout), id)
	return err
}

// QueueEntries lists queue rows by status; empty status means all.
func (s *Store) QueueEntries(status constants.WebhookStatus, limit int) ([]QueuedWebhook, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT id, event_type, ingest_id, payload, status, attempts, max_attempts, COALESCE(last_error, ''), created_at, last_attempt_at, next_retry_at
FROM webhook_queue`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var out []QueuedWebhook
	for rows.Next() {
		var q QueuedWebhook
		var eventType, st, payload, createdAt, lastAttemptAt, nextRetryAt string
		if err := rows.Scan(&q.ID, &eventType, &q.IngestID, &payload, &st, &q.Attempts, &q.MaxAttempts, &q.LastError, &createdAt, &lastAttemptAt, &nextRetryAt); err != nil {
			return nil, fmt.Errorf("list queue entries: %w", err)
		}
		q.EventType = constants.EventType(eventType)
		q.Status = constants.WebhookStatus(st)
		q.Payload = []byte(payload)
		q.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		q.LastAttemptAt, _ = time.Parse(timeLayout, lastAttemptAt)
		q.NextRetryAt, _ = time.Parse(timeLayout, nextRetryAt)
		out = append(out, q)
	}
	return out, rows.Err()
}

// RecordMetric appends one delivery-attempt metric.
func (s *Store) RecordMetric(m Metric) error {
	_, err := s.db.Exec(`
INSERT INTO webhook_metrics (recorded_at, event_type, ingest_id, success, attempt, duration_ms, status_code, error)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.RecordedAt.UTC().Format(timeLayout), string(m.EventType), m.IngestID,
		boolToInt(m.Success), m.Attempt, m.Duration.Milliseconds(), m.StatusCode, m.Error)
	if err != nil {
		return fmt.Errorf("record webhook metric: %w", err)
	}
	return nil
}

// MetricsSince returns metrics recorded at or after the cutoff.
func (s *Store) MetricsSince(cutoff time.Time) ([]Metric, error) {
	rows, err := s.db.Query(`
SELECT recorded_at, event_type, ingest_id, success, attempt, duration_ms, COALESCE(status_code, 0), COALESCE(error, '')
FROM webhook_metrics
WHERE recorded_at >= ?
ORDER BY recorded_at ASC`, cutoff.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("read webhook metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var recordedAt, eventType string
		var success int
		var durationMS int64
		if err := rows.Scan(&recordedAt, &eventType, &m.IngestID, &success, &m.Attempt, &durationMS, &m.StatusCode, &m.Error); err != nil {
			return nil, fmt.Errorf("read webhook metrics: %w", err)
		}
		m.RecordedAt, _ = time.Parse(timeLayout, recordedAt)
		m.EventType = constants.EventType(eventType)
		m.Success = success == 1
		m.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

// RecentFailures returns the newest failed attempts.
func (s *Store) RecentFailures(limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
SELECT recorded_at, event_type, ingest_id, success, attempt, duration_ms, COALESCE(status_code, 0), COALESCE(error, '')
FROM webhook_metrics
WHERE success = 0
ORDER BY recorded_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("read webhook failures: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var m Metric
		var recordedAt, eventType string
		var success int
		var durationMS int64
		if err := rows.Scan(&recordedAt, &eventType, &m.IngestID, &success, &m.Attempt, &durationMS, &m.StatusCode, &m.Error); err != nil {
			return nil, fmt.Errorf("read webhook failures: %w", err)
		}
		m.RecordedAt, _ = time.Parse(timeLayout, recordedAt)
		m.EventType = constants.EventType(eventType)
		m.Success = success == 1
		m.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneMetrics removes metrics older than age.
func (s *Store) PruneMetrics(age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age).UTC().Format(timeLayout)
	res, err := s.db.Exec(`DELETE FROM webhook_metrics WHERE recorded_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune webhook metrics: %w", err)
	}
	return res.RowsAffected()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
