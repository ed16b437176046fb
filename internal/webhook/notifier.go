package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/entity"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-CutFlow-Signature"

// Notifier POSTs event payloads to the configured endpoint with retry,
// exponential backoff, and optional HMAC signing. Exhausted deliveries
// land in the durable queue.
type Notifier struct {
	url         string
	secret      string
	allowed     map[constants.EventType]bool // empty = allow all
	maxAttempts int
	baseDelay   time.Duration
	client      *http.Client
	store       *Store
	logger      *slog.Logger
}

func NewNotifier(cfg common.WebhookConfig, store *Store, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[constants.EventType]bool, len(cfg.Events))
	for _, e := range cfg.Events {
		allowed[constants.EventType(e)] = true
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	baseDelay := cfg.BaseDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		url:         cfg.URL,
		secret:      cfg.Secret,
		allowed:     allowed,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		client:      &http.Client{Timeout: timeout},
		store:       store,
		logger:      logger,
	}
}

// Enabled reports whether any endpoint is configured at all.
func (n *Notifier) Enabled() bool { return n.url != "" }

// BuildPayload assembles the event body sent to the receiver. The file
// data carries the record's public fields plus any extra entries.
func (n *Notifier) BuildPayload(event constants.EventType, rec *entity.IngestRecord, extra map[string]any) map[string]any {
	fileData := map[string]any{
		"ingest_id":         rec.ID.String(),
		"original_filename": rec.OriginalFilename,
		"stored_filename":   rec.StoredFilename,
		"file_path":         rec.StoredPath,
		"file_type":         string(rec.FileType),
		"file_size":         rec.FileSize,
		"status":            string(rec.Status),
		"client_code":       rec.ClientCode,
		"project_code":      rec.ProjectCode,
		"part_name":         rec.PartName,
		"material":          rec.Material,
		"thickness_mm":      rec.ThicknessMM,
		"quantity":          rec.Quantity,
		"version":           rec.Version,
		"processing_mode":   rec.ProcessingMode,
		"confidence_score":  rec.ConfidenceScore,
		"created_at":        rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.ProcessedAt != nil {
		fileData["processed_at"] = rec.ProcessedAt.UTC().Format(time.RFC3339)
	}
	for k, v := range extra {
		fileData[k] = v
	}
	return map[string]any{
		"event_type": string(event),
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"ingest_id":  rec.ID.String(),
		"file_data":  fileData,
	}
}

// Send delivers one event, retrying per the configured policy. A 4xx
// response is terminal; 5xx, timeouts, and transport errors retry with
// baseDelay * 2^(attempt-1) between attempts. Exhausted retries enqueue
// the event durably and the error is returned for logging only; callers
// must not fail their own operation on it.
func (n *Notifier) Send(ctx context.Context, event constants.EventType, rec *entity.IngestRecord, extra map[string]any) error {
	return n.send(ctx, event, rec, extra, true)
}

// SendOnce makes a single synchronous attempt; a retryable failure goes
// straight to the durable queue with its full retry budget intact.
func (n *Notifier) SendOnce(ctx context.Context, event constants.EventType, rec *entity.IngestRecord, extra map[string]any) error {
	return n.send(ctx, event, rec, extra, false)
}

func (n *Notifier) send(ctx context.Context, event constants.EventType, rec *entity.IngestRecord, extra map[string]any, retry bool) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.allowed) > 0 && !n.allowed[event] {
		return nil
	}

	// Map keys marshal in sorted order, which doubles as the canonical
	// form the signature covers.
	body, err := json.Marshal(n.BuildPayload(event, rec, extra))
	if err != nil {
		return common.NewDeliveryError("marshaling webhook payload", err)
	}

	budget := n.maxAttempts
	if !retry {
		budget = 1
	}

	ingestID := rec.ID.String()
	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= budget; attempt++ {
		if attempt > 1 {
			delay := n.baseDelay * (1 << uint(attempt-2))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				// Shutdown mid-backoff: keep the remaining budget durable.
				n.enqueue(event, ingestID, body, attempts, lastErr)
				return ctx.Err()
			}
		}

		status, attemptErr := n.post(ctx, body, event, ingestID, attempt)
		attempts = attempt
		if attemptErr == nil {
			return nil
		}
		lastErr = attemptErr
		if status >= 400 && status < 500 {
			// Contract error; retries cannot fix it and nothing is queued.
			n.logger.Error("webhook rejected by receiver", "event", event, "ingest_id", ingestID, "status", status)
			return common.NewDeliveryError(fmt.Sprintf("receiver rejected payload with status %d", status), attemptErr)
		}
		n.logger.Warn("webhook delivery failed", "event", event, "ingest_id", ingestID, "attempt", attempt, "error", attemptErr)
	}

	n.enqueue(event, ingestID, body, attempts, lastErr)
	return common.NewDeliveryError("webhook delivery unsuccessful", lastErr)
}

// enqueue persists an undelivered event. Entries that already spent the
// whole attempt budget are dead-lettered by the store.
func (n *Notifier) enqueue(event constants.EventType, ingestID string, body []byte, attempts int, lastErr error) {
	now := time.Now()
	q := QueuedWebhook{
		ID:            fmt.Sprintf("%s:%s:%d", event, ingestID, now.Unix()),
		EventType:     event,
		IngestID:      ingestID,
		Payload:       body,
		Attempts:      attempts,
		MaxAttempts:   n.maxAttempts,
		CreatedAt:     now,
		LastAttemptAt: now,
		NextRetryAt:   now.Add(n.NextRetryDelay(attempts)),
	}
	if lastErr != nil {
		q.LastError = lastErr.Error()
	}
	if err := n.store.Enqueue(q); err != nil {
		n.logger.Error("failed to enqueue undelivered webhook", "event", event, "ingest_id", ingestID, "error", err)
	}
}

// post performs one HTTP attempt and records its metric.
func (n *Notifier) post(ctx context.Context, body []byte, event constants.EventType, ingestID string, attempt int) (int, error) {
	start := time.Now()
	status, err := n.doRequest(ctx, body)
	dur := time.Since(start)

	m := Metric{
		RecordedAt: time.Now(),
		EventType:  event,
		IngestID:   ingestID,
		Success:    err == nil,
		Attempt:    attempt,
		Duration:   dur,
		StatusCode: status,
	}
	if err != nil {
		m.Error = err.Error()
	}
	if recErr := n.store.RecordMetric(m); recErr != nil {
		n.logger.Error("failed to record webhook metric", "error", recErr)
	}
	return status, err
}

func (n *Notifier) doRequest(ctx context.Context, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+n.sign(body))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
	resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
}

func (n *Notifier) sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(n.secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Redeliver runs one delivery attempt for a queued entry. Used by the
// queue worker; it does not sleep or loop.
func (n *Notifier) Redeliver(ctx context.Context, q QueuedWebhook) (int, error) {
	return n.post(ctx, q.Payload, q.EventType, q.IngestID, q.Attempts+1)
}

// NextRetryDelay computes the backoff for a queued entry about to make
// its (attempts+1)-th try.
func (n *Notifier) NextRetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return n.baseDelay * (1 << uint(attempts-1))
}
