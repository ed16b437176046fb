package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beerberidie/cutflow/constants"
	"github.com/beerberidie/cutflow/internal/common"
	"github.com/beerberidie/cutflow/internal/entity"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord() *entity.IngestRecord {
	return &entity.IngestRecord{
		ID:               uuid.New(),
		OriginalFilename: "bracket.dxf",
		StoredFilename:   "CL0001-NOPROJECT-Bracket-MS-5mm.dxf",
		StoredPath:       "CL0001/CL0001-NOPROJECT-Bracket-MS-5mm.dxf",
		FileType:         constants.DXF,
		FileSize:         512,
		Status:           constants.IngestStatusCompleted,
		ClientCode:       "CL0001",
		Material:         "Mild Steel",
		ThicknessMM:      5,
		Quantity:         14,
		Version:          1,
	}
}

func testNotifier(t *testing.T, url string, store *Store) *Notifier {
	t.Helper()
	return NewNotifier(common.WebhookConfig{
		URL:         url,
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Timeout:     time.Second,
	}, store, slog.Default())
}

func TestSendSuccessRecordsOneMetric(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	n := testNotifier(t, srv.URL, store)

	require.NoError(t, n.Send(context.Background(), constants.EventFileProcessed, testRecord(), nil))
	assert.EqualValues(t, 1, hits.Load())

	metrics, err := store.MetricsSince(time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.True(t, metrics[0].Success)

	entries, err := store.QueueEntries("", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSendServerErrorsExhaustAndDeadLetter(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := testStore(t)
	n := testNotifier(t, srv.URL, store)

	err := n.Send(context.Background(), constants.EventFileProcessed, testRecord(), nil)
	assert.ErrorIs(t, err, common.ErrDelivery)
	assert.EqualValues(t, 3, hits.Load())

	metrics, merr := store.MetricsSince(time.Now().Add(-time.Minute))
	require.NoError(t, merr)
	require.Len(t, metrics, 3)
	for _, m := range metrics {
		assert.False(t, m.Success)
		assert.Equal(t, http.StatusInternalServerError, m.StatusCode)
	}

	entries, qerr := store.QueueEntries("", 10)
	require.NoError(t, qerr)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.WebhookStatusFailed, entries[0].Status)
	assert.Equal(t, 3, entries[0].Attempts)
}

func TestSendClientErrorIsTerminal(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	store := testStore(t)
	n := testNotifier(t, srv.URL, store)

	err := n.Send(context.Background(), constants.EventFileProcessed, testRecord(), nil)
	assert.ErrorIs(t, err, common.ErrDelivery)
	assert.EqualValues(t, 1, hits.Load())

	metrics, merr := store.MetricsSince(time.Now().Add(-time.Minute))
	require.NoError(t, merr)
	assert.Len(t, metrics, 1)

	entries, qerr := store.QueueEntries("", 10)
	require.NoError(t, qerr)
	assert.Empty(t, entries)
}

func TestSendSignsPayload(t *testing.T) {
	const secret = "topsecret"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	n := NewNotifier(common.WebhookConfig{
		URL:         srv.URL,
		Secret:      secret,
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		Timeout:     time.Second,
	}, store, slog.Default())

	require.NoError(t, n.Send(context.Background(), constants.EventFileIngested, testRecord(), nil))

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	assert.Equal(t, "sha256="+hex.EncodeToString(mac.Sum(nil)), gotSig)
}

func TestSendAllowListFiltersEvents(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	n := NewNotifier(common.WebhookConfig{
		URL:         srv.URL,
		Events:      []string{string(constants.EventFileProcessed)},
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		Timeout:     time.Second,
	}, store, slog.Default())

	require.NoError(t, n.Send(context.Background(), constants.EventFileDeleted, testRecord(), nil))
	assert.EqualValues(t, 0, hits.Load())

	require.NoError(t, n.Send(context.Background(), constants.EventFileProcessed, testRecord(), nil))
	assert.EqualValues(t, 1, hits.Load())
}

func TestQueueWorkerRedeliversPendingEntry(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := testStore(t)
	n := testNotifier(t, srv.URL, store)

	// Single attempt fails and parks the event with budget left.
	err := n.SendOnce(context.Background(), constants.EventFileProcessed, testRecord(), nil)
	assert.ErrorIs(t, err, common.ErrDelivery)

	entries, qerr := store.QueueEntries(constants.WebhookStatusPending, 10)
	require.NoError(t, qerr)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].Attempts)

	// Receiver recovers; a tick after the retry time delivers it.
	fail.Store(false)
	time.Sleep(5 * time.Millisecond)
	w := NewQueueWorker(store, n, time.Minute, slog.Default())
	w.tick(context.Background())

	entries, qerr = store.QueueEntries(constants.WebhookStatusCompleted, 10)
	require.NoError(t, qerr)
	require.Len(t, entries, 1)
	assert.Equal(t, constants.WebhookStatusCompleted, entries[0].Status)
}

func TestQueueWorkerDeadLettersAtCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := testStore(t)
	n := testNotifier(t, srv.URL, store)

	require.Error(t, n.SendOnce(context.Background(), constants.EventFileFailed, testRecord(), nil))

	w := NewQueueWorker(store, n, time.Minute, slog.Default())
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		w.tick(context.Background())
		failed, err := store.QueueEntries(constants.WebhookStatusFailed, 10)
		require.NoError(t, err)
		if len(failed) == 1 {
			assert.Equal(t, 3, failed[0].Attempts)
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("queued webhook never reached the failed state")
}

func TestClaimIsSingleWinner(t *testing.T) {
	store := testStore(t)
	now := time.Now()
	require.NoError(t, store.Enqueue(QueuedWebhook{
		ID: "e:1", EventType: constants.EventFileProcessed, IngestID: "1",
		Payload: []byte("{}"), Attempts: 1, MaxAttempts: 3,
		CreatedAt: now, LastAttemptAt: now, NextRetryAt: now,
	}))

	ok, err := store.Claim("e:1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim("e:1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMonitorStatsAndHealth(t *testing.T) {
	store := testStore(t)
	m := NewMonitor(store)

	health, err := m.Health()
	require.NoError(t, err)
	assert.Equal(t, HealthUnknown, health)

	now := time.Now()
	for i := 0; i < 9; i++ {
		require.NoError(t, store.RecordMetric(Metric{
			RecordedAt: now, EventType: constants.EventFileProcessed, IngestID: "1",
			Success: true, Attempt: 1, Duration: 20 * time.Millisecond, StatusCode: 200,
		}))
	}
	require.NoError(t, store.RecordMetric(Metric{
		RecordedAt: now, EventType: constants.EventFileProcessed, IngestID: "2",
		Success: false, Attempt: 3, Duration: 40 * time.Millisecond, StatusCode: 500, Error: "status 500",
	}))

	stats, err := m.Stats(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Total)
	assert.Equal(t, 9, stats.Success)
	assert.InDelta(t, 0.9, stats.SuccessRate, 1e-9)

	health, err = m.Health()
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, health)

	failures, err := m.RecentFailures(5)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "status 500", failures[0].Error)
}

func TestPruneMetrics(t *testing.T) {
	store := testStore(t)
	require.NoError(t, store.RecordMetric(Metric{
		RecordedAt: time.Now().Add(-48 * time.Hour), EventType: constants.EventFileProcessed,
		IngestID: "1", Success: true, Attempt: 1,
	}))
	require.NoError(t, store.RecordMetric(Metric{
		RecordedAt: time.Now(), EventType: constants.EventFileProcessed,
		IngestID: "2", Success: true, Attempt: 1,
	}))

	pruned, err := store.PruneMetrics(24 * time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, pruned)

	metrics, err := store.MetricsSince(time.Now().Add(-72 * time.Hour))
	require.NoError(t, err)
	assert.Len(t, metrics, 1)
}
