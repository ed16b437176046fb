package webhook

import (
	"time"
)

// Health classifications derived from the last hour of traffic.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
	HealthUnknown   = "unknown"
)

// WindowStats aggregates delivery attempts over a lookback window.
type WindowStats struct {
	Window        time.Duration `json:"window_seconds"`
	Total         int           `json:"total"`
	Success       int           `json:"success"`
	Failure       int           `json:"failure"`
	SuccessRate   float64       `json:"success_rate"`
	AvgDurationMS float64       `json:"avg_duration_ms"`
	AvgAttempts   float64       `json:"avg_attempts"`
}

// Monitor derives operational statistics from recorded metrics.
type Monitor struct {
	store *Store
}

func NewMonitor(store *Store) *Monitor { return &Monitor{store: store} }

// Stats aggregates over the given lookback window.
func (m *Monitor) Stats(window time.Duration) (WindowStats, error) {
	stats := WindowStats{Window: window}
	metrics, err := m.store.MetricsSince(time.Now().Add(-window))
	if err != nil {
		return stats, err
	}

	var durSum, attemptSum float64
	for _, mt := range metrics {
		stats.Total++
		if mt.Success {
			stats.Success++
		} else {
			stats.Failure++
		}
		durSum += float64(mt.Duration.Milliseconds())
		attemptSum += float64(mt.Attempt)
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
		stats.AvgDurationMS = durSum / float64(stats.Total)
		stats.AvgAttempts = attemptSum / float64(stats.Total)
	}
	return stats, nil
}

// RecentFailures lists the newest failed attempts.
func (m *Monitor) RecentFailures(limit int) ([]Metric, error) {
	return m.store.RecentFailures(limit)
}

// Health classifies delivery quality over the last hour.
func (m *Monitor) Health() (string, error) {
	stats, err := m.Stats(time.Hour)
	if err != nil {
		return HealthUnknown, err
	}
	switch {
	case stats.Total == 0:
		return HealthUnknown, nil
	case stats.SuccessRate >= 0.95:
		return HealthHealthy, nil
	case stats.SuccessRate >= 0.80:
		return HealthDegraded, nil
	default:
		return HealthUnhealthy, nil
	}
}
