package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

type SourceHealth struct {
	Failing bool `json:"failing"`
}

// SourceMonitor polls the payments source health endpoint. It only reports;
// form fetches are never gated on it.
type SourceMonitor struct {
	logger     *slog.Logger
	healthURL  string
	httpClient *http.Client
	interval   time.Duration
	done       chan struct{}
	stopOnce   sync.Once

	failing   atomic.Bool
	checkedAt atomic.Int64
}

func NewSourceMonitor(healthURL string, interval time.Duration, httpClient *http.Client, logger *slog.Logger) *SourceMonitor {
	return &SourceMonitor{
		httpClient: httpClient,
		logger:     logger,
		healthURL:  healthURL,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (m *SourceMonitor) StartMonitoring() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.checkSourceHealth()

	for {
		select {
		case <-ticker.C:
			m.checkSourceHealth()
		case <-m.done:
			return
		}
	}
}

// Stop ends StartMonitoring; it is safe to call more than once.
func (m *SourceMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *SourceMonitor) Failing() bool {
	return m.failing.Load()
}

// CheckedAt is the time of the last completed check, zero before the first.
func (m *SourceMonitor) CheckedAt() time.Time {
	ns := m.checkedAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (m *SourceMonitor) checkSourceHealth() {
	health, ok := m.fetchHealth()
	m.failing.Store(!ok || health.Failing)
	m.checkedAt.Store(time.Now().UnixNano())
}

func (m *SourceMonitor) fetchHealth() (SourceHealth, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.healthURL, nil)
	if err != nil {
		m.logger.Error("Failed to create health check request", "url", m.healthURL, "error", err)
		return SourceHealth{}, false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Warn("Health check request failed", "url", m.healthURL, "error", err)
		return SourceHealth{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.logger.Warn("Health check returned non-OK status", "url", m.healthURL, "status", resp.StatusCode)
		return SourceHealth{}, false
	}

	var health SourceHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		m.logger.Warn("Failed to decode health check response", "url", m.healthURL, "error", err)
		return SourceHealth{}, false
	}

	return health, true
}
