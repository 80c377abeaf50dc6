package monitor

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/nijenhuis/api-guard/internal/config"
	"github.com/nijenhuis/api-guard/internal/models"
	"go.uber.org/zap"
)

// StatusChangeFunc is called on every status transition
type StatusChangeFunc func(oldStatus, newStatus models.ConnectionStatus, metrics models.ConnectionMetrics)

// HealthCheckFunc is called after every probe cycle
type HealthCheckFunc func(metrics models.ConnectionMetrics)

// ConnectionMonitor runs a periodic health-check loop against the
// configured probe endpoints and derives a connection status from latency
// and consecutive failures. Probes only ever run on the loop's own
// schedule or inside AttemptReconnection; the request path reads state
// through IsHealthy/Status without blocking on network I/O.
type ConnectionMonitor struct {
	cfg    config.MonitorConfig
	logger *zap.Logger
	client *http.Client

	mu        sync.Mutex
	status    models.ConnectionStatus
	metrics   models.ConnectionMetrics
	startTime time.Time

	statusCallbacks []StatusChangeFunc
	healthCallbacks []HealthCheckFunc

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	fallbacks FallbackCatalog
}

// New creates a connection monitor. Initial status is Healthy.
func New(cfg config.MonitorConfig, logger *zap.Logger) *ConnectionMonitor {
	return &ConnectionMonitor{
		cfg:    cfg,
		logger: logger,
		client: &http.Client{Timeout: cfg.ProbeTimeout},
		status: models.StatusHealthy,
		metrics: models.ConnectionMetrics{
			Status:      models.StatusHealthy,
			SuccessRate: 100,
		},
		startTime: time.Now(),
		fallbacks: DefaultFallbacks(),
	}
}

// OnStatusChange registers a callback for status transitions
func (m *ConnectionMonitor) OnStatusChange(cb StatusChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCallbacks = append(m.statusCallbacks, cb)
}

// OnHealthCheck registers a callback invoked after each probe cycle
func (m *ConnectionMonitor) OnHealthCheck(cb HealthCheckFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthCallbacks = append(m.healthCallbacks, cb)
}

// Start launches the background monitoring loop. Calling Start on a
// running monitor is a no-op.
func (m *ConnectionMonitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	m.mu.Unlock()

	go m.loop()
	m.logger.Info("Connection monitoring started",
		zap.Duration("interval", m.cfg.Interval),
		zap.Strings("endpoints", m.cfg.Endpoints))
}

// Stop signals the loop to exit and waits for it. The stop is observed
// within one polling interval.
func (m *ConnectionMonitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	<-done
	m.logger.Info("Connection monitoring stopped")
}

// loop probes on every tick until stopped. Probe errors are logged and
// never terminate the loop.
func (m *ConnectionMonitor) loop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.performHealthCheck(context.Background())

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.performHealthCheck(context.Background())
		}
	}
}

// performHealthCheck probes the configured endpoints in order and stops
// at the first success. Failure of all endpoints counts as one failed
// health check.
func (m *ConnectionMonitor) performHealthCheck(ctx context.Context) {
	start := time.Now()
	success := false

	for _, endpoint := range m.cfg.Endpoints {
		url := m.cfg.BaseURL + endpoint

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			m.logger.Warn("Failed to build health check request", zap.String("url", url), zap.Error(err))
			continue
		}

		resp, err := m.client.Do(req)
		if err != nil {
			m.logger.Warn("Health check failed", zap.String("url", url), zap.Error(err))
			continue
		}
		resp.Body.Close()

		if resp.StatusCode == http.StatusOK {
			success = true
			break
		}
	}

	responseTime := float64(time.Since(start).Milliseconds())
	m.updateMetrics(success, responseTime)
}

// updateMetrics applies a probe result: successes are graded by latency,
// failures by the consecutive-failure ladder.
func (m *ConnectionMonitor) updateMetrics(success bool, responseTimeMs float64) {
	m.mu.Lock()

	m.metrics.TotalRequests++
	m.metrics.ResponseTimeMs = responseTimeMs
	m.metrics.UptimeSeconds = time.Since(m.startTime).Seconds()

	var newStatus models.ConnectionStatus
	now := time.Now()

	if success {
		m.metrics.ConsecutiveFailures = 0
		m.metrics.LastSuccess = &now

		switch {
		case responseTimeMs < 1000:
			newStatus = models.StatusHealthy
		case responseTimeMs < 3000:
			newStatus = models.StatusDegraded
		default:
			newStatus = models.StatusUnhealthy
		}
	} else {
		m.metrics.TotalFailures++
		m.metrics.ConsecutiveFailures++
		m.metrics.LastFailure = &now

		switch {
		case m.metrics.ConsecutiveFailures >= 3:
			newStatus = models.StatusOffline
		case m.metrics.ConsecutiveFailures >= 2:
			newStatus = models.StatusUnhealthy
		default:
			newStatus = models.StatusDegraded
		}
	}

	m.metrics.SuccessRate = float64(m.metrics.TotalRequests-m.metrics.TotalFailures) /
		float64(maxInt64(m.metrics.TotalRequests, 1)) * 100

	transition := m.transitionLocked(newStatus)
	metrics := m.metrics
	healthCbs := append([]HealthCheckFunc(nil), m.healthCallbacks...)
	m.mu.Unlock()

	transition()
	for _, cb := range healthCbs {
		cb(metrics)
	}
}

// UpdateHealth records an inline health signal from a request path. With
// no latency sample, status follows the consecutive-failure ladder in
// both directions.
func (m *ConnectionMonitor) UpdateHealth(success bool) {
	m.mu.Lock()

	m.metrics.TotalRequests++
	m.metrics.UptimeSeconds = time.Since(m.startTime).Seconds()

	now := time.Now()
	if success {
		m.metrics.ConsecutiveFailures = 0
		m.metrics.LastSuccess = &now
	} else {
		m.metrics.TotalFailures++
		m.metrics.ConsecutiveFailures++
		m.metrics.LastFailure = &now
	}

	m.metrics.SuccessRate = float64(m.metrics.TotalRequests-m.metrics.TotalFailures) /
		float64(maxInt64(m.metrics.TotalRequests, 1)) * 100

	var newStatus models.ConnectionStatus
	switch {
	case m.metrics.ConsecutiveFailures >= 3:
		newStatus = models.StatusOffline
	case m.metrics.ConsecutiveFailures >= 2:
		newStatus = models.StatusUnhealthy
	case m.metrics.ConsecutiveFailures >= 1:
		newStatus = models.StatusDegraded
	default:
		newStatus = models.StatusHealthy
	}

	transition := m.transitionLocked(newStatus)
	m.mu.Unlock()

	transition()
}

// transitionLocked updates the status under the caller's lock and returns
// a function that logs the change and notifies callbacks outside it.
// Every transition is notified; none is silently dropped.
func (m *ConnectionMonitor) transitionLocked(newStatus models.ConnectionStatus) func() {
	if newStatus == m.status {
		return func() {}
	}

	oldStatus := m.status
	m.status = newStatus
	m.metrics.Status = newStatus

	metrics := m.metrics
	cbs := append([]StatusChangeFunc(nil), m.statusCallbacks...)

	return func() {
		m.logger.Info("Connection status changed",
			zap.String("from", string(oldStatus)),
			zap.String("to", string(newStatus)),
			zap.Int("consecutive_failures", metrics.ConsecutiveFailures))
		for _, cb := range cbs {
			cb(oldStatus, newStatus, metrics)
		}
	}
}

// AttemptReconnection retries the probe with exponential backoff
// (2^attempt seconds). It returns true once the status is back to
// Healthy or Degraded, otherwise leaves the monitor Offline. The whole
// attempt is bounded by the configured reconnect timeout so a degraded
// dependency cannot stall request handling.
func (m *ConnectionMonitor) AttemptReconnection(ctx context.Context) bool {
	m.logger.Info("Attempting reconnection")

	m.mu.Lock()
	transition := m.transitionLocked(models.StatusReconnecting)
	m.mu.Unlock()
	transition()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.ReconnectTimeout)
	defer cancel()

	for attempt := 0; attempt < m.cfg.MaxRetries; attempt++ {
		m.performHealthCheck(ctx)

		if m.IsHealthy() {
			m.logger.Info("Reconnection successful", zap.Int("attempts", attempt+1))
			return true
		}

		if attempt < m.cfg.MaxRetries-1 {
			delay := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				m.setOffline()
				return false
			case <-time.After(delay):
			}
		}
	}

	m.logger.Error("Reconnection failed after all attempts", zap.Int("attempts", m.cfg.MaxRetries))
	m.setOffline()
	return false
}

func (m *ConnectionMonitor) setOffline() {
	m.mu.Lock()
	transition := m.transitionLocked(models.StatusOffline)
	m.mu.Unlock()
	transition()
}

// IsHealthy reports whether the connection is usable (Healthy or Degraded)
func (m *ConnectionMonitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == models.StatusHealthy || m.status == models.StatusDegraded
}

// Status returns the full connection state
func (m *ConnectionMonitor) Status() models.ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.UptimeSeconds = time.Since(m.startTime).Seconds()

	return models.ConnectionState{
		Status:         m.status,
		Metrics:        m.metrics,
		UptimeHuman:    time.Duration(m.metrics.UptimeSeconds * float64(time.Second)).Truncate(time.Second).String(),
		IsHealthy:      m.status == models.StatusHealthy || m.status == models.StatusDegraded,
		NeedsAttention: m.status == models.StatusUnhealthy || m.status == models.StatusOffline,
	}
}

// HealthSummary returns a short human-readable health line
func (m *ConnectionMonitor) HealthSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.status {
	case models.StatusHealthy:
		return formatSummary("✅ Healthy", m.metrics)
	case models.StatusDegraded:
		return formatSummary("⚠️ Degraded", m.metrics)
	case models.StatusUnhealthy:
		return formatFailures("🔴 Unhealthy", m.metrics)
	case models.StatusOffline:
		return formatFailures("❌ Offline", m.metrics)
	default:
		return "🔄 Reconnecting"
	}
}

// GetFallbackResponse returns localized fallback text, falling back to
// the default language and kind. Never returns an empty string.
func (m *ConnectionMonitor) GetFallbackResponse(language, kind string) string {
	return m.fallbacks.Lookup(language, kind)
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
