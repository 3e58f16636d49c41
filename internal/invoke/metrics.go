package invoke

import (
	"sync"
	"time"
)

// Metrics tracks invocation counts and timings for observability.
type Metrics struct {
	// Request counters by server and by server/tool pair.
	RequestsByServer map[string]int64
	RequestsByTool   map[string]map[string]int64

	// Outcome counters: server -> outcome ("success", "error") -> count.
	OutcomesByServer map[string]map[string]int64

	// Retry counters by server.
	RetriesByServer map[string]int64

	// Recent durations by server, for percentile calculation.
	DurationsByServer map[string][]time.Duration

	// Last event timestamp.
	LastEventTime time.Time
}

// MetricsCollector collects and exports invocation metrics.
type MetricsCollector struct {
	mu      sync.RWMutex
	metrics *Metrics
}

// NewMetricsCollector creates a new metrics collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics: &Metrics{
			RequestsByServer:  make(map[string]int64),
			RequestsByTool:    make(map[string]map[string]int64),
			OutcomesByServer:  make(map[string]map[string]int64),
			RetriesByServer:   make(map[string]int64),
			DurationsByServer: make(map[string][]time.Duration),
			LastEventTime:     time.Now(),
		},
	}
}

// RecordInvocation records one finished invocation.
func (m *MetricsCollector) RecordInvocation(server, tool, outcome string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.LastEventTime = time.Now()
	m.metrics.RequestsByServer[server]++

	if m.metrics.RequestsByTool[server] == nil {
		m.metrics.RequestsByTool[server] = make(map[string]int64)
	}
	m.metrics.RequestsByTool[server][tool]++

	if m.metrics.OutcomesByServer[server] == nil {
		m.metrics.OutcomesByServer[server] = make(map[string]int64)
	}
	m.metrics.OutcomesByServer[server][outcome]++

	// Keep the last 1000 durations per server.
	m.metrics.DurationsByServer[server] = append(m.metrics.DurationsByServer[server], duration)
	if len(m.metrics.DurationsByServer[server]) > 1000 {
		m.metrics.DurationsByServer[server] = m.metrics.DurationsByServer[server][1:]
	}
}

// RecordRetry records one retry attempt against a server.
func (m *MetricsCollector) RecordRetry(server string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.metrics.LastEventTime = time.Now()
	m.metrics.RetriesByServer[server]++
}

// GetMetrics returns a snapshot of current metrics.
func (m *MetricsCollector) GetMetrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := Metrics{
		RequestsByServer:  make(map[string]int64),
		RequestsByTool:    make(map[string]map[string]int64),
		OutcomesByServer:  make(map[string]map[string]int64),
		RetriesByServer:   make(map[string]int64),
		DurationsByServer: make(map[string][]time.Duration),
		LastEventTime:     m.metrics.LastEventTime,
	}

	for k, v := range m.metrics.RequestsByServer {
		snapshot.RequestsByServer[k] = v
	}
	for k, v := range m.metrics.RequestsByTool {
		snapshot.RequestsByTool[k] = make(map[string]int64, len(v))
		for k2, v2 := range v {
			snapshot.RequestsByTool[k][k2] = v2
		}
	}
	for k, v := range m.metrics.OutcomesByServer {
		snapshot.OutcomesByServer[k] = make(map[string]int64, len(v))
		for k2, v2 := range v {
			snapshot.OutcomesByServer[k][k2] = v2
		}
	}
	for k, v := range m.metrics.RetriesByServer {
		snapshot.RetriesByServer[k] = v
	}
	for k, v := range m.metrics.DurationsByServer {
		snapshot.DurationsByServer[k] = append([]time.Duration(nil), v...)
	}

	return snapshot
}
