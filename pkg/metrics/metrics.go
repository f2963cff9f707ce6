// Package metrics provides operational metrics for the search client.
// This package tracks ingest, flush, query and transport metrics for
// observability and monitoring.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics provides a comprehensive metrics collection for the search client
type Metrics struct {
	// Ingest metrics
	DocumentsIndexed *Counter
	BytesIndexed     *Counter
	PostingsEmitted  *Counter
	DictionaryTerms  *Gauge

	// Flush metrics
	FlushBatches  *Counter
	FlushFailures *Counter
	FlushTime     *Histogram

	// Query metrics
	Queries          *Counter
	LookupKeysIssued *Counter
	ServerMisses     *Counter
	DecodeFailures   *Counter
	SearchTime       *Histogram

	// Document fetch metrics
	DocumentsFetched *Counter
	FetchFailures    *Counter
	OpenFailures     *Counter

	// Transport metrics
	Requests        *Counter
	RequestRetries  *Counter
	RequestFailures *Counter

	// System metrics
	Uptime      *Gauge
	startTime   time.Time
	startTimeMu sync.RWMutex
}

// New creates a new metrics instance
func New() *Metrics {
	now := time.Now()
	return &Metrics{
		DocumentsIndexed: NewCounter(),
		BytesIndexed:     NewCounter(),
		PostingsEmitted:  NewCounter(),
		DictionaryTerms:  NewGauge(),

		FlushBatches:  NewCounter(),
		FlushFailures: NewCounter(),
		FlushTime:     NewHistogram(),

		Queries:          NewCounter(),
		LookupKeysIssued: NewCounter(),
		ServerMisses:     NewCounter(),
		DecodeFailures:   NewCounter(),
		SearchTime:       NewHistogram(),

		DocumentsFetched: NewCounter(),
		FetchFailures:    NewCounter(),
		OpenFailures:     NewCounter(),

		Requests:        NewCounter(),
		RequestRetries:  NewCounter(),
		RequestFailures: NewCounter(),

		Uptime:    NewGauge(),
		startTime: now,
	}
}

// RecordIngest records one ingested document and its posting count
func (m *Metrics) RecordIngest(bytes, postings, dictTerms int64) {
	m.DocumentsIndexed.Inc()
	m.BytesIndexed.Add(bytes)
	m.PostingsEmitted.Add(postings)
	m.DictionaryTerms.Set(dictTerms)
}

// RecordFlush records a flush attempt and its duration
func (m *Metrics) RecordFlush(success bool, duration time.Duration) {
	m.FlushBatches.Inc()
	if !success {
		m.FlushFailures.Inc()
	}
	m.FlushTime.Observe(duration)
}

// RecordQuery records one planned query and the number of lookup keys it expanded to
func (m *Metrics) RecordQuery(keys int64) {
	m.Queries.Inc()
	m.LookupKeysIssued.Add(keys)
}

// RecordSearch records a completed search round-trip
func (m *Metrics) RecordSearch(duration time.Duration) {
	m.SearchTime.Observe(duration)
}

// RecordFetch records a document fetch and its outcome
func (m *Metrics) RecordFetch(success bool) {
	if success {
		m.DocumentsFetched.Inc()
	} else {
		m.FetchFailures.Inc()
	}
}

// RecordRequest records one transport request and its outcome
func (m *Metrics) RecordRequest(success bool, retries int64) {
	m.Requests.Inc()
	m.RequestRetries.Add(retries)
	if !success {
		m.RequestFailures.Inc()
	}
}

// UpdateUptime updates the uptime metric
func (m *Metrics) UpdateUptime() {
	m.startTimeMu.RLock()
	defer m.startTimeMu.RUnlock()
	m.Uptime.Set(int64(time.Since(m.startTime).Seconds()))
}

// Snapshot returns a point-in-time snapshot of all metrics
func (m *Metrics) Snapshot() *Snapshot {
	m.UpdateUptime()
	return &Snapshot{
		DocumentsIndexed: m.DocumentsIndexed.Value(),
		BytesIndexed:     m.BytesIndexed.Value(),
		PostingsEmitted:  m.PostingsEmitted.Value(),
		DictionaryTerms:  m.DictionaryTerms.Value(),

		FlushBatches:  m.FlushBatches.Value(),
		FlushFailures: m.FlushFailures.Value(),
		FlushTimeAvg:  m.FlushTime.Mean(),
		FlushTimeP95:  m.FlushTime.Percentile(0.95),

		Queries:          m.Queries.Value(),
		LookupKeysIssued: m.LookupKeysIssued.Value(),
		ServerMisses:     m.ServerMisses.Value(),
		DecodeFailures:   m.DecodeFailures.Value(),
		SearchTimeAvg:    m.SearchTime.Mean(),
		SearchTimeP95:    m.SearchTime.Percentile(0.95),

		DocumentsFetched: m.DocumentsFetched.Value(),
		FetchFailures:    m.FetchFailures.Value(),
		OpenFailures:     m.OpenFailures.Value(),

		Requests:        m.Requests.Value(),
		RequestRetries:  m.RequestRetries.Value(),
		RequestFailures: m.RequestFailures.Value(),

		UptimeSeconds: m.Uptime.Value(),
	}
}

// Snapshot represents a point-in-time snapshot of metrics
type Snapshot struct {
	DocumentsIndexed int64
	BytesIndexed     int64
	PostingsEmitted  int64
	DictionaryTerms  int64

	FlushBatches  int64
	FlushFailures int64
	FlushTimeAvg  time.Duration
	FlushTimeP95  time.Duration

	Queries          int64
	LookupKeysIssued int64
	ServerMisses     int64
	DecodeFailures   int64
	SearchTimeAvg    time.Duration
	SearchTimeP95    time.Duration

	DocumentsFetched int64
	FetchFailures    int64
	OpenFailures     int64

	Requests        int64
	RequestRetries  int64
	RequestFailures int64

	UptimeSeconds int64
}

// Counter is a monotonically increasing counter
type Counter struct {
	value int64
}

// NewCounter creates a new counter
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds n to the counter
func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.value, n)
}

// Value returns the current counter value
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge is a value that can go up or down
type Gauge struct {
	value int64
}

// NewGauge creates a new gauge
func NewGauge() *Gauge {
	return &Gauge{}
}

// Set sets the gauge to a specific value
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Inc increments the gauge by 1
func (g *Gauge) Inc() {
	atomic.AddInt64(&g.value, 1)
}

// Dec decrements the gauge by 1
func (g *Gauge) Dec() {
	atomic.AddInt64(&g.value, -1)
}

// Add adds n to the gauge
func (g *Gauge) Add(n int64) {
	atomic.AddInt64(&g.value, n)
}

// Value returns the current gauge value
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram tracks distribution of durations
type Histogram struct {
	observations []time.Duration
	mu           sync.RWMutex
}

// NewHistogram creates a new histogram
func NewHistogram() *Histogram {
	return &Histogram{
		observations: make([]time.Duration, 0, 1000),
	}
}

// Observe adds a new observation to the histogram
func (h *Histogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Keep last 1000 observations to prevent unbounded memory growth
	if len(h.observations) >= 1000 {
		h.observations = h.observations[1:]
	}
	h.observations = append(h.observations, d)
}

// Mean returns the mean of all observations
func (h *Histogram) Mean() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range h.observations {
		sum += d
	}
	return sum / time.Duration(len(h.observations))
}

// Percentile returns the p-th percentile (0.0-1.0) of observations
func (h *Histogram) Percentile(p float64) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.observations))
	copy(sorted, h.observations)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j] < sorted[j-1]; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Count returns the number of recorded observations
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observations)
}
