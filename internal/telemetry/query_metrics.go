// Package telemetry provides purely observational query telemetry for the
// retrieval engine. Nothing recorded here is consulted by RE, TA, or MMF
// when ranking - it exists for the `stats` CLI command only.
package telemetry

import (
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind classifies which operation served a query.
type QueryKind string

const (
	QueryKindText     QueryKind = "text"
	QueryKindImage    QueryKind = "image"
	QueryKindNeighbor QueryKind = "neighbor"
	QueryKindTemporal QueryKind = "temporal"
	QueryKindFusion   QueryKind = "fusion"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is a single served query, recorded after the fact.
type QueryEvent struct {
	Kind        QueryKind
	Model       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items in the buffer in FIFO order (oldest first).
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// QueryMetricsSnapshot is an immutable snapshot of query metrics.
type QueryMetricsSnapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	ModelCounts         map[string]int64        `json:"model_counts"`
	ZeroResultQueries   int64                   `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *QueryMetricsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultQueries) / float64(s.TotalQueries) * 100
}

// QueryMetricsStore persists telemetry for the `stats` CLI command.
type QueryMetricsStore interface {
	SaveKindCounts(date string, counts map[QueryKind]int64) error
	GetKindCounts(from, to string) (map[QueryKind]int64, error)
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	GetLatencyCounts(from, to string) (map[LatencyBucket]int64, error)
	AddZeroResultQuery(kind QueryKind, model string, timestamp time.Time) error
	CountZeroResultQueries(from, to string) (int64, error)
	Close() error
}

// QueryMetricsConfig configures the in-memory query metrics collector.
type QueryMetricsConfig struct {
	ZeroResultsCapacity int
	FlushInterval       time.Duration
}

// DefaultQueryMetricsConfig returns sensible defaults.
func DefaultQueryMetricsConfig() QueryMetricsConfig {
	return QueryMetricsConfig{ZeroResultsCapacity: 100, FlushInterval: 60 * time.Second}
}

// QueryMetrics collects query telemetry. Thread-safe for concurrent access.
type QueryMetrics struct {
	mu sync.RWMutex

	kindCounts   map[QueryKind]int64
	modelCounts  *lru.Cache[string, int64]
	zeroResults  *CircularBuffer[QueryEvent]
	latencies    map[LatencyBucket]int64
	totalQueries int64
	startTime    time.Time

	store       QueryMetricsStore
	config      QueryMetricsConfig
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

// NewQueryMetrics creates a metrics collector. If store is nil, metrics stay
// in memory only.
func NewQueryMetrics(store QueryMetricsStore) *QueryMetrics {
	return NewQueryMetricsWithConfig(store, DefaultQueryMetricsConfig())
}

// NewQueryMetricsWithConfig creates a metrics collector with custom config.
func NewQueryMetricsWithConfig(store QueryMetricsStore, cfg QueryMetricsConfig) *QueryMetrics {
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}
	modelCounts, _ := lru.New[string, int64](64)

	m := &QueryMetrics{
		kindCounts:  make(map[QueryKind]int64),
		modelCounts: modelCounts,
		zeroResults: NewCircularBuffer[QueryEvent](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
		store:       store,
		config:      cfg,
		stopCh:      make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}

	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// Record captures metrics from a served query. Thread-safe, non-blocking.
func (m *QueryMetrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	m.kindCounts[event.Kind]++
	m.totalQueries++

	model := strings.ToUpper(event.Model)
	if model != "" {
		count, _ := m.modelCounts.Get(model)
		m.modelCounts.Add(model, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event)
	}

	m.latencies[LatencyToBucket(event.Latency)]++
}

// Snapshot returns current metrics for reporting.
func (m *QueryMetrics) Snapshot() *QueryMetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kindCounts := make(map[QueryKind]int64, len(m.kindCounts))
	for k, v := range m.kindCounts {
		kindCounts[k] = v
	}

	modelCounts := make(map[string]int64)
	for _, key := range m.modelCounts.Keys() {
		if count, ok := m.modelCounts.Peek(key); ok {
			modelCounts[key] = count
		}
	}

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &QueryMetricsSnapshot{
		KindCounts:          kindCounts,
		ModelCounts:         modelCounts,
		ZeroResultQueries:   int64(m.zeroResults.Size()),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		Since:               m.startTime,
	}
}

// Flush persists in-memory metrics to the store. Safe to call with no store.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.RLock()
	snapshot := m.Snapshot()
	zeroResultEvents := m.zeroResults.Items()
	m.mu.RUnlock()

	today := time.Now().Format("2006-01-02")

	if err := m.store.SaveKindCounts(today, snapshot.KindCounts); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, snapshot.LatencyDistribution); err != nil {
		return err
	}
	for _, ev := range zeroResultEvents {
		if err := m.store.AddZeroResultQuery(ev.Kind, ev.Model, ev.Timestamp); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and releases resources.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}

	return m.Flush()
}
