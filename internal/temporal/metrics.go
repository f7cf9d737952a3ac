package temporal

import (
	"sync"
	"time"
)

// QueryMetric records one windowed query: wall time observed by the
// caller and the driver-reported time where available.
type QueryMetric struct {
	Name       string    `json:"name"`
	WallMs     float64   `json:"wall_ms"`
	DriverMs   float64   `json:"driver_ms"`
	CacheHit   bool      `json:"cache_hit"`
	RecordedAt time.Time `json:"recorded_at"`
}

const ringSize = 256

// MetricsRing is a fixed-size ring buffer of recent query metrics. It
// is the only in-process query telemetry state; writers never block and
// old entries are overwritten.
type MetricsRing struct {
	mu      sync.Mutex
	entries [ringSize]QueryMetric
	next    int
	filled  int
	hits    int
	total   int
}

func NewMetricsRing() *MetricsRing {
	return &MetricsRing{}
}

// Record appends one metric, overwriting the oldest once full.
func (r *MetricsRing) Record(m QueryMetric) {
	if m.RecordedAt.IsZero() {
		m.RecordedAt = time.Now().UTC()
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[r.next] = m
	r.next = (r.next + 1) % ringSize
	if r.filled < ringSize {
		r.filled++
	}
	r.total++
	if m.CacheHit {
		r.hits++
	}
}

// Snapshot returns the retained metrics oldest-first plus the running
// averages the telemetry endpoint reports.
func (r *MetricsRing) Snapshot() (entries []QueryMetric, avgWallMs, cacheHitRate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries = make([]QueryMetric, 0, r.filled)
	start := 0
	if r.filled == ringSize {
		start = r.next
	}
	for i := 0; i < r.filled; i++ {
		entries = append(entries, r.entries[(start+i)%ringSize])
	}

	var sum float64
	for _, m := range entries {
		sum += m.WallMs
	}
	if len(entries) > 0 {
		avgWallMs = sum / float64(len(entries))
	}
	if r.total > 0 {
		cacheHitRate = float64(r.hits) / float64(r.total)
	}
	return entries, avgWallMs, cacheHitRate
}

// Last returns the most recent metric, if any.
func (r *MetricsRing) Last() (QueryMetric, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.filled == 0 {
		return QueryMetric{}, false
	}
	idx := (r.next - 1 + ringSize) % ringSize
	return r.entries[idx], true
}
