package metrics

import "sync"

// Snapshot is a point-in-time view of the aggregator.
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
}

// Aggregator counts successful extractions and their latency. It is safe
// for concurrent use.
type Aggregator struct {
	mu             sync.Mutex
	totalRequests  int64
	totalLatencyMs float64
}

func New() *Aggregator {
	return &Aggregator{}
}

// Record adds one request with the given latency.
func (a *Aggregator) Record(latencyMs float64) {
	a.mu.Lock()
	a.totalRequests++
	a.totalLatencyMs += latencyMs
	a.mu.Unlock()
}

// Snapshot returns the request count and mean latency (0 with no requests).
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := Snapshot{TotalRequests: a.totalRequests}
	if a.totalRequests > 0 {
		s.AvgLatencyMs = a.totalLatencyMs / float64(a.totalRequests)
	}
	return s
}

// Reset zeroes all counters.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.totalRequests = 0
	a.totalLatencyMs = 0
	a.mu.Unlock()
}
