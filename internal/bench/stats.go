package bench

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// stats collects batch latency samples and computes percentiles and
// throughput.
type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	batches   int64
	ops       int64
	errors    int64
}

func newStats() *stats {
	return &stats{latencies: make([]time.Duration, 0, 1024)}
}

// record records one batch of n ops. If err is non-nil the batch
// counts as an error and its latency is discarded.
func (s *stats) record(latency time.Duration, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches++
	s.ops += int64(n)
	if err != nil {
		s.errors++
		return
	}
	s.latencies = append(s.latencies, latency)
}

func (s *stats) report(duration time.Duration) *Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Report{
		TotalBatches: s.batches,
		TotalOps:     s.ops,
		Errors:       s.errors,
		Duration:     duration,
	}
	if duration > 0 {
		r.BatchesPerSec = float64(s.batches) / duration.Seconds()
		r.OpsPerSec = float64(s.ops) / duration.Seconds()
	}
	if len(s.latencies) == 0 {
		return r
	}

	lats := make([]time.Duration, len(s.latencies))
	copy(lats, s.latencies)
	sort.Slice(lats, func(i, j int) bool { return lats[i] < lats[j] })
	n := len(lats)
	r.P50Latency = lats[n*50/100]
	r.P95Latency = lats[n*95/100]
	r.P99Latency = lats[n*99/100]
	return r
}

// Report is the result of a benchmark run.
type Report struct {
	TotalBatches  int64
	TotalOps      int64
	Errors        int64
	Duration      time.Duration
	BatchesPerSec float64
	OpsPerSec     float64
	P50Latency    time.Duration
	P95Latency    time.Duration
	P99Latency    time.Duration
}

func (r *Report) String() string {
	return fmt.Sprintf(
		"batches=%d ops=%d errors=%d duration=%v batches/sec=%.0f ops/sec=%.0f P50=%v P95=%v P99=%v",
		r.TotalBatches, r.TotalOps, r.Errors, r.Duration,
		r.BatchesPerSec, r.OpsPerSec, r.P50Latency, r.P95Latency, r.P99Latency,
	)
}
