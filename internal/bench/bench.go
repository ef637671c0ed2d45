// Package bench load-tests a store with concurrent batch workloads and
// reports throughput and latency percentiles.
package bench

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/logger"
)

// Workload is the mix of operations per batch: put-only, get-only,
// search-only, or mixed (half gets, half puts).
type Workload string

const (
	WorkloadPut    Workload = "put"
	WorkloadGet    Workload = "get"
	WorkloadSearch Workload = "search"
	WorkloadMixed  Workload = "mixed"
)

// Config configures a benchmark run.
type Config struct {
	Duration   time.Duration // how long to run
	Workers    int           // concurrent workers submitting batches
	BatchSize  int           // ops per batch (searches always batch 1)
	KeySpace   int           // number of distinct keys per namespace
	Namespaces int           // number of distinct namespaces
	Workload   Workload
}

// DefaultConfig returns the default benchmark configuration.
func DefaultConfig() Config {
	return Config{
		Duration:   10 * time.Second,
		Workers:    8,
		BatchSize:  32,
		KeySpace:   10000,
		Namespaces: 16,
		Workload:   WorkloadMixed,
	}
}

// Run spawns cfg.Workers workers on a bounded pool, each submitting
// batches against store until cfg.Duration elapses, then aggregates a
// Report.
func Run(ctx context.Context, store bunstore.Store, cfg Config) (*Report, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.KeySpace <= 0 {
		cfg.KeySpace = 10000
	}
	if cfg.Namespaces <= 0 {
		cfg.Namespaces = 1
	}
	if cfg.Workload == "" {
		cfg.Workload = WorkloadMixed
	}

	log := logger.Get()
	st := newStats()

	pool, err := ants.NewPool(cfg.Workers, ants.WithPanicHandler(func(v any) {
		log.Error("bench worker panic", "panic", v)
	}))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.ReleaseTimeout(3 * time.Second)

	start := time.Now()
	deadline := start.Add(cfg.Duration)

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		workerID := i
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			runWorker(ctx, store, cfg, workerID, deadline, st)
		}); err != nil {
			wg.Done()
			st.record(0, 0, err)
		}
	}
	wg.Wait()

	return st.report(time.Since(start)), nil
}

func runWorker(ctx context.Context, store bunstore.Store, cfg Config, workerID int, deadline time.Time, st *stats) {
	rng := rand.New(rand.NewSource(int64(workerID)))

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ops := buildBatch(cfg, workerID, rng)
		opStart := time.Now()
		_, err := store.Batch(ctx, ops)
		st.record(time.Since(opStart), len(ops), err)
	}
}

func buildBatch(cfg Config, workerID int, rng *rand.Rand) []bunstore.Op {
	ns := func() bunstore.Namespace {
		return bunstore.Namespace{"bench", fmt.Sprintf("ns%d", rng.Intn(cfg.Namespaces))}
	}
	key := func() string {
		return fmt.Sprintf("k%d", rng.Intn(cfg.KeySpace))
	}
	value := func(seq int) map[string]any {
		return map[string]any{"worker": workerID, "seq": seq}
	}

	switch cfg.Workload {
	case WorkloadGet:
		ops := make([]bunstore.Op, cfg.BatchSize)
		for i := range ops {
			ops[i] = bunstore.GetOp{Namespace: ns(), Key: key()}
		}
		return ops
	case WorkloadSearch:
		return []bunstore.Op{bunstore.SearchOp{
			NamespacePrefix: bunstore.Namespace{"bench"},
			Filter:          map[string]any{"worker": workerID},
			Limit:           10,
		}}
	case WorkloadPut:
		ops := make([]bunstore.Op, cfg.BatchSize)
		for i := range ops {
			ops[i] = bunstore.PutOp{Namespace: ns(), Key: key(), Value: value(i)}
		}
		return ops
	default:
		ops := make([]bunstore.Op, cfg.BatchSize)
		for i := range ops {
			if rng.Intn(2) == 0 {
				ops[i] = bunstore.PutOp{Namespace: ns(), Key: key(), Value: value(i)}
			} else {
				ops[i] = bunstore.GetOp{Namespace: ns(), Key: key()}
			}
		}
		return ops
	}
}
