// Package postgres implements the store over Postgres with ltree
// namespace paths and jsonb values. Each batch is rendered into as few
// statements as possible and sent as one pgx pipeline group, so a
// mixed batch costs one round trip.
package postgres

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/batch"
	"github.com/kartikbazzad/bunstore/internal/logger"
)

// Conn is the slice of the pgx surface the store drives. *pgxpool.Pool,
// *pgx.Conn, and pgx.Tx all satisfy it.
type Conn interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store is a Postgres-backed bunstore backend.
//
// A pool handle runs each batch on its own checked-out connection, so
// concurrent batches pipeline independently. A single-connection handle
// serializes batches with a mutex: one pipeline per connection.
type Store struct {
	conn      Conn
	serialize bool
	pipe      sync.Mutex

	mu      sync.Mutex
	closed  bool
	closeFn func() error
}

var _ bunstore.Store = (*Store)(nil)

// Open connects a pool to dsn, verifies it, and returns a store over
// it. Query tracing is wired into the process logger at warn level.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   traceLogger{log: logger.Get()},
		LogLevel: tracelog.LogLevelWarn,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPool(pool), nil
}

// NewPool wraps an existing pool. Close closes the pool.
func NewPool(pool *pgxpool.Pool) *Store {
	return &Store{
		conn:    pool,
		closeFn: func() error { pool.Close(); return nil },
	}
}

// NewConn wraps a single connection. Concurrent batches queue on an
// internal mutex so the connection never carries two pipelines at
// once. Close closes the connection.
func NewConn(conn *pgx.Conn) *Store {
	return &Store{
		conn:      conn,
		serialize: true,
		closeFn:   func() error { return conn.Close(context.Background()) },
	}
}

// Close releases the underlying handle. Batches issued after Close
// fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Batch executes ops as one pipelined statement group and returns one
// result per op, positionally. A failed or cancelled batch returns an
// error for the whole call; statements that already ran stay applied.
func (s *Store) Batch(ctx context.Context, ops []bunstore.Op) ([]any, error) {
	if s.isClosed() {
		return nil, bunstore.ErrClosed
	}
	plan, err := batch.Build(ops)
	if err != nil {
		return nil, err
	}

	results := make([]any, plan.N)
	stmts, err := buildStatements(plan)
	if err != nil {
		return nil, err
	}
	if len(stmts) == 0 {
		return results, nil
	}

	if s.serialize {
		s.pipe.Lock()
		defer s.pipe.Unlock()
	}

	b := &pgx.Batch{}
	for _, st := range stmts {
		b.Queue(st.sql, st.args...)
	}

	br := s.conn.SendBatch(ctx, b)
	for _, st := range stmts {
		if err := st.read(br, results); err != nil {
			br.Close()
			return nil, err
		}
	}
	if err := br.Close(); err != nil {
		return nil, fmt.Errorf("close batch: %w", err)
	}
	return results, nil
}
