// Package sqlite implements the store over a single SQLite database
// file. Namespace scans prefilter in SQL with an escaped LIKE on the
// dotted path; wildcard matching and value filters refine in Go, so
// the backend shares exact semantics with the Postgres store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/batch"
	"github.com/kartikbazzad/bunstore/internal/filter"
	"github.com/kartikbazzad/bunstore/internal/nspath"
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS store (
	prefix TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (prefix, key)
);
CREATE INDEX IF NOT EXISTS store_prefix_idx ON store(prefix);
`

// Store is a SQLite-backed bunstore backend. Batches are serialized on
// an internal mutex: SQLite has a single writer, and one statement
// sequence per handle keeps failure behavior predictable.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

var _ bunstore.Store = (*Store)(nil)

// Open opens (creating if needed) the database file at path and
// ensures the schema exists.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close closes the database file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Batch executes ops sequentially against the file and returns one
// result per op, positionally. A failing statement fails the whole
// call; earlier writes stay applied.
func (s *Store) Batch(ctx context.Context, ops []bunstore.Op) ([]any, error) {
	plan, err := batch.Build(ops)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, bunstore.ErrClosed
	}

	results := make([]any, plan.N)

	for _, g := range batch.GroupGets(plan.Gets) {
		if err := s.runGets(ctx, g, results); err != nil {
			return nil, err
		}
	}
	if err := s.runPuts(ctx, batch.Coalesce(plan.Puts)); err != nil {
		return nil, err
	}
	for _, q := range plan.Searches {
		items, err := s.runSearch(ctx, q.Op)
		if err != nil {
			return nil, err
		}
		results[q.Pos] = items
	}
	for _, l := range plan.Lists {
		namespaces, err := s.runList(ctx, l.Op)
		if err != nil {
			return nil, err
		}
		results[l.Pos] = namespaces
	}

	return results, nil
}

func (s *Store) runGets(ctx context.Context, g batch.GetGroup, results []any) error {
	path := nspath.Encode(g.Namespace)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(g.Keys)), ",")
	query := fmt.Sprintf(
		`SELECT key, value, created_at, updated_at FROM store WHERE prefix = ? AND key IN (%s)`,
		placeholders,
	)
	args := make([]any, 0, len(g.Keys)+1)
	args = append(args, path)
	for _, k := range g.Keys {
		args = append(args, k)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer rows.Close()

	items := make(map[string]*bunstore.Item, len(g.Keys))
	for rows.Next() {
		var key, rawValue, createdAt, updatedAt string
		if err := rows.Scan(&key, &rawValue, &createdAt, &updatedAt); err != nil {
			return fmt.Errorf("get %s: scan: %w", path, err)
		}
		item, err := decodeItem(path, key, rawValue, createdAt, updatedAt)
		if err != nil {
			return err
		}
		items[key] = item
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}

	for key, positions := range g.Positions {
		item, ok := items[key]
		if !ok {
			continue
		}
		for _, pos := range positions {
			results[pos] = item
		}
	}
	return nil
}

func (s *Store) runPuts(ctx context.Context, group batch.PutGroup) error {
	if len(group.Upserts) > 0 {
		now := s.now().Format(timeLayout)
		var sb strings.Builder
		sb.WriteString(`INSERT INTO store (prefix, key, value, created_at, updated_at) VALUES `)
		args := make([]any, 0, len(group.Upserts)*5)
		for i, op := range group.Upserts {
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return fmt.Errorf("put %s/%s: encode value: %w", nspath.Encode(op.Namespace), op.Key, err)
			}
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(?, ?, ?, ?, ?)")
			args = append(args, nspath.Encode(op.Namespace), op.Key, string(raw), now, now)
		}
		sb.WriteString(` ON CONFLICT (prefix, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
		if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("put: %w", err)
		}
	}

	var delPaths []string
	delKeys := make(map[string][]string)
	for _, op := range group.Deletes {
		path := nspath.Encode(op.Namespace)
		if _, ok := delKeys[path]; !ok {
			delPaths = append(delPaths, path)
		}
		delKeys[path] = append(delKeys[path], op.Key)
	}
	for _, path := range delPaths {
		keys := delKeys[path]
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
		query := fmt.Sprintf(`DELETE FROM store WHERE prefix = ? AND key IN (%s)`, placeholders)
		args := make([]any, 0, len(keys)+1)
		args = append(args, path)
		for _, k := range keys {
			args = append(args, k)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return nil
}

func (s *Store) runSearch(ctx context.Context, op bunstore.SearchOp) ([]*bunstore.Item, error) {
	path := nspath.Encode(op.NamespacePrefix)
	rows, err := s.db.QueryContext(ctx,
		`SELECT prefix, key, value, created_at, updated_at FROM store
		 WHERE (prefix = ? OR prefix LIKE ? ESCAPE '\')`,
		path, escapeLike(path)+".%",
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", path, err)
	}
	defer rows.Close()

	items := make([]*bunstore.Item, 0)
	for rows.Next() {
		var prefix, key, rawValue, createdAt, updatedAt string
		if err := rows.Scan(&prefix, &key, &rawValue, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("search %s: scan: %w", path, err)
		}
		item, err := decodeItem(prefix, key, rawValue, createdAt, updatedAt)
		if err != nil {
			return nil, err
		}
		if !filter.Evaluate(op.Filter, item.Value) {
			continue
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", path, err)
	}

	// Ordering the dotted text in SQL would put "a-b" before "a.b";
	// results order segment-wise, like the ltree backend.
	sort.Slice(items, func(i, j int) bool {
		if c := nspath.Compare(items[i].Namespace, items[j].Namespace); c != 0 {
			return c < 0
		}
		return items[i].Key < items[j].Key
	})
	return window(items, op.Offset, op.Limit), nil
}

func (s *Store) runList(ctx context.Context, op bunstore.ListNamespacesOp) ([]bunstore.Namespace, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT prefix FROM store`)
	if err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	namespaces := make([]bunstore.Namespace, 0)
	for rows.Next() {
		var prefix string
		if err := rows.Scan(&prefix); err != nil {
			return nil, fmt.Errorf("list namespaces: scan: %w", err)
		}
		ns, err := nspath.Decode([]byte(prefix))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bunstore.ErrDecode, err)
		}
		if !matchesConditions(ns, op.MatchConditions) {
			continue
		}
		truncated := nspath.Truncate(ns, op.MaxDepth)
		path := nspath.Encode(truncated)
		if !seen[path] {
			seen[path] = true
			namespaces = append(namespaces, bunstore.Namespace(truncated))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list namespaces: %w", err)
	}

	// Pagination windows the deduplicated set, ordered segment-wise.
	sort.Slice(namespaces, func(i, j int) bool {
		return nspath.Compare(namespaces[i], namespaces[j]) < 0
	})
	return window(namespaces, op.Offset, op.Limit), nil
}

// window applies offset/limit pagination over an ordered result set.
func window[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return make([]T, 0)
	}
	items = items[offset:]
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func matchesConditions(ns []string, conds []bunstore.MatchCondition) bool {
	for _, c := range conds {
		switch c.MatchType {
		case bunstore.MatchPrefix:
			if !nspath.HasPrefix(ns, c.Path) {
				return false
			}
		case bunstore.MatchSuffix:
			if !nspath.HasSuffix(ns, c.Path) {
				return false
			}
		}
	}
	return true
}

func decodeItem(path, key, rawValue, createdAt, updatedAt string) (*bunstore.Item, error) {
	ns, err := nspath.Decode([]byte(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bunstore.ErrDecode, err)
	}
	var value map[string]any
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		return nil, fmt.Errorf("%w: item %s/%s value: %v", bunstore.ErrDecode, path, key, err)
	}
	created, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s/%s created_at: %v", bunstore.ErrDecode, path, key, err)
	}
	updated, err := time.Parse(timeLayout, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: item %s/%s updated_at: %v", bunstore.ErrDecode, path, key, err)
	}
	return &bunstore.Item{
		Namespace: bunstore.Namespace(ns),
		Key:       key,
		Value:     value,
		CreatedAt: created,
		UpdatedAt: updated,
	}, nil
}

// escapeLike escapes LIKE metacharacters so a dotted path can be used
// as a literal prefix pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
