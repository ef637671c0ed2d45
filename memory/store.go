// Package memory implements the store over an in-process ordered map.
// It shares exact batch semantics with the SQL backends and is the
// backend of choice for tests, the interactive shell, and ephemeral
// servers.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/emirpasic/gods/maps/treemap"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/batch"
	"github.com/kartikbazzad/bunstore/internal/filter"
	"github.com/kartikbazzad/bunstore/internal/nspath"
)

// record is one stored pair. Values are held as canonical JSON so
// readers always get fresh, JSON-shaped maps and callers can mutate
// what they put or got without reaching into the store.
type record struct {
	path      string
	key       string
	value     []byte
	createdAt time.Time
	updatedAt time.Time
}

// Store is an in-memory bunstore backend. The zero value is not usable;
// call New.
type Store struct {
	mu     sync.RWMutex
	items  *treemap.Map
	closed bool
	now    func() time.Time
}

var _ bunstore.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		items: treemap.NewWithStringComparator(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Close marks the store closed. Subsequent batches fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Batch executes ops and returns one result per op, positionally.
func (s *Store) Batch(ctx context.Context, ops []bunstore.Op) ([]any, error) {
	plan, err := batch.Build(ops)
	if err != nil {
		return nil, err
	}

	// Render the write set up front so an unencodable value fails the
	// batch before any effect is applied, like a statement that fails
	// to build.
	writes, err := renderPuts(plan.Puts)
	if err != nil {
		return nil, err
	}

	if len(plan.Puts) > 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
	} else {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	if s.closed {
		return nil, bunstore.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]any, plan.N)

	for _, g := range plan.Gets {
		item, err := s.getOne(g.Op.Namespace, g.Op.Key)
		if err != nil {
			return nil, err
		}
		if item != nil {
			results[g.Pos] = item
		}
	}

	now := s.now()
	for _, w := range writes {
		s.applyWrite(w, now)
	}

	for _, q := range plan.Searches {
		items, err := s.search(q.Op)
		if err != nil {
			return nil, err
		}
		results[q.Pos] = items
	}

	for _, l := range plan.Lists {
		namespaces, err := s.listNamespaces(l.Op)
		if err != nil {
			return nil, err
		}
		results[l.Pos] = namespaces
	}

	return results, nil
}

type write struct {
	path  string
	key   string
	value []byte // nil is a tombstone
}

func renderPuts(puts []batch.Indexed[bunstore.PutOp]) ([]write, error) {
	writes := make([]write, 0, len(puts))
	for _, p := range puts {
		w := write{path: nspath.Encode(p.Op.Namespace), key: p.Op.Key}
		if p.Op.Value != nil {
			raw, err := json.Marshal(p.Op.Value)
			if err != nil {
				return nil, fmt.Errorf("put %q/%q: encode value: %w", w.path, w.key, err)
			}
			w.value = raw
		}
		writes = append(writes, w)
	}
	return writes, nil
}

func (s *Store) applyWrite(w write, now time.Time) {
	ck := compositeKey(w.path, w.key)
	if w.value == nil {
		s.items.Remove(ck)
		return
	}
	created := now
	if prev, ok := s.items.Get(ck); ok {
		created = prev.(*record).createdAt
	}
	s.items.Put(ck, &record{
		path:      w.path,
		key:       w.key,
		value:     w.value,
		createdAt: created,
		updatedAt: now,
	})
}

func (s *Store) getOne(ns bunstore.Namespace, key string) (*bunstore.Item, error) {
	v, ok := s.items.Get(compositeKey(nspath.Encode(ns), key))
	if !ok {
		return nil, nil
	}
	return v.(*record).item()
}

func (s *Store) search(op bunstore.SearchOp) ([]*bunstore.Item, error) {
	items := make([]*bunstore.Item, 0)

	it := s.items.Iterator()
	for it.Next() {
		rec := it.Value().(*record)
		ns, err := nspath.Decode([]byte(rec.path))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", bunstore.ErrDecode, err)
		}
		if !nspath.HasPrefix(ns, op.NamespacePrefix) {
			continue
		}
		var value map[string]any
		if err := json.Unmarshal(rec.value, &value); err != nil {
			return nil, fmt.Errorf("%w: item %s/%s: %v", bunstore.ErrDecode, rec.path, rec.key, err)
		}
		if !filter.Evaluate(op.Filter, value) {
			continue
		}
		items = append(items, &bunstore.Item{
			Namespace: ns,
			Key:       rec.key,
			Value:     value,
			CreatedAt: rec.createdAt,
			UpdatedAt: rec.updatedAt,
		})
	}

	// The map iterates in dotted-path order, which diverges from
	// segment order for segments sorting before the separator.
	sort.Slice(items, func(i, j int) bool {
		if c := nspath.Compare(items[i].Namespace, items[j].Namespace); c != 0 {
			return c < 0
		}
		return items[i].Key < items[j].Key
	})
	return window(items, op.Offset, op.Limit), nil
}

func (s *Store) listNamespaces(op bunstore.ListNamespacesOp) ([]bunstore.Namespace, error) {
	seen := make(map[string]bool)
	namespaces := make([]bunstore.Namespace, 0)

	lastPath := ""
	it := s.items.Iterator()
	for it.Next() {
		rec := it.Value().(*record)
		if rec.path == lastPath {
			continue
		}
		lastPath = rec.path

		ns, err := nspath.Decode([]byte(rec.path))
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

func (r *record) item() (*bunstore.Item, error) {
	ns, err := nspath.Decode([]byte(r.path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", bunstore.ErrDecode, err)
	}
	var value map[string]any
	if err := json.Unmarshal(r.value, &value); err != nil {
		return nil, fmt.Errorf("%w: item %s/%s: %v", bunstore.ErrDecode, r.path, r.key, err)
	}
	return &bunstore.Item{
		Namespace: ns,
		Key:       r.key,
		Value:     value,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
	}, nil
}

func compositeKey(path, key string) string {
	return path + "\x00" + key
}
