// Package bunstore implements a hierarchical, namespaced key-value
// store with a batch-first client API.
//
// Key Features:
//   - Items are schema-less JSON objects addressed by (namespace, key),
//     where a namespace is an ordered tuple of path segments
//   - Heterogeneous batches: gets, puts, deletes, searches, and
//     namespace listings submitted together and answered positionally
//   - Pipelined execution on Postgres (one round-trip group per batch),
//     with SQLite and in-memory backends sharing the same semantics
//   - Wildcard namespace matching and depth-truncated namespace listing
//   - Value filtering by field equality and list containment
//
// Architecture:
// The batch engine classifies operations by kind, groups them into as
// few backend statements as possible, executes the statements in order,
// and scatters decoded rows back to each operation's original slot.
// Backends (postgres, sqlite, memory) implement Store; everything above
// the Store interface is backend-agnostic.
package bunstore

import "context"

// Default pagination applied when an op does not set a positive limit.
const (
	DefaultSearchLimit = 10
	DefaultListLimit   = 100
)

// Store executes batches of operations against one backend.
//
// Batch returns exactly len(ops) results; results[i] corresponds to
// ops[i] no matter how the backend grouped or ordered the work. Slot
// types by op kind: GetOp yields *Item or nil, PutOp yields nil,
// SearchOp yields []*Item, ListNamespacesOp yields []Namespace.
//
// Batching reduces round trips; it is not a transaction. A batch that
// fails or is cancelled partway may leave earlier writes applied.
type Store interface {
	Batch(ctx context.Context, ops []Op) ([]any, error)
	Close() error
}

// A QueryOption adjusts a search or namespace-listing operation built
// by the convenience wrappers. Options that do not apply to the
// operation at hand are ignored.
type QueryOption func(*queryOptions)

type queryOptions struct {
	filter     map[string]any
	limit      int
	offset     int
	maxDepth   int
	conditions []MatchCondition
}

// WithFilter narrows Search results to items whose values satisfy f:
// scalar and object fields by equality, list fields by superset
// containment, all fields together.
func WithFilter(f map[string]any) QueryOption {
	return func(o *queryOptions) { o.filter = f }
}

// WithLimit caps the number of results returned.
func WithLimit(n int) QueryOption {
	return func(o *queryOptions) { o.limit = n }
}

// WithOffset skips the first n results of the ordered result set.
func WithOffset(n int) QueryOption {
	return func(o *queryOptions) { o.offset = n }
}

// WithMaxDepth truncates listed namespaces to their first d segments
// before deduplication.
func WithMaxDepth(d int) QueryOption {
	return func(o *queryOptions) { o.maxDepth = d }
}

// WithMatch adds a prefix or suffix condition to ListNamespaces. The
// segment "*" matches exactly one namespace segment.
func WithMatch(mt MatchType, path ...string) QueryOption {
	return func(o *queryOptions) {
		o.conditions = append(o.conditions, MatchCondition{MatchType: mt, Path: path})
	}
}

// Get reads one item, or nil when the pair does not exist.
func Get(ctx context.Context, s Store, ns Namespace, key string) (*Item, error) {
	results, err := s.Batch(ctx, []Op{GetOp{Namespace: ns, Key: key}})
	if err != nil {
		return nil, err
	}
	item, _ := results[0].(*Item)
	return item, nil
}

// Put writes one item, replacing any existing value for the pair.
func Put(ctx context.Context, s Store, ns Namespace, key string, value map[string]any) error {
	if value == nil {
		value = map[string]any{}
	}
	_, err := s.Batch(ctx, []Op{PutOp{Namespace: ns, Key: key, Value: value}})
	return err
}

// Delete removes one item. Deleting a missing pair is not an error.
func Delete(ctx context.Context, s Store, ns Namespace, key string) error {
	_, err := s.Batch(ctx, []Op{PutOp{Namespace: ns, Key: key, Value: nil}})
	return err
}

// Search scans namespaces at or under prefix and returns matching
// items ordered by namespace path then key. Default limit is
// DefaultSearchLimit.
func Search(ctx context.Context, s Store, prefix Namespace, opts ...QueryOption) ([]*Item, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	results, err := s.Batch(ctx, []Op{SearchOp{
		NamespacePrefix: prefix,
		Filter:          o.filter,
		Limit:           o.limit,
		Offset:          o.offset,
	}})
	if err != nil {
		return nil, err
	}
	items, _ := results[0].([]*Item)
	return items, nil
}

// ListNamespaces enumerates distinct namespaces ordered by path.
// Default limit is DefaultListLimit.
func ListNamespaces(ctx context.Context, s Store, opts ...QueryOption) ([]Namespace, error) {
	var o queryOptions
	for _, opt := range opts {
		opt(&o)
	}
	results, err := s.Batch(ctx, []Op{ListNamespacesOp{
		MatchConditions: o.conditions,
		MaxDepth:        o.maxDepth,
		Limit:           o.limit,
		Offset:          o.offset,
	}})
	if err != nil {
		return nil, err
	}
	namespaces, _ := results[0].([]Namespace)
	return namespaces, nil
}
