package memory

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	bunstore "github.com/kartikbazzad/bunstore"
)

// fixedClock advances one second per reading so update times are
// strictly ordered without sleeping.
func fixedClock() func() time.Time {
	t := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New()
	s.now = fixedClock()
	return s
}

func put(t *testing.T, s *Store, ns bunstore.Namespace, key string, value map[string]any) {
	t.Helper()
	if err := bunstore.Put(context.Background(), s, ns, key, value); err != nil {
		t.Fatalf("Put %v/%s failed: %v", ns, key, err)
	}
}

func TestBatchPositionalResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test", "docs"}

	put(t, s, ns, "existing", map[string]any{"title": "hello"})

	ops := []bunstore.Op{
		bunstore.PutOp{Namespace: ns, Key: "new", Value: map[string]any{"title": "new doc"}},
		bunstore.GetOp{Namespace: ns, Key: "existing"},
		bunstore.ListNamespacesOp{},
		bunstore.SearchOp{NamespacePrefix: bunstore.Namespace{"test"}},
		bunstore.GetOp{Namespace: ns, Key: "missing"},
	}

	results, err := s.Batch(ctx, ops)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(results) != len(ops) {
		t.Fatalf("len(results) = %d, want %d", len(results), len(ops))
	}

	if results[0] != nil {
		t.Errorf("put result = %v, want nil", results[0])
	}
	item, ok := results[1].(*bunstore.Item)
	if !ok || item == nil {
		t.Fatalf("get result = %T(%v), want *Item", results[1], results[1])
	}
	if item.Value["title"] != "hello" {
		t.Errorf("get value = %v, want title=hello", item.Value)
	}
	if _, ok := results[2].([]bunstore.Namespace); !ok {
		t.Errorf("list result = %T, want []Namespace", results[2])
	}
	if _, ok := results[3].([]*bunstore.Item); !ok {
		t.Errorf("search result = %T, want []*Item", results[3])
	}
	if results[4] != nil {
		t.Errorf("missing get = %v, want nil", results[4])
	}
}

func TestBatchReorderInvariance(t *testing.T) {
	ctx := context.Background()

	ops := []bunstore.Op{
		bunstore.PutOp{Namespace: bunstore.Namespace{"a"}, Key: "k1", Value: map[string]any{"n": 1}},
		bunstore.GetOp{Namespace: bunstore.Namespace{"b"}, Key: "k2"},
		bunstore.SearchOp{NamespacePrefix: bunstore.Namespace{"c"}},
		bunstore.ListNamespacesOp{},
	}
	perm := []int{2, 0, 3, 1}

	seed := func() *Store {
		s := newTestStore(t)
		put(t, s, bunstore.Namespace{"b"}, "k2", map[string]any{"n": 2})
		put(t, s, bunstore.Namespace{"c", "x"}, "k3", map[string]any{"n": 3})
		return s
	}

	s1 := seed()
	base, err := s1.Batch(ctx, ops)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}

	shuffled := make([]bunstore.Op, len(ops))
	for i, j := range perm {
		shuffled[i] = ops[j]
	}
	s2 := seed()
	got, err := s2.Batch(ctx, shuffled)
	if err != nil {
		t.Fatalf("shuffled Batch failed: %v", err)
	}

	for i, j := range perm {
		if !reflect.DeepEqual(got[i], base[j]) {
			t.Errorf("result %d = %#v, want original result %d = %#v", i, got[i], j, base[j])
		}
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"users", "alice"}
	value := map[string]any{"theme": "dark", "fontSize": 14}

	put(t, s, ns, "prefs", value)

	item, err := bunstore.Get(ctx, s, ns, "prefs")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item == nil {
		t.Fatal("Get returned nil for existing item")
	}
	if item.Value["theme"] != "dark" {
		t.Errorf("theme = %v, want dark", item.Value["theme"])
	}
	// JSON canonicalizes numbers to float64.
	if item.Value["fontSize"] != float64(14) {
		t.Errorf("fontSize = %v (%T), want 14", item.Value["fontSize"], item.Value["fontSize"])
	}
	if item.CreatedAt.IsZero() || item.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}

	// Update keeps CreatedAt, advances UpdatedAt.
	put(t, s, ns, "prefs", map[string]any{"theme": "light"})
	updated, err := bunstore.Get(ctx, s, ns, "prefs")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if !updated.CreatedAt.Equal(item.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", item.CreatedAt, updated.CreatedAt)
	}
	if !updated.UpdatedAt.After(item.UpdatedAt) {
		t.Errorf("UpdatedAt did not advance: %v -> %v", item.UpdatedAt, updated.UpdatedAt)
	}
}

func TestDeleteRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test"}

	put(t, s, ns, "doomed", map[string]any{"x": 1})
	if err := bunstore.Delete(ctx, s, ns, "doomed"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	item, err := bunstore.Get(ctx, s, ns, "doomed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item != nil {
		t.Errorf("item survived delete: %+v", item)
	}

	// Deleting a missing pair is not an error.
	if err := bunstore.Delete(ctx, s, ns, "doomed"); err != nil {
		t.Errorf("Delete of missing pair failed: %v", err)
	}
}

func TestValueIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test"}

	value := map[string]any{"n": 1}
	put(t, s, ns, "k", value)
	value["n"] = 99

	item, err := bunstore.Get(ctx, s, ns, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Value["n"] != float64(1) {
		t.Errorf("stored value changed through caller's map: %v", item.Value["n"])
	}

	item.Value["n"] = 42
	again, _ := bunstore.Get(ctx, s, ns, "k")
	if again.Value["n"] != float64(1) {
		t.Errorf("stored value changed through returned item: %v", again.Value["n"])
	}
}

func seedNamespaces(t *testing.T, s *Store, pref string) {
	t.Helper()
	for i, ns := range []bunstore.Namespace{
		{pref, "namespace1", "documents"},
		{pref, "namespace2", "documents"},
		{pref, "namespace3", "documents", "extra", "deep"},
		{pref, "public", "documents"},
		{"other", "public", pref},
	} {
		put(t, s, ns, fmt.Sprintf("item%d", i), map[string]any{"i": i})
	}
}

func TestListNamespacesWildcardPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedNamespaces(t, s, "test")

	got, err := bunstore.ListNamespaces(ctx, s,
		bunstore.WithMatch(bunstore.MatchPrefix, "test", "*", "documents"))
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}

	want := []bunstore.Namespace{
		{"test", "namespace1", "documents"},
		{"test", "namespace2", "documents"},
		{"test", "namespace3", "documents", "extra", "deep"},
		{"test", "public", "documents"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("namespaces = %v, want %v", got, want)
	}
}

func TestListNamespacesSuffix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedNamespaces(t, s, "test")

	got, err := bunstore.ListNamespaces(ctx, s,
		bunstore.WithMatch(bunstore.MatchSuffix, "public", "test"))
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	want := []bunstore.Namespace{{"other", "public", "test"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("namespaces = %v, want %v", got, want)
	}
}

func TestListNamespacesMaxDepthDedup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, ns := range []bunstore.Namespace{
		{"deep", "a", "x", "1"},
		{"deep", "a", "x", "2"},
		{"deep", "a", "y", "1"},
		{"deep", "b"},
	} {
		put(t, s, ns, fmt.Sprintf("k%d", i), map[string]any{"i": i})
	}

	got, err := bunstore.ListNamespaces(ctx, s, bunstore.WithMaxDepth(2))
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	want := []bunstore.Namespace{{"deep", "a"}, {"deep", "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("namespaces = %v, want %v", got, want)
	}
}

func TestSegmentWiseOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// "ns.a-b" sorts before "ns.a.b" as a string; segment order puts
	// {ns a b} first, matching the ltree backend.
	put(t, s, bunstore.Namespace{"ns", "a", "b"}, "k", map[string]any{"n": 1})
	put(t, s, bunstore.Namespace{"ns", "a-b"}, "k", map[string]any{"n": 2})

	namespaces, err := bunstore.ListNamespaces(ctx, s)
	if err != nil {
		t.Fatalf("ListNamespaces failed: %v", err)
	}
	wantNS := []bunstore.Namespace{{"ns", "a", "b"}, {"ns", "a-b"}}
	if !reflect.DeepEqual(namespaces, wantNS) {
		t.Errorf("namespaces = %v, want %v", namespaces, wantNS)
	}

	items, err := bunstore.Search(ctx, s, bunstore.Namespace{"ns"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	if items[0].Namespace.String() != "ns.a.b" || items[1].Namespace.String() != "ns.a-b" {
		t.Errorf("item order = %v, %v; want ns.a.b then ns.a-b",
			items[0].Namespace, items[1].Namespace)
	}
}

func TestListNamespacesPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		put(t, s, bunstore.Namespace{"page", fmt.Sprintf("ns%d", i)}, "k", map[string]any{"i": i})
	}

	// Windows tile the ordered set without overlap or gaps.
	var all []bunstore.Namespace
	for off := 0; off < 5; off += 2 {
		page, err := bunstore.ListNamespaces(ctx, s, bunstore.WithLimit(2), bunstore.WithOffset(off))
		if err != nil {
			t.Fatalf("ListNamespaces offset %d failed: %v", off, err)
		}
		all = append(all, page...)
	}
	if len(all) != 5 {
		t.Fatalf("pages sum to %d namespaces, want 5", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].String() >= all[i].String() {
			t.Errorf("pages out of order at %d: %v >= %v", i, all[i-1], all[i])
		}
	}
}

func TestSearchFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test", "docs"}

	put(t, s, ns, "doc1", map[string]any{"title": "First", "author": "John Doe", "tags": []any{"draft", "urgent"}})
	put(t, s, ns, "doc2", map[string]any{"title": "Second", "author": "Jane Doe", "tags": []any{"final"}})
	put(t, s, ns, "doc3", map[string]any{"title": "Third", "author": "John Doe", "tags": []any{"draft"}})

	t.Run("equality", func(t *testing.T) {
		items, err := bunstore.Search(ctx, s, bunstore.Namespace{"test"},
			bunstore.WithFilter(map[string]any{"author": "John Doe"}))
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("got %d items, want 2", len(items))
		}
		for _, item := range items {
			if item.Value["author"] != "John Doe" {
				t.Errorf("item %s author = %v", item.Key, item.Value["author"])
			}
		}
	})

	t.Run("containment", func(t *testing.T) {
		items, err := bunstore.Search(ctx, s, bunstore.Namespace{"test"},
			bunstore.WithFilter(map[string]any{"tags": []any{"draft"}}))
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("got %d items, want 2", len(items))
		}
		if items[0].Key != "doc1" || items[1].Key != "doc3" {
			t.Errorf("keys = %s, %s; want doc1, doc3", items[0].Key, items[1].Key)
		}
	})

	t.Run("combined", func(t *testing.T) {
		items, err := bunstore.Search(ctx, s, bunstore.Namespace{"test"},
			bunstore.WithFilter(map[string]any{"author": "John Doe", "tags": []any{"urgent"}}))
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if len(items) != 1 || items[0].Key != "doc1" {
			t.Errorf("items = %v, want only doc1", items)
		}
	})

	t.Run("no matches", func(t *testing.T) {
		items, err := bunstore.Search(ctx, s, bunstore.Namespace{"test"},
			bunstore.WithFilter(map[string]any{"author": "Nobody"}))
		if err != nil {
			t.Fatalf("Search failed: %v", err)
		}
		if items == nil {
			t.Fatal("search result should be non-nil")
		}
		if len(items) != 0 {
			t.Errorf("got %d items, want 0", len(items))
		}
	})
}

func TestSearchPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"page"}
	for i := 0; i < 7; i++ {
		put(t, s, ns, fmt.Sprintf("k%d", i), map[string]any{"i": i})
	}

	var keys []string
	for off := 0; off < 7; off += 3 {
		items, err := bunstore.Search(ctx, s, ns, bunstore.WithLimit(3), bunstore.WithOffset(off))
		if err != nil {
			t.Fatalf("Search offset %d failed: %v", off, err)
		}
		for _, item := range items {
			keys = append(keys, item.Key)
		}
	}
	if len(keys) != 7 {
		t.Fatalf("pages sum to %d items, want 7", len(keys))
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		if seen[k] {
			t.Errorf("key %s appears in two pages", k)
		}
		seen[k] = true
	}
}

func TestSearchSeesSameBatchPuts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test"}

	results, err := s.Batch(ctx, []bunstore.Op{
		bunstore.SearchOp{NamespacePrefix: ns},
		bunstore.PutOp{Namespace: ns, Key: "k", Value: map[string]any{"v": 1}},
	})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	items := results[0].([]*bunstore.Item)
	if len(items) != 1 || items[0].Key != "k" {
		t.Errorf("search did not observe same-batch put: %v", items)
	}
}

func TestBatchPutCoalescing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test"}

	_, err := s.Batch(ctx, []bunstore.Op{
		bunstore.PutOp{Namespace: ns, Key: "k", Value: map[string]any{"v": 1}},
		bunstore.PutOp{Namespace: ns, Key: "k", Value: map[string]any{"v": 2}},
	})
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	item, err := bunstore.Get(ctx, s, ns, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item.Value["v"] != float64(2) {
		t.Errorf("v = %v, want last write 2", item.Value["v"])
	}
}

func TestBatchInvalidOpFailsWhole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ns := bunstore.Namespace{"test"}

	_, err := s.Batch(ctx, []bunstore.Op{
		bunstore.PutOp{Namespace: ns, Key: "k", Value: map[string]any{"v": 1}},
		bunstore.GetOp{Namespace: ns, Key: ""},
	})
	if !errors.Is(err, bunstore.ErrInvalidKey) {
		t.Fatalf("error = %v, want ErrInvalidKey", err)
	}

	// The valid put must not have been applied.
	item, err := bunstore.Get(ctx, s, ns, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if item != nil {
		t.Error("put applied despite batch validation failure")
	}
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_, err := s.Batch(context.Background(), []bunstore.Op{
		bunstore.GetOp{Namespace: bunstore.Namespace{"a"}, Key: "k"},
	})
	if !errors.Is(err, bunstore.ErrClosed) {
		t.Errorf("error = %v, want ErrClosed", err)
	}
}

func TestEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	results, err := s.Batch(context.Background(), nil)
	if err != nil {
		t.Fatalf("Batch failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results = %v, want empty", results)
	}
}
