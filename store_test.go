package bunstore

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

// recordingStore captures the ops each wrapper submits and returns
// canned results.
type recordingStore struct {
	ops     []Op
	results []any
	err     error
}

func (r *recordingStore) Batch(ctx context.Context, ops []Op) ([]any, error) {
	r.ops = ops
	if r.err != nil {
		return nil, r.err
	}
	if r.results != nil {
		return r.results, nil
	}
	return make([]any, len(ops)), nil
}

func (r *recordingStore) Close() error { return nil }

func TestGetWrapper(t *testing.T) {
	want := &Item{Namespace: Namespace{"a"}, Key: "k", Value: map[string]any{"n": float64(1)}}
	rec := &recordingStore{results: []any{want}}

	item, err := Get(context.Background(), rec, Namespace{"a"}, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != want {
		t.Errorf("item = %v, want %v", item, want)
	}
	op, ok := rec.ops[0].(GetOp)
	if !ok {
		t.Fatalf("submitted %T, want GetOp", rec.ops[0])
	}
	if op.Key != "k" || op.Namespace.String() != "a" {
		t.Errorf("op = %+v", op)
	}
}

func TestGetWrapperMissing(t *testing.T) {
	rec := &recordingStore{results: []any{nil}}
	item, err := Get(context.Background(), rec, Namespace{"a"}, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Errorf("item = %v, want nil", item)
	}
}

func TestPutWrapperNeverTombstones(t *testing.T) {
	rec := &recordingStore{}
	if err := Put(context.Background(), rec, Namespace{"a"}, "k", nil); err != nil {
		t.Fatalf("Put: %v", err)
	}
	op := rec.ops[0].(PutOp)
	if op.Value == nil {
		t.Error("Put submitted nil value; only Delete may tombstone")
	}
}

func TestDeleteWrapperTombstones(t *testing.T) {
	rec := &recordingStore{}
	if err := Delete(context.Background(), rec, Namespace{"a"}, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	op := rec.ops[0].(PutOp)
	if op.Value != nil {
		t.Errorf("Delete submitted value %v, want nil tombstone", op.Value)
	}
}

func TestSearchWrapperOptions(t *testing.T) {
	rec := &recordingStore{results: []any{[]*Item{}}}

	filter := map[string]any{"author": "alice"}
	_, err := Search(context.Background(), rec, Namespace{"test"},
		WithFilter(filter), WithLimit(5), WithOffset(20))
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	op := rec.ops[0].(SearchOp)
	want := SearchOp{
		NamespacePrefix: Namespace{"test"},
		Filter:          filter,
		Limit:           5,
		Offset:          20,
	}
	if !reflect.DeepEqual(op, want) {
		t.Errorf("op = %+v, want %+v", op, want)
	}
}

func TestListNamespacesWrapperOptions(t *testing.T) {
	rec := &recordingStore{results: []any{[]Namespace{}}}

	_, err := ListNamespaces(context.Background(), rec,
		WithMatch(MatchPrefix, "test", "*"),
		WithMatch(MatchSuffix, "public"),
		WithMaxDepth(3), WithLimit(50), WithOffset(10))
	if err != nil {
		t.Fatalf("ListNamespaces: %v", err)
	}

	op := rec.ops[0].(ListNamespacesOp)
	want := ListNamespacesOp{
		MatchConditions: []MatchCondition{
			{MatchType: MatchPrefix, Path: []string{"test", "*"}},
			{MatchType: MatchSuffix, Path: []string{"public"}},
		},
		MaxDepth: 3,
		Limit:    50,
		Offset:   10,
	}
	if !reflect.DeepEqual(op, want) {
		t.Errorf("op = %+v, want %+v", op, want)
	}
}

func TestWrappersPropagateErrors(t *testing.T) {
	boom := errors.New("backend down")
	rec := &recordingStore{err: boom}
	ctx := context.Background()

	if _, err := Get(ctx, rec, Namespace{"a"}, "k"); !errors.Is(err, boom) {
		t.Errorf("Get err = %v", err)
	}
	if err := Put(ctx, rec, Namespace{"a"}, "k", map[string]any{}); !errors.Is(err, boom) {
		t.Errorf("Put err = %v", err)
	}
	if err := Delete(ctx, rec, Namespace{"a"}, "k"); !errors.Is(err, boom) {
		t.Errorf("Delete err = %v", err)
	}
	if _, err := Search(ctx, rec, Namespace{"a"}); !errors.Is(err, boom) {
		t.Errorf("Search err = %v", err)
	}
	if _, err := ListNamespaces(ctx, rec); !errors.Is(err, boom) {
		t.Errorf("ListNamespaces err = %v", err)
	}
}

func TestNamespaceString(t *testing.T) {
	if got := (Namespace{"a", "b", "c"}).String(); got != "a.b.c" {
		t.Errorf("String() = %q, want a.b.c", got)
	}
}
