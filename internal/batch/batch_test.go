package batch

import (
	"errors"
	"reflect"
	"testing"

	bunstore "github.com/kartikbazzad/bunstore"
)

func TestBuildPartitionsStably(t *testing.T) {
	ops := []bunstore.Op{
		bunstore.PutOp{Namespace: bunstore.Namespace{"a"}, Key: "k1", Value: map[string]any{"v": 1}},
		bunstore.GetOp{Namespace: bunstore.Namespace{"a"}, Key: "k1"},
		bunstore.SearchOp{NamespacePrefix: bunstore.Namespace{"a"}},
		bunstore.GetOp{Namespace: bunstore.Namespace{"b"}, Key: "k2"},
		bunstore.ListNamespacesOp{},
	}

	plan, err := Build(ops)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if plan.N != 5 {
		t.Errorf("plan.N = %d, want 5", plan.N)
	}
	if len(plan.Gets) != 2 || plan.Gets[0].Pos != 1 || plan.Gets[1].Pos != 3 {
		t.Errorf("gets = %+v, want positions 1 and 3 in order", plan.Gets)
	}
	if len(plan.Puts) != 1 || plan.Puts[0].Pos != 0 {
		t.Errorf("puts = %+v, want position 0", plan.Puts)
	}
	if len(plan.Searches) != 1 || plan.Searches[0].Pos != 2 {
		t.Errorf("searches = %+v, want position 2", plan.Searches)
	}
	if len(plan.Lists) != 1 || plan.Lists[0].Pos != 4 {
		t.Errorf("lists = %+v, want position 4", plan.Lists)
	}
}

func TestBuildNormalizesDefaults(t *testing.T) {
	plan, err := Build([]bunstore.Op{
		bunstore.SearchOp{NamespacePrefix: bunstore.Namespace{"a"}},
		bunstore.ListNamespacesOp{Offset: -3},
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if got := plan.Searches[0].Op.Limit; got != bunstore.DefaultSearchLimit {
		t.Errorf("search limit = %d, want %d", got, bunstore.DefaultSearchLimit)
	}
	if got := plan.Lists[0].Op.Limit; got != bunstore.DefaultListLimit {
		t.Errorf("list limit = %d, want %d", got, bunstore.DefaultListLimit)
	}
	if got := plan.Lists[0].Op.Offset; got != 0 {
		t.Errorf("list offset = %d, want 0", got)
	}
}

func TestBuildRejectsInvalidOps(t *testing.T) {
	tests := []struct {
		name string
		op   bunstore.Op
		want error
	}{
		{"nil op", nil, bunstore.ErrInvalidOp},
		{"empty namespace", bunstore.GetOp{Key: "k"}, bunstore.ErrInvalidNamespace},
		{"wildcard namespace", bunstore.PutOp{Namespace: bunstore.Namespace{"*"}, Key: "k"}, bunstore.ErrInvalidNamespace},
		{"empty key", bunstore.GetOp{Namespace: bunstore.Namespace{"a"}}, bunstore.ErrInvalidKey},
		{"empty search prefix", bunstore.SearchOp{}, bunstore.ErrInvalidNamespace},
		{
			"bad match type",
			bunstore.ListNamespacesOp{MatchConditions: []bunstore.MatchCondition{{MatchType: "infix", Path: []string{"a"}}}},
			bunstore.ErrInvalidOp,
		},
		{
			"empty match path",
			bunstore.ListNamespacesOp{MatchConditions: []bunstore.MatchCondition{{MatchType: bunstore.MatchPrefix}}},
			bunstore.ErrInvalidNamespace,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]bunstore.Op{tt.op})
			if err == nil {
				t.Fatal("Build should fail")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCoalesceLastWriteWins(t *testing.T) {
	ns := bunstore.Namespace{"test"}
	puts := []Indexed[bunstore.PutOp]{
		{Pos: 0, Op: bunstore.PutOp{Namespace: ns, Key: "k1", Value: map[string]any{"v": 1}}},
		{Pos: 1, Op: bunstore.PutOp{Namespace: ns, Key: "k2", Value: map[string]any{"v": 2}}},
		{Pos: 2, Op: bunstore.PutOp{Namespace: ns, Key: "k1", Value: map[string]any{"v": 3}}},
	}

	group := Coalesce(puts)
	if len(group.Upserts) != 2 {
		t.Fatalf("upserts = %d, want 2", len(group.Upserts))
	}
	if len(group.Deletes) != 0 {
		t.Fatalf("deletes = %d, want 0", len(group.Deletes))
	}
	// k1 keeps its first position but carries the last value.
	if group.Upserts[0].Key != "k1" || group.Upserts[0].Value["v"] != 3 {
		t.Errorf("upserts[0] = %+v, want k1 with v=3", group.Upserts[0])
	}
	if group.Upserts[1].Key != "k2" {
		t.Errorf("upserts[1].Key = %q, want k2", group.Upserts[1].Key)
	}
}

func TestCoalesceSplitsTombstones(t *testing.T) {
	ns := bunstore.Namespace{"test"}
	puts := []Indexed[bunstore.PutOp]{
		{Pos: 0, Op: bunstore.PutOp{Namespace: ns, Key: "keep", Value: map[string]any{"v": 1}}},
		{Pos: 1, Op: bunstore.PutOp{Namespace: ns, Key: "drop", Value: nil}},
		{Pos: 2, Op: bunstore.PutOp{Namespace: ns, Key: "flip", Value: map[string]any{"v": 2}}},
		{Pos: 3, Op: bunstore.PutOp{Namespace: ns, Key: "flip", Value: nil}},
	}

	group := Coalesce(puts)
	if len(group.Upserts) != 1 || group.Upserts[0].Key != "keep" {
		t.Errorf("upserts = %+v, want only keep", group.Upserts)
	}
	if len(group.Deletes) != 2 {
		t.Fatalf("deletes = %d, want 2", len(group.Deletes))
	}
	if group.Deletes[0].Key != "drop" || group.Deletes[1].Key != "flip" {
		t.Errorf("deletes = %+v, want drop then flip", group.Deletes)
	}
}

func TestGroupGets(t *testing.T) {
	gets := []Indexed[bunstore.GetOp]{
		{Pos: 0, Op: bunstore.GetOp{Namespace: bunstore.Namespace{"a"}, Key: "k1"}},
		{Pos: 1, Op: bunstore.GetOp{Namespace: bunstore.Namespace{"b"}, Key: "k1"}},
		{Pos: 2, Op: bunstore.GetOp{Namespace: bunstore.Namespace{"a"}, Key: "k2"}},
		{Pos: 3, Op: bunstore.GetOp{Namespace: bunstore.Namespace{"a"}, Key: "k1"}},
	}

	groups := GroupGets(gets)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].Namespace.String() != "a" || groups[1].Namespace.String() != "b" {
		t.Errorf("group order = %v, %v; want a then b", groups[0].Namespace, groups[1].Namespace)
	}
	if !reflect.DeepEqual(groups[0].Keys, []string{"k1", "k2"}) {
		t.Errorf("group a keys = %v, want [k1 k2]", groups[0].Keys)
	}
	// Duplicate gets of a.k1 both wait on the same fetched row.
	if !reflect.DeepEqual(groups[0].Positions["k1"], []int{0, 3}) {
		t.Errorf("positions for a.k1 = %v, want [0 3]", groups[0].Positions["k1"])
	}
}
