// Package batch classifies a heterogeneous operation slice into
// per-kind groups that remember each op's original position, so a
// backend can execute grouped statements and scatter results back to
// the caller's order.
package batch

import (
	"fmt"

	bunstore "github.com/kartikbazzad/bunstore"
	"github.com/kartikbazzad/bunstore/internal/nspath"
)

// Indexed pairs an operation with its position in the submitted batch.
type Indexed[T any] struct {
	Pos int
	Op  T
}

// Plan is the stable partition of one batch: kinds are separated,
// original order within each kind is preserved, and N is the size the
// result slice must come back with.
type Plan struct {
	N        int
	Gets     []Indexed[bunstore.GetOp]
	Puts     []Indexed[bunstore.PutOp]
	Searches []Indexed[bunstore.SearchOp]
	Lists    []Indexed[bunstore.ListNamespacesOp]
}

// Build validates and partitions ops. Any invalid op fails the whole
// batch here, before a backend sees a single statement. Limits are
// normalized to the package defaults and negative offsets to zero.
func Build(ops []bunstore.Op) (*Plan, error) {
	plan := &Plan{N: len(ops)}
	for i, op := range ops {
		switch op := op.(type) {
		case bunstore.GetOp:
			if err := nspath.Validate(op.Namespace); err != nil {
				return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidNamespace, err)
			}
			if err := nspath.ValidateKey(op.Key); err != nil {
				return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidKey, err)
			}
			plan.Gets = append(plan.Gets, Indexed[bunstore.GetOp]{Pos: i, Op: op})
		case bunstore.PutOp:
			if err := nspath.Validate(op.Namespace); err != nil {
				return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidNamespace, err)
			}
			if err := nspath.ValidateKey(op.Key); err != nil {
				return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidKey, err)
			}
			plan.Puts = append(plan.Puts, Indexed[bunstore.PutOp]{Pos: i, Op: op})
		case bunstore.SearchOp:
			if err := nspath.Validate(op.NamespacePrefix); err != nil {
				return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidNamespace, err)
			}
			if op.Limit <= 0 {
				op.Limit = bunstore.DefaultSearchLimit
			}
			if op.Offset < 0 {
				op.Offset = 0
			}
			plan.Searches = append(plan.Searches, Indexed[bunstore.SearchOp]{Pos: i, Op: op})
		case bunstore.ListNamespacesOp:
			for _, cond := range op.MatchConditions {
				switch cond.MatchType {
				case bunstore.MatchPrefix, bunstore.MatchSuffix:
				default:
					return nil, fmt.Errorf("op %d: %w: unknown match type %q", i, bunstore.ErrInvalidOp, cond.MatchType)
				}
				if err := nspath.ValidatePattern(cond.Path); err != nil {
					return nil, fmt.Errorf("op %d: %w: %v", i, bunstore.ErrInvalidNamespace, err)
				}
			}
			if op.MaxDepth < 0 {
				op.MaxDepth = 0
			}
			if op.Limit <= 0 {
				op.Limit = bunstore.DefaultListLimit
			}
			if op.Offset < 0 {
				op.Offset = 0
			}
			plan.Lists = append(plan.Lists, Indexed[bunstore.ListNamespacesOp]{Pos: i, Op: op})
		case nil:
			return nil, fmt.Errorf("op %d: %w: nil op", i, bunstore.ErrInvalidOp)
		default:
			return nil, fmt.Errorf("op %d: %w: unknown kind %T", i, bunstore.ErrInvalidOp, op)
		}
	}
	return plan, nil
}

// PutGroup is the write set of one batch after coalescing: upserts and
// tombstones separated, one entry per (namespace, key).
type PutGroup struct {
	Upserts []bunstore.PutOp
	Deletes []bunstore.PutOp
}

// Coalesce collapses the batch's puts to one op per (namespace, key),
// last write wins. The surviving op keeps the position of the pair's
// first appearance, so statement order stays deterministic. A backend
// can then render all upserts as one multi-row statement without
// touching the same row twice.
func Coalesce(puts []Indexed[bunstore.PutOp]) PutGroup {
	seen := make(map[string]int, len(puts))
	ordered := make([]bunstore.PutOp, 0, len(puts))
	for _, p := range puts {
		k := nspath.Encode(p.Op.Namespace) + "\x00" + p.Op.Key
		if i, ok := seen[k]; ok {
			ordered[i] = p.Op
			continue
		}
		seen[k] = len(ordered)
		ordered = append(ordered, p.Op)
	}

	var group PutGroup
	for _, op := range ordered {
		if op.Value == nil {
			group.Deletes = append(group.Deletes, op)
		} else {
			group.Upserts = append(group.Upserts, op)
		}
	}
	return group
}

// GetGroup is one namespace's worth of gets: the distinct keys to
// fetch and, per key, every result slot waiting on it.
type GetGroup struct {
	Namespace bunstore.Namespace
	Keys      []string
	Positions map[string][]int
}

// GroupGets buckets gets by namespace, preserving first-appearance
// order of namespaces and keys. Duplicate (namespace, key) gets share
// one fetched row across all their result slots.
func GroupGets(gets []Indexed[bunstore.GetOp]) []GetGroup {
	byPath := make(map[string]int)
	var groups []GetGroup
	for _, g := range gets {
		path := nspath.Encode(g.Op.Namespace)
		gi, ok := byPath[path]
		if !ok {
			gi = len(groups)
			byPath[path] = gi
			groups = append(groups, GetGroup{
				Namespace: g.Op.Namespace,
				Positions: make(map[string][]int),
			})
		}
		grp := &groups[gi]
		if _, ok := grp.Positions[g.Op.Key]; !ok {
			grp.Keys = append(grp.Keys, g.Op.Key)
		}
		grp.Positions[g.Op.Key] = append(grp.Positions[g.Op.Key], g.Pos)
	}
	return groups
}
