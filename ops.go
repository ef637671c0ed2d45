package bunstore

// Op is one operation in a batch. It is a sealed union: exactly four
// kinds exist (GetOp, PutOp, SearchOp, ListNamespacesOp) and a batch
// result slot's type is determined by its op's kind.
type Op interface {
	isOp()
}

// GetOp reads a single item. Its result slot is *Item, or nil when the
// pair does not exist.
type GetOp struct {
	Namespace Namespace
	Key       string
}

// PutOp writes or deletes a single item. A nil Value is a tombstone:
// the pair is removed. Its result slot is always nil.
type PutOp struct {
	Namespace Namespace
	Key       string
	Value     map[string]any
}

// SearchOp scans every namespace at or under NamespacePrefix and
// returns items whose values satisfy Filter. Its result slot is
// []*Item, non-nil and ordered by namespace path then key.
type SearchOp struct {
	NamespacePrefix Namespace
	Filter          map[string]any
	Limit           int
	Offset          int
}

// ListNamespacesOp enumerates distinct namespaces, optionally narrowed
// by match conditions and truncated to MaxDepth segments before
// deduplication and pagination. Its result slot is []Namespace, non-nil
// and ordered by path.
type ListNamespacesOp struct {
	MatchConditions []MatchCondition
	MaxDepth        int
	Limit           int
	Offset          int
}

// MatchType selects which end of a namespace a MatchCondition anchors to.
type MatchType string

const (
	MatchPrefix MatchType = "prefix"
	MatchSuffix MatchType = "suffix"
)

// MatchCondition narrows a ListNamespacesOp. Path segments equal to "*"
// match exactly one namespace segment. All conditions on one op must
// hold together.
type MatchCondition struct {
	MatchType MatchType
	Path      []string
}

func (GetOp) isOp()            {}
func (PutOp) isOp()            {}
func (SearchOp) isOp()         {}
func (ListNamespacesOp) isOp() {}
