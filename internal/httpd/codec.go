package httpd

import (
	"fmt"

	bunstore "github.com/kartikbazzad/bunstore"
)

// opEnvelope is the wire form of one batch operation. The op field
// names the kind; the rest of the fields are read per kind.
type opEnvelope struct {
	Op              string           `json:"op"`
	Namespace       []string         `json:"namespace"`
	Key             string           `json:"key"`
	Value           map[string]any   `json:"value"`
	NamespacePrefix []string         `json:"namespace_prefix"`
	Filter          map[string]any   `json:"filter"`
	Limit           int              `json:"limit"`
	Offset          int              `json:"offset"`
	MatchConditions []matchCondition `json:"match_conditions"`
	MaxDepth        int              `json:"max_depth"`
}

type matchCondition struct {
	MatchType string   `json:"match_type"`
	Path      []string `json:"path"`
}

// decodeOps turns wire envelopes into store operations. Semantic
// validation happens inside the store; here only the op kind has to
// be recognizable.
func decodeOps(envelopes []opEnvelope) ([]bunstore.Op, error) {
	ops := make([]bunstore.Op, 0, len(envelopes))
	for i, env := range envelopes {
		switch env.Op {
		case "get":
			ops = append(ops, bunstore.GetOp{
				Namespace: env.Namespace,
				Key:       env.Key,
			})
		case "put":
			ops = append(ops, bunstore.PutOp{
				Namespace: env.Namespace,
				Key:       env.Key,
				Value:     env.Value,
			})
		case "delete":
			ops = append(ops, bunstore.PutOp{
				Namespace: env.Namespace,
				Key:       env.Key,
			})
		case "search":
			ops = append(ops, bunstore.SearchOp{
				NamespacePrefix: env.NamespacePrefix,
				Filter:          env.Filter,
				Limit:           env.Limit,
				Offset:          env.Offset,
			})
		case "list_namespaces":
			ops = append(ops, bunstore.ListNamespacesOp{
				MatchConditions: decodeConditions(env.MatchConditions),
				MaxDepth:        env.MaxDepth,
				Limit:           env.Limit,
				Offset:          env.Offset,
			})
		default:
			return nil, fmt.Errorf("op %d: unknown kind %q", i, env.Op)
		}
	}
	return ops, nil
}

func decodeConditions(conds []matchCondition) []bunstore.MatchCondition {
	if len(conds) == 0 {
		return nil
	}
	out := make([]bunstore.MatchCondition, 0, len(conds))
	for _, c := range conds {
		out = append(out, bunstore.MatchCondition{
			MatchType: bunstore.MatchType(c.MatchType),
			Path:      c.Path,
		})
	}
	return out
}
