// Package filter implements the value predicate applied by search
// operations: field equality for scalar and object values, superset
// containment for list values, all fields combined with AND.
package filter

import "reflect"

// Evaluate reports whether value satisfies every field predicate in f.
// A missing field is a non-match, as is any kind mismatch between the
// expected and stored value. A nil or empty filter matches everything.
func Evaluate(f map[string]any, value map[string]any) bool {
	for field, expected := range f {
		got, ok := value[field]
		if !ok {
			return false
		}
		if !matchField(expected, got) {
			return false
		}
	}
	return true
}

// IsList reports whether a filter value selects containment semantics
// rather than equality. The query builders make the same call when
// choosing between = and @>.
func IsList(v any) bool {
	_, ok := asList(v)
	return ok
}

func matchField(expected, got any) bool {
	if want, ok := asList(expected); ok {
		return containsAll(got, want)
	}
	return equal(expected, got)
}

// containsAll reports whether got is a list containing every element of
// want. A non-list stored value never matches a list predicate.
func containsAll(got any, want []any) bool {
	list, ok := asList(got)
	if !ok {
		return false
	}
	for _, w := range want {
		found := false
		for _, g := range list {
			if equal(w, g) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// equal compares two values the way JSON does: numbers by numeric value
// regardless of Go type, everything else by deep equality.
func equal(a, b any) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok || bok {
		return aok && bok && fa == fb
	}
	return reflect.DeepEqual(a, b)
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
