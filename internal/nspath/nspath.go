// Package nspath implements the dotted-path codec for hierarchical
// namespaces: tuple-to-label-path encoding, wildcard match patterns,
// and depth truncation.
//
// A namespace is an ordered tuple of non-empty segments. On the wire it
// is a single label path ("users.alice.prefs"), compatible with the
// Postgres ltree column type. The segment "*" is reserved as a wildcard
// in match patterns and matches exactly one segment.
package nspath

import (
	"fmt"
	"strings"
)

// Wildcard is the reserved segment that matches exactly one label in a
// match pattern. It is not a valid segment of a stored namespace.
const Wildcard = "*"

// envelopeMarker is the version byte the backend's binary path format
// prepends to the label text. Decode strips it exactly once.
const envelopeMarker = 0x01

// Encode joins namespace segments into a dotted label path.
func Encode(ns []string) string {
	return strings.Join(ns, ".")
}

// Decode converts a raw path value from the backend into namespace
// segments. The value may be plain label text or carry a one-byte
// binary-format marker before the text; the marker is stripped once.
func Decode(raw []byte) ([]string, error) {
	if len(raw) > 0 && raw[0] == envelopeMarker {
		raw = raw[1:]
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty namespace path")
	}
	return strings.Split(string(raw), "."), nil
}

// Validate checks that ns is usable as a stored namespace: non-empty,
// every segment non-empty, no segment containing a path separator, and
// no reserved wildcard segment.
func Validate(ns []string) error {
	if len(ns) == 0 {
		return fmt.Errorf("namespace must not be empty")
	}
	for i, seg := range ns {
		if seg == "" {
			return fmt.Errorf("namespace segment %d is empty", i)
		}
		if strings.Contains(seg, ".") {
			return fmt.Errorf("namespace segment %q contains a path separator", seg)
		}
		if seg == Wildcard {
			return fmt.Errorf("namespace segment %d is the reserved wildcard %q", i, Wildcard)
		}
	}
	return nil
}

// ValidateKey checks that key is usable as an item key.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	return nil
}

// ValidatePattern checks a match-condition path. Wildcard segments are
// allowed; empty or separator-carrying segments are not.
func ValidatePattern(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("match path must not be empty")
	}
	for i, seg := range path {
		if seg == "" {
			return fmt.Errorf("match path segment %d is empty", i)
		}
		if seg != Wildcard && strings.Contains(seg, ".") {
			return fmt.Errorf("match path segment %q contains a path separator", seg)
		}
	}
	return nil
}

// Compare orders two namespaces lexicographically over segments, the
// way the backend orders label paths. Comparing the dotted strings
// would get this wrong for segments containing characters that sort
// before the separator ("a-b" vs "a.b").
func Compare(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return 0
}

// Truncate returns the first depth segments of ns. A non-positive depth
// leaves ns untouched.
func Truncate(ns []string, depth int) []string {
	if depth <= 0 || len(ns) <= depth {
		return ns
	}
	return ns[:depth]
}

// HasPrefix reports whether ns starts with pattern. A wildcard pattern
// segment matches any single namespace segment.
func HasPrefix(ns, pattern []string) bool {
	if len(ns) < len(pattern) {
		return false
	}
	for i, seg := range pattern {
		if seg != Wildcard && seg != ns[i] {
			return false
		}
	}
	return true
}

// HasSuffix reports whether ns ends with pattern. A wildcard pattern
// segment matches any single namespace segment.
func HasSuffix(ns, pattern []string) bool {
	if len(ns) < len(pattern) {
		return false
	}
	off := len(ns) - len(pattern)
	for i, seg := range pattern {
		if seg != Wildcard && seg != ns[off+i] {
			return false
		}
	}
	return true
}

// PrefixQuery renders a prefix match condition as an ltree lquery:
// anchored at the root, wildcards bound to exactly one label, any
// suffix allowed.
func PrefixQuery(path []string) string {
	return queryLabels(path) + ".*"
}

// SuffixQuery renders a suffix match condition as an ltree lquery: any
// prefix allowed, wildcards bound to exactly one label.
func SuffixQuery(path []string) string {
	return "*." + queryLabels(path)
}

func queryLabels(path []string) string {
	labels := make([]string, len(path))
	for i, seg := range path {
		if seg == Wildcard {
			labels[i] = "*{1}"
		} else {
			labels[i] = seg
		}
	}
	return strings.Join(labels, ".")
}
