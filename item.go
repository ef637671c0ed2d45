package bunstore

import (
	"time"

	"github.com/kartikbazzad/bunstore/internal/nspath"
)

// Namespace is the ordered path an item lives under, e.g.
// {"users", "alice", "prefs"}. A valid namespace is non-empty, has no
// empty segments, and no segment contains "." or equals "*".
type Namespace []string

// String returns the dotted label-path form of the namespace.
func (ns Namespace) String() string {
	return nspath.Encode(ns)
}

// Item is one stored record: a schema-less JSON object addressed by
// (Namespace, Key). CreatedAt is set on first insert and never changes;
// UpdatedAt advances on every write.
type Item struct {
	Namespace Namespace      `json:"namespace"`
	Key       string         `json:"key"`
	Value     map[string]any `json:"value"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
