// Package kinds implements a list of event kinds for use in filters.
package kinds

import (
	"nwclink.dev/pkg/encoders/kind"
)

// T is a list of kinds.
type T struct {
	K []*kind.T
}

// New creates a kind list from the given kinds.
func New(k ...*kind.T) (t *T) { return &T{K: k} }

// Len returns the number of kinds in the list.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.K)
}

// Contains reports whether the list includes the given kind.
func (t *T) Contains(k *kind.T) bool {
	if t == nil || k == nil {
		return false
	}
	for _, el := range t.K {
		if el.Equal(k) {
			return true
		}
	}
	return false
}

// ToInt64Slice renders the list as int64 values for JSON encoding.
func (t *T) ToInt64Slice() (v []int64) {
	if t == nil {
		return
	}
	for _, el := range t.K {
		v = append(v, el.I64())
	}
	return
}
