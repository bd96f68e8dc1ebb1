// Package filters implements the list of filters carried by a single REQ.
package filters

import (
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
)

// T is a list of filters; an event matches when any one of them matches.
type T struct {
	F []*filter.F
}

// New creates a filter list.
func New(f ...*filter.F) (t *T) { return &T{F: f} }

// Len returns the number of filters in the list.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.F)
}

// Match reports whether any filter in the list matches the event.
func (t *T) Match(ev *event.E) bool {
	if t == nil {
		return false
	}
	for _, f := range t.F {
		if f.Match(ev) {
			return true
		}
	}
	return false
}

// MatchIgnoringTimestampConstraints is Match without since/until windows.
func (t *T) MatchIgnoringTimestampConstraints(ev *event.E) bool {
	if t == nil {
		return false
	}
	for _, f := range t.F {
		if f.MatchIgnoringTimestampConstraints(ev) {
			return true
		}
	}
	return false
}
