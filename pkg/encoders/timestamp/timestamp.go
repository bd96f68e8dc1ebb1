// Package timestamp implements the unix timestamp in seconds used in wallet
// connect events and subscription filters.
package timestamp

import (
	"time"
)

// T is a unix timestamp in seconds.
type T struct {
	V int64
}

// New creates an empty timestamp.
func New() (t *T) { return &T{} }

// Now returns the current time as a timestamp.
func Now() (t *T) { return &T{V: time.Now().Unix()} }

// FromUnix converts a unix seconds count into a timestamp.
func FromUnix(v int64) (t *T) { return &T{V: v} }

// FromTime converts a time.Time into a timestamp.
func FromTime(tt time.Time) (t *T) { return &T{V: tt.Unix()} }

// I64 returns the timestamp as an int64.
func (t *T) I64() int64 {
	if t == nil {
		return 0
	}
	return t.V
}

// Time returns the timestamp as a time.Time.
func (t *T) Time() time.Time { return time.Unix(t.I64(), 0) }
