// Package tag implements a single event tag, a list of byte fields where the
// first element is the tag key.
package tag

import (
	"bytes"
)

// T is a single tag.
type T struct {
	Field [][]byte
}

// New creates a tag from string or byte slice fields.
func New[V string | []byte](fields ...V) (t *T) {
	t = &T{Field: make([][]byte, 0, len(fields))}
	for _, f := range fields {
		t.Field = append(t.Field, []byte(f))
	}
	return
}

// FromStringSlice creates a tag from a slice of strings.
func FromStringSlice(fields []string) (t *T) {
	t = &T{Field: make([][]byte, 0, len(fields))}
	for _, f := range fields {
		t.Field = append(t.Field, []byte(f))
	}
	return
}

// Len returns the number of fields in the tag.
func (t *T) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Field)
}

// Key returns the first field of the tag, nil if empty.
func (t *T) Key() []byte {
	if t.Len() < 1 {
		return nil
	}
	return t.Field[0]
}

// Value returns the second field of the tag, nil if absent.
func (t *T) Value() []byte {
	if t.Len() < 2 {
		return nil
	}
	return t.Field[1]
}

// B returns field i as a byte slice, nil when out of range.
func (t *T) B(i int) []byte {
	if t == nil || i < 0 || i >= len(t.Field) {
		return nil
	}
	return t.Field[i]
}

// S returns field i as a string, empty when out of range.
func (t *T) S(i int) string { return string(t.B(i)) }

// Equal reports whether two tags have identical fields.
func (t *T) Equal(other *T) bool {
	if t.Len() != other.Len() {
		return false
	}
	for i := range t.Field {
		if !bytes.Equal(t.Field[i], other.Field[i]) {
			return false
		}
	}
	return true
}

// ToStringSlice renders the tag fields as strings.
func (t *T) ToStringSlice() (s []string) {
	s = make([]string, 0, t.Len())
	for _, f := range t.Field {
		s = append(s, string(f))
	}
	return
}
