// Package tags implements the list of tags attached to an event.
package tags

import (
	"bytes"

	"nwclink.dev/pkg/encoders/tag"
)

// T is a list of tags.
type T struct {
	Tag []*tag.T
}

// New creates a tag list from the given tags.
func New(t ...*tag.T) (tt *T) { return &T{Tag: t} }

// FromStringsSlice creates a tag list from a slice of string slices.
func FromStringsSlice(s [][]string) (tt *T) {
	tt = &T{Tag: make([]*tag.T, 0, len(s))}
	for _, fields := range s {
		tt.Tag = append(tt.Tag, tag.FromStringSlice(fields))
	}
	return
}

// Len returns the number of tags in the list.
func (tt *T) Len() int {
	if tt == nil {
		return 0
	}
	return len(tt.Tag)
}

// Append adds tags to the end of the list.
func (tt *T) Append(t ...*tag.T) { tt.Tag = append(tt.Tag, t...) }

// GetTagElement returns tag i, nil when out of range.
func (tt *T) GetTagElement(i int) *tag.T {
	if tt == nil || i < 0 || i >= len(tt.Tag) {
		return nil
	}
	return tt.Tag[i]
}

// GetFirst returns the first tag whose leading fields match the prefix tag,
// nil if none matches.
func (tt *T) GetFirst(prefix *tag.T) *tag.T {
	if tt == nil {
		return nil
	}
	for _, t := range tt.Tag {
		if t.Len() < prefix.Len() {
			continue
		}
		matched := true
		for i := 0; i < prefix.Len(); i++ {
			if !bytes.Equal(t.B(i), prefix.B(i)) {
				matched = false
				break
			}
		}
		if matched {
			return t
		}
	}
	return nil
}

// FirstValue returns the value of the first tag with the given key, nil if
// none is present.
func (tt *T) FirstValue(key string) []byte {
	if tt == nil {
		return nil
	}
	for _, t := range tt.Tag {
		if string(t.Key()) == key {
			return t.Value()
		}
	}
	return nil
}

// ToStringsSlice renders the tag list as a slice of string slices, the form
// used in the JSON wire encoding.
func (tt *T) ToStringsSlice() (s [][]string) {
	s = make([][]string, 0, tt.Len())
	if tt == nil {
		return
	}
	for _, t := range tt.Tag {
		s = append(s, t.ToStringSlice())
	}
	return
}
