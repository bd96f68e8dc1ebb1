// Package filter implements the subscription filter: the set of constraints
// a relay matches stored and incoming events against for a REQ.
package filter

import (
	"encoding/json"
	"strings"

	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/hex"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
)

// F is a single filter. IDs, authors and tag values are hex strings as they
// appear on the wire.
type F struct {
	IDs     *tag.T
	Kinds   *kinds.T
	Authors *tag.T
	// Tags hold the "#" constraints; the tag key includes the leading
	// '#', e.g. tag.New("#e", requestID).
	Tags  *tags.T
	Since *timestamp.T
	Until *timestamp.T
	Limit *uint
}

// New creates an empty filter.
func New() (f *F) { return &F{} }

// MarshalJSON implements json.Marshaler in the wire object layout.
func (f *F) MarshalJSON() ([]byte, error) {
	m := make(map[string]any)
	if f.IDs.Len() > 0 {
		m["ids"] = f.IDs.ToStringSlice()
	}
	if f.Kinds.Len() > 0 {
		m["kinds"] = f.Kinds.ToInt64Slice()
	}
	if f.Authors.Len() > 0 {
		m["authors"] = f.Authors.ToStringSlice()
	}
	for i := 0; i < f.Tags.Len(); i++ {
		t := f.Tags.GetTagElement(i)
		key := string(t.Key())
		if !strings.HasPrefix(key, "#") || t.Len() < 2 {
			continue
		}
		m[key] = t.ToStringSlice()[1:]
	}
	if f.Since != nil {
		m["since"] = f.Since.I64()
	}
	if f.Until != nil {
		m["until"] = f.Until.I64()
	}
	if f.Limit != nil {
		m["limit"] = *f.Limit
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler from the wire object layout.
func (f *F) UnmarshalJSON(b []byte) (err error) {
	var raw map[string]json.RawMessage
	if err = json.Unmarshal(b, &raw); err != nil {
		return
	}
	*f = F{}
	for key, val := range raw {
		switch key {
		case "ids":
			var v []string
			if err = json.Unmarshal(val, &v); err != nil {
				return
			}
			f.IDs = tag.FromStringSlice(v)
		case "kinds":
			var v []int64
			if err = json.Unmarshal(val, &v); err != nil {
				return
			}
			var ks []*kind.T
			for _, k := range v {
				ks = append(ks, kind.New(k))
			}
			f.Kinds = kinds.New(ks...)
		case "authors":
			var v []string
			if err = json.Unmarshal(val, &v); err != nil {
				return
			}
			f.Authors = tag.FromStringSlice(v)
		case "since", "until":
			var v int64
			if err = json.Unmarshal(val, &v); err != nil {
				return
			}
			if key == "since" {
				f.Since = timestamp.FromUnix(v)
			} else {
				f.Until = timestamp.FromUnix(v)
			}
		case "limit":
			var v uint
			if err = json.Unmarshal(val, &v); err != nil {
				return
			}
			f.Limit = &v
		default:
			if strings.HasPrefix(key, "#") {
				var v []string
				if err = json.Unmarshal(val, &v); err != nil {
					return
				}
				if f.Tags == nil {
					f.Tags = tags.New()
				}
				f.Tags.Append(tag.FromStringSlice(
					append([]string{key}, v...),
				))
			}
		}
	}
	return
}

// Match reports whether an event satisfies every constraint in the filter.
func (f *F) Match(ev *event.E) bool {
	if ev == nil {
		return false
	}
	if f.IDs.Len() > 0 && !containsString(f.IDs, ev.IDString()) {
		return false
	}
	if f.Kinds.Len() > 0 && !f.Kinds.Contains(ev.Kind) {
		return false
	}
	if f.Authors.Len() > 0 && !containsString(f.Authors, ev.PubKeyString()) {
		return false
	}
	for i := 0; i < f.Tags.Len(); i++ {
		ft := f.Tags.GetTagElement(i)
		key := strings.TrimPrefix(string(ft.Key()), "#")
		if !eventHasTagValue(ev, key, ft) {
			return false
		}
	}
	if f.Since != nil && ev.CreatedAt.I64() < f.Since.I64() {
		return false
	}
	if f.Until != nil && ev.CreatedAt.I64() > f.Until.I64() {
		return false
	}
	return true
}

// MatchIgnoringTimestampConstraints is Match without since/until, for live
// events that arrive after the stored window was established.
func (f *F) MatchIgnoringTimestampConstraints(ev *event.E) bool {
	g := *f
	g.Since, g.Until = nil, nil
	return g.Match(ev)
}

func containsString(t *tag.T, s string) bool {
	for i := 0; i < t.Len(); i++ {
		if t.S(i) == s {
			return true
		}
	}
	return false
}

func eventHasTagValue(ev *event.E, key string, values *tag.T) bool {
	for i := 0; i < ev.Tags.Len(); i++ {
		et := ev.Tags.GetTagElement(i)
		if string(et.Key()) != key {
			continue
		}
		for j := 1; j < values.Len(); j++ {
			if string(et.Value()) == values.S(j) {
				return true
			}
		}
	}
	return false
}

// HexValue is a helper for building filter fields from binary values.
func HexValue(b []byte) string { return hex.Enc(b) }
