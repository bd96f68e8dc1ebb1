package tags

import (
	"testing"

	"nwclink.dev/pkg/encoders/tag"
)

func TestGetFirst(t *testing.T) {
	tt := New(
		tag.New("p", "aa"),
		tag.New("e", "bb", "wss://relay.one"),
		tag.New("e", "cc"),
	)
	got := tt.GetFirst(tag.New("e"))
	if got == nil || string(got.Value()) != "bb" {
		t.Errorf("GetFirst by key: got %v", got)
	}
	// a longer prefix must match all its fields
	got = tt.GetFirst(tag.New("e", "cc"))
	if got == nil || string(got.Value()) != "cc" {
		t.Errorf("GetFirst by key and value: got %v", got)
	}
	if tt.GetFirst(tag.New("q")) != nil {
		t.Error("GetFirst matched an absent key")
	}
	if (*T)(nil).GetFirst(tag.New("p")) != nil {
		t.Error("GetFirst on nil list must be nil")
	}
}

func TestFirstValue(t *testing.T) {
	tt := New(tag.New("p", "aa"), tag.New("p", "bb"))
	if v := tt.FirstValue("p"); string(v) != "aa" {
		t.Errorf("FirstValue: got %q", v)
	}
	if tt.FirstValue("e") != nil {
		t.Error("FirstValue matched an absent key")
	}
}

func TestStringsSliceRoundtrip(t *testing.T) {
	s := [][]string{{"p", "aa"}, {"e", "bb", "marker"}}
	tt := FromStringsSlice(s)
	if tt.Len() != 2 {
		t.Fatalf("Len: got %d", tt.Len())
	}
	out := tt.ToStringsSlice()
	if len(out) != 2 || out[1][2] != "marker" {
		t.Errorf("roundtrip: got %v", out)
	}
}
