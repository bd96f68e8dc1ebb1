package filter

import (
	"encoding/json"
	"strings"
	"testing"

	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/utils/values"
)

func makeEvent(t *testing.T, k *kind.T, tt *tags.T) *event.E {
	t.Helper()
	keys := &p256k.Signer{}
	if err := keys.Generate(); err != nil {
		t.Fatal(err)
	}
	ev := &event.E{
		Content:   []byte("x"),
		CreatedAt: timestamp.Now(),
		Kind:      k,
		Tags:      tt,
	}
	if err := ev.Sign(keys); err != nil {
		t.Fatal(err)
	}
	return ev
}

func TestMatchKindsAndAuthors(t *testing.T) {
	ev := makeEvent(t, kind.WalletResponse, tags.New())
	f := &F{Kinds: kinds.New(kind.WalletResponse)}
	if !f.Match(ev) {
		t.Error("kind filter should match")
	}
	f = &F{Kinds: kinds.New(kind.WalletRequest)}
	if f.Match(ev) {
		t.Error("wrong kind matched")
	}
	f = &F{Authors: tag.New(ev.PubKeyString())}
	if !f.Match(ev) {
		t.Error("author filter should match")
	}
	f = &F{Authors: tag.New(strings.Repeat("0", 64))}
	if f.Match(ev) {
		t.Error("wrong author matched")
	}
}

func TestMatchTagConstraints(t *testing.T) {
	target := strings.Repeat("a", 64)
	ev := makeEvent(
		t, kind.WalletResponse,
		tags.New(tag.New("p", target), tag.New("e", strings.Repeat("b", 64))),
	)
	f := &F{Tags: tags.New(tag.New("#p", target))}
	if !f.Match(ev) {
		t.Error("#p filter should match")
	}
	f = &F{Tags: tags.New(tag.New("#p", strings.Repeat("c", 64)))}
	if f.Match(ev) {
		t.Error("#p filter matched the wrong value")
	}
	f = &F{Tags: tags.New(tag.New("#e", strings.Repeat("b", 64)))}
	if !f.Match(ev) {
		t.Error("#e filter should match")
	}
}

func TestMatchTimestampsAndLiveVariant(t *testing.T) {
	ev := makeEvent(t, kind.WalletResponse, tags.New())
	past := timestamp.FromUnix(ev.CreatedAt.I64() - 100)
	future := timestamp.FromUnix(ev.CreatedAt.I64() + 100)

	if !(&F{Since: past}).Match(ev) {
		t.Error("event after since should match")
	}
	if (&F{Since: future}).Match(ev) {
		t.Error("event before since matched")
	}
	if !(&F{Until: future}).Match(ev) {
		t.Error("event before until should match")
	}
	if (&F{Until: past}).Match(ev) {
		t.Error("event after until matched")
	}
	live := &F{Since: future, Kinds: kinds.New(kind.WalletResponse)}
	if !live.MatchIgnoringTimestampConstraints(ev) {
		t.Error("live match must ignore since")
	}
	if live.Since == nil {
		t.Error("live match mutated the filter")
	}
}

func TestMatchIDs(t *testing.T) {
	ev := makeEvent(t, kind.WalletResponse, tags.New())
	if !(&F{IDs: tag.New(ev.IDString())}).Match(ev) {
		t.Error("id filter should match")
	}
	if (&F{IDs: tag.New(strings.Repeat("f", 64))}).Match(ev) {
		t.Error("wrong id matched")
	}
	if (&F{}).Match(nil) {
		t.Error("nil event matched")
	}
}

func TestFilterJSONRoundtrip(t *testing.T) {
	author := strings.Repeat("a", 64)
	f := &F{
		Kinds:   kinds.New(kind.WalletResponse),
		Authors: tag.New(author),
		Tags:    tags.New(tag.New("#p", strings.Repeat("b", 64))),
		Since:   timestamp.FromUnix(1700000000),
		Limit:   values.ToUintPointer(1),
	}
	b, err := json.Marshal(f)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		`"kinds":[23195]`, `"authors"`, `"#p"`, `"since":1700000000`,
		`"limit":1`,
	} {
		if !strings.Contains(string(b), want) {
			t.Errorf("wire form %s missing %s", b, want)
		}
	}
	back := New()
	if err = json.Unmarshal(b, back); err != nil {
		t.Fatal(err)
	}
	if back.Kinds.Len() != 1 || back.Kinds.K[0].K != kind.WalletResponse.K {
		t.Error("kinds lost in roundtrip")
	}
	if back.Authors.Len() != 1 || back.Authors.S(0) != author {
		t.Error("authors lost in roundtrip")
	}
	if back.Since == nil || back.Since.I64() != 1700000000 {
		t.Error("since lost in roundtrip")
	}
	if back.Tags.Len() != 1 {
		t.Error("tag constraint lost in roundtrip")
	}
}

func TestHexValue(t *testing.T) {
	if HexValue([]byte{0xab, 0xcd}) != "abcd" {
		t.Error("hex value mismatch")
	}
}
