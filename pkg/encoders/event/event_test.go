package event

import (
	"bytes"
	"testing"

	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
)

func signedEvent(t *testing.T) (*E, *p256k.Signer) {
	t.Helper()
	keys := &p256k.Signer{}
	if err := keys.Generate(); err != nil {
		t.Fatal(err)
	}
	ev := &E{
		Content:   []byte("an encrypted payload"),
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletRequest,
		Tags: tags.New(
			tag.New("p", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"),
			tag.New("encryption", "nip04"),
		),
	}
	if err := ev.Sign(keys); err != nil {
		t.Fatal(err)
	}
	return ev, keys
}

func TestSignAndVerify(t *testing.T) {
	ev, keys := signedEvent(t)
	if !bytes.Equal(ev.Pubkey, keys.Pub()) {
		t.Error("sign did not set the author pubkey")
	}
	if !ev.CheckID() {
		t.Error("ID does not match canonical form")
	}
	ok, err := ev.Verify()
	if err != nil || !ok {
		t.Fatalf("signed event failed verification: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	ev, _ := signedEvent(t)
	ev.Content = []byte("tampered payload")
	if ev.CheckID() {
		t.Error("ID still matches after content change")
	}
	if ok, _ := ev.Verify(); ok {
		t.Error("tampered event verified")
	}
}

func TestMarshalUnmarshalPreservesSignature(t *testing.T) {
	ev, _ := signedEvent(t)
	b := ev.Marshal(nil)
	back, err := Unmarshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back.ID, ev.ID) {
		t.Error("ID changed over the wire")
	}
	if back.Kind.K != ev.Kind.K {
		t.Errorf("kind changed: %d != %d", back.Kind.K, ev.Kind.K)
	}
	if v := back.Tags.FirstValue("p"); string(v) != string(ev.Tags.FirstValue("p")) {
		t.Error("tags changed over the wire")
	}
	ok, err := back.Verify()
	if err != nil || !ok {
		t.Fatalf("decoded event failed verification: %v", err)
	}
}

func TestUnmarshalRejectsBadHex(t *testing.T) {
	for _, b := range [][]byte{
		[]byte(`{"id":"zz","pubkey":"aa","created_at":1,"kind":1,"tags":[],"content":"","sig":"00"}`),
		[]byte(`not json`),
		[]byte(`{"id":"","pubkey":"abcd","created_at":1,"kind":1,"tags":[],"content":"","sig":""}`),
	} {
		if _, err := Unmarshal(b); err == nil {
			t.Errorf("expected unmarshal of %s to fail", b)
		}
	}
}

func TestCanonicalIsStable(t *testing.T) {
	ev, _ := signedEvent(t)
	c1, err := ev.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	c2, err := ev.Canonical()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(c1, c2) {
		t.Error("canonical form not deterministic")
	}
	if bytes.Contains(c1, []byte(`<`)) {
		t.Error("canonical form must not HTML-escape")
	}
}
