// Package event provides the codec for protocol events: the JSON wire form,
// the canonical form that is hashed to generate the ID, and signing and
// verification over that ID.
package event

import (
	"bytes"
	"encoding/json"

	"github.com/minio/sha256-simd"

	"nwclink.dev/pkg/encoders/hex"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/errorf"
)

// E is the wire event. ID, Pubkey and Sig are raw binary; the JSON codec
// renders them as hex.
type E struct {
	// ID is the SHA256 hash of the canonical encoding of the event.
	ID []byte
	// Pubkey is the x-only public key of the event author.
	Pubkey []byte
	// CreatedAt is the author's unix timestamp (never trust a timestamp!).
	CreatedAt *timestamp.T
	// Kind is the protocol code for the type of event.
	Kind *kind.T
	// Tags annotate the event; for wallet connect, p tags address the
	// counterparty and e tags correlate responses with requests.
	Tags *tags.T
	// Content is the payload, an encrypted request or response body here.
	Content []byte
	// Sig is the signature over ID, validating against Pubkey.
	Sig []byte
}

// S is a slice of events.
type S []*E

// C is a channel that carries events.
type C chan *E

// New makes a new empty event.
func New() (ev *E) { return &E{} }

// IDString returns the event ID as a hex string.
func (ev *E) IDString() string { return hex.Enc(ev.ID) }

// PubKeyString returns the author pubkey as a hex string.
func (ev *E) PubKeyString() string { return hex.Enc(ev.Pubkey) }

// Hash is a little helper to generate a SHA256 hash as a slice.
func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// Canonical renders the canonical form of the event that is hashed to
// produce its ID: a JSON array of [0, pubkey, created_at, kind, tags,
// content] with no HTML escaping and no insignificant whitespace.
func (ev *E) Canonical() (b []byte, err error) {
	arr := []any{
		0,
		ev.PubKeyString(),
		ev.CreatedAt.I64(),
		ev.Kind.I64(),
		ev.Tags.ToStringsSlice(),
		string(ev.Content),
	}
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err = enc.Encode(arr); chk.E(err) {
		return
	}
	b = bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return
}

// GetIDBytes computes the event ID from the canonical form.
func (ev *E) GetIDBytes() (id []byte, err error) {
	var b []byte
	if b, err = ev.Canonical(); chk.E(err) {
		return
	}
	id = Hash(b)
	return
}

// Sign populates Pubkey, ID and Sig using the given signer. The caller must
// set CreatedAt, Kind, Tags and Content first.
func (ev *E) Sign(keys signer.I) (err error) {
	if ev.Tags == nil {
		ev.Tags = tags.New()
	}
	ev.Pubkey = keys.Pub()
	if ev.ID, err = ev.GetIDBytes(); chk.E(err) {
		return
	}
	if ev.Sig, err = keys.Sign(ev.ID); chk.E(err) {
		return
	}
	return
}

// CheckID recomputes the ID from the canonical form and reports whether it
// matches the ID the event carries.
func (ev *E) CheckID() bool {
	id, err := ev.GetIDBytes()
	if chk.E(err) {
		return false
	}
	return bytes.Equal(id, ev.ID)
}

// J is the event in the JSON wire field layout.
type J struct {
	ID        string     `json:"id"`
	Pubkey    string     `json:"pubkey"`
	CreatedAt int64      `json:"created_at"`
	Kind      int64      `json:"kind"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
	Sig       string     `json:"sig"`
}

// ToJ converts the event into its JSON field layout.
func (ev *E) ToJ() (j *J) {
	return &J{
		ID:        ev.IDString(),
		Pubkey:    ev.PubKeyString(),
		CreatedAt: ev.CreatedAt.I64(),
		Kind:      ev.Kind.I64(),
		Tags:      ev.Tags.ToStringsSlice(),
		Content:   string(ev.Content),
		Sig:       hex.Enc(ev.Sig),
	}
}

// ToEvent converts the JSON field layout back into an event.
func (j *J) ToEvent() (ev *E, err error) {
	ev = &E{
		CreatedAt: timestamp.FromUnix(j.CreatedAt),
		Kind:      kind.New(j.Kind),
		Tags:      tags.FromStringsSlice(j.Tags),
		Content:   []byte(j.Content),
	}
	if ev.ID, err = hex.Dec(j.ID); err != nil {
		err = errorf.D("event: invalid id hex: %w", err)
		return
	}
	if ev.Pubkey, err = hex.Dec(j.Pubkey); err != nil {
		err = errorf.D("event: invalid pubkey hex: %w", err)
		return
	}
	if len(ev.Pubkey) != 32 {
		err = errorf.D("event: pubkey must be 32 bytes, got %d", len(ev.Pubkey))
		return
	}
	if ev.Sig, err = hex.Dec(j.Sig); err != nil {
		err = errorf.D("event: invalid sig hex: %w", err)
		return
	}
	return
}

// Marshal renders the event as minified JSON, appended to dst.
func (ev *E) Marshal(dst []byte) (b []byte) {
	buf := bytes.NewBuffer(dst)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev.ToJ()); chk.E(err) {
		return dst
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// Unmarshal decodes an event from its JSON wire form.
func Unmarshal(b []byte) (ev *E, err error) {
	j := &J{}
	if err = json.Unmarshal(b, j); err != nil {
		return
	}
	return j.ToEvent()
}

// MarshalJSON implements json.Marshaler.
func (ev *E) MarshalJSON() ([]byte, error) { return ev.Marshal(nil), nil }

// UnmarshalJSON implements json.Unmarshaler.
func (ev *E) UnmarshalJSON(b []byte) (err error) {
	var e *E
	if e, err = Unmarshal(b); err != nil {
		return
	}
	*ev = *e
	return
}
