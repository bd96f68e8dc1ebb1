package event

import (
	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/utils/chk"
)

// Verify checks that the event ID matches the canonical form and that the
// signature over the ID validates against the pubkey the event carries.
func (ev *E) Verify() (valid bool, err error) {
	if !ev.CheckID() {
		return false, nil
	}
	keys := &p256k.Signer{}
	if err = keys.InitPub(ev.Pubkey); chk.D(err) {
		return
	}
	if valid, err = keys.Verify(ev.ID, ev.Sig); chk.D(err) {
		return
	}
	return
}
