// Package p256k implements the signer.I interface over the secp256k1 curve
// with BIP-340 schnorr signatures and ECDH shared secret derivation.
package p256k

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"

	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/errorf"
)

// SecKeyBytesLen is the length of a raw secret key.
const SecKeyBytesLen = 32

// PubKeyBytesLen is the length of an x-only public key.
const PubKeyBytesLen = schnorr.PubKeyBytesLen

// Signer is the secp256k1 implementation of signer.I.
type Signer struct {
	secretKey *btcec.PrivateKey
	publicKey *btcec.PublicKey
	skb, pkb  []byte
}

var _ signer.I = &Signer{}

// Generate creates a fresh random secret key in the Signer.
func (s *Signer) Generate() (err error) {
	if s.secretKey, err = btcec.NewPrivateKey(); chk.E(err) {
		return
	}
	s.skb = s.secretKey.Serialize()
	s.publicKey = s.secretKey.PubKey()
	s.pkb = schnorr.SerializePubKey(s.publicKey)
	return
}

// InitSec initialises a Signer from raw secret key bytes.
func (s *Signer) InitSec(sec []byte) (err error) {
	if len(sec) != SecKeyBytesLen {
		err = errorf.E("sec key must be %d bytes, got %d", SecKeyBytesLen, len(sec))
		return
	}
	s.skb = sec
	s.secretKey, s.publicKey = btcec.PrivKeyFromBytes(sec)
	s.pkb = schnorr.SerializePubKey(s.publicKey)
	return
}

// InitPub initialises a verify-only Signer from raw x-only public key bytes.
func (s *Signer) InitPub(pub []byte) (err error) {
	if s.publicKey, err = schnorr.ParsePubKey(pub); chk.D(err) {
		return
	}
	s.pkb = pub
	return
}

// Sec returns the raw secret key bytes.
func (s *Signer) Sec() (b []byte) {
	if s == nil {
		return nil
	}
	return s.skb
}

// Pub returns the raw x-only public key bytes.
func (s *Signer) Pub() (b []byte) {
	if s == nil {
		return nil
	}
	return s.pkb
}

// Sign a message digest. Requires an initialised secret key.
func (s *Signer) Sign(msg []byte) (sig []byte, err error) {
	if s.secretKey == nil {
		err = errorf.E("p256k: Signer not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.Sign(s.secretKey, msg); chk.E(err) {
		return
	}
	sig = si.Serialize()
	return
}

// Verify a message signature; only requires the public key be initialised.
func (s *Signer) Verify(msg, sig []byte) (valid bool, err error) {
	if s.publicKey == nil {
		err = errorf.E("p256k: pubkey not initialized")
		return
	}
	var si *schnorr.Signature
	if si, err = schnorr.ParseSignature(sig); chk.D(err) {
		return
	}
	valid = si.Verify(msg, s.publicKey)
	return
}

// ECDH derives the 32 byte shared secret X coordinate between the Signer's
// secret key and a counterparty's x-only public key.
func (s *Signer) ECDH(pub []byte) (secret []byte, err error) {
	if s.secretKey == nil {
		err = errorf.E("p256k: Signer not initialized")
		return
	}
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pub); chk.D(err) {
		return
	}
	secret = btcec.GenerateSharedSecret(s.secretKey, pk)
	return
}

// Zero wipes the secret key material.
func (s *Signer) Zero() {
	if s == nil {
		return
	}
	if s.secretKey != nil {
		s.secretKey.Zero()
	}
	for i := range s.skb {
		s.skb[i] = 0
	}
}
