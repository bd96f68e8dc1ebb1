// Package signer defines the capability interface for everything that can
// sign message digests and derive shared secrets for the wallet connect
// protocol. Implementations may hold a locally generated ephemeral key or
// defer to an externally supplied identity signer; consumers only depend on
// this interface, never on how the key material is held.
package signer

// I is the signer capability. A request path only needs Sign, Pub and ECDH;
// the Init/Generate methods exist so key material can be loaded after
// construction.
type I interface {
	// Generate creates a fresh random secret key in the signer.
	Generate() (err error)
	// InitSec initialises the signer from raw secret key bytes.
	InitSec(sec []byte) (err error)
	// InitPub initialises a verify-only signer from raw public key bytes.
	InitPub(pub []byte) (err error)
	// Sec returns the raw secret key bytes, nil for verify-only signers.
	Sec() (b []byte)
	// Pub returns the raw 32 byte x-only public key bytes.
	Pub() (b []byte)
	// Sign produces a signature over a message digest.
	Sign(msg []byte) (sig []byte, err error)
	// Verify checks a signature over a message digest.
	Verify(msg, sig []byte) (valid bool, err error)
	// ECDH derives the 32 byte shared secret X coordinate between the
	// signer's secret key and a counterparty's x-only public key.
	ECDH(pub []byte) (secret []byte, err error)
	// Zero wipes the secret key material.
	Zero()
}

// Unavailable is returned by providers that cannot produce a signer, making
// capability absence a typed, testable outcome.
type Unavailable struct{}

func (Unavailable) Error() string { return "no signer capability available" }
