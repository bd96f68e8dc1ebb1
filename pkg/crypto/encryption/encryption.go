// Package encryption implements the payload cipher for wallet connect
// message content: a per-pair conversation key derived with ECDH, and
// AES-256-CBC with a fresh random IV in the wire-safe base64 form
// "ciphertext?iv=initialization-vector".
package encryption

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"

	"lukechampine.com/frand"

	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/errorf"
)

// ivSeparator splits the ciphertext and IV fields of the wire encoding.
const ivSeparator = "?iv="

// GenerateConversationKey derives the shared symmetric key between a raw
// secret key and a counterparty's x-only public key.
func GenerateConversationKey(sec, counterpartyPub []byte) (
	ck []byte, err error,
) {
	s := &p256k.Signer{}
	if err = s.InitSec(sec); chk.E(err) {
		return
	}
	return GenerateConversationKeyWithSigner(s, counterpartyPub)
}

// GenerateConversationKeyWithSigner derives the shared symmetric key using a
// signer capability, so externally held keys work the same as local ones.
func GenerateConversationKeyWithSigner(
	sign signer.I, counterpartyPub []byte,
) (ck []byte, err error) {
	if ck, err = sign.ECDH(counterpartyPub); chk.E(err) {
		return
	}
	return
}

// Encrypt encrypts a plaintext with the conversation key, embedding a fresh
// random IV in the output.
func Encrypt(plaintext, conversationKey []byte) (ciphertext []byte, err error) {
	var block cipher.Block
	if block, err = aes.NewCipher(conversationKey); chk.E(err) {
		return
	}
	iv := frand.Bytes(aes.BlockSize)
	padded := pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	out := make(
		[]byte, 0,
		base64.StdEncoding.EncodedLen(len(ct))+len(ivSeparator)+
			base64.StdEncoding.EncodedLen(len(iv)),
	)
	out = base64.StdEncoding.AppendEncode(out, ct)
	out = append(out, ivSeparator...)
	out = base64.StdEncoding.AppendEncode(out, iv)
	ciphertext = out
	return
}

// Decrypt reverses Encrypt. Any malformed input surfaces as an error rather
// than garbage plaintext.
func Decrypt(ciphertext, conversationKey []byte) (plaintext []byte, err error) {
	parts := bytes.SplitN(ciphertext, []byte(ivSeparator), 2)
	if len(parts) != 2 {
		err = errorf.D("encryption: missing iv field in ciphertext")
		return
	}
	var ct, iv []byte
	if ct, err = base64.StdEncoding.DecodeString(string(parts[0])); err != nil {
		err = errorf.D("encryption: invalid ciphertext base64: %w", err)
		return
	}
	if iv, err = base64.StdEncoding.DecodeString(string(parts[1])); err != nil {
		err = errorf.D("encryption: invalid iv base64: %w", err)
		return
	}
	if len(iv) != aes.BlockSize {
		err = errorf.D("encryption: iv must be %d bytes, got %d",
			aes.BlockSize, len(iv))
		return
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		err = errorf.D("encryption: ciphertext length %d not a multiple of %d",
			len(ct), aes.BlockSize)
		return
	}
	var block cipher.Block
	if block, err = aes.NewCipher(conversationKey); chk.E(err) {
		return
	}
	pt := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(pt, ct)
	if plaintext, err = unpad(pt, aes.BlockSize); err != nil {
		return
	}
	return
}

func pad(b []byte, size int) []byte {
	n := size - len(b)%size
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(b []byte, size int) (out []byte, err error) {
	if len(b) == 0 {
		return nil, errorf.D("encryption: empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errorf.D("encryption: invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errorf.D("encryption: invalid padding")
		}
	}
	return b[:len(b)-n], nil
}
