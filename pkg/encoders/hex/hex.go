// Package hex wraps the SIMD accelerated xhex codec with the allocation
// patterns used in this module.
package hex

import (
	"encoding/hex"

	"github.com/templexxx/xhex"
)

// Enc encodes a byte slice to a lower case hex string.
func Enc(b []byte) (s string) {
	dst := make([]byte, len(b)*2)
	xhex.Encode(dst, b)
	return string(dst)
}

// EncAppend appends the hex encoding of src to dst.
func EncAppend(dst, src []byte) []byte {
	l := len(dst)
	dst = append(dst, make([]byte, len(src)*2)...)
	xhex.Encode(dst[l:], src)
	return dst
}

// Dec decodes a hex string to bytes.
func Dec(s string) (b []byte, err error) {
	if len(s)%2 != 0 {
		return nil, hex.ErrLength
	}
	b = make([]byte, len(s)/2)
	if err = xhex.Decode(b, []byte(s)); err != nil {
		// xhex does not report the offending byte, stdlib does
		if _, err = hex.Decode(b, []byte(s)); err != nil {
			return nil, err
		}
	}
	return
}

// DecBytes decodes hex bytes to bytes.
func DecBytes(src []byte) (b []byte, err error) {
	return Dec(string(src))
}
