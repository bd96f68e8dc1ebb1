package nwc

import (
	"net/url"
	"strings"

	"nwclink.dev/pkg/encoders/hex"
)

// Scheme is the connection URI scheme.
const Scheme = "nostr+walletconnect"

// ConnectionParams is the parsed form of a wallet connection URI. It is
// created once from the string a user supplies and immutable afterwards.
type ConnectionParams struct {
	walletPublicKey []byte
	clientSecretKey []byte
	relays          []string
	lud16           string
}

// WalletPublicKey returns the 32 byte x-only public key of the wallet
// service.
func (cp *ConnectionParams) WalletPublicKey() []byte { return cp.walletPublicKey }

// ClientSecretKey returns the 32 byte secret the wallet issued for this
// connection.
func (cp *ConnectionParams) ClientSecretKey() []byte { return cp.clientSecretKey }

// Relays returns the relay URLs, in the order the URI listed them.
func (cp *ConnectionParams) Relays() []string { return cp.relays }

// Lud16 returns the optional lightning address carried by the URI, empty
// when absent.
func (cp *ConnectionParams) Lud16() string { return cp.lud16 }

// String serializes the params back into the connection URI form.
func (cp *ConnectionParams) String() string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString("://")
	b.WriteString(hex.Enc(cp.walletPublicKey))
	sep := byte('?')
	for _, r := range cp.relays {
		b.WriteByte(sep)
		sep = '&'
		b.WriteString("relay=")
		b.WriteString(url.QueryEscape(r))
	}
	b.WriteByte(sep)
	b.WriteString("secret=")
	b.WriteString(hex.Enc(cp.clientSecretKey))
	if cp.lud16 != "" {
		b.WriteString("&lud16=")
		b.WriteString(url.QueryEscape(cp.lud16))
	}
	return b.String()
}

// ParseConnectionURI parses a wallet connection URI of the form
//
//	nostr+walletconnect://<pubkey>?relay=<url>[&relay=...]&secret=<hex>[&lud16=<addr>]
//
// Every failure is a ConnectionStringInvalid error.
func ParseConnectionURI(uri string) (cp *ConnectionParams, err error) {
	u, perr := url.Parse(uri)
	if perr != nil {
		err = connectionStringInvalid("not a URI: %v", perr)
		return
	}
	if u.Scheme != Scheme {
		err = connectionStringInvalid(
			"scheme must be %s, got '%s'", Scheme, u.Scheme,
		)
		return
	}
	// some encoders put the pubkey in the opaque part instead of the host
	host := u.Host
	if host == "" {
		host = u.Opaque
	}
	cp = &ConnectionParams{}
	if cp.walletPublicKey, err = decodeKey(host, "wallet public key"); err != nil {
		return nil, err
	}
	q := u.Query()
	for _, r := range q["relay"] {
		ru, rerr := url.Parse(r)
		if rerr != nil || ru.Scheme == "" || ru.Host == "" {
			return nil, connectionStringInvalid("invalid relay URL '%s'", r)
		}
		cp.relays = append(cp.relays, r)
	}
	if len(cp.relays) == 0 {
		return nil, connectionStringInvalid("at least one relay is required")
	}
	if cp.clientSecretKey, err = decodeKey(q.Get("secret"), "secret"); err != nil {
		return nil, err
	}
	cp.lud16 = q.Get("lud16")
	return
}

// IsValidConnectionURI reports whether the URI parses; it never returns an
// error.
func IsValidConnectionURI(uri string) bool {
	_, err := ParseConnectionURI(uri)
	return err == nil
}

func decodeKey(s, what string) (b []byte, err error) {
	if len(s) != 64 {
		return nil, connectionStringInvalid(
			"%s must be 64 hex characters, got %d", what, len(s),
		)
	}
	if b, err = hex.Dec(s); err != nil {
		return nil, connectionStringInvalid("%s is not hex: %v", what, err)
	}
	return
}
