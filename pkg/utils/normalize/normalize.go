// Package normalize fixes up relay URLs so that equivalent spellings compare
// equal and dial correctly.
package normalize

import (
	"net/url"
	"strings"
)

// URL normalizes a relay address: trims whitespace, lowercases the scheme and
// host, maps http(s) to ws(s), assumes wss for bare hostnames, and strips a
// trailing slash from the root path. Returns an empty string when the input
// cannot be parsed as a URL at all.
func URL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	switch strings.ToLower(p.Scheme) {
	case "http":
		p.Scheme = "ws"
	case "https":
		p.Scheme = "wss"
	case "ws", "wss":
		p.Scheme = strings.ToLower(p.Scheme)
	default:
		return ""
	}
	p.Host = strings.ToLower(p.Host)
	if p.Path == "/" {
		p.Path = ""
	}
	return p.String()
}
