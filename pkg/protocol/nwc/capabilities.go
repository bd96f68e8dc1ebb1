package nwc

import (
	"github.com/puzpuzpuz/xsync/v3"
)

// DefaultCapabilities is the method set assumed for a wallet whose
// advertisement could not be obtained.
func DefaultCapabilities() []Capability {
	return []Capability{MakeInvoice, PayInvoice}
}

// CapabilityCache holds the advertised method set per wallet public key.
// Writes are idempotent re-derivations of the same fact, so a plain atomic
// replace of the whole set is the only discipline needed.
type CapabilityCache struct {
	sets *xsync.MapOf[string, map[Capability]struct{}]
}

// NewCapabilityCache creates an empty cache.
func NewCapabilityCache() *CapabilityCache {
	return &CapabilityCache{
		sets: xsync.NewMapOf[string, map[Capability]struct{}](),
	}
}

// Replace swaps in the full method set for a wallet.
func (cc *CapabilityCache) Replace(walletPubkey string, methods []Capability) {
	set := make(map[Capability]struct{}, len(methods))
	for _, m := range methods {
		set[m] = struct{}{}
	}
	cc.sets.Store(walletPubkey, set)
}

// Get returns the cached method set, ok false when the wallet has no entry
// yet.
func (cc *CapabilityCache) Get(walletPubkey string) (
	methods []Capability, ok bool,
) {
	set, ok := cc.sets.Load(walletPubkey)
	if !ok {
		return
	}
	for m := range set {
		methods = append(methods, m)
	}
	return
}

// Supports reports whether the wallet advertises the method. known is false
// when nothing has been cached for the wallet, in which case supported
// carries no information.
func (cc *CapabilityCache) Supports(walletPubkey string, m Capability) (
	supported, known bool,
) {
	set, known := cc.sets.Load(walletPubkey)
	if !known {
		return
	}
	_, supported = set[m]
	return
}
