package nwc

import (
	"errors"

	"github.com/puzpuzpuz/xsync/v3"

	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
)

// transportHints remembers, per connection identity, which transport last
// completed a call. It is a soft preference: it reorders attempts within a
// session, it never excludes a transport permanently.
var transportHints = xsync.NewMapOf[string, string]()

// Router picks a transport for each call: bridge first when one is
// configured, relay otherwise, with exactly one cross-transport fallback
// when the first choice is unavailable. Wallet errors, invalid arguments
// and timeouts are never retried.
type Router struct {
	hintKey string
	relay   Transport
	bridge  Transport
}

// NewRouter builds a router for one connection. bridge may be nil, in which
// case the relay path is the only one.
func NewRouter(hintKey string, relay, bridge Transport) *Router {
	return &Router{hintKey: hintKey, relay: relay, bridge: bridge}
}

// order returns the transports to try, primary first.
func (ro *Router) order() (ts []Transport) {
	if ro.bridge != nil {
		ts = []Transport{ro.bridge, ro.relay}
	} else {
		ts = []Transport{ro.relay}
	}
	if len(ts) == 2 {
		if hint, ok := transportHints.Load(ro.hintKey); ok &&
			hint == ts[1].Name() {
			ts[0], ts[1] = ts[1], ts[0]
		}
	}
	return
}

// Send dispatches the request on the primary transport, falling back at
// most once to the alternate when the primary is unavailable.
func (ro *Router) Send(c context.T, req *Request) (
	resp *Response, err error,
) {
	order := ro.order()
	if resp, err = order[0].Send(c, req); err == nil {
		transportHints.Store(ro.hintKey, order[0].Name())
		return
	}
	var e *Error
	if len(order) < 2 || !errors.As(err, &e) ||
		!e.Kind.IsTransportUnavailable() {
		return
	}
	log.I.F(
		"%s transport unavailable, falling back to %s: %v",
		order[0].Name(), order[1].Name(), err,
	)
	if resp, err = order[1].Send(c, req); err == nil {
		transportHints.Store(ro.hintKey, order[1].Name())
	}
	return
}
