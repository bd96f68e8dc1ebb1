package nwc

import (
	"encoding/json"
	"errors"
	"time"

	"nwclink.dev/pkg/crypto/encryption"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/encoders/hex"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/protocol/ws"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
)

// defaultRPCTimeout bounds a Send when the caller's context carries no
// deadline.
const defaultRPCTimeout = 10 * time.Second

// RelayTransport delivers wallet requests over the relay network: it signs
// and encrypts the request event, publishes it, and correlates the response
// by the request event's ID carried in the response's e tag.
//
// Relay connections are owned by the pool and shared between concurrent
// requests; each Send owns only its subscription, which is released on every
// exit path.
type RelayTransport struct {
	pool            *ws.Pool
	relays          []string
	sign            signer.I
	walletPublicKey []byte
	conversationKey []byte
	timeout         time.Duration
}

// NewRelayTransport wires a relay transport over an existing pool.
func NewRelayTransport(
	pool *ws.Pool, relays []string, sign signer.I,
	walletPublicKey, conversationKey []byte,
) *RelayTransport {
	return &RelayTransport{
		pool:            pool,
		relays:          relays,
		sign:            sign,
		walletPublicKey: walletPublicKey,
		conversationKey: conversationKey,
		timeout:         defaultRPCTimeout,
	}
}

// Name implements Transport.
func (rt *RelayTransport) Name() string { return TransportRelay }

// Send publishes the request and waits for the correlated response, trying
// each relay in order with the remaining time budget split evenly across the
// relays not yet tried.
func (rt *RelayTransport) Send(c context.T, req *Request) (
	resp *Response, err error,
) {
	ctx := c
	deadline, ok := ctx.Deadline()
	if !ok {
		var cancel context.F
		ctx, cancel = context.Timeout(c, rt.timeout)
		defer cancel()
		deadline, _ = ctx.Deadline()
	}
	var ev *event.E
	if ev, err = rt.buildRequestEvent(req); err != nil {
		return
	}
	reqID := ev.IDString()
	published := false
	var lastErr error
	for i, u := range rt.relays {
		budget := time.Until(deadline) / time.Duration(len(rt.relays)-i)
		if budget <= 0 {
			break
		}
		attemptCtx, cancel := context.Timeout(ctx, budget)
		var sent bool
		resp, sent, err = rt.attempt(attemptCtx, u, ev, reqID)
		cancel()
		if resp != nil {
			return resp, nil
		}
		published = published || sent
		if err != nil {
			// a garbled response from the wallet itself will not improve on
			// another relay
			var e *Error
			if errors.As(err, &e) && e.Kind == KindProtocolError {
				return nil, err
			}
			log.D.F("relay %s attempt failed: %v", u, err)
			lastErr = err
		}
	}
	if published {
		return nil, timeoutError()
	}
	return nil, relayUnavailable(lastErr)
}

// buildRequestEvent encrypts the request body and wraps it in a signed
// wallet request event addressed to the wallet's public key. The event ID is
// the correlation id for the whole exchange.
func (rt *RelayTransport) buildRequestEvent(req *Request) (
	ev *event.E, err error,
) {
	var body []byte
	if body, err = json.Marshal(req); chk.E(err) {
		return
	}
	var content []byte
	if content, err = encryption.Encrypt(
		body, rt.conversationKey,
	); chk.E(err) {
		return
	}
	ev = &event.E{
		Content:   content,
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletRequest,
		Tags: tags.New(
			tag.New("p", hex.Enc(rt.walletPublicKey)),
			tag.New("encryption", string(Nip04)),
		),
	}
	if err = ev.Sign(rt.sign); chk.E(err) {
		return
	}
	return
}

// attempt runs the publish-and-wait exchange against a single relay. The
// subscription is scoped to this attempt and released on every exit. sent
// reports whether the relay accepted the publish, which distinguishes a
// timeout from an unreachable relay.
func (rt *RelayTransport) attempt(
	c context.T, url string, ev *event.E, reqID string,
) (resp *Response, sent bool, err error) {
	var relay *ws.Client
	if relay, err = rt.pool.EnsureRelay(url); err != nil {
		return
	}
	// responses authored by the wallet, addressed to us, from just before
	// the request's send time
	f := &filter.F{
		Kinds:   kinds.New(kind.WalletResponse),
		Authors: tag.New(hex.Enc(rt.walletPublicKey)),
		Tags:    tags.New(tag.New("#p", hex.Enc(rt.sign.Pub()))),
		Since:   timestamp.FromUnix(ev.CreatedAt.I64() - 1),
	}
	var sub *ws.Subscription
	if sub, err = relay.Subscribe(
		c, filters.New(f), ws.WithLabel("nwc"),
	); err != nil {
		return
	}
	defer sub.Unsub()
	if err = relay.Publish(c, ev); err != nil {
		return
	}
	sent = true
	for {
		select {
		case <-c.Done():
			return nil, true, nil
		case e2, more := <-sub.Events:
			if !more || e2 == nil {
				// relay dropped the subscription; wait out the budget
				<-c.Done()
				return nil, true, nil
			}
			// the author and kind are enforced by the subscription filter;
			// anything with another correlation tag is stale traffic from an
			// abandoned request and is discarded without comment
			if string(e2.Tags.FirstValue("e")) != reqID {
				continue
			}
			var plain []byte
			if plain, err = encryption.Decrypt(
				e2.Content, rt.conversationKey,
			); err != nil {
				return nil, true, protocolError(err)
			}
			r := &Response{}
			if err = json.Unmarshal(plain, r); err != nil {
				return nil, true, protocolError(err)
			}
			return r, true, nil
		}
	}
}
