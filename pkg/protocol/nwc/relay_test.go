package nwc

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"lukechampine.com/frand"

	"nwclink.dev/pkg/crypto/encryption"
	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/encoders/hex"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/protocol/relaytest"
	"nwclink.dev/pkg/protocol/ws"
	"nwclink.dev/pkg/utils/context"
)

// relayHarness wires a relay transport against an in-process relay with a
// scripted wallet side, for exercising correlation edge cases the mock
// wallet never produces.
type relayHarness struct {
	srv        *relaytest.Server
	walletSign *p256k.Signer
	clientSign *p256k.Signer
	convKey    []byte
	rt         *RelayTransport
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()
	srv := relaytest.New()
	t.Cleanup(srv.Close)
	walletSign := &p256k.Signer{}
	if err := walletSign.Generate(); err != nil {
		t.Fatal(err)
	}
	clientSign := &p256k.Signer{}
	if err := clientSign.InitSec(frand.Bytes(32)); err != nil {
		t.Fatal(err)
	}
	convKey, err := encryption.GenerateConversationKeyWithSigner(
		clientSign, walletSign.Pub(),
	)
	if err != nil {
		t.Fatal(err)
	}
	pool := ws.NewPool(context.Bg())
	t.Cleanup(func() { pool.Close("test done") })
	rt := NewRelayTransport(
		pool, []string{srv.URL}, clientSign, walletSign.Pub(), convKey,
	)
	rt.timeout = 5 * time.Second
	return &relayHarness{
		srv:        srv,
		walletSign: walletSign,
		clientSign: clientSign,
		convKey:    convKey,
		rt:         rt,
	}
}

// respond runs a wallet-side responder that answers the first request with
// the events produced by the build function, in order.
func (h *relayHarness) respond(
	t *testing.T, build func(reqID string) []*event.E,
) {
	t.Helper()
	ctx, cancel := context.Cancel(context.Bg())
	t.Cleanup(cancel)
	relay, err := ws.RelayConnect(ctx, h.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { relay.Close() })
	sub, err := relay.Subscribe(
		ctx, filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.Events:
				if ev == nil {
					continue
				}
				for _, resp := range build(ev.IDString()) {
					if perr := relay.Publish(ctx, resp); perr != nil {
						return
					}
				}
				return
			}
		}
	}()
}

// responseEvent signs a wallet response event correlated to reqID carrying
// the given content verbatim.
func (h *relayHarness) responseEvent(
	t *testing.T, reqID string, content []byte,
) *event.E {
	t.Helper()
	ev := &event.E{
		Content:   content,
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletResponse,
		Tags: tags.New(
			tag.New("p", hex.Enc(h.clientSign.Pub())),
			tag.New("e", reqID),
		),
	}
	if err := ev.Sign(h.walletSign); err != nil {
		t.Fatal(err)
	}
	return ev
}

func (h *relayHarness) encryptedResponse(
	t *testing.T, reqID string, resp *Response,
) *event.E {
	t.Helper()
	body, err := json.Marshal(resp)
	if err != nil {
		t.Fatal(err)
	}
	ct, err := encryption.Encrypt(body, h.convKey)
	if err != nil {
		t.Fatal(err)
	}
	return h.responseEvent(t, reqID, ct)
}

func TestRelayTransportDiscardsUncorrelated(t *testing.T) {
	h := newRelayHarness(t)
	h.respond(t, func(reqID string) []*event.E {
		// a stale response for some other request arrives first and must be
		// skipped without aborting the wait
		decoy := h.responseEvent(
			t, strings.Repeat("c", 64), []byte("stale traffic"),
		)
		real := h.encryptedResponse(
			t, reqID, &Response{
				ResultType: "get_balance",
				Result:     []byte(`{"balance":777}`),
			},
		)
		return []*event.E{decoy, real}
	})
	resp, err := h.rt.Send(context.Bg(), &Request{Method: GetBalance})
	if err != nil {
		t.Fatal(err)
	}
	gb := &GetBalanceResult{}
	if err = json.Unmarshal(resp.Result, gb); err != nil {
		t.Fatal(err)
	}
	if gb.Balance != 777 {
		t.Errorf("balance: got %d", gb.Balance)
	}
}

func TestRelayTransportGarbledResponseIsProtocolError(t *testing.T) {
	h := newRelayHarness(t)
	h.respond(t, func(reqID string) []*event.E {
		return []*event.E{
			h.responseEvent(t, reqID, []byte("!!!not a ciphertext")),
		}
	})
	_, err := h.rt.Send(context.Bg(), &Request{Method: GetBalance})
	if !IsKind(err, KindProtocolError) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestRelayTransportUndecodableResponseIsProtocolError(t *testing.T) {
	h := newRelayHarness(t)
	h.respond(t, func(reqID string) []*event.E {
		// decrypts fine, but the plaintext is not a response document
		ct, err := encryption.Encrypt([]byte("hello"), h.convKey)
		if err != nil {
			t.Fatal(err)
		}
		return []*event.E{h.responseEvent(t, reqID, ct)}
	})
	_, err := h.rt.Send(context.Bg(), &Request{Method: GetBalance})
	if !IsKind(err, KindProtocolError) {
		t.Errorf("expected protocol error, got %v", err)
	}
}

func TestRelayTransportReverseOrderResponses(t *testing.T) {
	h := newRelayHarness(t)
	// wallet side: hold both requests, then answer them in reverse order of
	// arrival, so each waiting call sees the other call's response before
	// its own
	ctx, cancel := context.Cancel(context.Bg())
	t.Cleanup(cancel)
	relay, err := ws.RelayConnect(ctx, h.srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { relay.Close() })
	sub, err := relay.Subscribe(
		ctx, filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		reqs := make([]*event.E, 0, 2)
		for len(reqs) < 2 {
			select {
			case <-ctx.Done():
				return
			case ev := <-sub.Events:
				if ev == nil {
					continue
				}
				reqs = append(reqs, ev)
			}
		}
		for i := len(reqs) - 1; i >= 0; i-- {
			plain, derr := encryption.Decrypt(reqs[i].Content, h.convKey)
			if derr != nil {
				return
			}
			var req struct {
				Params PayInvoiceParams `json:"params"`
			}
			if derr = json.Unmarshal(plain, &req); derr != nil {
				return
			}
			body, _ := json.Marshal(&PayInvoiceResult{
				Preimage: "preimage-for-" + req.Params.Invoice,
			})
			resp := h.encryptedResponse(
				t, reqs[i].IDString(), &Response{
					ResultType: "pay_invoice", Result: body,
				},
			)
			if perr := relay.Publish(ctx, resp); perr != nil {
				return
			}
		}
	}()

	invoices := []string{"lnbc-first", "lnbc-second"}
	results := make([]*Response, len(invoices))
	errs := make([]error, len(invoices))
	var wg sync.WaitGroup
	for i := range invoices {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.rt.Send(
				context.Bg(), &Request{
					Method: PayInvoice,
					Params: &PayInvoiceParams{Invoice: invoices[i]},
				},
			)
		}(i)
	}
	wg.Wait()
	for i := range invoices {
		if errs[i] != nil {
			t.Fatalf("payment %d: %v", i, errs[i])
		}
		pr := &PayInvoiceResult{}
		if err = json.Unmarshal(results[i].Result, pr); err != nil {
			t.Fatal(err)
		}
		if want := "preimage-for-" + invoices[i]; pr.Preimage != want {
			t.Errorf("payment %d got preimage %q, want %q", i, pr.Preimage, want)
		}
	}
}

func TestRelayTransportFallsThroughDeadRelay(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	wallet, err := NewMockWalletService(srv.URL, 9000)
	if err != nil {
		t.Fatal(err)
	}
	if err = wallet.Start(); err != nil {
		t.Fatal(err)
	}
	defer wallet.Stop()

	params, err := ParseConnectionURI(wallet.ConnectionURI())
	if err != nil {
		t.Fatal(err)
	}
	clientSign := &p256k.Signer{}
	if err = clientSign.InitSec(params.ClientSecretKey()); err != nil {
		t.Fatal(err)
	}
	convKey, err := encryption.GenerateConversationKeyWithSigner(
		clientSign, params.WalletPublicKey(),
	)
	if err != nil {
		t.Fatal(err)
	}
	pool := ws.NewPool(context.Bg())
	defer pool.Close("test done")
	rt := NewRelayTransport(
		pool, []string{"ws://127.0.0.1:1", srv.URL},
		clientSign, params.WalletPublicKey(), convKey,
	)
	rt.timeout = 5 * time.Second

	resp, err := rt.Send(context.Bg(), &Request{Method: GetBalance})
	if err != nil {
		t.Fatal(err)
	}
	gb := &GetBalanceResult{}
	if err = json.Unmarshal(resp.Result, gb); err != nil {
		t.Fatal(err)
	}
	if gb.Balance != 9000 {
		t.Errorf("balance: got %d", gb.Balance)
	}
}

func TestRelayTransportAllRelaysDead(t *testing.T) {
	clientSign := &p256k.Signer{}
	if err := clientSign.InitSec(frand.Bytes(32)); err != nil {
		t.Fatal(err)
	}
	pool := ws.NewPool(context.Bg())
	defer pool.Close("test done")
	rt := NewRelayTransport(
		pool, []string{"ws://127.0.0.1:1", "ws://127.0.0.1:2"},
		clientSign, frand.Bytes(32), frand.Bytes(32),
	)
	rt.timeout = 2 * time.Second
	_, err := rt.Send(context.Bg(), &Request{Method: GetInfo})
	if !IsKind(err, KindRelayUnavailable) {
		t.Errorf("expected relay unavailable, got %v", err)
	}
}
