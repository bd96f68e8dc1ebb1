// Package nwc implements a Nostr Wallet Connect client: it asks a remote
// wallet service for Lightning actions over relays, with an optional HTTP
// bridge fallback, and maps every failure into a small stable error
// taxonomy.
package nwc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

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
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/protocol/ws"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
	"nwclink.dev/pkg/utils/values"
)

// defaultInvoiceExpiry is applied when the caller does not set one.
const defaultInvoiceExpiry = uint32(3600)

// Client is the public wallet connect surface. Construct one per
// connection string and pass it to whoever needs payments; its lifecycle is
// owned by its creator, there is no ambient default instance.
type Client struct {
	params          *ConnectionParams
	sign            signer.I
	conversationKey []byte
	pool            *ws.Pool
	router          *Router
	caps            *CapabilityCache
	strict          bool
	timeout         time.Duration
	bridgeURL       string
	httpClient      *http.Client
}

// ClientOption configures a Client at construction.
type ClientOption func(*Client)

// WithBridgeURL configures the HTTP bridge fallback endpoint. When set, the
// bridge is the primary transport and relays are the fallback.
func WithBridgeURL(u string) ClientOption {
	return func(cl *Client) { cl.bridgeURL = u }
}

// WithStrictCapabilities makes the client refuse methods the wallet does
// not advertise instead of attempting them anyway.
func WithStrictCapabilities() ClientOption {
	return func(cl *Client) { cl.strict = true }
}

// WithTimeout sets the per-call deadline applied when the caller's context
// has none.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.timeout = d }
}

// WithSigner injects an externally held identity signer instead of the
// ephemeral key derived from the connection secret.
func WithSigner(sign signer.I) ClientOption {
	return func(cl *Client) { cl.sign = sign }
}

// WithCapabilityCache shares a capability cache between clients.
func WithCapabilityCache(cc *CapabilityCache) ClientOption {
	return func(cl *Client) { cl.caps = cc }
}

// WithHTTPClient overrides the HTTP client used by the bridge transport.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = hc }
}

// NewClient parses the connection URI and wires the transports. Parse
// failures are synchronous and fatal; nothing is dialed until the first
// call.
func NewClient(c context.T, connectionURI string, opts ...ClientOption) (
	cl *Client, err error,
) {
	cl = &Client{timeout: defaultRPCTimeout}
	if cl.params, err = ParseConnectionURI(connectionURI); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(cl)
	}
	if cl.sign == nil {
		keys := &p256k.Signer{}
		if err = keys.InitSec(cl.params.ClientSecretKey()); chk.E(err) {
			return nil, connectionStringInvalid("secret is not a usable key: %v", err)
		}
		cl.sign = keys
	}
	if cl.conversationKey, err = encryption.GenerateConversationKeyWithSigner(
		cl.sign, cl.params.WalletPublicKey(),
	); chk.E(err) {
		return nil, err
	}
	if cl.caps == nil {
		cl.caps = NewCapabilityCache()
	}
	cl.pool = ws.NewPool(
		c, ws.WithAuthHandler(func() signer.I { return cl.sign }),
	)
	rt := NewRelayTransport(
		cl.pool, cl.params.Relays(), cl.sign,
		cl.params.WalletPublicKey(), cl.conversationKey,
	)
	rt.timeout = cl.timeout
	var bridge Transport
	if cl.bridgeURL != "" {
		bridge = NewBridgeTransport(
			cl.bridgeURL, cl.params.String(), cl.httpClient,
		)
	}
	cl.router = NewRouter(cl.walletKey(), rt, bridge)
	return
}

// Close releases every relay connection the client holds.
func (cl *Client) Close() { cl.pool.Close("wallet client closed") }

// WalletPublicKey returns the wallet service's public key.
func (cl *Client) WalletPublicKey() []byte { return cl.params.WalletPublicKey() }

// Lud16 returns the lightning address from the connection string, if any.
func (cl *Client) Lud16() string { return cl.params.Lud16() }

func (cl *Client) walletKey() string {
	return hex.Enc(cl.params.WalletPublicKey())
}

// rpc runs one request through the router and normalizes the outcome: every
// error leaving here is an *Error.
func (cl *Client) rpc(
	c context.T, method Capability, params, out any,
) (err error) {
	if err = cl.checkCapability(c, method); err != nil {
		return
	}
	var resp *Response
	if resp, err = cl.router.Send(
		c, &Request{Method: method, Params: params},
	); err != nil {
		return asError(err)
	}
	if resp.Error != nil {
		return walletError(resp.Error.Code, resp.Error.Message)
	}
	if out != nil {
		if resp.Result == nil {
			return protocolError(errors.New("response carries no result"))
		}
		if uerr := json.Unmarshal(resp.Result, out); uerr != nil {
			return protocolError(uerr)
		}
	}
	return nil
}

// checkCapability applies the advisory capability policy: unknown or
// unsupported methods are attempted anyway with a warning, unless strict
// mode is on.
func (cl *Client) checkCapability(c context.T, method Capability) (err error) {
	if method == GetInfo {
		return
	}
	pk := cl.walletKey()
	supported, known := cl.caps.Supports(pk, method)
	if !known && cl.strict {
		// strict mode needs an answer before dispatch; a failed fetch caches
		// the defaults
		if _, gerr := cl.GetInfo(c); gerr != nil {
			log.D.F("capability fetch failed, assuming defaults: %v", gerr)
		}
		supported, known = cl.caps.Supports(pk, method)
	}
	if known && !supported {
		if cl.strict {
			return capabilityUnsupported(method)
		}
		log.W.F(
			"wallet does not advertise %s, attempting anyway", method,
		)
	}
	return
}

// GetInfo fetches the wallet's information and caches its advertised method
// set. When the fetch fails the default capability set is cached so later
// capability checks still have an answer, and the failure is returned.
func (cl *Client) GetInfo(c context.T) (gi *GetInfoResult, err error) {
	gi = &GetInfoResult{}
	pk := cl.walletKey()
	if err = cl.rpc(c, GetInfo, nil, gi); err != nil {
		if _, known := cl.caps.Get(pk); !known {
			cl.caps.Replace(pk, DefaultCapabilities())
		}
		return nil, err
	}
	methods := make([]Capability, 0, len(gi.Methods))
	for _, m := range gi.Methods {
		methods = append(methods, Capability(m))
	}
	cl.caps.Replace(pk, methods)
	return
}

// Capabilities returns the wallet's method set, fetching it on first use
// and falling back to the defaults when the wallet cannot be asked.
func (cl *Client) Capabilities(c context.T) []Capability {
	pk := cl.walletKey()
	if ms, ok := cl.caps.Get(pk); ok {
		return ms
	}
	if _, err := cl.GetInfo(c); err != nil {
		log.D.F("capability fetch failed: %v", err)
	}
	if ms, ok := cl.caps.Get(pk); ok {
		return ms
	}
	return DefaultCapabilities()
}

// MakeInvoice asks the wallet to issue an invoice and returns it in the
// canonical record. Amount is validated before anything is dispatched;
// expiry defaults to an hour.
func (cl *Client) MakeInvoice(c context.T, params *MakeInvoiceParams) (
	inv *Invoice, err error,
) {
	if params == nil || params.Amount == 0 {
		return nil, invalidArgument("invoice amount must be positive millisatoshis")
	}
	p := *params
	if p.Expiry == nil {
		p.Expiry = values.ToUint32Pointer(defaultInvoiceExpiry)
	}
	issued := time.Now()
	tx := &Transaction{}
	if err = cl.rpc(c, MakeInvoice, &p, tx); err != nil {
		return nil, err
	}
	inv = &Invoice{
		Bolt11:      tx.Invoice,
		PaymentHash: tx.PaymentHash,
		AmountMsat:  tx.Amount,
		Description: tx.Description,
	}
	if inv.AmountMsat == 0 {
		inv.AmountMsat = p.Amount
	}
	if tx.ExpiresAt > 0 {
		inv.ExpiresAt = time.Unix(int64(tx.ExpiresAt), 0)
	} else {
		inv.ExpiresAt = issued.Add(time.Duration(*p.Expiry) * time.Second)
	}
	return
}

// PayInvoice asks the wallet to pay an invoice. Delivery is at most once:
// when the acknowledgment is lost the call surfaces Timeout and the caller
// reconciles through LookupInvoice rather than the client retrying a
// payment blind.
func (cl *Client) PayInvoice(c context.T, params *PayInvoiceParams) (
	pi *PayInvoiceResult, err error,
) {
	if params == nil || params.Invoice == "" {
		return nil, invalidArgument("invoice to pay must not be empty")
	}
	if params.Amount != nil && *params.Amount == 0 {
		return nil, invalidArgument("amount override must be positive millisatoshis")
	}
	pi = &PayInvoiceResult{}
	if err = cl.rpc(c, PayInvoice, params, pi); err != nil {
		return nil, err
	}
	return
}

// GetBalance returns the wallet balance in millisatoshis.
func (cl *Client) GetBalance(c context.T) (gb *GetBalanceResult, err error) {
	gb = &GetBalanceResult{}
	if err = cl.rpc(c, GetBalance, nil, gb); err != nil {
		return nil, err
	}
	return
}

// LookupInvoice fetches the state of a single invoice or payment.
func (cl *Client) LookupInvoice(c context.T, params *LookupInvoiceParams) (
	li *LookupInvoiceResult, err error,
) {
	if params == nil || (params.PaymentHash == "" && params.Invoice == "") {
		return nil, invalidArgument("lookup needs a payment hash or an invoice")
	}
	li = &LookupInvoiceResult{}
	if err = cl.rpc(c, LookupInvoice, params, li); err != nil {
		return nil, err
	}
	return
}

// ListTransactions pages through the wallet's transaction history.
func (cl *Client) ListTransactions(
	c context.T, params *ListTransactionsParams,
) (lt *ListTransactionsResult, err error) {
	if params == nil {
		params = &ListTransactionsParams{}
	}
	lt = &ListTransactionsResult{}
	if err = cl.rpc(c, ListTransactions, params, lt); err != nil {
		return nil, err
	}
	return
}

// Notifications subscribes to the wallet's push notifications, delivering
// decrypted payment events until the context ends. The channel is closed
// when the subscription dies; undecodable notifications are dropped.
func (cl *Client) Notifications(c context.T) (
	nc <-chan *Notification, err error,
) {
	f := &filter.F{
		Kinds:   kinds.New(kind.WalletNotification),
		Authors: tag.New(cl.walletKey()),
		Tags:    tags.New(tag.New("#p", hex.Enc(cl.sign.Pub()))),
		Since:   timestamp.FromUnix(timestamp.Now().I64() - 1),
	}
	var sub *ws.Subscription
	var lastErr error
	for _, u := range cl.params.Relays() {
		var relay *ws.Client
		if relay, lastErr = cl.pool.EnsureRelay(u); lastErr != nil {
			continue
		}
		if sub, lastErr = relay.Subscribe(
			c, filters.New(f), ws.WithLabel("nwc-notify"),
		); lastErr == nil {
			break
		}
	}
	if sub == nil {
		return nil, relayUnavailable(lastErr)
	}
	ch := make(chan *Notification)
	go func() {
		defer close(ch)
		defer sub.Unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, more := <-sub.Events:
				if !more {
					return
				}
				if ev == nil {
					continue
				}
				n, derr := cl.decodeNotification(ev)
				if derr != nil {
					log.D.F("dropping undecodable notification: %v", derr)
					continue
				}
				select {
				case ch <- n:
				case <-c.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

func (cl *Client) decodeNotification(ev *event.E) (
	n *Notification, err error,
) {
	var plain []byte
	if plain, err = encryption.Decrypt(
		ev.Content, cl.conversationKey,
	); err != nil {
		return
	}
	var w struct {
		Type NotificationType `json:"notification_type"`
		Body json.RawMessage  `json:"notification"`
	}
	if err = json.Unmarshal(plain, &w); err != nil {
		return
	}
	n = &Notification{Type: w.Type}
	if len(w.Body) > 0 {
		tx := &Transaction{}
		if err = json.Unmarshal(w.Body, tx); err != nil {
			return nil, err
		}
		n.Transaction = tx
	}
	return
}

// GetWalletServiceInfo reads the wallet's published info event from the
// relays: capabilities from the space-separated content, encryption and
// notification types from its tags.
func (cl *Client) GetWalletServiceInfo(c context.T) (
	wsi *WalletServiceInfo, err error,
) {
	f := &filter.F{
		Limit:   values.ToUintPointer(1),
		Kinds:   kinds.New(kind.WalletInfo),
		Authors: tag.New(cl.walletKey()),
	}
	ie := cl.pool.QuerySingle(c, cl.params.Relays(), f)
	if ie == nil {
		return nil, relayUnavailable(
			errors.New("no wallet info event found"),
		)
	}
	wsi = &WalletServiceInfo{}
	for _, capability := range strings.Fields(string(ie.E.Content)) {
		wsi.Capabilities = append(wsi.Capabilities, Capability(capability))
	}
	if v := ie.E.Tags.FirstValue("encryption"); v != nil {
		for _, e := range strings.Fields(string(v)) {
			wsi.EncryptionTypes = append(
				wsi.EncryptionTypes, EncryptionType(e),
			)
		}
	}
	if v := ie.E.Tags.FirstValue("notifications"); v != nil {
		for _, n := range strings.Fields(string(v)) {
			wsi.NotificationTypes = append(
				wsi.NotificationTypes, NotificationType(n),
			)
		}
	}
	return
}
