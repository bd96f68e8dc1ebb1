package nwc

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
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
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/protocol/ws"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
)

// MockWalletService is an in-process wallet service speaking the wallet
// connect protocol over a relay, used by tests and cmd/mockwallet.
type MockWalletService struct {
	relay           string
	walletSecretKey signer.I
	walletPublicKey []byte
	client          *ws.Client
	ctx             context.T
	cancel          context.F

	// ResponseDelay postpones every reply, for exercising timeouts.
	ResponseDelay time.Duration

	balanceMutex sync.RWMutex
	balance      uint64 // millisatoshis

	clientsMutex     sync.RWMutex
	connectedClients map[string][]byte // client pubkey hex -> conversation key

	invoicesMutex sync.RWMutex
	invoices      map[string]*Transaction // payment hash -> invoice
}

// NewMockWalletService creates a mock wallet with a fresh keypair and the
// given starting balance in millisatoshis.
func NewMockWalletService(relay string, initialBalance uint64) (
	m *MockWalletService, err error,
) {
	walletKey := &p256k.Signer{}
	if err = walletKey.Generate(); chk.E(err) {
		return
	}
	ctx, cancel := context.Cancel(context.Bg())
	m = &MockWalletService{
		relay:            relay,
		walletSecretKey:  walletKey,
		walletPublicKey:  walletKey.Pub(),
		ctx:              ctx,
		cancel:           cancel,
		balance:          initialBalance,
		connectedClients: make(map[string][]byte),
		invoices:         make(map[string]*Transaction),
	}
	return
}

// Start connects the wallet to its relay, publishes the info event and
// begins serving requests.
func (m *MockWalletService) Start() (err error) {
	if m.client, err = ws.RelayConnect(m.ctx, m.relay); chk.E(err) {
		return fmt.Errorf("failed to connect to relay: %w", err)
	}
	if err = m.publishWalletInfo(); chk.E(err) {
		return fmt.Errorf("failed to publish wallet info: %w", err)
	}
	if err = m.subscribeToRequests(); chk.E(err) {
		return fmt.Errorf("failed to subscribe to requests: %w", err)
	}
	return
}

// Stop shuts the wallet down.
func (m *MockWalletService) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	if m.client != nil {
		m.client.Close()
	}
}

// WalletPublicKey returns the wallet's public key.
func (m *MockWalletService) WalletPublicKey() []byte {
	return m.walletPublicKey
}

// ConnectionURI mints a connection string for this wallet with a fresh
// client secret.
func (m *MockWalletService) ConnectionURI() string {
	secret := frand.Bytes(32)
	return fmt.Sprintf(
		"%s://%s?relay=%s&secret=%s",
		Scheme, hex.Enc(m.walletPublicKey),
		url.QueryEscape(m.relay), hex.Enc(secret),
	)
}

// Balance returns the current balance in millisatoshis.
func (m *MockWalletService) Balance() uint64 {
	m.balanceMutex.RLock()
	defer m.balanceMutex.RUnlock()
	return m.balance
}

// publishWalletInfo publishes the wallet info event: space separated
// capabilities in the content, encryption and notification types as tags.
func (m *MockWalletService) publishWalletInfo() (err error) {
	ev := &event.E{
		Content:   []byte("get_info get_balance make_invoice pay_invoice lookup_invoice"),
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletInfo,
		Tags: tags.New(
			tag.New("encryption", string(Nip44V2)+" "+string(Nip04)),
			tag.New(
				"notifications",
				string(PaymentReceived)+" "+string(PaymentSent),
			),
		),
	}
	if err = ev.Sign(m.walletSecretKey); chk.E(err) {
		return
	}
	return m.client.Publish(m.ctx, ev)
}

func (m *MockWalletService) subscribeToRequests() (err error) {
	var sub *ws.Subscription
	if sub, err = m.client.Subscribe(
		m.ctx, filters.New(
			&filter.F{
				Kinds: kinds.New(kind.WalletRequest),
				Tags: tags.New(
					tag.New("#p", hex.Enc(m.walletPublicKey)),
				),
				Since: timestamp.Now(),
			},
		),
	); chk.E(err) {
		return
	}
	go m.handleRequestEvents(sub)
	return
}

func (m *MockWalletService) handleRequestEvents(sub *ws.Subscription) {
	for {
		select {
		case <-m.ctx.Done():
			return
		case ev := <-sub.Events:
			if ev == nil {
				continue
			}
			if err := m.processRequestEvent(ev); chk.E(err) {
				log.E.F("error processing request event: %v", err)
			}
		}
	}
}

func (m *MockWalletService) processRequestEvent(ev *event.E) (err error) {
	clientPubkey := ev.Pubkey
	clientPubkeyHex := hex.Enc(clientPubkey)

	var conversationKey []byte
	m.clientsMutex.Lock()
	if existingKey, exists := m.connectedClients[clientPubkeyHex]; exists {
		conversationKey = existingKey
	} else {
		if conversationKey, err = encryption.GenerateConversationKeyWithSigner(
			m.walletSecretKey, clientPubkey,
		); chk.E(err) {
			m.clientsMutex.Unlock()
			return
		}
		m.connectedClients[clientPubkeyHex] = conversationKey
	}
	m.clientsMutex.Unlock()

	var decrypted []byte
	if decrypted, err = encryption.Decrypt(
		ev.Content, conversationKey,
	); chk.E(err) {
		return
	}
	req := &Request{}
	var rawParams struct {
		Params json.RawMessage `json:"params"`
	}
	if err = json.Unmarshal(decrypted, req); chk.E(err) {
		return
	}
	if err = json.Unmarshal(decrypted, &rawParams); chk.E(err) {
		return
	}

	if m.ResponseDelay > 0 {
		select {
		case <-time.After(m.ResponseDelay):
		case <-m.ctx.Done():
			return
		}
	}

	result, rerr := m.processMethod(req.Method, rawParams.Params)
	resp := &Response{ResultType: string(req.Method)}
	if rerr != nil {
		resp.Error = rerr
	} else {
		var rb []byte
		if rb, err = json.Marshal(result); chk.E(err) {
			return
		}
		resp.Result = rb
	}
	if err = m.sendResponse(
		clientPubkey, conversationKey, ev.ID, resp,
	); chk.E(err) {
		return
	}
	if req.Method == PayInvoice && rerr == nil {
		if pr, ok := result.(*PayInvoiceResult); ok {
			err = m.notifyPaymentSent(
				clientPubkey, conversationKey, rawParams.Params, pr,
			)
		}
	}
	return
}

// notifyPaymentSent publishes a payment_sent notification event to the
// client whose payment just settled.
func (m *MockWalletService) notifyPaymentSent(
	clientPubkey, conversationKey []byte, params json.RawMessage,
	pr *PayInvoiceResult,
) (err error) {
	p := &PayInvoiceParams{}
	if err = json.Unmarshal(params, p); chk.E(err) {
		return
	}
	now := uint64(time.Now().Unix())
	tx := &Transaction{
		Type:      "outgoing",
		State:     "settled",
		Invoice:   p.Invoice,
		Preimage:  pr.Preimage,
		FeesPaid:  pr.FeesPaid,
		CreatedAt: now,
		SettledAt: &now,
	}
	if p.Amount != nil {
		tx.Amount = *p.Amount
	}
	var body []byte
	if body, err = json.Marshal(
		map[string]any{
			"notification_type": PaymentSent,
			"notification":      tx,
		},
	); chk.E(err) {
		return
	}
	var encrypted []byte
	if encrypted, err = encryption.Encrypt(
		body, conversationKey,
	); chk.E(err) {
		return
	}
	ev := &event.E{
		Content:   encrypted,
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletNotification,
		Tags: tags.New(
			tag.New("p", hex.Enc(clientPubkey)),
			tag.New("encryption", string(Nip04)),
		),
	}
	if err = ev.Sign(m.walletSecretKey); chk.E(err) {
		return
	}
	return m.client.Publish(m.ctx, ev)
}

func (m *MockWalletService) processMethod(
	method Capability, params json.RawMessage,
) (result any, rerr *ResponseError) {
	switch method {
	case GetInfo:
		return m.getInfo(), nil
	case GetBalance:
		return m.getBalance(), nil
	case MakeInvoice:
		return m.makeInvoice(params)
	case PayInvoice:
		return m.payInvoice(params)
	case LookupInvoice:
		return m.lookupInvoice(params)
	default:
		return nil, &ResponseError{
			Code:    CodeNotImplemented,
			Message: fmt.Sprintf("unsupported method: %s", method),
		}
	}
}

func (m *MockWalletService) getInfo() *GetInfoResult {
	return &GetInfoResult{
		Alias:       "Mock Wallet",
		Color:       "#3399FF",
		Pubkey:      hex.Enc(m.walletPublicKey),
		Network:     "mainnet",
		BlockHeight: 850000,
		BlockHash:   "0000000000000000000123456789abcdef",
		Methods: []string{
			"get_info", "get_balance", "make_invoice", "pay_invoice",
			"lookup_invoice",
		},
		Notifications: []string{
			string(PaymentReceived), string(PaymentSent),
		},
	}
}

func (m *MockWalletService) getBalance() *GetBalanceResult {
	m.balanceMutex.RLock()
	defer m.balanceMutex.RUnlock()
	return &GetBalanceResult{Balance: m.balance}
}

func (m *MockWalletService) makeInvoice(params json.RawMessage) (
	result any, rerr *ResponseError,
) {
	p := &MakeInvoiceParams{}
	if err := json.Unmarshal(params, p); err != nil || p.Amount == 0 {
		return nil, &ResponseError{
			Code:    CodeOther,
			Message: "missing or invalid amount",
		}
	}
	paymentHash := hex.Enc(frand.Bytes(32))
	expiry := defaultInvoiceExpiry
	if p.Expiry != nil {
		expiry = *p.Expiry
	}
	now := time.Now()
	tx := &Transaction{
		Type:        "incoming",
		State:       "pending",
		Invoice:     fmt.Sprintf("lnbc%dn1p%s", p.Amount/100, paymentHash[:12]),
		Description: p.Description,
		PaymentHash: paymentHash,
		Amount:      p.Amount,
		CreatedAt:   uint64(now.Unix()),
		ExpiresAt:   uint64(now.Add(time.Duration(expiry) * time.Second).Unix()),
	}
	m.invoicesMutex.Lock()
	m.invoices[paymentHash] = tx
	m.invoicesMutex.Unlock()
	return tx, nil
}

func (m *MockWalletService) payInvoice(params json.RawMessage) (
	result any, rerr *ResponseError,
) {
	p := &PayInvoiceParams{}
	if err := json.Unmarshal(params, p); err != nil || p.Invoice == "" {
		return nil, &ResponseError{
			Code:    CodeOther,
			Message: "missing or invalid invoice",
		}
	}
	amount := uint64(1000)
	if p.Amount != nil {
		amount = *p.Amount
	}
	m.balanceMutex.Lock()
	if m.balance < amount {
		m.balanceMutex.Unlock()
		return nil, &ResponseError{
			Code:    CodeInsufficientBalance,
			Message: "insufficient balance",
		}
	}
	m.balance -= amount
	m.balanceMutex.Unlock()
	return &PayInvoiceResult{
		Preimage: hex.Enc(frand.Bytes(32)),
		FeesPaid: amount / 1000,
	}, nil
}

func (m *MockWalletService) lookupInvoice(params json.RawMessage) (
	result any, rerr *ResponseError,
) {
	p := &LookupInvoiceParams{}
	if err := json.Unmarshal(params, p); err != nil {
		return nil, &ResponseError{
			Code:    CodeOther,
			Message: "invalid lookup parameters",
		}
	}
	m.invoicesMutex.RLock()
	defer m.invoicesMutex.RUnlock()
	if p.PaymentHash != "" {
		if tx, ok := m.invoices[p.PaymentHash]; ok {
			return tx, nil
		}
	}
	for _, tx := range m.invoices {
		if p.Invoice != "" && tx.Invoice == p.Invoice {
			return tx, nil
		}
	}
	return nil, &ResponseError{
		Code:    CodeNotFound,
		Message: "no such invoice",
	}
}

// sendResponse encrypts and publishes a wallet response event correlated to
// the request by its e tag.
func (m *MockWalletService) sendResponse(
	clientPubkey, conversationKey, requestID []byte, resp *Response,
) (err error) {
	var body []byte
	if body, err = json.Marshal(resp); chk.E(err) {
		return
	}
	var encrypted []byte
	if encrypted, err = encryption.Encrypt(
		body, conversationKey,
	); chk.E(err) {
		return
	}
	ev := &event.E{
		Content:   encrypted,
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletResponse,
		Tags: tags.New(
			tag.New("p", hex.Enc(clientPubkey)),
			tag.New("e", hex.Enc(requestID)),
			tag.New("encryption", string(Nip04)),
		),
	}
	if err = ev.Sign(m.walletSecretKey); chk.E(err) {
		return
	}
	return m.client.Publish(m.ctx, ev)
}
