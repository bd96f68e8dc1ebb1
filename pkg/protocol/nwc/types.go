package nwc

import (
	"time"
)

// Capability is a wallet protocol method name.
type Capability string

const (
	GetInfo          = Capability("get_info")
	GetBalance       = Capability("get_balance")
	MakeInvoice      = Capability("make_invoice")
	PayInvoice       = Capability("pay_invoice")
	LookupInvoice    = Capability("lookup_invoice")
	ListTransactions = Capability("list_transactions")
)

// EncryptionType identifies the payload cipher advertised by a wallet.
type EncryptionType string

const (
	Nip04   = EncryptionType("nip04")
	Nip44V2 = EncryptionType("nip44_v2")
)

// NotificationType identifies a wallet push notification variant.
type NotificationType string

const (
	PaymentReceived = NotificationType("payment_received")
	PaymentSent     = NotificationType("payment_sent")
)

// Notification is a push event from the wallet service.
type Notification struct {
	Type NotificationType
	// Transaction carries the payment the notification reports.
	Transaction *Transaction
}

// WalletServiceInfo is the content of the wallet's info event.
type WalletServiceInfo struct {
	EncryptionTypes   []EncryptionType
	Capabilities      []Capability
	NotificationTypes []NotificationType
}

// GetInfoResult is the wallet's get_info reply.
type GetInfoResult struct {
	Alias         string   `json:"alias"`
	Color         string   `json:"color"`
	Pubkey        string   `json:"pubkey"`
	Network       string   `json:"network"`
	BlockHeight   uint     `json:"block_height"`
	BlockHash     string   `json:"block_hash"`
	Methods       []string `json:"methods"`
	Notifications []string `json:"notifications"`
}

// MakeInvoiceParams are the caller's invoice parameters. Amount is in
// millisatoshis.
type MakeInvoiceParams struct {
	Amount          uint64  `json:"amount"`
	Expiry          *uint32 `json:"expiry,omitempty"`
	Description     string  `json:"description,omitempty"`
	DescriptionHash string  `json:"description_hash,omitempty"`
	Metadata        any     `json:"metadata,omitempty"`
}

// PayInvoiceParams are the caller's payment parameters. Amount, when set,
// overrides the invoice amount (for zero-amount invoices), in
// millisatoshis.
type PayInvoiceParams struct {
	Invoice  string  `json:"invoice"`
	Amount   *uint64 `json:"amount,omitempty"`
	Metadata any     `json:"metadata,omitempty"`
}

// LookupInvoiceParams identify an invoice by payment hash or by the invoice
// string; at least one must be set.
type LookupInvoiceParams struct {
	PaymentHash string `json:"payment_hash,omitempty"`
	Invoice     string `json:"invoice,omitempty"`
}

// ListTransactionsParams page through the wallet's transaction list.
type ListTransactionsParams struct {
	From   uint64 `json:"from,omitempty"`
	To     uint64 `json:"to,omitempty"`
	Limit  uint16 `json:"limit,omitempty"`
	Offset uint32 `json:"offset,omitempty"`
	Unpaid bool   `json:"unpaid,omitempty"`
	Type   string `json:"type,omitempty"`
}

// GetBalanceResult is the wallet's get_balance reply, in millisatoshis.
type GetBalanceResult struct {
	Balance uint64 `json:"balance"`
}

// PayInvoiceResult is the wallet's pay_invoice reply.
type PayInvoiceResult struct {
	Preimage string `json:"preimage"`
	FeesPaid uint64 `json:"fees_paid"`
}

// Transaction is the wallet's wire shape for invoices and payments.
type Transaction struct {
	Type            string  `json:"type"`
	State           string  `json:"state"`
	Invoice         string  `json:"invoice"`
	Description     string  `json:"description"`
	DescriptionHash string  `json:"description_hash"`
	Preimage        string  `json:"preimage"`
	PaymentHash     string  `json:"payment_hash"`
	Amount          uint64  `json:"amount"`
	FeesPaid        uint64  `json:"fees_paid"`
	CreatedAt       uint64  `json:"created_at"`
	ExpiresAt       uint64  `json:"expires_at"`
	SettledAt       *uint64 `json:"settled_at"`
	Metadata        any     `json:"metadata"`
}

type (
	MakeInvoiceResult   = Transaction
	LookupInvoiceResult = Transaction
)

// ListTransactionsResult is the wallet's list_transactions reply.
type ListTransactionsResult struct {
	Transactions []Transaction `json:"transactions"`
	TotalCount   uint32        `json:"total_count"`
}

// Invoice is the canonical invoice record handed to callers, independent of
// the heterogeneous field sets wallets return.
type Invoice struct {
	// Bolt11 is the payment request string.
	Bolt11 string
	// PaymentHash is the hex payment hash.
	PaymentHash string
	// AmountMsat is the invoice amount in millisatoshis.
	AmountMsat uint64
	// Description is the invoice memo.
	Description string
	// ExpiresAt is the wallet's expiry, or the requested expiry counted
	// from issue time when the wallet reported none.
	ExpiresAt time.Time
}
