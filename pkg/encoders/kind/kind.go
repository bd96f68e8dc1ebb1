// Package kind provides the event kind type and the kind numbers used by the
// wallet connect protocol.
package kind

// T is an event kind number.
type T struct {
	K uint16
}

// New creates a kind from an integer.
func New[V int | uint16 | int64](k V) (t *T) { return &T{K: uint16(k)} }

var (
	// WalletInfo is the replaceable event a wallet service publishes to
	// advertise its capabilities.
	WalletInfo = New(13194)
	// ClientAuthentication is the NIP-42 AUTH event kind.
	ClientAuthentication = New(22242)
	// WalletRequest is an encrypted request from client to wallet service.
	WalletRequest = New(23194)
	// WalletResponse is an encrypted response from wallet service to client.
	WalletResponse = New(23195)
	// WalletNotification is an encrypted notification from wallet service.
	WalletNotification = New(23196)
)

// Equal reports whether two kinds have the same number.
func (t *T) Equal(other *T) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.K == other.K
}

// I64 returns the kind number as an int64.
func (t *T) I64() int64 { return int64(t.K) }
