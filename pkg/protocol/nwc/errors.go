package nwc

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the client can surface. No raw
// transport error crosses the facade boundary without being wrapped in an
// Error carrying one of these kinds.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindConnectionStringInvalid is a parse-time failure, fatal to client
	// construction.
	KindConnectionStringInvalid
	// KindRelayUnavailable means no relay could be dialed or accept the
	// request.
	KindRelayUnavailable
	// KindBridgeUnavailable means the bridge endpoint failed at the HTTP
	// level or returned an unusable body.
	KindBridgeUnavailable
	// KindTimeout means no matching response arrived within the deadline.
	KindTimeout
	// KindProtocolError means a response arrived but could not be decrypted
	// or parsed.
	KindProtocolError
	// KindWalletError is a structured error reported by the wallet itself,
	// sub-typed by the remote code.
	KindWalletError
	// KindCapabilityUnsupported is raised in strict mode for methods the
	// wallet does not advertise.
	KindCapabilityUnsupported
	// KindInvalidArgument means a caller-supplied parameter violates a
	// precondition.
	KindInvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnectionStringInvalid:
		return "connection string invalid"
	case KindRelayUnavailable:
		return "relay unavailable"
	case KindBridgeUnavailable:
		return "bridge unavailable"
	case KindTimeout:
		return "timeout"
	case KindProtocolError:
		return "protocol error"
	case KindWalletError:
		return "wallet error"
	case KindCapabilityUnsupported:
		return "capability unsupported"
	case KindInvalidArgument:
		return "invalid argument"
	}
	return "unknown"
}

// IsTransportUnavailable reports whether the kind is one of the two
// transport-level unavailability sub-kinds, the only kinds the router falls
// back on.
func (k ErrorKind) IsTransportUnavailable() bool {
	return k == KindRelayUnavailable || k == KindBridgeUnavailable
}

// Remote error codes defined by the wallet protocol.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotImplemented      = "NOT_IMPLEMENTED"
	CodeInsufficientBalance = "INSUFFICIENT_BALANCE"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeRestricted          = "RESTRICTED"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
	CodeOther               = "OTHER"
	CodePaymentFailed       = "PAYMENT_FAILED"
	CodeNotFound            = "NOT_FOUND"
)

// Client-local codes, used where no wallet was involved in the failure.
const (
	CodeTimeout                 = "TIMEOUT"
	CodeTransportUnavailable    = "TRANSPORT_UNAVAILABLE"
	CodeProtocolError           = "PROTOCOL_ERROR"
	CodeConnectionStringInvalid = "CONNECTION_STRING_INVALID"
)

// Error is the single error shape the facade produces. Message is a stable,
// user-facing phrase; the underlying cause, when any, is wrapped and
// reachable through errors.Unwrap.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err is an Error of the given kind.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// walletMessages are the stable user-facing phrases per remote code.
var walletMessages = map[string]string{
	CodeRateLimited:         "rate limited by wallet",
	CodeNotImplemented:      "method not supported by wallet",
	CodeInsufficientBalance: "insufficient balance",
	CodeQuotaExceeded:       "wallet spending quota exceeded",
	CodeRestricted:          "operation restricted by wallet",
	CodeUnauthorized:        "connection not authorized by wallet",
	CodePaymentFailed:       "payment failed",
	CodeNotFound:            "not found",
	CodeInternal:            "wallet internal error",
	CodeOther:               "wallet error",
}

func walletError(code, message string) (err *Error) {
	msg, ok := walletMessages[code]
	if !ok {
		code, msg = CodeOther, walletMessages[CodeOther]
	}
	err = &Error{Kind: KindWalletError, Code: code, Message: msg}
	if message != "" {
		err.cause = errors.New(message)
	}
	return
}

func connectionStringInvalid(format string, a ...any) *Error {
	return &Error{
		Kind:    KindConnectionStringInvalid,
		Code:    CodeConnectionStringInvalid,
		Message: "invalid connection string",
		cause:   fmt.Errorf(format, a...),
	}
}

func relayUnavailable(cause error) *Error {
	return &Error{
		Kind:    KindRelayUnavailable,
		Code:    CodeTransportUnavailable,
		Message: "wallet relay unreachable",
		cause:   cause,
	}
}

func bridgeUnavailable(cause error) *Error {
	return &Error{
		Kind:    KindBridgeUnavailable,
		Code:    CodeTransportUnavailable,
		Message: "wallet bridge unreachable",
		cause:   cause,
	}
}

func timeoutError() *Error {
	return &Error{
		Kind:    KindTimeout,
		Code:    CodeTimeout,
		Message: "request timed out",
	}
}

func protocolError(cause error) *Error {
	return &Error{
		Kind:    KindProtocolError,
		Code:    CodeProtocolError,
		Message: "malformed wallet response",
		cause:   cause,
	}
}

func invalidArgument(format string, a ...any) *Error {
	return &Error{
		Kind:    KindInvalidArgument,
		Message: fmt.Sprintf(format, a...),
	}
}

func capabilityUnsupported(method Capability) *Error {
	return &Error{
		Kind:    KindCapabilityUnsupported,
		Code:    CodeNotImplemented,
		Message: fmt.Sprintf("wallet does not advertise %s", method),
	}
}

// asError normalizes any error into the taxonomy; already classified errors
// pass through untouched.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Kind:    KindUnknown,
		Message: "wallet request failed",
		cause:   err,
	}
}
