package nwc

import (
	"errors"
	"fmt"
	"testing"
)

func TestWalletErrorKnownCodes(t *testing.T) {
	for _, code := range []string{
		CodeRateLimited, CodeNotImplemented, CodeInsufficientBalance,
		CodeQuotaExceeded, CodeRestricted, CodeUnauthorized,
		CodeInternal, CodePaymentFailed, CodeNotFound, CodeOther,
	} {
		err := walletError(code, "wallet says no")
		if !IsKind(err, KindWalletError) {
			t.Errorf("%s: expected wallet error kind, got %v", code, err.Kind)
		}
		if err.Code != code {
			t.Errorf("%s: code rewritten to %s", code, err.Code)
		}
		if err.Message == "" {
			t.Errorf("%s: no stable message", code)
		}
	}
}

func TestWalletErrorUnknownCodeFoldsToOther(t *testing.T) {
	err := walletError("SOMETHING_NEW", "future wallet feature")
	if err.Code != CodeOther {
		t.Errorf("expected OTHER, got %s", err.Code)
	}
	if !IsKind(err, KindWalletError) {
		t.Errorf("expected wallet error kind, got %v", err.Kind)
	}
}

func TestWalletErrorPreservesCause(t *testing.T) {
	err := walletError(CodeInsufficientBalance, "need 21000 more")
	cause := errors.Unwrap(err)
	if cause == nil || cause.Error() != "need 21000 more" {
		t.Errorf("wallet message lost: %v", cause)
	}
}

func TestIsTransportUnavailable(t *testing.T) {
	if !relayUnavailable(nil).Kind.IsTransportUnavailable() {
		t.Error("relay unavailable should count as transport unavailable")
	}
	if !bridgeUnavailable(nil).Kind.IsTransportUnavailable() {
		t.Error("bridge unavailable should count as transport unavailable")
	}
	for _, e := range []*Error{
		timeoutError(), protocolError(errors.New("x")),
		walletError(CodeOther, ""), invalidArgument("x"),
		capabilityUnsupported(PayInvoice),
	} {
		if e.Kind.IsTransportUnavailable() {
			t.Errorf("%v should not count as transport unavailable", e.Kind)
		}
	}
}

func TestIsKindSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("while paying: %w", timeoutError())
	if !IsKind(err, KindTimeout) {
		t.Errorf("wrapped timeout not recognized: %v", err)
	}
	if IsKind(err, KindWalletError) {
		t.Error("wrong kind matched")
	}
	if IsKind(errors.New("plain"), KindTimeout) {
		t.Error("plain error matched a kind")
	}
}

func TestAsErrorNormalizes(t *testing.T) {
	plain := errors.New("socket exploded")
	e := asError(plain)
	if e.Kind != KindUnknown {
		t.Errorf("expected unknown kind, got %v", e.Kind)
	}
	if !errors.Is(e, plain) {
		t.Error("cause not wrapped")
	}
	classified := timeoutError()
	if asError(classified) != classified {
		t.Error("classified error should pass through untouched")
	}
}
