package nwc

import (
	"testing"
)

func TestCapabilityCacheUnknownWallet(t *testing.T) {
	cc := NewCapabilityCache()
	if _, known := cc.Get("deadbeef"); known {
		t.Error("empty cache should not know any wallet")
	}
	supported, known := cc.Supports("deadbeef", PayInvoice)
	if known || supported {
		t.Error("unknown wallet should report nothing supported or known")
	}
}

func TestCapabilityCacheReplace(t *testing.T) {
	cc := NewCapabilityCache()
	cc.Replace("wallet1", []Capability{GetInfo, MakeInvoice})

	supported, known := cc.Supports("wallet1", MakeInvoice)
	if !known || !supported {
		t.Error("make_invoice should be supported")
	}
	supported, known = cc.Supports("wallet1", PayInvoice)
	if !known {
		t.Error("wallet1 should be known")
	}
	if supported {
		t.Error("pay_invoice was not advertised")
	}

	// a new advertisement replaces the whole set
	cc.Replace("wallet1", []Capability{PayInvoice})
	if supported, _ = cc.Supports("wallet1", MakeInvoice); supported {
		t.Error("stale capability survived replace")
	}
	if supported, _ = cc.Supports("wallet1", PayInvoice); !supported {
		t.Error("new capability missing after replace")
	}
}

func TestCapabilityCachePerWallet(t *testing.T) {
	cc := NewCapabilityCache()
	cc.Replace("w1", DefaultCapabilities())
	if _, known := cc.Supports("w2", PayInvoice); known {
		t.Error("capability sets must be per wallet")
	}
}
