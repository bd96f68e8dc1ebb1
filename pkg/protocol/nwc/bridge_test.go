package nwc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nwclink.dev/pkg/utils/context"
)

func bridgeServer(
	t *testing.T, handler http.HandlerFunc,
) (*httptest.Server, *BridgeTransport) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	bt := NewBridgeTransport(srv.URL, "nostr+walletconnect://test", nil)
	return srv, bt
}

func TestBridgeSendDirectShape(t *testing.T) {
	_, bt := bridgeServer(
		t, func(w http.ResponseWriter, r *http.Request) {
			var req bridgeRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("bad request body: %v", err)
			}
			if req.Method != GetBalance {
				t.Errorf("method: got %s", req.Method)
			}
			if req.Connection == "" {
				t.Error("connection string missing from bridge request")
			}
			_, _ = w.Write(
				[]byte(`{"result_type":"get_balance","result":{"balance":21000}}`),
			)
		},
	)
	resp, err := bt.Send(context.Bg(), &Request{Method: GetBalance})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected wallet error: %v", resp.Error)
	}
	gb := &GetBalanceResult{}
	if err = json.Unmarshal(resp.Result, gb); err != nil {
		t.Fatal(err)
	}
	if gb.Balance != 21000 {
		t.Errorf("balance: got %d", gb.Balance)
	}
}

func TestBridgeSendWrappedShape(t *testing.T) {
	inner := `{"result_type":"get_info","result":{"alias":"bridged wallet"}}`
	wrapped, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": inner}},
	})
	_, bt := bridgeServer(
		t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(wrapped)
		},
	)
	resp, err := bt.Send(context.Bg(), &Request{Method: GetInfo})
	if err != nil {
		t.Fatal(err)
	}
	gi := &GetInfoResult{}
	if err = json.Unmarshal(resp.Result, gi); err != nil {
		t.Fatal(err)
	}
	if gi.Alias != "bridged wallet" {
		t.Errorf("alias: got %s", gi.Alias)
	}
}

func TestBridgeSendWalletErrorPassesThrough(t *testing.T) {
	_, bt := bridgeServer(
		t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(
				[]byte(`{"result_type":"pay_invoice","error":{"code":"INSUFFICIENT_BALANCE","message":"broke"}}`),
			)
		},
	)
	resp, err := bt.Send(context.Bg(), &Request{Method: PayInvoice})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Error == nil || resp.Error.Code != CodeInsufficientBalance {
		t.Errorf("expected wallet error in response, got %+v", resp)
	}
}

func TestBridgeSendFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			"http error status",
			func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "upstream broken", http.StatusBadGateway)
			},
		},
		{
			"garbage body",
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>not json</html>"))
			},
		},
		{
			"neither result nor error",
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"result_type":"get_info"}`))
			},
		},
		{
			"wrapped garbage",
			func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(
					[]byte(`{"content":[{"type":"text","text":"not json"}]}`),
				)
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, bt := bridgeServer(t, tc.handler)
			_, err := bt.Send(context.Bg(), &Request{Method: GetInfo})
			if !IsKind(err, KindBridgeUnavailable) {
				t.Errorf("expected bridge unavailable, got %v", err)
			}
		})
	}
}

func TestBridgeSendUnreachable(t *testing.T) {
	srv := httptest.NewServer(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}),
	)
	srv.Close()
	bt := NewBridgeTransport(srv.URL, "nostr+walletconnect://test", nil)
	_, err := bt.Send(context.Bg(), &Request{Method: GetInfo})
	if !IsKind(err, KindBridgeUnavailable) {
		t.Errorf("expected bridge unavailable, got %v", err)
	}
}
