// Command bridged is an HTTP bridge for wallet connect: it accepts wallet
// RPC calls as plain JSON over HTTP and relays them to the wallet service
// over the relay network, for callers that cannot hold relay connections
// themselves.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/rs/cors"

	"nwclink.dev/pkg/crypto/encryption"
	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/protocol/nwc"
	"nwclink.dev/pkg/protocol/ws"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
)

const maxRequestBody = 1 << 20

// rpcRequest is the bridge wire request: one wallet call plus the connection
// string identifying which wallet to reach.
type rpcRequest struct {
	Method     nwc.Capability  `json:"method"`
	Params     json.RawMessage `json:"params,omitempty"`
	Connection string          `json:"connection"`
}

// rpcReply mirrors the wallet response shape so bridge callers see the same
// fields a direct relay caller would.
type rpcReply struct {
	ResultType string             `json:"result_type,omitempty"`
	Result     json.RawMessage    `json:"result,omitempty"`
	Error      *nwc.ResponseError `json:"error,omitempty"`
}

// bridge serves wallet calls, holding one relay transport per connection
// string so repeat callers reuse relay connections and subscriptions warm.
type bridge struct {
	ctx        context.T
	pool       *ws.Pool
	transports *xsync.MapOf[string, *nwc.RelayTransport]
}

func newBridge(ctx context.T) *bridge {
	return &bridge{
		ctx:        ctx,
		pool:       ws.NewPool(ctx),
		transports: xsync.NewMapOf[string, *nwc.RelayTransport](),
	}
}

func (b *bridge) transport(connection string) (
	rt *nwc.RelayTransport, err error,
) {
	if rt, _ = b.transports.Load(connection); rt != nil {
		return
	}
	var params *nwc.ConnectionParams
	if params, err = nwc.ParseConnectionURI(connection); err != nil {
		return
	}
	keys := &p256k.Signer{}
	if err = keys.InitSec(params.ClientSecretKey()); chk.E(err) {
		return
	}
	var conversationKey []byte
	if conversationKey, err = encryption.GenerateConversationKeyWithSigner(
		keys, params.WalletPublicKey(),
	); chk.E(err) {
		return
	}
	rt = nwc.NewRelayTransport(
		b.pool, params.Relays(), keys,
		params.WalletPublicKey(), conversationKey,
	)
	b.transports.Store(connection, rt)
	return
}

func (b *bridge) handleRPC(w http.ResponseWriter, r *http.Request) {
	req := &rpcRequest{}
	body := http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Connection == "" || req.Method == "" {
		writeError(w, http.StatusBadRequest, "method and connection are required")
		return
	}
	rt, err := b.transport(req.Connection)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid connection string")
		return
	}
	var params any
	if len(req.Params) > 0 {
		params = req.Params
	}
	resp, err := rt.Send(r.Context(), &nwc.Request{
		Method: req.Method, Params: params,
	})
	if err != nil {
		var e *nwc.Error
		status := http.StatusBadGateway
		if errors.As(err, &e) && e.Kind == nwc.KindTimeout {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, &rpcReply{
		ResultType: resp.ResultType,
		Result:     resp.Result,
		Error:      resp.Error,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); chk.E(err) {
		return
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &rpcReply{
		Error: &nwc.ResponseError{Code: nwc.CodeOther, Message: msg},
	})
}

func main() {
	listen := os.Getenv("BRIDGED_LISTEN")
	if listen == "" {
		listen = "127.0.0.1:8812"
	}
	ctx, cancel := context.Cancel(context.Bg())
	defer cancel()
	b := newBridge(ctx)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.AllowAll().Handler)
	r.Post("/rpc", b.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	log.I.F("bridge listening on %s", listen)
	if err := srv.ListenAndServe(); chk.E(err) {
		os.Exit(1)
	}
}
