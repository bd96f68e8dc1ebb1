package nwc

import (
	"encoding/json"
	"fmt"

	"nwclink.dev/pkg/utils/context"
)

// Transport names, used for routing hints and logging.
const (
	TransportRelay  = "relay"
	TransportBridge = "bridge"
)

// Request is the logical RPC envelope carried to the wallet, whichever
// transport delivers it.
type Request struct {
	Method Capability `json:"method"`
	Params any        `json:"params,omitempty"`
}

// ResponseError is the structured error a wallet reports.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (err *ResponseError) Error() string {
	return fmt.Sprintf("%s %s", err.Code, err.Message)
}

// Response is the normalized reply envelope. Result stays raw so callers
// can decode it into the typed result for the method they sent.
type Response struct {
	ResultType string          `json:"result_type"`
	Error      *ResponseError  `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// Transport delivers one Request and returns the wallet's Response. A
// wallet-reported error is a successful delivery: it comes back inside the
// Response. The error return is reserved for transport-level failures
// (unavailable, timeout, protocol).
type Transport interface {
	Name() string
	Send(c context.T, req *Request) (resp *Response, err error)
}
