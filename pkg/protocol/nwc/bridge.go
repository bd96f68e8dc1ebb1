package nwc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"nwclink.dev/pkg/utils/context"
)

// maxBridgeBody caps how much of a bridge reply is read.
const maxBridgeBody = 1 << 20

// BridgeTransport delivers wallet requests through an HTTP bridge service
// with one POST per logical call. Any HTTP-level failure or unusable body is
// a BridgeUnavailable error, never a raw one.
type BridgeTransport struct {
	url        string
	connection string
	hc         *http.Client
}

// NewBridgeTransport wires a bridge transport for one connection. The
// serialized connection string rides inside every request body so the
// bridge can reach the wallet on the caller's behalf.
func NewBridgeTransport(
	url, connection string, hc *http.Client,
) *BridgeTransport {
	if hc == nil {
		hc = &http.Client{Timeout: defaultRPCTimeout}
	}
	return &BridgeTransport{url: url, connection: connection, hc: hc}
}

// Name implements Transport.
func (bt *BridgeTransport) Name() string { return TransportBridge }

type bridgeRequest struct {
	Method     Capability `json:"method"`
	Params     any        `json:"params,omitempty"`
	Connection string     `json:"connection"`
}

// bridgeReply covers both reply shapes a bridge can produce: the direct
// result object, and the wrapped tool-call payload whose inner text is the
// direct shape as a JSON string.
type bridgeReply struct {
	ResultType string          `json:"result_type"`
	Result     json.RawMessage `json:"result"`
	Error      *ResponseError  `json:"error"`
	Content    []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// Send implements Transport.
func (bt *BridgeTransport) Send(c context.T, req *Request) (
	resp *Response, err error,
) {
	body, merr := json.Marshal(bridgeRequest{
		Method:     req.Method,
		Params:     req.Params,
		Connection: bt.connection,
	})
	if merr != nil {
		return nil, bridgeUnavailable(merr)
	}
	hreq, herr := http.NewRequestWithContext(
		c, http.MethodPost, bt.url, bytes.NewReader(body),
	)
	if herr != nil {
		return nil, bridgeUnavailable(herr)
	}
	hreq.Header.Set("Content-Type", "application/json")
	res, derr := bt.hc.Do(hreq)
	if derr != nil {
		return nil, bridgeUnavailable(derr)
	}
	defer res.Body.Close()
	raw, rerr := io.ReadAll(io.LimitReader(res.Body, maxBridgeBody))
	if rerr != nil {
		return nil, bridgeUnavailable(rerr)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, bridgeUnavailable(fmt.Errorf(
			"bridge returned %d: %s", res.StatusCode, truncate(raw, 256),
		))
	}
	return normalizeBridgeReply(raw)
}

// normalizeBridgeReply folds the two reply shapes into one Response.
func normalizeBridgeReply(raw []byte) (resp *Response, err error) {
	reply := &bridgeReply{}
	if uerr := json.Unmarshal(raw, reply); uerr != nil {
		return nil, bridgeUnavailable(uerr)
	}
	if len(reply.Content) > 0 {
		// wrapped tool-call shape: the first text item holds the real reply
		for _, item := range reply.Content {
			if item.Type != "text" {
				continue
			}
			inner := &bridgeReply{}
			if uerr := json.Unmarshal(
				[]byte(item.Text), inner,
			); uerr != nil {
				return nil, bridgeUnavailable(uerr)
			}
			reply = inner
			break
		}
	}
	if reply.Error == nil && reply.Result == nil {
		return nil, bridgeUnavailable(fmt.Errorf(
			"bridge reply carries neither result nor error: %s",
			truncate(raw, 256),
		))
	}
	return &Response{
		ResultType: reply.ResultType,
		Error:      reply.Error,
		Result:     reply.Result,
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
