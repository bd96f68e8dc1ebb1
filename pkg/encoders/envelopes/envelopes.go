// Package envelopes implements the client side of the relay wire protocol:
// the JSON array messages exchanged over a relay websocket. Only the labels
// a client sends or receives are implemented.
package envelopes

import (
	"bytes"
	"encoding/json"

	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/utils/errorf"
)

// Labels of the envelope types.
const (
	LEvent  = "EVENT"
	LReq    = "REQ"
	LClose  = "CLOSE"
	LEose   = "EOSE"
	LOK     = "OK"
	LClosed = "CLOSED"
	LNotice = "NOTICE"
	LAuth   = "AUTH"
)

// Identify decodes a wire message into its label and the remaining raw
// elements of the array.
func Identify(b []byte) (label string, elems []json.RawMessage, err error) {
	var arr []json.RawMessage
	if err = json.Unmarshal(b, &arr); err != nil {
		err = errorf.T("envelopes: not a JSON array: %w", err)
		return
	}
	if len(arr) < 1 {
		err = errorf.T("envelopes: empty array")
		return
	}
	if err = json.Unmarshal(arr[0], &label); err != nil {
		err = errorf.T("envelopes: label not a string: %w", err)
		return
	}
	elems = arr[1:]
	return
}

func marshal(elems ...any) []byte {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return nil
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

// MarshalEventSubmission renders an ["EVENT", <event>] message.
func MarshalEventSubmission(ev *event.E) []byte {
	return marshal(LEvent, ev.ToJ())
}

// MarshalReq renders a ["REQ", <id>, <filter>...] message.
func MarshalReq(id string, ff *filters.T) []byte {
	elems := []any{LReq, id}
	for _, f := range ff.F {
		elems = append(elems, f)
	}
	return marshal(elems...)
}

// MarshalClose renders a ["CLOSE", <id>] message.
func MarshalClose(id string) []byte { return marshal(LClose, id) }

// MarshalAuthResponse renders an ["AUTH", <event>] message.
func MarshalAuthResponse(ev *event.E) []byte {
	return marshal(LAuth, ev.ToJ())
}

// EventResult is a received ["EVENT", <subscription id>, <event>].
type EventResult struct {
	SubID string
	Event *event.E
}

// ParseEventResult decodes the elements after an EVENT label.
func ParseEventResult(elems []json.RawMessage) (res *EventResult, err error) {
	if len(elems) < 2 {
		err = errorf.T("envelopes: EVENT needs 2 elements, got %d", len(elems))
		return
	}
	res = &EventResult{}
	if err = json.Unmarshal(elems[0], &res.SubID); err != nil {
		return
	}
	if res.Event, err = event.Unmarshal(elems[1]); err != nil {
		return
	}
	return
}

// OK is a received ["OK", <event id>, <accepted>, <reason>].
type OK struct {
	EventID string
	OK      bool
	Reason  string
}

// ParseOK decodes the elements after an OK label.
func ParseOK(elems []json.RawMessage) (ok *OK, err error) {
	if len(elems) < 2 {
		err = errorf.T("envelopes: OK needs 2 elements, got %d", len(elems))
		return
	}
	ok = &OK{}
	if err = json.Unmarshal(elems[0], &ok.EventID); err != nil {
		return
	}
	if err = json.Unmarshal(elems[1], &ok.OK); err != nil {
		return
	}
	if len(elems) > 2 {
		if err = json.Unmarshal(elems[2], &ok.Reason); err != nil {
			return
		}
	}
	return
}

// ParseEose decodes the elements after an EOSE label.
func ParseEose(elems []json.RawMessage) (subID string, err error) {
	if len(elems) < 1 {
		err = errorf.T("envelopes: EOSE needs a subscription id")
		return
	}
	err = json.Unmarshal(elems[0], &subID)
	return
}

// ParseClosed decodes the elements after a CLOSED label.
func ParseClosed(elems []json.RawMessage) (subID, reason string, err error) {
	if len(elems) < 1 {
		err = errorf.T("envelopes: CLOSED needs a subscription id")
		return
	}
	if err = json.Unmarshal(elems[0], &subID); err != nil {
		return
	}
	if len(elems) > 1 {
		err = json.Unmarshal(elems[1], &reason)
	}
	return
}

// ParseNotice decodes the elements after a NOTICE label.
func ParseNotice(elems []json.RawMessage) (msg string, err error) {
	if len(elems) < 1 {
		err = errorf.T("envelopes: NOTICE needs a message")
		return
	}
	err = json.Unmarshal(elems[0], &msg)
	return
}

// ParseAuthChallenge decodes the elements after an AUTH label sent by a
// relay.
func ParseAuthChallenge(elems []json.RawMessage) (challenge string, err error) {
	if len(elems) < 1 {
		err = errorf.T("envelopes: AUTH needs a challenge")
		return
	}
	err = json.Unmarshal(elems[0], &challenge)
	return
}
