package relaytest

import (
	"bytes"
	"encoding/json"

	"nwclink.dev/pkg/encoders/envelopes"
	"nwclink.dev/pkg/encoders/event"
)

func jsonUnmarshal(b []byte, v any) error { return json.Unmarshal(b, v) }

func marshalElems(elems ...any) []byte {
	buf := new(bytes.Buffer)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(elems); err != nil {
		return nil
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
}

func marshalOK(eventID string, ok bool, reason string) []byte {
	return marshalElems(envelopes.LOK, eventID, ok, reason)
}

func marshalEose(subID string) []byte {
	return marshalElems(envelopes.LEose, subID)
}

func marshalStoredEvent(subID string, ev *event.E) []byte {
	return marshalElems(envelopes.LEvent, subID, ev.ToJ())
}

func marshalClosed(subID, reason string) []byte {
	return marshalElems(envelopes.LClosed, subID, reason)
}

func marshalAuth(challenge string) []byte {
	return marshalElems(envelopes.LAuth, challenge)
}
