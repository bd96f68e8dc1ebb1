// Package relaytest runs a minimal in-process relay for exercising the
// websocket client and the wallet connect flows without a network. It stores
// events in memory, answers REQ with matching stored events followed by
// EOSE, and forwards live events to matching subscriptions.
package relaytest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"nwclink.dev/pkg/encoders/envelopes"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/log"
)

// Server is an in-process relay.
type Server struct {
	HTTP *httptest.Server
	// URL is the ws:// address clients dial.
	URL string

	// RejectPublishReason, when set, makes the relay answer every EVENT
	// submission with OK false and this reason.
	RejectPublishReason string

	// AuthChallenge, when set before clients connect, makes the relay
	// demand authentication: every connection is greeted with an AUTH
	// challenge and REQ is answered with an auth-required CLOSED until a
	// valid auth event for the challenge arrives.
	AuthChallenge string

	upgrader websocket.Upgrader

	mutex  sync.Mutex
	events event.S
	subs   map[*subscriber]struct{}
	authed map[*Listener]struct{}
}

type subscriber struct {
	listener *Listener
	id       string
	ff       *filters.T
}

// New starts a relay on a random local port.
func New() (s *Server) {
	s = &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		subs:   make(map[*subscriber]struct{}),
		authed: make(map[*Listener]struct{}),
	}
	s.HTTP = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.HTTP.URL, "http")
	return
}

// Close shuts the relay down.
func (s *Server) Close() { s.HTTP.Close() }

// Events returns a snapshot of the events the relay has accepted.
func (s *Server) Events() (evs event.S) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	evs = make(event.S, len(s.events))
	copy(evs, s.events)
	return
}

// Inject stores an event and forwards it to matching subscriptions as if a
// client had published it.
func (s *Server) Inject(ev *event.E) {
	s.accept(ev)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if chk.D(err) {
		return
	}
	l := NewListener(conn, r)
	defer func() {
		s.dropConn(l)
		l.Close()
	}()
	if s.AuthChallenge != "" {
		s.send(l, marshalAuth(s.AuthChallenge))
	}
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleMessage(l, msg)
	}
}

func (s *Server) handleMessage(l *Listener, msg []byte) {
	label, elems, err := envelopes.Identify(msg)
	if err != nil {
		log.T.F("relaytest: unparseable message: %s", msg)
		return
	}
	switch label {
	case envelopes.LEvent:
		// submissions carry the event as the only element
		if len(elems) < 1 {
			return
		}
		ev, err := event.Unmarshal(elems[0])
		if chk.D(err) {
			return
		}
		if s.RejectPublishReason != "" {
			s.send(l, marshalOK(ev.IDString(), false, s.RejectPublishReason))
			return
		}
		if ok, err := ev.Verify(); !ok || err != nil {
			s.send(l, marshalOK(ev.IDString(), false, "invalid: bad signature"))
			return
		}
		s.accept(ev)
		s.send(l, marshalOK(ev.IDString(), true, ""))
	case envelopes.LReq:
		if len(elems) < 2 {
			return
		}
		var id string
		if err = jsonUnmarshal(elems[0], &id); err != nil {
			return
		}
		if s.AuthChallenge != "" && !s.isAuthed(l) {
			s.send(l, marshalClosed(id, "auth-required: subscriptions need auth"))
			return
		}
		ff := filters.New()
		for _, raw := range elems[1:] {
			f := filter.New()
			if err = jsonUnmarshal(raw, f); chk.D(err) {
				return
			}
			ff.F = append(ff.F, f)
		}
		s.mutex.Lock()
		stored := make(event.S, 0, len(s.events))
		for _, ev := range s.events {
			if ff.Match(ev) {
				stored = append(stored, ev)
			}
		}
		s.subs[&subscriber{listener: l, id: id, ff: ff}] = struct{}{}
		s.mutex.Unlock()
		for _, ev := range stored {
			s.send(l, marshalStoredEvent(id, ev))
		}
		s.send(l, marshalEose(id))
	case envelopes.LAuth:
		if len(elems) < 1 {
			return
		}
		ev, err := event.Unmarshal(elems[0])
		if chk.D(err) {
			return
		}
		if !s.validAuth(ev) {
			s.send(
				l, marshalOK(ev.IDString(), false, "auth-required: bad auth event"),
			)
			return
		}
		s.mutex.Lock()
		s.authed[l] = struct{}{}
		s.mutex.Unlock()
		s.send(l, marshalOK(ev.IDString(), true, ""))
	case envelopes.LClose:
		if len(elems) < 1 {
			return
		}
		var id string
		if err = jsonUnmarshal(elems[0], &id); err != nil {
			return
		}
		s.mutex.Lock()
		for sub := range s.subs {
			if sub.listener == l && sub.id == id {
				delete(s.subs, sub)
			}
		}
		s.mutex.Unlock()
	default:
		log.T.F("relaytest: ignoring %s", label)
	}
}

func (s *Server) accept(ev *event.E) {
	s.mutex.Lock()
	s.events = append(s.events, ev)
	targets := make([]*subscriber, 0, len(s.subs))
	for sub := range s.subs {
		if sub.ff.MatchIgnoringTimestampConstraints(ev) {
			targets = append(targets, sub)
		}
	}
	s.mutex.Unlock()
	for _, sub := range targets {
		s.send(sub.listener, marshalStoredEvent(sub.id, ev))
	}
}

// validAuth accepts a client authentication event signed over the current
// challenge.
func (s *Server) validAuth(ev *event.E) bool {
	if !ev.Kind.Equal(kind.ClientAuthentication) {
		return false
	}
	if string(ev.Tags.FirstValue("challenge")) != s.AuthChallenge {
		return false
	}
	ok, err := ev.Verify()
	return ok && err == nil
}

func (s *Server) isAuthed(l *Listener) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	_, ok := s.authed[l]
	return ok
}

func (s *Server) dropConn(l *Listener) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for sub := range s.subs {
		if sub.listener == l {
			delete(s.subs, sub)
		}
	}
	delete(s.authed, l)
}

func (s *Server) send(l *Listener, msg []byte) {
	if msg == nil {
		return
	}
	if _, err := l.Write(msg); err != nil {
		log.T.F("relaytest: write failed: %v", err)
	}
}
