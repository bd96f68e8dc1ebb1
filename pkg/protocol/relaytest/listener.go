package relaytest

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Listener wraps an inbound relay-side websocket so that concurrent
// goroutines can write to it safely.
type Listener struct {
	mutex   sync.Mutex
	Conn    *websocket.Conn
	Request *http.Request
}

// NewListener creates a Listener for an accepted connection.
func NewListener(conn *websocket.Conn, req *http.Request) (ws *Listener) {
	return &Listener{Conn: conn, Request: req}
}

// Write a message to send to the client.
func (ws *Listener) Write(p []byte) (n int, err error) {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()
	err = ws.Conn.WriteMessage(websocket.TextMessage, p)
	if err != nil {
		n = len(p)
		if strings.Contains(err.Error(), "close sent") {
			ws.Close()
			err = nil
			return
		}
	}
	return
}

// RealRemote returns the remote address of the client.
func (ws *Listener) RealRemote() string { return ws.Conn.RemoteAddr().String() }

// Req returns the http.Request associated with the connection.
func (ws *Listener) Req() *http.Request { return ws.Request }

// Close the connection from the relay side.
func (ws *Listener) Close() (err error) { return ws.Conn.Close() }
