// Package ws implements the client side of a relay websocket connection:
// dialing, the message loop, subscriptions and publish acknowledgement
// tracking, and a pool for sharing connections across concurrent requests.
package ws

import (
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/errorf"
)

// maxMessageSize caps a single relay message; wallet responses are small but
// relays can forward arbitrary events on a misrouted subscription id.
const maxMessageSize = 1 << 20

// Connection is an outbound client -> relay websocket.
type Connection struct {
	conn *websocket.Conn
}

// NewConnection dials a relay and returns the live connection.
func NewConnection(
	c context.T, url string, requestHeader http.Header,
	tlsConfig *tls.Config,
) (cn *Connection, err error) {
	opts := &websocket.DialOptions{
		HTTPHeader:      requestHeader,
		CompressionMode: websocket.CompressionContextTakeover,
	}
	if tlsConfig != nil {
		opts.HTTPClient = &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		}
	}
	var conn *websocket.Conn
	if conn, _, err = websocket.Dial(c, url, opts); err != nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)
	cn = &Connection{conn: conn}
	return
}

// WriteMessage dispatches a message through the Connection.
func (cn *Connection) WriteMessage(c context.T, data []byte) (err error) {
	select {
	case <-c.Done():
		return errorf.D("context canceled before write")
	default:
	}
	return cn.conn.Write(c, websocket.MessageText, data)
}

// ReadMessage picks up the next incoming message on a Connection and writes
// it into buf.
func (cn *Connection) ReadMessage(c context.T, buf io.Writer) (err error) {
	var data []byte
	if _, data, err = cn.conn.Read(c); err != nil {
		return
	}
	_, err = buf.Write(data)
	return
}

// Ping sends a websocket ping and waits for the pong.
func (cn *Connection) Ping(c context.T) (err error) {
	ctx, cancel := context.Timeout(c, 10*time.Second)
	defer cancel()
	return cn.conn.Ping(ctx)
}

// Close the Connection.
func (cn *Connection) Close() (err error) {
	return cn.conn.Close(websocket.StatusNormalClosure, "")
}
