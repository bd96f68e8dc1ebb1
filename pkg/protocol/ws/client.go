package ws

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"nwclink.dev/pkg/encoders/envelopes"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/encoders/hex"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
	"nwclink.dev/pkg/utils/normalize"
)

var subscriptionIDCounter atomic.Int64

// Client represents a connection to a relay.
type Client struct {
	closeMutex sync.Mutex

	URL           string
	requestHeader http.Header // e.g. for origin header

	Connection    *Connection
	Subscriptions *xsync.MapOf[int64, *Subscription]

	ConnectionError         error
	connectionContext       context.T // will be canceled when the connection closes
	connectionContextCancel context.C

	challenge                     string          // auth challenge, we only keep the last
	authSigner                    func() signer.I // answers auth demands, may be nil
	noticeHandler                 func(string)    // relay NOTICEs
	customHandler                 func(string) // nonstandard unparseable messages
	okCallbacks                   *xsync.MapOf[string, func(bool, string)]
	writeQueue                    chan writeRequest
	subscriptionChannelCloseQueue chan *Subscription

	// AssumeValid skips verifying signatures on events received from this
	// relay.
	AssumeValid bool
}

type writeRequest struct {
	msg    []byte
	answer chan error
}

// NewRelay returns a new relay client. It takes a context that, when
// canceled, will close the relay connection.
func NewRelay(ctx context.T, url string, opts ...RelayOption) *Client {
	ctx, cancel := context.Cause(ctx)
	r := &Client{
		URL:                     normalize.URL(url),
		connectionContext:       ctx,
		connectionContextCancel: cancel,
		Subscriptions:           xsync.NewMapOf[int64, *Subscription](),
		okCallbacks: xsync.NewMapOf[string, func(
			bool, string,
		)](),
		writeQueue:                    make(chan writeRequest),
		subscriptionChannelCloseQueue: make(chan *Subscription),
		requestHeader:                 nil,
	}

	for _, opt := range opts {
		opt.ApplyRelayOption(r)
	}

	return r
}

// RelayConnect returns a relay client connected to url.
//
// The given context is only used during the connection phase. Once
// successfully connected, cancelling ctx has no effect.
//
// The ongoing relay connection uses a background context. To close the
// connection, call r.Close(). If you need fine grained long-term connection
// contexts, use NewRelay() instead.
func RelayConnect(ctx context.T, url string, opts ...RelayOption) (
	*Client, error,
) {
	r := NewRelay(context.Bg(), url, opts...)
	err := r.Connect(ctx)
	return r, err
}

// RelayOption is the type of the argument passed when instantiating relay
// connections.
type RelayOption interface {
	ApplyRelayOption(*Client)
}

var (
	_ RelayOption = (WithNoticeHandler)(nil)
	_ RelayOption = (WithCustomHandler)(nil)
	_ RelayOption = (WithRequestHeader)(nil)
	_ RelayOption = (WithAuthSigner)(nil)
)

// WithNoticeHandler just takes notices and is expected to do something with
// them. When not given, defaults to logging the notices.
type WithNoticeHandler func(notice string)

func (nh WithNoticeHandler) ApplyRelayOption(r *Client) {
	r.noticeHandler = nh
}

// WithCustomHandler must be a function that handles any relay message that
// couldn't be parsed as a standard envelope.
type WithCustomHandler func(data string)

func (ch WithCustomHandler) ApplyRelayOption(r *Client) {
	r.customHandler = ch
}

// WithRequestHeader sets the HTTP request header of the websocket preflight
// request.
type WithRequestHeader http.Header

func (ch WithRequestHeader) ApplyRelayOption(r *Client) {
	r.requestHeader = http.Header(ch)
}

// WithAuthSigner supplies the signer used to answer a relay's auth demand.
// When not given, auth-required closures surface as CLOSED.
type WithAuthSigner func() signer.I

func (as WithAuthSigner) ApplyRelayOption(r *Client) {
	r.authSigner = as
}

// String just returns the relay URL.
func (r *Client) String() string {
	return r.URL
}

// Context retrieves the context that is associated with this relay
// connection. It will be closed when the relay is disconnected.
func (r *Client) Context() context.T { return r.connectionContext }

// IsConnected returns true if the connection to this relay seems to be
// active.
func (r *Client) IsConnected() bool { return r.connectionContext.Err() == nil }

// Connect tries to establish a websocket connection to r.URL.
// If the context expires before the connection is complete, an error is
// returned. Once successfully connected, context expiration has no effect:
// call r.Close to close the connection.
func (r *Client) Connect(ctx context.T) error {
	return r.ConnectWithTLS(ctx, nil)
}

func subIdToSerial(subId string) int64 {
	n := strings.Index(subId, ":")
	if n < 0 || n > len(subId) {
		return -1
	}
	serialId, _ := strconv.ParseInt(subId[0:n], 10, 64)
	return serialId
}

// ConnectWithTLS is like Connect(), but takes a special tls.Config if you
// need that.
func (r *Client) ConnectWithTLS(
	ctx context.T, tlsConfig *tls.Config,
) (err error) {
	if r.connectionContext == nil || r.Subscriptions == nil {
		return fmt.Errorf("relay must be initialized with a call to NewRelay()")
	}

	if r.URL == "" {
		return fmt.Errorf("invalid relay URL '%s'", r.URL)
	}

	if _, ok := ctx.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		ctx, cancel = context.TimeoutCause(
			ctx, 7*time.Second, errors.New("connection took too long"),
		)
		defer cancel()
	}
	var conn *Connection
	if conn, err = NewConnection(
		ctx, r.URL, r.requestHeader, tlsConfig,
	); chk.E(err) {
		err = fmt.Errorf("error opening websocket to '%s': %w", r.URL, err)
		return
	}
	r.Connection = conn
	// ping every 29 seconds
	ticker := time.NewTicker(29 * time.Second)
	// queue all write operations here so we don't do mutex spaghetti
	go func() {
		for {
			select {
			case <-r.connectionContext.Done():
				ticker.Stop()
				r.Connection = nil
				for _, sub := range r.Subscriptions.Range {
					sub.unsub(
						fmt.Errorf(
							"relay connection closed: %w / %w",
							context.GetCause(r.connectionContext),
							r.ConnectionError,
						),
					)
				}
				return
			case <-ticker.C:
				err := r.Connection.Ping(r.connectionContext)
				if err != nil && !strings.Contains(
					err.Error(), "failed to wait for pong",
				) {
					log.T.C(
						func() string {
							return fmt.Sprintf(
								"{%s} error writing ping: %v; closing websocket",
								r.URL,
								err,
							)
						},
					)
					r.Close() // this should trigger a context cancelation
					return
				}
			case writeRequest := <-r.writeQueue:
				// all write requests will go through this to prevent races
				log.T.C(
					func() string {
						return fmt.Sprintf(
							"{%s} sending %v\n", r.URL,
							string(writeRequest.msg),
						)
					},
				)
				if err := r.Connection.WriteMessage(
					r.connectionContext, writeRequest.msg,
				); err != nil {
					writeRequest.answer <- err
				}
				close(writeRequest.answer)
			}
		}
	}()
	// general message reader loop
	go func() {
		for {
			buf := new(bytes.Buffer)
			if err := conn.ReadMessage(r.connectionContext, buf); err != nil {
				r.ConnectionError = err
				r.close(err)
				break
			}
			r.handleMessage(buf.Bytes())
		}
	}()
	return
}

func (r *Client) handleMessage(msg []byte) {
	label, elems, err := envelopes.Identify(msg)
	if err != nil {
		if r.customHandler != nil {
			r.customHandler(string(msg))
		}
		return
	}
	switch label {
	case envelopes.LNotice:
		notice, err := envelopes.ParseNotice(elems)
		if chk.D(err) {
			return
		}
		// see WithNoticeHandler
		if r.noticeHandler != nil {
			r.noticeHandler(notice)
		} else {
			log.D.F("NOTICE from %s: '%s'\n", r.URL, notice)
		}
	case envelopes.LAuth:
		challenge, err := envelopes.ParseAuthChallenge(elems)
		if chk.D(err) || challenge == "" {
			return
		}
		r.challenge = challenge
	case envelopes.LEvent:
		res, err := envelopes.ParseEventResult(elems)
		if err != nil {
			return
		}
		sub, ok := r.Subscriptions.Load(subIdToSerial(res.SubID))
		if !ok {
			log.W.F("unknown subscription with id '%s'\n", res.SubID)
			return
		}
		if !sub.match(res.Event) {
			log.T.C(
				func() string {
					return fmt.Sprintf(
						"{%s} filter does not match: %v ~ %s\n", r.URL,
						sub.Filters, res.Event.Marshal(nil),
					)
				},
			)
			return
		}
		if !r.AssumeValid {
			if ok, err = res.Event.Verify(); !ok || chk.D(err) {
				log.T.C(
					func() string {
						return fmt.Sprintf(
							"{%s} bad signature on %s\n", r.URL,
							res.Event.IDString(),
						)
					},
				)
				return
			}
		}
		sub.dispatchEvent(res.Event)
	case envelopes.LEose:
		subID, err := envelopes.ParseEose(elems)
		if chk.D(err) {
			return
		}
		sub, ok := r.Subscriptions.Load(subIdToSerial(subID))
		if !ok {
			log.W.F("unknown subscription with id '%s'\n", subID)
			return
		}
		sub.dispatchEose()
	case envelopes.LClosed:
		subID, reason, err := envelopes.ParseClosed(elems)
		if chk.D(err) {
			return
		}
		sub, ok := r.Subscriptions.Load(subIdToSerial(subID))
		if !ok {
			log.W.F("unknown subscription with id '%s'\n", subID)
			return
		}
		if strings.HasPrefix(reason, "auth-required:") &&
			sub.authRetried.CompareAndSwap(false, true) &&
			r.authenticate(sub) {
			return
		}
		sub.handleClosed(reason)
	case envelopes.LOK:
		okMsg, err := envelopes.ParseOK(elems)
		if chk.D(err) {
			return
		}
		if okCallback, exist := r.okCallbacks.Load(okMsg.EventID); exist {
			okCallback(okMsg.OK, okMsg.Reason)
		} else {
			log.T.C(
				func() string {
					return fmt.Sprintf(
						"{%s} got an unexpected OK message for event %s",
						r.URL,
						okMsg.EventID,
					)
				},
			)
		}
	default:
		log.W.F("unknown envelope type %s\n%s", label, msg)
		if r.customHandler != nil {
			r.customHandler(string(msg))
		}
	}
}

// Write queues an arbitrary message to be sent to the relay.
func (r *Client) Write(msg []byte) <-chan error {
	ch := make(chan error)
	select {
	case r.writeQueue <- writeRequest{msg: msg, answer: ch}:
	case <-r.connectionContext.Done():
		go func() { ch <- fmt.Errorf("connection closed") }()
	}
	return ch
}

// Publish sends an "EVENT" command to the relay and waits for an OK
// response.
func (r *Client) Publish(ctx context.T, ev *event.E) error {
	return r.publish(ctx, ev.ID, envelopes.MarshalEventSubmission(ev))
}

// authenticate answers the relay's auth demand for a subscription that was
// closed with an auth-required reason and re-fires it. It reports whether
// the retry was dispatched; the actual exchange runs off the reader loop so
// the "OK" for the auth event can still be delivered.
func (r *Client) authenticate(sub *Subscription) bool {
	if r.authSigner == nil || r.challenge == "" {
		return false
	}
	sign := r.authSigner()
	if sign == nil {
		return false
	}
	go func() {
		if err := r.Auth(r.connectionContext, sign); chk.D(err) {
			sub.handleClosed("auth-required: authentication failed")
			return
		}
		if err := sub.Fire(); chk.D(err) {
			sub.unsub(err)
		}
	}()
	return true
}

// Auth signs the last challenge received from the relay and sends the
// "AUTH" command, waiting for an OK response.
func (r *Client) Auth(
	ctx context.T, sign signer.I,
) (err error) {
	authEvent := &event.E{
		CreatedAt: timestamp.Now(),
		Kind:      kind.ClientAuthentication,
		Tags: tags.New(
			tag.New("relay", r.URL),
			tag.New("challenge", r.challenge),
		),
	}
	if err = authEvent.Sign(sign); chk.E(err) {
		err = fmt.Errorf("error signing auth event: %w", err)
		return
	}
	return r.publish(
		ctx, authEvent.ID, envelopes.MarshalAuthResponse(authEvent),
	)
}

func (r *Client) publish(
	ctx context.T, id []byte, envb []byte,
) error {
	var err error
	var cancel context.F
	if _, ok := ctx.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		ctx, cancel = context.TimeoutCause(
			ctx, 7*time.Second, fmt.Errorf("given up waiting for an OK"),
		)
		defer cancel()
	} else {
		// otherwise make the context cancellable so we can stop everything
		// upon receiving an "OK"
		ctx, cancel = context.Cancel(ctx)
		defer cancel()
	}

	// listen for an OK callback
	gotOk := false
	ids := hex.Enc(id)
	r.okCallbacks.Store(
		ids, func(ok bool, reason string) {
			gotOk = true
			if !ok {
				err = fmt.Errorf("msg: %s", reason)
			}
			cancel()
		},
	)
	defer r.okCallbacks.Delete(ids)
	// publish event
	if err = <-r.Write(envb); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			// this will be called when we get an OK or when the context has
			// been canceled
			if gotOk {
				return err
			}
			return ctx.Err()
		case <-r.connectionContext.Done():
			// this is caused when we lose connectivity
			return err
		}
	}
}

// Subscribe sends a "REQ" command to the relay. Events are returned through
// the channel sub.Events. The subscription is closed when context ctx is
// cancelled ("CLOSE").
//
// Remember to cancel subscriptions, either by calling `.Unsub()` on them or
// ensuring their `context.T` will be canceled at some point. Failure to do
// that will result in a huge number of halted goroutines being created.
func (r *Client) Subscribe(
	ctx context.T, ff *filters.T, opts ...SubscriptionOption,
) (sub *Subscription, err error) {
	sub = r.PrepareSubscription(ctx, ff, opts...)
	if r.Connection == nil {
		return nil, fmt.Errorf("not connected to %s", r.URL)
	}
	if err = sub.Fire(); err != nil {
		err = fmt.Errorf(
			"couldn't subscribe to %v at %s: %w", ff, r.URL, err,
		)
		return
	}
	return
}

// PrepareSubscription creates a subscription, but doesn't fire it.
//
// Remember to cancel subscriptions, either by calling `.Unsub()` on them or
// ensuring their `context.T` will be canceled at some point.
func (r *Client) PrepareSubscription(
	ctx context.T, ff *filters.T, opts ...SubscriptionOption,
) *Subscription {
	current := subscriptionIDCounter.Add(1)
	ctx, cancel := context.Cause(ctx)
	sub := &Subscription{
		Relay:             r,
		Context:           ctx,
		cancel:            cancel,
		counter:           current,
		Events:            make(event.C),
		EndOfStoredEvents: make(chan struct{}, 1),
		ClosedReason:      make(chan string, 1),
		Filters:           ff,
		match:             ff.Match,
	}
	label := ""
	for _, opt := range opts {
		switch o := opt.(type) {
		case WithLabel:
			label = string(o)
		}
	}
	// subscription id computation
	buf := subIdPool.Get().([]byte)[:0]
	buf = strconv.AppendInt(buf, sub.counter, 10)
	buf = append(buf, ':')
	buf = append(buf, label...)
	defer subIdPool.Put(buf)
	sub.id = string(buf)
	// we track subscriptions only by their counter, no need for the full id
	r.Subscriptions.Store(sub.counter, sub)
	// start handling events, eose, unsub etc:
	go sub.start()
	return sub
}

// QueryEvents subscribes to events matching the given filter and returns a
// channel of events.
//
// In most cases it's better to use Pool instead of this method.
func (r *Client) QueryEvents(ctx context.T, f *filter.F) (
	evc event.C, err error,
) {
	var sub *Subscription
	if sub, err = r.Subscribe(ctx, filters.New(f)); chk.E(err) {
		return
	}
	go func() {
		for {
			select {
			case <-sub.ClosedReason:
			case <-sub.EndOfStoredEvents:
			case <-ctx.Done():
			case <-r.Context().Done():
			}
			sub.unsub(errors.New("QueryEvents() ended"))
			return
		}
	}()
	return sub.Events, nil
}

// QuerySync subscribes to events matching the given filter and returns a
// slice of events. This method blocks until all events are received or the
// context is canceled.
//
// The filter must carry a limit, otherwise the subscription would stay open
// and this method would block until the context expires.
func (r *Client) QuerySync(ctx context.T, f *filter.F) (
	evs event.S, err error,
) {
	if f.Limit == nil {
		err = errors.New("limit must be set for a sync query to prevent blocking")
		return
	}
	if _, ok := ctx.Deadline(); !ok {
		// if no timeout is set, force it to 7 seconds
		var cancel context.F
		ctx, cancel = context.TimeoutCause(
			ctx, 7*time.Second, errors.New("QuerySync() took too long"),
		)
		defer cancel()
	}
	var ch event.C
	if ch, err = r.QueryEvents(ctx, f); err != nil {
		return
	}
	evs = make(event.S, 0, *f.Limit)
	for evt := range ch {
		evs = append(evs, evt)
	}
	return
}

// Close closes the relay connection.
func (r *Client) Close() error {
	return r.close(errors.New("relay connection closed"))
}

func (r *Client) close(reason error) error {
	r.closeMutex.Lock()
	defer r.closeMutex.Unlock()

	if r.connectionContextCancel == nil {
		return fmt.Errorf("relay already closed")
	}
	r.connectionContextCancel(reason)
	r.connectionContextCancel = nil

	if r.Connection == nil {
		return fmt.Errorf("relay not connected")
	}

	err := r.Connection.Close()
	if err != nil {
		return err
	}

	return nil
}

var subIdPool = sync.Pool{
	New: func() any { return make([]byte, 0, 15) },
}
