package ws

import (
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/utils/chk"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/log"
	"nwclink.dev/pkg/utils/normalize"
)

// Pool manages connections to multiple relays, ensuring they are reused
// between callers. Connections belong to the pool; subscriptions belong to
// whoever opened them.
type Pool struct {
	Relays  *xsync.MapOf[string, *Client]
	Context context.T
	cancel  context.C

	authHandler     func() signer.I
	eventMiddleware func(RelayEvent)
	relayOptions    []RelayOption
}

// RelayEvent is an event paired with the relay it arrived from.
type RelayEvent struct {
	*event.E
	Relay *Client
}

// String renders the event and its source relay.
func (ie RelayEvent) String() string {
	return fmt.Sprintf("[%s] >> %s", ie.Relay.URL, ie.E.Marshal(nil))
}

// PoolOption is an option for the pool.
type PoolOption interface {
	ApplyPoolOption(*Pool)
}

var (
	_ PoolOption = (WithAuthHandler)(nil)
	_ PoolOption = (WithEventMiddleware)(nil)
	_ PoolOption = (WithRelayOptions)(nil)
)

// WithAuthHandler must be a function that returns a signer to use when a
// relay demands authentication. When not given, auth challenges are ignored.
type WithAuthHandler func() signer.I

func (h WithAuthHandler) ApplyPoolOption(p *Pool) {
	p.authHandler = h
}

// WithEventMiddleware is a function that is called with every event received
// through the pool.
type WithEventMiddleware func(RelayEvent)

func (m WithEventMiddleware) ApplyPoolOption(p *Pool) {
	p.eventMiddleware = m
}

// WithRelayOptions sets the options that will be used on every relay
// instance created by this pool.
type WithRelayOptions []RelayOption

func (ro WithRelayOptions) ApplyPoolOption(p *Pool) {
	p.relayOptions = ro
}

// NewPool creates a pool. The context governs every connection the pool
// opens; cancel it to shut the whole pool down.
func NewPool(ctx context.T, opts ...PoolOption) *Pool {
	ctx, cancel := context.Cause(ctx)
	p := &Pool{
		Relays:  xsync.NewMapOf[string, *Client](),
		Context: ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt.ApplyPoolOption(p)
	}
	return p
}

var namedMutexPool [64]sync.Mutex

func namedLock(name string) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(name))
	m := &namedMutexPool[h.Sum32()%uint32(len(namedMutexPool))]
	m.Lock()
	return m.Unlock
}

// EnsureRelay returns a connected relay client for the url, dialing it if
// the pool doesn't hold a live one yet. Two concurrent callers for the same
// url share one dial.
func (p *Pool) EnsureRelay(url string) (c *Client, err error) {
	nm := normalize.URL(url)
	if nm == "" {
		return nil, fmt.Errorf("invalid relay URL '%s'", url)
	}
	defer namedLock(nm)()

	relay, ok := p.Relays.Load(nm)
	if ok && relay == nil {
		// a previous attempt to connect failed; try again
	} else if ok && relay.IsConnected() {
		// already connected, unlock and return
		return relay, nil
	}

	// try to connect, if fails we will return an error
	ctx, cancel := context.TimeoutCause(
		p.Context, 15*time.Second, errors.New("connecting to the relay took too long"),
	)
	defer cancel()

	opts := p.relayOptions
	if p.authHandler != nil {
		opts = append(
			[]RelayOption{WithAuthSigner(p.authHandler)}, opts...,
		)
	}
	relay = NewRelay(p.Context, nm, opts...)
	if err = relay.Connect(ctx); chk.T(err) {
		p.Relays.Store(nm, nil)
		return nil, fmt.Errorf("failed to connect to %s: %w", nm, err)
	}

	p.Relays.Store(nm, relay)
	return relay, nil
}

// QuerySingle returns the first event from any of the urls that matches the
// filter, nil when nothing arrives before the context ends.
func (p *Pool) QuerySingle(
	ctx context.T, urls []string, f *filter.F,
) (ie *RelayEvent) {
	if len(urls) == 0 {
		return nil
	}
	ctx, cancel := context.Cause(ctx)
	defer cancel(errors.New("QuerySingle() ended"))
	results := make(chan RelayEvent, len(urls))
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			relay, err := p.EnsureRelay(url)
			if err != nil {
				log.D.F("QuerySingle: %v", err)
				return
			}
			sub, err := relay.Subscribe(ctx, filters.New(f))
			if err != nil {
				return
			}
			defer sub.Unsub()
			select {
			case evt, more := <-sub.Events:
				if !more || evt == nil {
					return
				}
				if p.eventMiddleware != nil {
					p.eventMiddleware(RelayEvent{E: evt, Relay: relay})
				}
				select {
				case results <- RelayEvent{E: evt, Relay: relay}:
				default:
				}
				cancel(errors.New("got the result"))
			case <-ctx.Done():
			}
		}(url)
	}
	go func() {
		wg.Wait()
		close(results)
	}()
	if res, ok := <-results; ok {
		return &res
	}
	return nil
}

// Close shuts down every relay connection the pool holds.
func (p *Pool) Close(reason string) {
	p.cancel(fmt.Errorf("pool closed with reason: '%s'", reason))
	for _, relay := range p.Relays.Range {
		if relay != nil {
			relay.Close()
		}
	}
}
