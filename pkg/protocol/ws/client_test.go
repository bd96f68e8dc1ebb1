package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwclink.dev/pkg/crypto/p256k"
	"nwclink.dev/pkg/encoders/event"
	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/filters"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/encoders/tag"
	"nwclink.dev/pkg/encoders/tags"
	"nwclink.dev/pkg/encoders/timestamp"
	"nwclink.dev/pkg/interfaces/signer"
	"nwclink.dev/pkg/protocol/relaytest"
	"nwclink.dev/pkg/utils/context"
	"nwclink.dev/pkg/utils/values"
)

func mustRelayConnect(t *testing.T, url string) *Client {
	t.Helper()
	rl, err := RelayConnect(context.Bg(), url)
	require.NoError(t, err)
	t.Cleanup(func() { rl.Close() })
	return rl
}

func testEvent(t *testing.T, content string) *event.E {
	t.Helper()
	keys := &p256k.Signer{}
	require.NoError(t, keys.Generate())
	ev := &event.E{
		Content:   []byte(content),
		CreatedAt: timestamp.Now(),
		Kind:      kind.WalletRequest,
		Tags:      tags.New(tag.New("p", "ab")),
	}
	require.NoError(t, ev.Sign(keys))
	return ev
}

func TestPublishAndOK(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	rl := mustRelayConnect(t, srv.URL)

	ev := testEvent(t, "hello relay")
	require.NoError(t, rl.Publish(context.Bg(), ev))
	evs := srv.Events()
	require.Len(t, evs, 1)
	assert.Equal(t, ev.IDString(), evs[0].IDString())
}

func TestPublishRejected(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	srv.RejectPublishReason = "blocked: not today"
	rl := mustRelayConnect(t, srv.URL)

	err := rl.Publish(context.Bg(), testEvent(t, "refused"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not today")
}

func TestPublishBadSignatureRejected(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	rl := mustRelayConnect(t, srv.URL)

	ev := testEvent(t, "will be mangled")
	ev.Content = []byte("mangled after signing")
	err := rl.Publish(context.Bg(), ev)
	require.Error(t, err)
}

func TestSubscribeReceivesStoredAndLive(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	stored := testEvent(t, "stored before subscribe")
	srv.Inject(stored)

	rl := mustRelayConnect(t, srv.URL)
	sub, err := rl.Subscribe(
		context.Bg(), filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	require.NoError(t, err)
	defer sub.Unsub()

	timeout := time.After(5 * time.Second)
	select {
	case ev := <-sub.Events:
		assert.Equal(t, stored.IDString(), ev.IDString())
	case <-timeout:
		t.Fatal("no stored event")
	}
	select {
	case <-sub.EndOfStoredEvents:
	case <-timeout:
		t.Fatal("no EOSE")
	}

	live := testEvent(t, "live after eose")
	srv.Inject(live)
	select {
	case ev := <-sub.Events:
		assert.Equal(t, live.IDString(), ev.IDString())
	case <-timeout:
		t.Fatal("no live event")
	}
}

func TestSubscribeFilterExcludes(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	rl := mustRelayConnect(t, srv.URL)
	sub, err := rl.Subscribe(
		context.Bg(), filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletResponse)},
		),
	)
	require.NoError(t, err)
	defer sub.Unsub()

	srv.Inject(testEvent(t, "wrong kind"))
	select {
	case ev := <-sub.Events:
		t.Fatalf("event of excluded kind delivered: %s", ev.IDString())
	case <-time.After(300 * time.Millisecond):
	}
}

func TestQuerySync(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	srv.Inject(testEvent(t, "one"))
	srv.Inject(testEvent(t, "two"))

	rl := mustRelayConnect(t, srv.URL)
	evs, err := rl.QuerySync(
		context.Bg(), &filter.F{
			Kinds: kinds.New(kind.WalletRequest),
			Limit: values.ToUintPointer(10),
		},
	)
	require.NoError(t, err)
	assert.Len(t, evs, 2)

	_, err = rl.QuerySync(
		context.Bg(), &filter.F{Kinds: kinds.New(kind.WalletRequest)},
	)
	require.Error(t, err, "query without limit must be refused")
}

func TestSubscribeAuthRequired(t *testing.T) {
	srv := relaytest.New()
	srv.AuthChallenge = "prove it"
	defer srv.Close()
	stored := testEvent(t, "members only")
	srv.Inject(stored)

	keys := &p256k.Signer{}
	require.NoError(t, keys.Generate())
	pool := NewPool(
		context.Bg(), WithAuthHandler(func() signer.I { return keys }),
	)
	defer pool.Close("test done")
	rl, err := pool.EnsureRelay(srv.URL)
	require.NoError(t, err)

	sub, err := rl.Subscribe(
		context.Bg(), filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	require.NoError(t, err)
	defer sub.Unsub()

	// the relay answers the REQ with an auth-required CLOSED; the client
	// must sign the challenge and re-fire without surfacing the closure
	select {
	case ev := <-sub.Events:
		require.NotNil(t, ev)
		assert.Equal(t, stored.IDString(), ev.IDString())
	case <-time.After(5 * time.Second):
		t.Fatal("no event delivered after authenticating")
	}
}

func TestSubscribeAuthRequiredWithoutSigner(t *testing.T) {
	srv := relaytest.New()
	srv.AuthChallenge = "prove it"
	defer srv.Close()
	rl := mustRelayConnect(t, srv.URL)
	sub, err := rl.Subscribe(
		context.Bg(), filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	require.NoError(t, err)
	select {
	case reason := <-sub.ClosedReason:
		assert.Contains(t, reason, "auth-required")
	case <-time.After(5 * time.Second):
		t.Fatal("closure not surfaced")
	}
}

func TestConnectFailure(t *testing.T) {
	_, err := RelayConnect(context.Bg(), "ws://127.0.0.1:1")
	require.Error(t, err)
}

func TestUnsubStopsDelivery(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	rl := mustRelayConnect(t, srv.URL)
	sub, err := rl.Subscribe(
		context.Bg(), filters.New(
			&filter.F{Kinds: kinds.New(kind.WalletRequest)},
		),
	)
	require.NoError(t, err)
	sub.Unsub()
	time.Sleep(100 * time.Millisecond)
	srv.Inject(testEvent(t, "after unsub"))
	select {
	case ev, more := <-sub.Events:
		if more && ev != nil {
			t.Fatalf("event delivered after unsub: %s", ev.IDString())
		}
	case <-time.After(300 * time.Millisecond):
	}
}
