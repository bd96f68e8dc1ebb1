package ws

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nwclink.dev/pkg/encoders/filter"
	"nwclink.dev/pkg/encoders/kind"
	"nwclink.dev/pkg/encoders/kinds"
	"nwclink.dev/pkg/protocol/relaytest"
	"nwclink.dev/pkg/utils/context"
)

func TestPoolEnsureRelayReuses(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	pool := NewPool(context.Bg())
	defer pool.Close("test done")

	r1, err := pool.EnsureRelay(srv.URL)
	require.NoError(t, err)
	r2, err := pool.EnsureRelay(srv.URL)
	require.NoError(t, err)
	assert.Same(t, r1, r2, "same url must reuse the connection")
}

func TestPoolEnsureRelayFailure(t *testing.T) {
	pool := NewPool(context.Bg())
	defer pool.Close("test done")
	_, err := pool.EnsureRelay("ws://127.0.0.1:1")
	require.Error(t, err)
	// a later attempt re-dials instead of returning the cached failure
	_, err = pool.EnsureRelay("ws://127.0.0.1:1")
	require.Error(t, err)
}

func TestPoolQuerySingle(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	ev := testEvent(t, "findable")
	srv.Inject(ev)

	pool := NewPool(context.Bg())
	defer pool.Close("test done")
	ctx, cancel := context.Timeout(context.Bg(), 5*time.Second)
	defer cancel()
	ie := pool.QuerySingle(
		ctx, []string{srv.URL},
		&filter.F{Kinds: kinds.New(kind.WalletRequest)},
	)
	require.NotNil(t, ie)
	assert.Equal(t, ev.IDString(), ie.E.IDString())
	assert.Contains(t, ie.String(), "findable")
}

func TestPoolQuerySingleDeadRelay(t *testing.T) {
	pool := NewPool(context.Bg())
	defer pool.Close("test done")
	ctx, cancel := context.Timeout(context.Bg(), time.Second)
	defer cancel()
	ie := pool.QuerySingle(
		ctx, []string{"ws://127.0.0.1:1"},
		&filter.F{Kinds: kinds.New(kind.WalletRequest)},
	)
	assert.Nil(t, ie)
	assert.Nil(t, pool.QuerySingle(ctx, nil, &filter.F{}))
}

func TestPoolQuerySingleMixedRelays(t *testing.T) {
	srv := relaytest.New()
	defer srv.Close()
	ev := testEvent(t, "from the live relay")
	srv.Inject(ev)

	pool := NewPool(context.Bg())
	defer pool.Close("test done")
	ctx, cancel := context.Timeout(context.Bg(), 5*time.Second)
	defer cancel()
	ie := pool.QuerySingle(
		ctx, []string{"ws://127.0.0.1:1", srv.URL},
		&filter.F{Kinds: kinds.New(kind.WalletRequest)},
	)
	require.NotNil(t, ie)
	assert.Equal(t, ev.IDString(), ie.E.IDString())
}
