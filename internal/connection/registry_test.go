package connection

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/marketstream/internal/event"
)

func TestRegistry_GetOrCreateConcurrent(t *testing.T) {
	r := NewRegistry(WithConfig(testConfig()))
	defer r.CloseAll()

	const workers = 32
	conns := make([]*MarketConn, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.GetOrCreate("stocks", "", testCredential)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			conns[i] = c
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		assert.Same(t, conns[0], conns[i])
	}
	assert.Equal(t, []string{"stocks"}, r.Markets())
}

func TestRegistry_FirstCallerWins(t *testing.T) {
	r := NewRegistry()
	defer r.CloseAll()

	first, err := r.GetOrCreate("crypto", "ws://first.example/crypto", testCredential)
	require.NoError(t, err)

	second, err := r.GetOrCreate("crypto", "ws://second.example/crypto", "other-key")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "ws://first.example/crypto", second.Endpoint())
	assert.Equal(t, StateDisconnected, second.State(), "creation never opens the transport")
}

func TestRegistry_MissingCredential(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetOrCreate("stocks", "", "")
	assert.ErrorIs(t, err, ErrMissingCredential)
	assert.Empty(t, r.Markets())

	_, ok := r.Get("stocks")
	assert.False(t, ok)
}

func TestRegistry_CloseRemovesConnection(t *testing.T) {
	r := NewRegistry()

	c, err := r.GetOrCreate("stocks", "", testCredential)
	require.NoError(t, err)

	got, ok := r.Get("stocks")
	require.True(t, ok)
	assert.Same(t, c, got)

	require.NoError(t, c.Close())
	_, ok = r.Get("stocks")
	assert.False(t, ok)

	fresh, err := r.GetOrCreate("stocks", "", testCredential)
	require.NoError(t, err)
	assert.NotSame(t, c, fresh)
	assert.NotEqual(t, c.ID(), fresh.ID())
}

func TestRegistry_StatusesAndCloseAll(t *testing.T) {
	feed := newFakeFeed(t, statusAuthSuccess)
	r := NewRegistry(WithConfig(testConfig()))

	for _, market := range []string{"stocks", "crypto", "forex"} {
		c, err := r.GetOrCreate(market, feed.url(), testCredential)
		require.NoError(t, err)
		if market == "stocks" {
			require.NoError(t, c.Connect(context.Background()))
		}
	}

	statuses := r.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "crypto", statuses[0].Market)
	assert.Equal(t, "forex", statuses[1].Market)
	assert.Equal(t, "stocks", statuses[2].Market)
	assert.Equal(t, StateConnected, statuses[2].State)
	assert.Equal(t, StateDisconnected, statuses[0].State)

	require.NoError(t, r.CloseAll())
	assert.Empty(t, r.Statuses())
	assert.Empty(t, r.Markets())
}

func TestRegistry_WithHandler(t *testing.T) {
	feed := newFakeFeed(t, statusAuthSuccess)

	got := make(chan Message, 1)
	r := NewRegistry(WithConfig(testConfig()), WithHandler(func(m Message) error {
		got <- m
		return nil
	}))
	t.Cleanup(func() { r.CloseAll() })

	c, err := r.GetOrCreate("stocks", feed.url(), testCredential)
	require.NoError(t, err)
	require.NoError(t, c.Connect(context.Background()))

	feed.publish(`[{"ev":"T","sym":"AAPL","p":150.25,"s":100}]`)

	select {
	case m := <-got:
		assert.Equal(t, "stocks", m.Market)
		assert.Equal(t, event.CategoryTrade, m.Event.Category())
	case <-time.After(2 * time.Second):
		t.Fatal("handler from registry options was not called")
	}
}

// Every connection is either still registered or closed once CloseAll
// returns, even when GetOrCreate runs concurrently.
func TestRegistry_CloseAllConcurrentCreate(t *testing.T) {
	r := NewRegistry(WithConfig(testConfig()))

	var mu sync.Mutex
	var created []*MarketConn

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := r.GetOrCreate(fmt.Sprintf("market-%d", i), "ws://127.0.0.1:1", testCredential)
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			mu.Lock()
			created = append(created, c)
			mu.Unlock()
		}(i)
		if i%10 == 0 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r.CloseAll()
			}()
		}
	}
	wg.Wait()

	for _, c := range created {
		if got, ok := r.Get(c.Market()); ok && got == c {
			continue
		}
		c.mu.Lock()
		closed := c.gen > 0
		c.mu.Unlock()
		assert.True(t, closed, "%s dropped from the registry without being closed", c.Market())
	}

	require.NoError(t, r.CloseAll())
	assert.Empty(t, r.Markets())
}
