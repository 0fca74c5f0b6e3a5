package pubsub

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/mgoodwin/go-carpool/internal/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableAddr returns a localhost address nothing is listening on.
func unreachableAddr(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newTestBridge(t *testing.T) *RedisBridge {
	client := redis.NewClient(&redis.Options{Addr: unreachableAddr(t)})
	t.Cleanup(func() { client.Close() })
	return NewRedisBridge(client, testutil.TestLogger(t))
}

func TestSubscribeFailureLeavesNoEntry(t *testing.T) {
	b := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.Error(t, b.Subscribe(ctx, "pool-1", func([]byte) {}), "expected subscribe to an unreachable broker to fail")

	b.mu.Lock()
	assert.Empty(t, b.subs, "expected no subscription entry after the failure")
	b.mu.Unlock()

	assert.NoError(t, b.Unsubscribe("pool-1"), "expected unsubscribe of an unknown channel to be a no-op")
}

func TestUnsubscribeDuringSubscribe(t *testing.T) {
	// an unsubscribe arriving while the subscription is still being
	// confirmed must wait for the confirmation to settle rather than
	// return with the subscribe still in flight
	b := newTestBridge(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 10; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			b.Subscribe(ctx, "pool-1", func([]byte) {})
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Unsubscribe("pool-1"), "expected unsubscribe to succeed")
		}()
		wg.Wait()

		b.Unsubscribe("pool-1")

		b.mu.Lock()
		assert.Empty(t, b.subs, "expected no subscription entry left behind")
		b.mu.Unlock()
	}
}
