package pubsub

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Handler receives the raw payload of an event published on a channel.
type Handler func(payload []byte)

// Bridge relays chat events between server processes over a shared
// publish/subscribe channel, one channel per carpool.
type Bridge interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Unsubscribe(channel string) error
	Close() error
}

type RedisBridge struct {
	client *redis.Client
	log    *log.Logger
	mu     sync.Mutex
	subs   map[string]*channelSub
}

// channelSub is inserted into the subs map before the subscription is
// confirmed; ready is closed once ps is final (set on success, nil on
// failure), and readers must wait on it before touching ps.
type channelSub struct {
	ps    *redis.PubSub
	ready chan struct{}
	done  chan struct{}
}

func NewRedisBridge(client *redis.Client, logger *log.Logger) *RedisBridge {
	return &RedisBridge{
		client: client,
		log:    logger,
		subs:   make(map[string]*channelSub),
	}
}

// Publish sends payload to every process subscribed to channel, including
// this one. Remote delivery is fire-and-forget; only a local transport
// failure is reported.
func (b *RedisBridge) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", channel, err)
	}

	return nil
}

// Subscribe opens the channel subscription and confirms it is active before
// returning, so a caller admitting a room member cannot miss an event
// arriving immediately afterwards. Subscribing to an already-subscribed
// channel is a no-op. Each channel gets its own receive goroutine; a slow
// subscription never blocks operations on other channels.
func (b *RedisBridge) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.mu.Lock()
	if _, ok := b.subs[channel]; ok {
		b.mu.Unlock()
		b.log.Printf("already subscribed to %q", channel)
		return nil
	}

	sub := &channelSub{ready: make(chan struct{}), done: make(chan struct{})}
	b.subs[channel] = sub
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		close(sub.ready)
		b.mu.Lock()
		// an unsubscribe racing the failed confirmation may already have
		// removed the entry, or a later subscribe may have replaced it
		if b.subs[channel] == sub {
			delete(b.subs, channel)
		}
		b.mu.Unlock()
		return fmt.Errorf("subscribe to %q: %w", channel, err)
	}
	sub.ps = ps
	close(sub.ready)

	go func() {
		defer close(sub.done)
		for msg := range ps.Channel() {
			handler([]byte(msg.Payload))
		}
	}()

	return nil
}

// Unsubscribe closes the channel subscription. The caller's membership
// bookkeeping is the source of truth, so a transport failure here is
// returned for logging but leaves the bridge's local state cleaned up.
func (b *RedisBridge) Unsubscribe(channel string) error {
	b.mu.Lock()
	sub, ok := b.subs[channel]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	delete(b.subs, channel)
	b.mu.Unlock()

	<-sub.ready
	if sub.ps == nil {
		return nil
	}

	if err := sub.ps.Close(); err != nil {
		return fmt.Errorf("unsubscribe from %q: %w", channel, err)
	}

	<-sub.done
	return nil
}

func (b *RedisBridge) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]*channelSub)
	b.mu.Unlock()

	for channel, sub := range subs {
		<-sub.ready
		if sub.ps == nil {
			continue
		}
		if err := sub.ps.Close(); err != nil {
			b.log.Printf("closing subscription to %q: %v", channel, err)
		}
	}

	return nil
}
