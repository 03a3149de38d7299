package ws

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/predictmarket/internal/domain"
)

type stubBus struct {
	mu       sync.Mutex
	channels map[string]chan []byte
}

func newStubBus() *stubBus {
	return &stubBus{channels: map[string]chan []byte{}}
}

func (b *stubBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.channels[channel]
	b.mu.Unlock()
	if ok {
		ch <- payload
	}
	return nil
}

func (b *stubBus) Subscribe(_ context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.channels[channel] = ch
	return ch, nil
}

func (b *stubBus) StreamAppend(context.Context, string, []byte) error { return nil }
func (b *stubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func newTestHub() *Hub {
	return NewHub(newStubBus(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunStopsOnCancel(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan error, 1)
	go func() { ran <- h.Run(ctx) }()

	// Register a client and make sure it lands before cancelling.
	c := &client{hub: h, send: make(chan []byte, 1), subs: map[string]bool{}}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register blocked")
	}

	cancel()
	select {
	case err := <-ran:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// The hub closes every client's send channel on the way out.
	select {
	case _, ok := <-c.send:
		if ok {
			t.Fatal("send channel delivered a message instead of closing")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}
}

func TestClientReleaseAfterShutdown(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())

	ran := make(chan error, 1)
	go func() { ran <- h.Run(ctx) }()

	c := &client{hub: h, send: make(chan []byte, 1), subs: map[string]bool{}}
	select {
	case h.register <- c:
	case <-time.After(time.Second):
		t.Fatal("register blocked")
	}

	cancel()
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// With nobody draining unregister anymore, handing the client back must
	// still complete instead of blocking its goroutine forever.
	released := make(chan struct{})
	go func() {
		c.release()
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release blocked after hub shutdown")
	}
}

func TestBroadcastRespectsSubscriptions(t *testing.T) {
	h := newTestHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)

	market := &client{hub: h, send: make(chan []byte, 4), subs: map[string]bool{"ch:market": true}}
	breaker := &client{hub: h, send: make(chan []byte, 4), subs: map[string]bool{"ch:breaker": true}}
	for _, c := range []*client{market, breaker} {
		select {
		case h.register <- c:
		case <-time.After(time.Second):
			t.Fatal("register blocked")
		}
	}

	h.broadcast <- broadcastMsg{channel: "ch:market", data: []byte(`{"event":"market_created"}`)}

	select {
	case got := <-market.send:
		if string(got) != `{"event":"market_created"}` {
			t.Fatalf("market client got %s", got)
		}
	case <-time.After(time.Second):
		t.Fatal("market client received nothing")
	}

	select {
	case got := <-breaker.send:
		t.Fatalf("breaker client got %s, want nothing", got)
	case <-time.After(50 * time.Millisecond):
	}
}
