package engine

import (
	"context"
	"sync/atomic"

	"rclink/pkg/link"
)

// Hub fans link events out to subscribers. Slow subscribers miss events; publishers never block.
type Hub struct {
	broadcast  chan link.Event
	register   chan chan link.Event
	unregister chan chan link.Event
	clients    map[chan link.Event]struct{}
	clientBuf  int
	done       chan struct{}
	dropped    atomic.Int64
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan link.Event, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan link.Event, 256),
		register:   make(chan chan link.Event),
		unregister: make(chan chan link.Event),
		clients:    make(map[chan link.Event]struct{}),
		clientBuf:  100,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case ev := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- ev:
				default:
					h.dropped.Add(1)
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan link.Event {
	return h.SubscribeWithBuffer(h.clientBuf)
}

// SubscribeWithBuffer returns a closed channel once the hub has stopped.
func (h *Hub) SubscribeWithBuffer(size int) chan link.Event {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan link.Event, size)
	select {
	case h.register <- ch:
	case <-h.done:
		close(ch)
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan link.Event) {
	select {
	case h.unregister <- ch:
	case <-h.done:
	}
}

// Publish queues ev for fan-out and reports false if the queue was full.
func (h *Hub) Publish(ev link.Event) bool {
	select {
	case h.broadcast <- ev:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// Observe lets the hub serve as a link.Observer.
func (h *Hub) Observe(ev link.Event) {
	h.Publish(ev)
}

// Dropped counts events lost to full queues.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
