package broadcast

import (
	"context"
	"encoding/json"
	"sync"
)

// Message types carried on a channel.
const (
	TypeDocumentUpdate = "documentUpdate"
	TypeCartUpdated    = "cart_updated"
)

// Message is the cross-process notification. Origin identifies the sender so
// receivers can drop their own echoes.
type Message struct {
	Type      string          `json:"type"`
	FileName  string          `json:"fileName,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Origin    string          `json:"origin"`
}

// Channel is a publish/subscribe topic shared by every process of the site.
// Subscribers may receive their own messages; filtering by Origin is up to them.
type Channel interface {
	Publish(ctx context.Context, m Message) error
	// Subscribe delivers messages to fn on a dedicated goroutine until ctx ends.
	Subscribe(ctx context.Context, fn func(Message)) error
	Close() error
}

const hubQueue = 64

// LocalHub is an in-process channel. Several broadcasters sharing one hub
// behave like tabs sharing a BroadcastChannel.
type LocalHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]hubSub
	closed bool
}

type hubSub struct {
	ch   chan Message
	done <-chan struct{}
}

func NewLocalHub() *LocalHub {
	return &LocalHub{subs: map[uint64]hubSub{}}
}

func (h *LocalHub) Publish(ctx context.Context, m Message) error {
	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrChannelClosed
	}
	targets := make([]hubSub, 0, len(h.subs))
	for _, s := range h.subs {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		select {
		case s.ch <- m:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (h *LocalHub) Subscribe(ctx context.Context, fn func(Message)) error {
	s := hubSub{ch: make(chan Message, hubQueue), done: ctx.Done()}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrChannelClosed
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = s
	h.mu.Unlock()

	go func() {
		defer func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case m := <-s.ch:
				fn(m)
			}
		}
	}()
	return nil
}

// Close rejects further use; running subscriptions end with their contexts.
func (h *LocalHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
