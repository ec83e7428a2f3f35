package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/logger"
	"github.com/containerd/errdefs"
)

// ErrChannelClosed is returned after Close.
var ErrChannelClosed = errdefs.ErrUnavailable.WithMessage("broadcast channel closed")

// KeyChannel carries messages as short-lived keys in a shared, watchable
// key-value backend: each message is written under a unique key and removed
// after ttl. Receivers learn about it through the backend's change feed.
type KeyChannel struct {
	store   kv.Store
	watcher kv.Watcher
	prefix  string
	ttl     time.Duration
	seq     atomic.Uint64

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
}

// NewKeyChannel fails when the backend cannot report foreign writes.
// prefix is the full key prefix, e.g. "la_basica_sync_".
func NewKeyChannel(store kv.Store, prefix string, ttl time.Duration) (*KeyChannel, error) {
	w, ok := store.(kv.Watcher)
	if !ok {
		return nil, errdefs.ErrNotImplemented.WithMessage(fmt.Sprintf("backend %T cannot carry broadcast keys", store))
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return &KeyChannel{
		store:   store,
		watcher: w,
		prefix:  prefix,
		ttl:     ttl,
		pending: map[string]*time.Timer{},
	}, nil
}

func (c *KeyChannel) Publish(ctx context.Context, m Message) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrChannelClosed
	}
	c.mu.Unlock()

	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	key := fmt.Sprintf("%s%d-%d", c.prefix, time.Now().UnixNano(), c.seq.Add(1))
	if err := c.store.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("write broadcast key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = time.AfterFunc(c.ttl, func() { c.expire(key) })
	return nil
}

func (c *KeyChannel) expire(key string) {
	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()
	if err := c.store.Delete(context.Background(), key); err != nil {
		logger.WithComponent("broadcast").Debugf("remove broadcast key %s: %v", key, err)
	}
}

func (c *KeyChannel) Subscribe(ctx context.Context, fn func(Message)) error {
	return c.watcher.Watch(ctx, func(ch kv.Change) {
		if ch.Deleted || !strings.HasPrefix(ch.Key, c.prefix) {
			return
		}
		var m Message
		if err := json.Unmarshal(ch.Value, &m); err != nil {
			logger.WithComponent("broadcast").Warnf("undecodable broadcast key %s: %v", ch.Key, err)
			return
		}
		fn(m)
	})
}

// Pending reports how many published keys have not expired yet.
func (c *KeyChannel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Close removes every key still waiting for its ttl.
func (c *KeyChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	keys := make([]string, 0, len(c.pending))
	for key, t := range c.pending {
		t.Stop()
		keys = append(keys, key)
	}
	c.pending = map[string]*time.Timer{}
	c.mu.Unlock()

	var errs []error
	for _, key := range keys {
		if err := c.store.Delete(context.Background(), key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
