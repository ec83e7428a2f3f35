package cart

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bassista/labasica/internal/broadcast"
	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/google/uuid"
)

const (
	// LastUpdateKey holds the shared change counter (unix millis, strictly increasing).
	LastUpdateKey = "labasica_cart_last_update"

	DefaultSyncInterval = time.Second
	messageDelay        = 50 * time.Millisecond
	syncComponent       = "cart-sync"
)

type SyncStatus struct {
	LastKnownUpdate int64         `json:"lastKnownUpdate"`
	StorageKey      string        `json:"storageKey"`
	SyncInterval    time.Duration `json:"syncInterval"`
	Watching        bool          `json:"watching"`
}

type SyncOptions struct {
	Interval time.Duration
	Origin   string
	Now      func() time.Time
}

// Sync aligns a Cart with changes other processes make to the stored cart.
// Local cart events bump the shared counter; a counter ahead of the last one
// seen triggers a re-read and, when the items differ, a silent replace.
type Sync struct {
	cart     *Cart
	kv       kv.Store
	channel  broadcast.Channel
	interval time.Duration
	origin   string
	now      func() time.Time

	mu        sync.Mutex
	lastKnown int64
	watching  bool

	unsubscribe func()
	stopOnce    sync.Once
	stop        chan struct{}
	wg          sync.WaitGroup
}

// NewSync hooks into the cart's events. channel may be nil.
func NewSync(c *Cart, channel broadcast.Channel, opts SyncOptions) *Sync {
	if opts.Interval <= 0 {
		opts.Interval = DefaultSyncInterval
	}
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Sync{
		cart:     c,
		kv:       c.kv,
		channel:  channel,
		interval: opts.Interval,
		origin:   opts.Origin,
		now:      opts.Now,
		stop:     make(chan struct{}),
	}
	s.unsubscribe = c.Subscribe(s.onCartEvent)
	return s
}

func (s *Sync) onCartEvent(ev events.Event) error {
	switch ev.Name {
	case events.ItemAddedToCart, events.ItemRemovedFromCart, events.CartQuantityUpdated, events.CartCleared:
	default:
		return nil
	}
	ctx := context.Background()
	if err := s.bump(ctx); err != nil {
		return err
	}
	s.publish(ctx)
	return nil
}

// bump writes a counter strictly greater than both the clock and the stored value.
func (s *Sync) bump(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.now().UnixMilli()
	if stored, err := s.counter(ctx); err == nil && next <= stored {
		next = stored + 1
	}
	if next <= s.lastKnown {
		next = s.lastKnown + 1
	}
	if err := s.kv.Set(ctx, LastUpdateKey, []byte(strconv.FormatInt(next, 10))); err != nil {
		return err
	}
	s.lastKnown = next
	return nil
}

func (s *Sync) counter(ctx context.Context) (int64, error) {
	raw, err := s.kv.Get(ctx, LastUpdateKey)
	if errdefs.IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		// a garbled counter reads as zero, like an absent one
		return 0, nil
	}
	return n, nil
}

func (s *Sync) publish(ctx context.Context) {
	if s.channel == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	err := s.channel.Publish(ctx, broadcast.Message{
		Type:      broadcast.TypeCartUpdated,
		Timestamp: s.now().UnixMilli(),
		Origin:    s.origin,
	})
	if err != nil {
		logger.WithComponent(syncComponent).Debugf("cart broadcast failed: %v", err)
	}
}

// CheckForUpdates re-reads the stored cart when the shared counter moved past
// the last value seen. It reports whether the in-memory cart was replaced.
func (s *Sync) CheckForUpdates(ctx context.Context) (bool, error) {
	s.mu.Lock()
	n, err := s.counter(ctx)
	if err != nil {
		s.mu.Unlock()
		return false, err
	}
	if n <= s.lastKnown {
		s.mu.Unlock()
		return false, nil
	}
	s.lastKnown = n
	s.mu.Unlock()

	return s.syncFromStorage(ctx)
}

func (s *Sync) syncFromStorage(ctx context.Context) (bool, error) {
	stored, err := s.cart.Stored(ctx)
	if err != nil {
		return false, err
	}
	if ItemsEqual(s.cart.Items(), stored) {
		return false, nil
	}
	s.cart.replace(stored)
	logger.WithComponent(syncComponent).Debugf("cart synced from storage (%d items)", len(stored))
	return true, nil
}

// Start runs the poll loop and, where available, reacts to backend change
// notifications and cart_updated messages. It stops with ctx or Close.
func (s *Sync) Start(ctx context.Context) error {
	if _, err := s.CheckForUpdates(ctx); err != nil {
		logger.WithComponent(syncComponent).Warnf("initial cart check failed: %v", err)
	}

	if w, ok := s.kv.(kv.Watcher); ok {
		if err := w.Watch(ctx, s.onStorageChange); err != nil {
			return err
		}
		s.mu.Lock()
		s.watching = true
		s.mu.Unlock()
	}

	if s.channel != nil {
		if err := s.channel.Subscribe(ctx, s.onMessage); err != nil {
			return err
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.WithComponent(syncComponent).Debugf("starting cart poll with interval: %v", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.CheckForUpdates(ctx); err != nil {
					logger.WithComponent(syncComponent).Debugf("cart check failed: %v", err)
				}
			}
		}
	}()
	return nil
}

func (s *Sync) onStorageChange(ch kv.Change) {
	ctx := context.Background()
	var err error
	switch ch.Key {
	case StorageKey:
		_, err = s.syncFromStorage(ctx)
	case LastUpdateKey:
		_, err = s.CheckForUpdates(ctx)
	default:
		return
	}
	if err != nil {
		logger.WithComponent(syncComponent).Warnf("cart sync on storage change failed: %v", err)
	}
}

func (s *Sync) onMessage(m broadcast.Message) {
	if m.Type != broadcast.TypeCartUpdated || m.Origin == s.origin {
		return
	}
	time.AfterFunc(messageDelay, func() {
		select {
		case <-s.stop:
			return
		default:
		}
		if _, err := s.CheckForUpdates(context.Background()); err != nil {
			logger.WithComponent(syncComponent).Debugf("cart check after broadcast failed: %v", err)
		}
	})
}

// ForceSync runs a check immediately.
func (s *Sync) ForceSync(ctx context.Context) (bool, error) {
	return s.CheckForUpdates(ctx)
}

func (s *Sync) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SyncStatus{
		LastKnownUpdate: s.lastKnown,
		StorageKey:      StorageKey,
		SyncInterval:    s.interval,
		Watching:        s.watching,
	}
}

// Close stops the poll loop and detaches from the cart.
func (s *Sync) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.unsubscribe()
		s.wg.Wait()
	})
}
