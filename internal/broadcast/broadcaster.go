// Package broadcast propagates document changes inside the process, to other
// processes over a shared channel, and from the canonical source through a
// periodic reconciliation pass.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/logger"
	"github.com/bassista/labasica/internal/store"
	"github.com/google/uuid"
)

const (
	component = "broadcast"

	// AllResources registers a listener for every document.
	AllResources = "*"

	DefaultInterval = 30 * time.Second
	publishTimeout  = 2 * time.Second
)

// DocumentStore is what the broadcaster needs from the store.
type DocumentStore interface {
	Subscribe(l events.Listener) func()
	FetchCanonical(ctx context.Context, name string) (store.Document, error)
	Cached(ctx context.Context, name string) store.Document
	Save(ctx context.Context, name string, doc store.Document) bool
	Apply(ctx context.Context, name string, doc store.Document) error
}

// Prober reports whether the canonical source is reachable.
type Prober func(ctx context.Context) error

// Status is the externally visible sync state.
type Status struct {
	IsOnline     bool       `json:"isOnline"`
	LastSync     *time.Time `json:"lastSync"`
	HasListeners bool       `json:"hasListeners"`
}

// Options configure a Broadcaster. Zero values pick the defaults.
type Options struct {
	Origin        string
	Interval      time.Duration
	ProbeInterval time.Duration
	Prober        Prober
	// Resources are the documents checked against the canonical source.
	Resources []string
	Now       func() time.Time
}

// Broadcaster fans document changes out to listeners and other processes,
// and reconciles the local copies with the canonical source on a timer.
type Broadcaster struct {
	store     DocumentStore
	channel   Channel
	origin    string
	interval  time.Duration
	probe     Prober
	probeStep time.Duration
	resources []string
	now       func() time.Time

	online atomic.Bool

	mu        sync.RWMutex
	listeners map[string]*events.Emitter
	lastSync  time.Time

	unsubscribe func()
	stopOnce    sync.Once
	stop        chan struct{}
	wg          sync.WaitGroup
}

// New wires the broadcaster to the store's dataUpdated events. channel may be nil
// when nothing else needs to hear about changes.
func New(s DocumentStore, channel Channel, opts Options) *Broadcaster {
	if opts.Origin == "" {
		opts.Origin = uuid.NewString()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if len(opts.Resources) == 0 {
		opts.Resources = []string{"products.json", "categories.json"}
	}
	b := &Broadcaster{
		store:     s,
		channel:   channel,
		origin:    opts.Origin,
		interval:  opts.Interval,
		probe:     opts.Prober,
		probeStep: opts.ProbeInterval,
		resources: opts.Resources,
		now:       opts.Now,
		listeners: map[string]*events.Emitter{},
		stop:      make(chan struct{}),
	}
	b.online.Store(true)
	b.unsubscribe = s.Subscribe(b.onStoreEvent)
	return b
}

// Origin identifies this process on the channel.
func (b *Broadcaster) Origin() string { return b.origin }

// AddListener registers fn for changes to one document (by file name).
func (b *Broadcaster) AddListener(fileName string, fn events.Listener) func() {
	b.mu.Lock()
	em, ok := b.listeners[fileName]
	if !ok {
		em = events.NewEmitter(component)
		b.listeners[fileName] = em
	}
	b.mu.Unlock()
	return em.Subscribe(fn)
}

// AddGlobalListener registers fn for changes to any document.
func (b *Broadcaster) AddGlobalListener(fn events.Listener) func() {
	return b.AddListener(AllResources, fn)
}

func (b *Broadcaster) onStoreEvent(ev events.Event) error {
	if ev.Name != events.DataUpdated {
		return nil
	}
	upd, ok := ev.Payload.(store.Update)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Name, ev.Payload)
	}
	b.notify(upd.FileName, upd.Data)
	if !upd.Remote {
		b.relay(upd)
	}
	return nil
}

// notify delivers dataChanged to the document's listeners and to the global ones.
func (b *Broadcaster) notify(fileName string, data store.Document) {
	b.mu.Lock()
	specific := b.listeners[fileName]
	global := b.listeners[AllResources]
	b.lastSync = b.now()
	b.mu.Unlock()

	if specific != nil {
		specific.Emit(events.Event{Name: events.DataChanged, Resource: fileName, Payload: data})
	}
	if global != nil {
		global.Emit(events.Event{
			Name:     events.DataChanged,
			Resource: fileName,
			Payload:  store.Update{FileName: fileName, Data: data},
		})
	}
}

func (b *Broadcaster) relay(upd store.Update) {
	if b.channel == nil {
		return
	}
	payload, err := json.Marshal(upd.Data)
	if err != nil {
		logger.WithResource(component, upd.FileName).Errorf("encode broadcast payload: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	err = b.channel.Publish(ctx, Message{
		Type:      TypeDocumentUpdate,
		FileName:  upd.FileName,
		Payload:   payload,
		Timestamp: b.now().UnixMilli(),
		Origin:    b.origin,
	})
	if err != nil {
		logger.WithResource(component, upd.FileName).Warnf("broadcast failed: %v", err)
	}
}

// onMessage handles messages from other processes. A payload newer than the
// local copy is applied to the store, whose Remote event then notifies the
// listeners without relaying. Anything else is only fanned out locally.
func (b *Broadcaster) onMessage(m Message) {
	if m.Origin == b.origin || m.Type != TypeDocumentUpdate {
		return
	}
	log := logger.WithResource(component, m.FileName)
	var data store.Document
	if len(m.Payload) > 0 {
		if err := json.Unmarshal(m.Payload, &data); err != nil {
			log.Warnf("undecodable broadcast payload: %v", err)
			return
		}
	}
	log.Debugf("change received from %s", m.Origin)

	if data != nil && m.FileName != "" {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if HasChanged(b.store.Cached(ctx, m.FileName), data) {
			if err := b.store.Apply(ctx, m.FileName, data); err == nil {
				return
			}
		}
	}
	b.notify(m.FileName, data)
}

// Start subscribes to the channel and launches the reconciler (and the
// connectivity probe when configured). Everything stops with ctx or Close.
func (b *Broadcaster) Start(ctx context.Context) error {
	if b.channel != nil {
		if err := b.channel.Subscribe(ctx, b.onMessage); err != nil {
			return fmt.Errorf("subscribe to broadcast channel: %w", err)
		}
	}

	b.wg.Add(1)
	go b.loop(ctx, b.interval, "reconciler", func(ctx context.Context) {
		if !b.online.Load() {
			logger.WithComponent(component).Tracef("offline, skipping reconciliation")
			return
		}
		if err := b.CheckForUpdates(ctx); err != nil {
			logger.WithComponent(component).Debugf("sync check failed (normal if offline): %v", err)
		}
	})

	if b.probe != nil && b.probeStep > 0 {
		b.wg.Add(1)
		go b.loop(ctx, b.probeStep, "probe", func(ctx context.Context) {
			b.SetOnline(ctx, b.probe(ctx) == nil)
		})
	}
	return nil
}

func (b *Broadcaster) loop(ctx context.Context, every time.Duration, name string, tick func(context.Context)) {
	defer b.wg.Done()
	logger.WithComponent(component).Debugf("starting %s with interval: %v", name, every)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.WithComponent(component).Debugf("%s stopped", name)
			return
		case <-b.stop:
			logger.WithComponent(component).Debugf("%s stopped", name)
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// CheckForUpdates compares every tracked document with its canonical copy and
// saves the canonical one when it is newer. Each document is checked even if
// another one fails; the failures are returned joined.
func (b *Broadcaster) CheckForUpdates(ctx context.Context) error {
	var errs []error
	for _, name := range b.resources {
		if err := b.checkOne(ctx, name); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Broadcaster) checkOne(ctx context.Context, name string) error {
	candidate, err := b.store.FetchCanonical(ctx, name)
	if err != nil {
		return err
	}
	// a check that outlived its context is stale; drop the result
	if err := ctx.Err(); err != nil {
		return err
	}
	local := b.store.Cached(ctx, name)
	if !HasChanged(local, candidate) {
		return nil
	}
	logger.WithResource(component, name).Infof("canonical copy is newer, updating local copy")
	if !b.store.Save(ctx, name, candidate) {
		return errors.New("could not save canonical copy")
	}
	return nil
}

// HasChanged reports whether candidate should replace local. Missing data or
// missing timestamps count as changed; otherwise candidate must be strictly newer.
func HasChanged(local, candidate store.Document) bool {
	if local == nil || candidate == nil {
		return true
	}
	localTS, ok := metadataTime(local)
	if !ok {
		localTS, ok = fieldTime(local, store.LastUpdatedField)
	}
	if !ok {
		return true
	}
	candidateTS, ok := metadataTime(candidate)
	if !ok {
		return true
	}
	return candidateTS.After(localTS)
}

func metadataTime(doc store.Document) (time.Time, bool) {
	meta, ok := doc["metadata"].(map[string]any)
	if !ok {
		return time.Time{}, false
	}
	return fieldTime(meta, "lastUpdated")
}

func fieldTime(m map[string]any, key string) (time.Time, bool) {
	s, _ := m[key].(string)
	return store.ParseTime(s)
}

// SyncAll runs a reconciliation pass when online.
func (b *Broadcaster) SyncAll(ctx context.Context) error {
	if !b.online.Load() {
		return nil
	}
	if err := b.CheckForUpdates(ctx); err != nil {
		logger.WithComponent(component).Errorf("full sync failed: %v", err)
		return err
	}
	logger.WithComponent(component).Info("full sync completed")
	return nil
}

// ForceSync is the manual trigger behind POST /api/sync.
func (b *Broadcaster) ForceSync(ctx context.Context) error {
	return b.SyncAll(ctx)
}

// SetOnline records connectivity. Coming back online runs a full sync right away.
func (b *Broadcaster) SetOnline(ctx context.Context, online bool) {
	was := b.online.Swap(online)
	if was == online {
		return
	}
	logger.WithComponent(component).Infof("connectivity changed: online=%v", online)
	if online {
		_ = b.SyncAll(ctx)
	}
}

// IsOnline reports the current connectivity flag.
func (b *Broadcaster) IsOnline() bool { return b.online.Load() }

func (b *Broadcaster) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Status{IsOnline: b.online.Load()}
	if !b.lastSync.IsZero() {
		ts := b.lastSync
		st.LastSync = &ts
	}
	for _, em := range b.listeners {
		if em.Len() > 0 {
			st.HasListeners = true
			break
		}
	}
	return st
}

// Close stops the timers, detaches from the store and drops every listener.
// The channel is owned by the caller and stays open.
func (b *Broadcaster) Close() {
	b.stopOnce.Do(func() {
		close(b.stop)
		b.unsubscribe()
		b.wg.Wait()
		b.mu.Lock()
		b.listeners = map[string]*events.Emitter{}
		b.mu.Unlock()
	})
}
