package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bassista/labasica/internal/broadcast"
	"github.com/bassista/labasica/internal/cart"
	"github.com/bassista/labasica/internal/catalog"
	"github.com/bassista/labasica/internal/config"
	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/logger"
	"github.com/bassista/labasica/internal/store"
)

// App is the application container (immutable dependencies + lifecycle context).
// It is not a request context; handlers should still use gin's request context.
type App struct {
	Config      *config.Config
	KV          kv.Store
	Source      store.Source
	Store       *store.Store
	Catalog     *catalog.Repository
	Channel     broadcast.Channel
	Broadcaster *broadcast.Broadcaster
	Cart        *cart.Cart
	CartSync    *cart.Sync

	BaseCtx context.Context
	Cancel  context.CancelFunc
}

// OpenKV opens the configured backend. Single-file backends live inside StorePath.
func OpenKV(cfg config.DataConfig) (kv.Store, error) {
	path := cfg.StorePath
	switch cfg.StoreBackend {
	case config.BackendBolt:
		path = filepath.Join(cfg.StorePath, "labasica.db")
	case config.BackendSQLite:
		path = filepath.Join(cfg.StorePath, "labasica.sqlite")
	}
	return kv.New(cfg.StoreBackend, path)
}

// New wires the store, the catalog repository, the broadcaster and the cart
// on top of kvStore. source may be nil (no canonical documents).
func New(cfg *config.Config, kvStore kv.Store, source store.Source) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if kvStore == nil {
		return nil, errors.New("kv store is nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	st := store.New(kvStore, source, store.Options{
		Prefix:        cfg.Data.KeyPrefix,
		MaxValueBytes: cfg.Data.MaxValueBytes,
	})

	channel := newChannel(ctx, cfg.Sync, kvStore, st.Prefix()+store.TransientPrefix)

	opts := broadcast.Options{
		Interval:      cfg.Sync.Interval,
		ProbeInterval: cfg.Sync.ProbeInterval,
	}
	if p, ok := source.(interface{ Probe(context.Context) error }); ok {
		opts.Prober = p.Probe
	}
	b := broadcast.New(st, channel, opts)

	c := cart.New(ctx, kvStore, cart.Pricing{
		FreeShippingThreshold: cfg.Cart.FreeShippingThreshold,
		ShippingCost:          cfg.Cart.ShippingCost,
		PointsRate:            cfg.Cart.PointsRate,
	}, nil)
	cs := cart.NewSync(c, channel, cart.SyncOptions{
		Interval: cfg.Cart.SyncInterval,
		Origin:   b.Origin(),
	})

	return &App{
		Config:      cfg,
		KV:          kvStore,
		Source:      source,
		Store:       st,
		Catalog:     catalog.NewRepository(st, nil),
		Channel:     channel,
		Broadcaster: b,
		Cart:        c,
		CartSync:    cs,
		BaseCtx:     ctx,
		Cancel:      cancel,
	}, nil
}

// newChannel picks the configured broadcast channel. Redis that cannot be
// reached falls back to transient keys when the backend is watchable, then
// to the in-process hub.
func newChannel(ctx context.Context, cfg config.SyncConfig, kvStore kv.Store, keyPrefix string) broadcast.Channel {
	log := logger.WithComponent("app")

	if cfg.Channel == config.ChannelRedis {
		ch, err := broadcast.NewRedisChannel(ctx, cfg.RedisAddr, cfg.Topic)
		if err == nil {
			return ch
		}
		log.Warnf("redis channel unavailable, falling back: %v", err)
	}

	if cfg.Channel == config.ChannelRedis || cfg.Channel == config.ChannelKeys {
		ch, err := broadcast.NewKeyChannel(kvStore, keyPrefix, cfg.TransientTTL)
		if err == nil {
			return ch
		}
		log.Warnf("key channel unavailable, using in-process channel: %v", err)
	}
	return broadcast.NewLocalHub()
}

// StartWatchers starts observing foreign writes, the reconciler and the cart sync.
func (a *App) StartWatchers() error {
	if err := a.Store.Watch(a.BaseCtx); err != nil {
		return fmt.Errorf("cannot start storage watcher: %w", err)
	}
	if err := a.Broadcaster.Start(a.BaseCtx); err != nil {
		return fmt.Errorf("cannot start broadcaster: %w", err)
	}
	if err := a.CartSync.Start(a.BaseCtx); err != nil {
		return fmt.Errorf("cannot start cart sync: %w", err)
	}
	return nil
}

// Shutdown stops every background loop and releases the channel and the backend.
func (a *App) Shutdown() {
	if a == nil || a.Cancel == nil {
		return
	}
	a.Cancel()
	if a.Broadcaster != nil {
		a.Broadcaster.Close()
	}
	if a.CartSync != nil {
		a.CartSync.Close()
	}
	if a.Catalog != nil {
		a.Catalog.Close()
	}
	if a.Channel != nil {
		if err := a.Channel.Close(); err != nil {
			logger.WithComponent("app").Warnf("closing broadcast channel: %v", err)
		}
	}
	if a.KV != nil {
		if err := a.KV.Close(); err != nil {
			logger.WithComponent("app").Warnf("closing storage backend: %v", err)
		}
	}
}
