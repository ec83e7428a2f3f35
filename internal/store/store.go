// Package store persists named JSON documents in a local key-value backend
// and keeps them in step with a canonical source.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/logger"
	"github.com/containerd/errdefs"
)

const (
	// DefaultPrefix namespaces every key written by the store.
	DefaultPrefix = "la_basica_"
	// TransientPrefix marks short-lived broadcast keys; they are never documents.
	TransientPrefix = "sync_"
	// DefaultMaxValueBytes matches the usual browser localStorage quota.
	DefaultMaxValueBytes = 5 << 20

	// LastUpdatedField is stamped on every locally written document.
	LastUpdatedField = "_lastUpdated"

	component = "store"
)

// ErrQuotaExceeded is reported (and logged) when a serialized document does not fit.
var ErrQuotaExceeded = errdefs.ErrResourceExhausted.WithMessage("document exceeds storage quota")

// Document is a decoded JSON object as stored locally.
type Document map[string]any

// Update is the payload of a dataUpdated event.
type Update struct {
	FileName string   `json:"fileName"`
	Data     Document `json:"data"`
	// Remote marks writes that originated in another process.
	Remote bool `json:"-"`
}

// Options tune a Store. Zero values fall back to the defaults.
type Options struct {
	Prefix        string
	MaxValueBytes int
	Now           func() time.Time
}

// Store is the durable document store. All operations are best-effort:
// failures are logged and reported as nil or false, never as panics.
type Store struct {
	kv       kv.Store
	source   Source
	prefix   string
	maxBytes int
	now      func() time.Time
	emitter  *events.Emitter
}

// New wires a store over kvStore. source may be nil, in which case Load
// only ever returns the local copy.
func New(kvStore kv.Store, source Source, opts Options) *Store {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.MaxValueBytes <= 0 {
		opts.MaxValueBytes = DefaultMaxValueBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		kv:       kvStore,
		source:   source,
		prefix:   opts.Prefix,
		maxBytes: opts.MaxValueBytes,
		now:      opts.Now,
		emitter:  events.NewEmitter(component),
	}
}

// KV exposes the backend so other components can share it.
func (s *Store) KV() kv.Store { return s.kv }

// Prefix returns the key namespace.
func (s *Store) Prefix() string { return s.prefix }

// Subscribe registers a listener for dataUpdated, dataCleared and dataImported.
func (s *Store) Subscribe(l events.Listener) func() {
	return s.emitter.Subscribe(l)
}

func (s *Store) key(name string) string { return s.prefix + name }

// Load prefers the canonical copy and refreshes the local one with it.
// When the canonical source fails, the last local copy (or nil) is returned.
func (s *Store) Load(ctx context.Context, name string) Document {
	doc, err := s.FetchCanonical(ctx, name)
	if err == nil {
		if _, werr := s.write(ctx, name, doc); werr != nil {
			logger.WithResource(component, name).Warnf("refresh local copy failed: %v", werr)
		}
		return doc
	}
	logger.WithResource(component, name).Debugf("canonical fetch failed, falling back to local copy: %v", err)
	return s.Cached(ctx, name)
}

// FetchCanonical returns the canonical document without touching the local copy.
func (s *Store) FetchCanonical(ctx context.Context, name string) (Document, error) {
	if s.source == nil {
		return nil, errdefs.ErrUnavailable.WithMessage("no canonical source configured")
	}
	return s.source.Fetch(ctx, name)
}

// Cached reads the local copy only. A missing or corrupt copy yields nil.
func (s *Store) Cached(ctx context.Context, name string) Document {
	raw, err := s.kv.Get(ctx, s.key(name))
	if err != nil {
		if !errdefs.IsNotFound(err) {
			logger.WithResource(component, name).Errorf("read local copy: %v", err)
		}
		return nil
	}
	doc, err := decode(raw)
	if err != nil {
		logger.WithResource(component, name).Errorf("local copy is corrupt, ignoring it: %v", err)
		return nil
	}
	return doc
}

// Save writes doc locally and emits dataUpdated with the stamped document.
func (s *Store) Save(ctx context.Context, name string, doc Document) bool {
	return s.Put(ctx, name, doc) == nil
}

// Put is Save for callers that need the failure class: ErrQuotaExceeded
// for an oversized document, the backend error otherwise. Failures are logged.
func (s *Store) Put(ctx context.Context, name string, doc Document) error {
	stamped, err := s.write(ctx, name, doc)
	if err != nil {
		logger.WithResource(component, name).Errorf("save failed: %v", err)
		return err
	}
	s.emitter.Emit(events.Event{
		Name:     events.DataUpdated,
		Resource: name,
		Payload:  Update{FileName: name, Data: stamped},
	})
	return nil
}

// Apply stores a document received from another process. Its dataUpdated
// event is marked Remote so it is not broadcast again.
func (s *Store) Apply(ctx context.Context, name string, doc Document) error {
	stamped, err := s.write(ctx, name, doc)
	if err != nil {
		logger.WithResource(component, name).Errorf("apply remote change failed: %v", err)
		return err
	}
	s.emitter.Emit(events.Event{
		Name:     events.DataUpdated,
		Resource: name,
		Payload:  Update{FileName: name, Data: stamped, Remote: true},
	})
	return nil
}

// write stamps _lastUpdated on a shallow copy and stores it.
func (s *Store) write(ctx context.Context, name string, doc Document) (Document, error) {
	stamped := make(Document, len(doc)+1)
	for k, v := range doc {
		stamped[k] = v
	}
	stamped[LastUpdatedField] = FormatTime(s.now())

	raw, err := json.Marshal(stamped)
	if err != nil {
		return nil, err
	}
	if len(raw) > s.maxBytes {
		return nil, ErrQuotaExceeded
	}
	if err := s.kv.Set(ctx, s.key(name), raw); err != nil {
		return nil, err
	}
	return stamped, nil
}

// Remove deletes the local copy of name.
func (s *Store) Remove(ctx context.Context, name string) bool {
	if err := s.kv.Delete(ctx, s.key(name)); err != nil {
		logger.WithResource(component, name).Errorf("remove failed: %v", err)
		return false
	}
	return true
}

// ListKeys returns the stored document names without the prefix, sorted.
func (s *Store) ListKeys(ctx context.Context) []string {
	keys, err := s.kv.Keys(ctx, s.prefix)
	if err != nil {
		logger.WithComponent(component).Errorf("list keys failed: %v", err)
		return []string{}
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := strings.TrimPrefix(k, s.prefix)
		if strings.HasPrefix(name, TransientPrefix) {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RemoveAll deletes every document under the prefix and emits dataCleared.
func (s *Store) RemoveAll(ctx context.Context) bool {
	ok := true
	for _, name := range s.ListKeys(ctx) {
		if !s.Remove(ctx, name) {
			ok = false
		}
	}
	s.emitter.Emit(events.Event{Name: events.DataCleared})
	return ok
}

// ExportAll returns every readable document keyed by name.
func (s *Store) ExportAll(ctx context.Context) map[string]Document {
	out := map[string]Document{}
	for _, name := range s.ListKeys(ctx) {
		if doc := s.Cached(ctx, name); doc != nil {
			out[name] = doc
		}
	}
	return out
}

// ImportAll writes every document (stamped, without per-document events)
// and emits dataImported once. It stops at the first failure.
func (s *Store) ImportAll(ctx context.Context, docs map[string]Document) bool {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := s.write(ctx, name, docs[name]); err != nil {
			logger.WithResource(component, name).Errorf("import failed: %v", err)
			return false
		}
	}
	s.emitter.Emit(events.Event{Name: events.DataImported, Payload: names})
	return true
}

// Watch re-emits documents written by other processes as dataUpdated.
// Backends that cannot observe foreign writes make this a no-op.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.kv.(kv.Watcher)
	if !ok {
		logger.WithComponent(component).Debugf("backend %T is not watchable, skipping", s.kv)
		return nil
	}
	return w.Watch(ctx, func(c kv.Change) {
		name, ok := s.documentName(c.Key)
		if !ok || c.Deleted {
			return
		}
		doc, err := decode(c.Value)
		if err != nil {
			logger.WithResource(component, name).Warnf("ignoring foreign write: %v", err)
			return
		}
		logger.WithResource(component, name).Debugf("foreign write observed")
		s.emitter.Emit(events.Event{
			Name:     events.DataUpdated,
			Resource: name,
			Payload:  Update{FileName: name, Data: doc, Remote: true},
		})
	})
}

// documentName maps a backend key to a document name. Only *.json names under
// the prefix are documents.
func (s *Store) documentName(key string) (string, bool) {
	if !strings.HasPrefix(key, s.prefix) {
		return "", false
	}
	name := strings.TrimPrefix(key, s.prefix)
	if strings.HasPrefix(name, TransientPrefix) || !strings.HasSuffix(name, ".json") {
		return "", false
	}
	return name, true
}

func decode(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, errors.New("not a JSON object")
	}
	return doc, nil
}

const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t as an ISO-8601 UTC timestamp with milliseconds.
func FormatTime(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

// ParseTime accepts any RFC 3339 timestamp; ok is false for empty or malformed input.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Clone deep-copies a document through a JSON round trip.
func Clone(doc Document) (Document, error) {
	if doc == nil {
		return nil, nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return decode(raw)
}
