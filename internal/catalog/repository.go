package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/logger"
	"github.com/bassista/labasica/internal/store"
	"github.com/containerd/errdefs"
	"github.com/go-playground/validator/v10"
)

const component = "catalog"

// DocumentStore is the persistence the repository needs.
// *store.Store implements it.
type DocumentStore interface {
	Load(ctx context.Context, name string) store.Document
	Cached(ctx context.Context, name string) store.Document
	Put(ctx context.Context, name string, doc store.Document) error
	Subscribe(l events.Listener) func()
}

// Stats summarises both documents.
type Stats struct {
	TotalProducts   int       `json:"totalProducts"`
	TotalCategories int       `json:"totalCategories"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// ChangeNotice is the payload of dataChanged.
type ChangeNotice struct {
	FileName string `json:"fileName,omitempty"`
}

// Repository is the typed CRUD façade over the catalog documents.
type Repository struct {
	store     DocumentStore
	now       func() time.Time
	validate  *validator.Validate
	emitter   *events.Emitter
	writeLock map[Resource]*sync.Mutex

	mu     sync.Mutex
	cache  map[Resource]*Document
	loaded map[Resource]bool

	unsubscribe func()
}

// NewRepository builds a repository over s and starts listening for
// document changes. now may be nil.
func NewRepository(s DocumentStore, now func() time.Time) *Repository {
	if now == nil {
		now = time.Now
	}
	r := &Repository{
		store:    s,
		now:      now,
		validate: validator.New(),
		emitter:  events.NewEmitter(component),
		writeLock: map[Resource]*sync.Mutex{
			Products:   {},
			Categories: {},
		},
		cache:  map[Resource]*Document{},
		loaded: map[Resource]bool{},
	}
	r.unsubscribe = s.Subscribe(r.onStoreEvent)
	return r
}

// Close stops listening to the store.
func (r *Repository) Close() {
	r.unsubscribe()
}

// Subscribe registers l for record events and dataChanged.
func (r *Repository) Subscribe(l events.Listener) func() {
	return r.emitter.Subscribe(l)
}

// onStoreEvent drops cached documents that changed underneath the repository.
func (r *Repository) onStoreEvent(ev events.Event) error {
	switch ev.Name {
	case events.DataUpdated:
		res, ok := ResourceByName(ev.Resource)
		if !ok {
			return nil
		}
		r.invalidate(res, true)
		r.emitter.Emit(events.Event{Name: events.DataChanged, Resource: res.file, Payload: ChangeNotice{FileName: res.file}})
	case events.DataImported:
		for _, res := range Resources() {
			r.invalidate(res, true)
		}
		r.emitter.Emit(events.Event{Name: events.DataChanged, Payload: ChangeNotice{}})
	case events.DataCleared:
		for _, res := range Resources() {
			r.invalidate(res, false)
		}
		r.emitter.Emit(events.Event{Name: events.DataChanged, Payload: ChangeNotice{}})
	}
	return nil
}

// invalidate drops the cache entry. keepLoaded makes the next read use the
// local copy; otherwise the next read starts from the canonical source again.
func (r *Repository) invalidate(res Resource, keepLoaded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, res)
	if !keepLoaded {
		delete(r.loaded, res)
	}
	logger.WithResource(component, res.file).Debugf("cache invalidated")
}

// ClearCache drops both cache entries; the next reads go back to the canonical source.
func (r *Repository) ClearCache() {
	for _, res := range Resources() {
		r.invalidate(res, false)
	}
}

// GetAll returns the cached document for res, loading it on first use.
// The returned document is shared with the cache and must not be modified.
func (r *Repository) GetAll(ctx context.Context, res Resource) (*Document, error) {
	r.mu.Lock()
	if doc, ok := r.cache[res]; ok {
		r.mu.Unlock()
		return doc, nil
	}
	wasLoaded := r.loaded[res]
	r.mu.Unlock()

	var raw store.Document
	if wasLoaded {
		raw = r.store.Cached(ctx, res.file)
	}
	if raw == nil {
		raw = r.store.Load(ctx, res.file)
	}

	var doc *Document
	if raw != nil {
		decoded, err := decodeDocument(res, raw)
		if err != nil {
			logger.WithResource(component, res.file).Warnf("unusable document, starting empty: %v", err)
		} else {
			doc = decoded
		}
	}
	if doc == nil {
		doc = newDocument(res, store.FormatTime(r.now()))
		if err := r.store.Put(ctx, res.file, doc.encode()); err != nil {
			logger.WithResource(component, res.file).Warnf("could not persist default document: %v", err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[res]; ok {
		return existing, nil
	}
	r.cache[res] = doc
	r.loaded[res] = true
	return doc, nil
}

// GetByID finds a record by id. Ids are coerced with ParseID; an id that
// cannot be parsed is simply not found.
func (r *Repository) GetByID(ctx context.Context, res Resource, id any) (Record, error) {
	n, ok := ParseID(id)
	if !ok {
		return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
	}
	doc, err := r.GetAll(ctx, res)
	if err != nil {
		return nil, err
	}
	if i := doc.indexOf(n); i >= 0 {
		return doc.Items[i], nil
	}
	return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
}

// GetByForeignKey returns the records whose field equals value (coerced like an id).
// The result is never nil.
func (r *Repository) GetByForeignKey(ctx context.Context, res Resource, field string, value any) ([]Record, error) {
	out := []Record{}
	n, ok := ParseID(value)
	if !ok {
		return out, nil
	}
	doc, err := r.GetAll(ctx, res)
	if err != nil {
		return out, err
	}
	for _, rec := range doc.Items {
		if v, ok := foreignKey(rec[field]); ok && v == n {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Add creates a record with the next id. On failure nothing is committed.
func (r *Repository) Add(ctx context.Context, res Resource, fields map[string]any) (Record, error) {
	lock := r.writeLock[res]
	lock.Lock()
	defer lock.Unlock()

	rec := Record{}
	for k, v := range fields {
		rec[k] = v
	}
	if res == Categories {
		prepareCategory(rec)
	}
	if err := checkFields(r.validate, res, rec, false); err != nil {
		return nil, err
	}
	if err := normalizeReferences(res, rec); err != nil {
		return nil, err
	}
	if v, ok := rec[fieldCategoryID]; ok && v == nil {
		delete(rec, fieldCategoryID)
	}

	next, err := r.workingCopy(ctx, res)
	if err != nil {
		return nil, errdefs.ErrUnavailable.WithMessage(res.msgSaveFailed)
	}
	if res == Categories {
		if err := checkUniqueSlugs(next, rec, 0); err != nil {
			return nil, err
		}
	}

	now := store.FormatTime(r.now())
	rec[fieldID] = next.Metadata.NextID
	rec[fieldCreatedAt] = now
	rec[fieldUpdatedAt] = now

	next.Items = append(next.Items, rec)
	next.Metadata.NextID++
	next.Metadata.TotalCount = len(next.Items)
	next.Metadata.LastUpdated = now

	if err := r.commit(ctx, res, next); err != nil {
		return nil, saveError(err, res.msgSaveFailed)
	}
	out := rec.Clone()
	r.emitter.Emit(events.Event{Name: res.added, Resource: res.file, Payload: out})
	return out, nil
}

// Update merges patch over an existing record. id and createdAt never change.
func (r *Repository) Update(ctx context.Context, res Resource, id any, patch map[string]any) (Record, error) {
	lock := r.writeLock[res]
	lock.Lock()
	defer lock.Unlock()

	n, ok := ParseID(id)
	if !ok {
		return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
	}
	fields := make(map[string]any, len(patch))
	for k, v := range patch {
		fields[k] = v
	}
	if err := checkFields(r.validate, res, fields, true); err != nil {
		return nil, err
	}
	if err := normalizeReferences(res, fields); err != nil {
		return nil, err
	}

	next, err := r.workingCopy(ctx, res)
	if err != nil {
		return nil, errdefs.ErrUnavailable.WithMessage(res.msgUpdFailed)
	}
	i := next.indexOf(n)
	if i < 0 {
		return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
	}

	rec := next.Items[i]
	for k, v := range fields {
		switch {
		case k == fieldID || k == fieldCreatedAt:
		case k == fieldCategoryID && v == nil && res == Products:
			delete(rec, k)
		default:
			rec[k] = v
		}
	}
	if res == Categories {
		if err := checkUniqueSlugs(next, rec, n); err != nil {
			return nil, err
		}
	}

	now := store.FormatTime(r.now())
	rec[fieldUpdatedAt] = now
	next.Metadata.TotalCount = len(next.Items)
	next.Metadata.LastUpdated = now

	if err := r.commit(ctx, res, next); err != nil {
		return nil, saveError(err, res.msgUpdFailed)
	}
	out := rec.Clone()
	r.emitter.Emit(events.Event{Name: res.updated, Resource: res.file, Payload: out})
	return out, nil
}

// Delete removes a record. A category still referenced by products is kept
// and a conflict error reports how many products use it.
func (r *Repository) Delete(ctx context.Context, res Resource, id any) (Record, error) {
	lock := r.writeLock[res]
	lock.Lock()
	defer lock.Unlock()

	n, ok := ParseID(id)
	if !ok {
		return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
	}
	next, err := r.workingCopy(ctx, res)
	if err != nil {
		return nil, errdefs.ErrUnavailable.WithMessage(res.msgDelFailed)
	}
	i := next.indexOf(n)
	if i < 0 {
		return nil, errdefs.ErrNotFound.WithMessage(res.msgNotFound)
	}

	if res == Categories {
		using, err := r.GetByForeignKey(ctx, Products, fieldCategoryID, n)
		if err != nil {
			return nil, errdefs.ErrUnavailable.WithMessage(res.msgDelFailed)
		}
		if len(using) > 0 {
			return nil, errdefs.ErrConflict.WithMessage(
				fmt.Sprintf("No se puede eliminar. Hay %d productos usando esta categoría", len(using)))
		}
	}

	deleted := next.Items[i]
	next.Items = append(next.Items[:i], next.Items[i+1:]...)
	next.Metadata.TotalCount = len(next.Items)
	next.Metadata.LastUpdated = store.FormatTime(r.now())

	if err := r.commit(ctx, res, next); err != nil {
		return nil, saveError(err, res.msgDelFailed)
	}
	out := deleted.Clone()
	r.emitter.Emit(events.Event{Name: res.deleted, Resource: res.file, Payload: out})
	return out, nil
}

// GetStats reports both counts and the newest lastUpdated of the two documents.
func (r *Repository) GetStats(ctx context.Context) (Stats, error) {
	products, err := r.GetAll(ctx, Products)
	if err != nil {
		return Stats{}, err
	}
	categories, err := r.GetAll(ctx, Categories)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		TotalProducts:   products.Metadata.TotalCount,
		TotalCategories: categories.Metadata.TotalCount,
	}
	for _, doc := range []*Document{products, categories} {
		if t, ok := doc.Metadata.LastUpdatedTime(); ok && t.After(stats.LastUpdated) {
			stats.LastUpdated = t
		}
	}
	return stats, nil
}

// workingCopy clones the current document so mutations stay invisible until commit.
func (r *Repository) workingCopy(ctx context.Context, res Resource) (*Document, error) {
	current, err := r.GetAll(ctx, res)
	if err != nil {
		return nil, err
	}
	return current.Clone()
}

// commit persists next and makes it the cached document. The store's
// dataUpdated notification drops the old entry first.
func (r *Repository) commit(ctx context.Context, res Resource, next *Document) error {
	if err := r.store.Put(ctx, res.file, next.encode()); err != nil {
		logger.WithResource(component, res.file).Errorf("commit failed, cache left unchanged")
		return err
	}
	r.mu.Lock()
	r.cache[res] = next
	r.loaded[res] = true
	r.mu.Unlock()
	return nil
}

// saveError keeps a quota rejection distinguishable from other write failures.
func saveError(err error, msg string) error {
	if errdefs.IsResourceExhausted(err) {
		return errdefs.ErrResourceExhausted.WithMessage(msg)
	}
	return errdefs.ErrUnavailable.WithMessage(msg)
}
