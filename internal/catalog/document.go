package catalog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bassista/labasica/internal/store"
)

const (
	fieldID        = "id"
	fieldCreatedAt = "createdAt"
	fieldUpdatedAt = "updatedAt"

	metaLastUpdated = "lastUpdated"
	metaNextID      = "nextId"
	keyMetadata     = "metadata"
)

// Record is one product or category. Besides the arbitrary fields supplied
// by callers it always carries id, createdAt and updatedAt.
type Record map[string]any

// ID returns the record id when it is an integral number.
func (r Record) ID() (int, bool) {
	return integral(r[fieldID])
}

// Clone deep-copies the record.
func (r Record) Clone() Record {
	raw, err := json.Marshal(r)
	if err != nil {
		out := make(Record, len(r))
		for k, v := range r {
			out[k] = v
		}
		return out
	}
	var out Record
	_ = json.Unmarshal(raw, &out)
	return out
}

// Metadata is the pseudo-database block of a document.
type Metadata struct {
	LastUpdated string
	TotalCount  int
	NextID      int
	// Extra keeps metadata keys this package does not manage.
	Extra map[string]any
}

// LastUpdatedTime parses LastUpdated; ok is false when it is missing or malformed.
func (m Metadata) LastUpdatedTime() (time.Time, bool) {
	return store.ParseTime(m.LastUpdated)
}

// Document is the decoded form of products.json or categories.json.
type Document struct {
	res      Resource
	Items    []Record
	Metadata Metadata
	// Written is the local write stamp (_lastUpdated) when present.
	Written string
	// Extra keeps top-level keys other than the collection and metadata.
	Extra map[string]any
}

// Resource returns the resource this document belongs to.
func (d *Document) Resource() Resource { return d.res }

func newDocument(res Resource, now string) *Document {
	extra := map[string]any{}
	if res == Products {
		extra["totalCategories"] = 0
		extra["averageRating"] = 0
		extra["totalReviews"] = 0
	}
	return &Document{
		res:   res,
		Items: []Record{},
		Metadata: Metadata{
			LastUpdated: now,
			TotalCount:  0,
			NextID:      1,
			Extra:       extra,
		},
		Extra: map[string]any{},
	}
}

// decodeDocument converts a stored document. A document without a collection
// array is rejected so the caller can fall back to defaults.
func decodeDocument(res Resource, raw store.Document) (*Document, error) {
	list, ok := raw[res.name].([]any)
	if !ok {
		return nil, fmt.Errorf("document %s has no %q array", res.file, res.name)
	}

	doc := &Document{res: res, Items: make([]Record, 0, len(list)), Extra: map[string]any{}}
	maxID := 0
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		rec := Record(m)
		if id, ok := rec.ID(); ok && id > maxID {
			maxID = id
		}
		doc.Items = append(doc.Items, rec)
	}

	meta, _ := raw[keyMetadata].(map[string]any)
	doc.Metadata.Extra = map[string]any{}
	for k, v := range meta {
		switch k {
		case metaLastUpdated:
			doc.Metadata.LastUpdated, _ = v.(string)
		case metaNextID:
			doc.Metadata.NextID, _ = integral(v)
		case res.countField:
			// recomputed from the items below
		default:
			doc.Metadata.Extra[k] = v
		}
	}
	doc.Metadata.TotalCount = len(doc.Items)
	// never hand out an id that is already taken
	if doc.Metadata.NextID <= maxID {
		doc.Metadata.NextID = maxID + 1
	}

	for k, v := range raw {
		switch k {
		case res.name, keyMetadata:
		case store.LastUpdatedField:
			doc.Written, _ = v.(string)
		default:
			doc.Extra[k] = v
		}
	}
	return doc, nil
}

// encode produces the stored JSON shape.
func (d *Document) encode() store.Document {
	out := make(store.Document, len(d.Extra)+3)
	for k, v := range d.Extra {
		out[k] = v
	}

	items := make([]any, len(d.Items))
	for i, rec := range d.Items {
		items[i] = map[string]any(rec)
	}
	out[d.res.name] = items

	meta := make(map[string]any, len(d.Metadata.Extra)+3)
	for k, v := range d.Metadata.Extra {
		meta[k] = v
	}
	meta[metaLastUpdated] = d.Metadata.LastUpdated
	meta[d.res.countField] = d.Metadata.TotalCount
	meta[metaNextID] = d.Metadata.NextID
	out[keyMetadata] = meta

	if d.Written != "" {
		out[store.LastUpdatedField] = d.Written
	}
	return out
}

// MarshalJSON renders the same shape the store persists.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.encode())
}

// Clone deep-copies the document so a mutation never leaks into the cache
// before it is committed.
func (d *Document) Clone() (*Document, error) {
	cp, err := store.Clone(d.encode())
	if err != nil {
		return nil, err
	}
	return decodeDocument(d.res, cp)
}

func (d *Document) indexOf(id int) int {
	for i, rec := range d.Items {
		if rid, ok := rec.ID(); ok && rid == id {
			return i
		}
	}
	return -1
}
