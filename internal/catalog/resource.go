// Package catalog is the typed CRUD layer over the two catalog documents,
// products and categories, with id assignment, metadata upkeep and an
// in-memory cache that is dropped whenever the document changes underneath it.
package catalog

import "github.com/bassista/labasica/internal/events"

// Resource identifies one of the catalog documents. Its fields are unexported
// so the only valid values are Products and Categories.
type Resource struct {
	name       string
	file       string
	countField string

	added   string
	updated string
	deleted string

	msgNotFound   string
	msgSaveFailed string
	msgUpdFailed  string
	msgDelFailed  string
}

var (
	Products = Resource{
		name:          "products",
		file:          "products.json",
		countField:    "totalProducts",
		added:         events.ProductAdded,
		updated:       events.ProductUpdated,
		deleted:       events.ProductDeleted,
		msgNotFound:   "Producto no encontrado",
		msgSaveFailed: "Error guardando producto",
		msgUpdFailed:  "Error actualizando producto",
		msgDelFailed:  "Error eliminando producto",
	}

	Categories = Resource{
		name:          "categories",
		file:          "categories.json",
		countField:    "totalCategories",
		added:         events.CategoryAdded,
		updated:       events.CategoryUpdated,
		deleted:       events.CategoryDeleted,
		msgNotFound:   "Categoría no encontrada",
		msgSaveFailed: "Error guardando categoría",
		msgUpdFailed:  "Error actualizando categoría",
		msgDelFailed:  "Error eliminando categoría",
	}
)

// Resources lists every catalog document, products first.
func Resources() []Resource { return []Resource{Products, Categories} }

// Name is the collection key inside the document, e.g. "products".
func (r Resource) Name() string { return r.name }

// FileName is the document name used by the store, e.g. "products.json".
func (r Resource) FileName() string { return r.file }

// CountField is the metadata key holding the item count.
func (r Resource) CountField() string { return r.countField }

func (r Resource) String() string { return r.name }

// ResourceByName accepts either the collection name or the file name.
func ResourceByName(s string) (Resource, bool) {
	for _, r := range Resources() {
		if s == r.name || s == r.file {
			return r, true
		}
	}
	return Resource{}, false
}
