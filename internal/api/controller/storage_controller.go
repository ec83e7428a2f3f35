package controller

import (
	"net/http"

	"github.com/bassista/labasica/internal/store"
	"github.com/containerd/errdefs"
	"github.com/gin-gonic/gin"
)

// StorageController exposes the raw document store for backup and reset.
type StorageController struct {
	store *store.Store
}

func NewStorageController(s *store.Store) *StorageController {
	return &StorageController{store: s}
}

func (sc *StorageController) Keys(c *gin.Context) {
	c.JSON(http.StatusOK, sc.store.ListKeys(c.Request.Context()))
}

func (sc *StorageController) Export(c *gin.Context) {
	c.JSON(http.StatusOK, sc.store.ExportAll(c.Request.Context()))
}

// Import expects an object of document name to document.
func (sc *StorageController) Import(c *gin.Context) {
	var docs map[string]store.Document
	if err := c.ShouldBindJSON(&docs); err != nil || len(docs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !sc.store.ImportAll(c.Request.Context(), docs) {
		respondError(c, errdefs.ErrUnavailable.WithMessage("import failed"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(docs)})
}

func (sc *StorageController) Clear(c *gin.Context) {
	if !sc.store.RemoveAll(c.Request.Context()) {
		respondError(c, errdefs.ErrUnavailable.WithMessage("clear failed"))
		return
	}
	c.Status(http.StatusNoContent)
}
