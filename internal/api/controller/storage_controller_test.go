package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStorageRouter(t *testing.T) (*gin.Engine, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := store.New(kv.NewMemory(), nil, store.Options{})
	sc := NewStorageController(s)

	r := gin.New()
	r.GET("/api/storage/keys", sc.Keys)
	r.GET("/api/storage/export", sc.Export)
	r.POST("/api/storage/import", sc.Import)
	r.DELETE("/api/storage", sc.Clear)
	return r, s
}

func TestStorageController_ImportExportClear(t *testing.T) {
	r, s := newStorageRouter(t)

	w := do(r, http.MethodPost, "/api/storage/import", `{"products.json":{"products":[]},"categories.json":{"categories":[]}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"imported":2}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/storage/keys", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `["categories.json","products.json"]`, w.Body.String())

	w = do(r, http.MethodGet, "/api/storage/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	var exported map[string]map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &exported))
	assert.Contains(t, exported, "products.json")
	assert.Contains(t, exported["products.json"], store.LastUpdatedField)

	w = do(r, http.MethodDelete, "/api/storage", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, s.ListKeys(t.Context()))
}

func TestStorageController_ImportRejectsBadPayload(t *testing.T) {
	r, _ := newStorageRouter(t)

	for _, body := range []string{`[]`, `{}`, `nope`} {
		w := do(r, http.MethodPost, "/api/storage/import", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}
