package controller

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/bassista/labasica/internal/cart"
	"github.com/bassista/labasica/internal/kv"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCartRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cc := NewCartController(cart.New(t.Context(), kv.NewMemory(), cart.Pricing{}, nil))

	r := gin.New()
	r.GET("/api/cart", cc.Get)
	r.POST("/api/cart/items", cc.AddItem)
	r.PATCH("/api/cart/items/:id", cc.UpdateItem)
	r.DELETE("/api/cart/items/:id", cc.RemoveItem)
	r.DELETE("/api/cart", cc.Clear)
	return r
}

func snapshotOf(t *testing.T, body []byte) cart.Snapshot {
	t.Helper()
	var snap cart.Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	return snap
}

func TestCartController_Flow(t *testing.T) {
	r := newCartRouter(t)

	w := do(r, http.MethodPost, "/api/cart/items", `{"id":1,"name":"Pan","price":500,"quantity":2}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	snap := snapshotOf(t, w.Body.Bytes())
	require.Len(t, snap.Items, 1)
	assert.Equal(t, 1250.0, snap.Totals.Total)

	w = do(r, http.MethodPatch, "/api/cart/items/1", `{"quantity":4}`)
	require.Equal(t, http.StatusOK, w.Code)
	snap = snapshotOf(t, w.Body.Bytes())
	assert.Equal(t, 4, snap.Items[0].Quantity)
	assert.True(t, snap.Totals.FreeShipping)

	w = do(r, http.MethodPatch, "/api/cart/items/1", `{"quantity":0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, snapshotOf(t, w.Body.Bytes()).Items)

	w = do(r, http.MethodGet, "/api/cart", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 250.0, snapshotOf(t, w.Body.Bytes()).Totals.Shipping)
}

func TestCartController_Errors(t *testing.T) {
	r := newCartRouter(t)

	tests := []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/cart/items", `{"name":"sin id"}`, http.StatusBadRequest},
		{http.MethodPatch, "/api/cart/items/7", `{"quantity":1}`, http.StatusNotFound},
		{http.MethodPatch, "/api/cart/items/x", `{"quantity":1}`, http.StatusBadRequest},
		{http.MethodPatch, "/api/cart/items/7", `{}`, http.StatusBadRequest},
		{http.MethodDelete, "/api/cart/items/7", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		w := do(r, tt.method, tt.path, tt.body)
		assert.Equal(t, tt.want, w.Code, "%s %s %s", tt.method, tt.path, tt.body)
	}

	w := do(r, http.MethodDelete, "/api/cart", "")
	assert.Equal(t, http.StatusOK, w.Code)
}
