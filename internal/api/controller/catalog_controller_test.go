package controller

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bassista/labasica/internal/catalog"
	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	productsJSON   = `{"products":[{"id":1,"name":"Pan","price":500,"categoryId":1},{"id":2,"name":"Torta","price":1500,"categoryId":2}],"metadata":{"lastUpdated":"2024-01-01T00:00:00.000Z","totalProducts":2,"nextId":3}}`
	categoriesJSON = `{"categories":[{"id":1,"name":"Panes","slug":"panes","filterSlug":"panes"},{"id":2,"name":"Tortas","slug":"tortas","filterSlug":"tortas"}],"metadata":{"lastUpdated":"2024-01-01T00:00:00.000Z","totalCategories":2,"nextId":3}}`
)

func canonical(t *testing.T, docs map[string]string) *store.HTTPSource {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := docs[strings.TrimPrefix(r.URL.Path, "/data/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return store.NewHTTPSource(srv.URL+"/data", time.Second)
}

func newCatalogRouter(t *testing.T) (*gin.Engine, *catalog.Repository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	src := canonical(t, map[string]string{"products.json": productsJSON, "categories.json": categoriesJSON})
	repo := catalog.NewRepository(store.New(kv.NewMemory(), src, store.Options{}), nil)
	t.Cleanup(repo.Close)

	r := gin.New()
	api := r.Group("/api")
	products := &CrudController[catalog.Record]{Service: NewCatalogService(repo, catalog.Products), FilterFields: []string{"categoryId"}}
	products.RegisterCrudRoutes(api, "products")
	categories := &CrudController[catalog.Record]{Service: NewCatalogService(repo, catalog.Categories)}
	categories.RegisterCrudRoutes(api, "categories")
	cc := NewCatalogController(repo)
	api.GET("categories/:id/products", cc.CategoryProducts)
	api.GET("stats", cc.Stats)
	return r, repo
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCatalogAPI_ListAndGet(t *testing.T) {
	r, _ := newCatalogRouter(t)

	w := do(r, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	assert.Len(t, items, 2)

	w = do(r, http.MethodGet, "/api/products?categoryId=2", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Torta", items[0]["name"])

	w = do(r, http.MethodGet, "/api/products/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Pan"`)

	w = do(r, http.MethodGet, "/api/products/99", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/products/abc", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogAPI_CreateUpdateDelete(t *testing.T) {
	r, repo := newCatalogRouter(t)

	w := do(r, http.MethodPost, "/api/products", `{"name":"Medialuna","price":200,"categoryId":1}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.EqualValues(t, 3, created["id"])

	w = do(r, http.MethodPut, "/api/products/3", `{"price":250}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"price":250`)

	w = do(r, http.MethodPost, "/api/products", `{"price":100}`)
	assert.Equal(t, http.StatusBadRequest, w.Code, "name is required")

	w = do(r, http.MethodDelete, "/api/products/3", "")
	require.Equal(t, http.StatusOK, w.Code)

	doc, err := repo.GetAll(t.Context(), catalog.Products)
	require.NoError(t, err)
	assert.Len(t, doc.Items, 2)
	assert.Equal(t, 2, doc.Metadata.TotalCount)
}

func TestCatalogAPI_BlockedCategoryDelete(t *testing.T) {
	r, _ := newCatalogRouter(t)

	w := do(r, http.MethodDelete, "/api/categories/1", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "No se puede eliminar")
}

func TestCatalogAPI_DuplicateSlug(t *testing.T) {
	r, _ := newCatalogRouter(t)

	w := do(r, http.MethodPost, "/api/categories", `{"name":"Panes"}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCatalogAPI_CategoryProductsAndStats(t *testing.T) {
	r, _ := newCatalogRouter(t)

	w := do(r, http.MethodGet, "/api/categories/1/products", "")
	require.Equal(t, http.StatusOK, w.Code)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Pan", items[0]["name"])

	w = do(r, http.MethodGet, "/api/categories/9/products", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats catalog.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, 2, stats.TotalCategories)
}

func TestCatalogAPI_QuotaIsPayloadTooLarge(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := catalog.NewRepository(store.New(kv.NewMemory(), nil, store.Options{MaxValueBytes: 400}), nil)
	t.Cleanup(repo.Close)
	r := gin.New()
	products := &CrudController[catalog.Record]{Service: NewCatalogService(repo, catalog.Products)}
	products.RegisterCrudRoutes(r.Group("/api"), "products")

	w := do(r, http.MethodPost, "/api/products", `{"name":"Pan","price":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/products", `{"name":"`+strings.Repeat("x", 500)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Contains(t, w.Body.String(), "Error guardando producto")
}
