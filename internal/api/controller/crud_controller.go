package controller

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// CrudService defines the minimal interface required for CRUD operations.
// Ids arrive as raw path segments; the service decides how to parse them.
type CrudService[T any] interface {
	All(ctx context.Context) ([]T, error)
	Get(ctx context.Context, id string) (T, error)
	Filter(ctx context.Context, field, value string) ([]T, error)
	Add(ctx context.Context, item T) (T, error)
	Update(ctx context.Context, id string, item T) (T, error)
	Remove(ctx context.Context, id string) (T, error)
}

// CrudController provides generic CRUD handlers for resources.
type CrudController[T any] struct {
	Service CrudService[T]
	// FilterFields are query parameters GetAll turns into Filter calls.
	FilterFields []string
}

// RegisterCrudRoutes registers CRUD endpoints for a resource on the given router group.
func (cc *CrudController[T]) RegisterCrudRoutes(rg *gin.RouterGroup, resource string, handlers ...gin.HandlerFunc) {
	with := func(h gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, handlers...), h)
	}
	rg.GET("/"+resource, with(cc.GetAll)...)
	rg.GET("/"+resource+"/:id", with(cc.Get)...)
	rg.POST("/"+resource, with(cc.Create)...)
	rg.PUT("/"+resource+"/:id", with(cc.Update)...)
	rg.DELETE("/"+resource+"/:id", with(cc.Delete)...)
}

// GetAll handles GET requests to list all resources, optionally filtered.
func (cc *CrudController[T]) GetAll(c *gin.Context) {
	for _, field := range cc.FilterFields {
		if value, ok := c.GetQuery(field); ok {
			items, err := cc.Service.Filter(c.Request.Context(), field, value)
			if err != nil {
				respondError(c, err)
				return
			}
			c.JSON(http.StatusOK, items)
			return
		}
	}
	items, err := cc.Service.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (cc *CrudController[T]) Get(c *gin.Context) {
	item, err := cc.Service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// Create handles POST requests and answers 201 with the stored resource.
func (cc *CrudController[T]) Create(c *gin.Context) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	created, err := cc.Service.Add(c.Request.Context(), item)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// Update handles PUT requests; the payload is merged into the stored resource.
func (cc *CrudController[T]) Update(c *gin.Context) {
	var item T
	if err := c.ShouldBindJSON(&item); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	updated, err := cc.Service.Update(c.Request.Context(), c.Param("id"), item)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete handles DELETE requests and returns the removed resource.
func (cc *CrudController[T]) Delete(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing resource id"})
		return
	}
	removed, err := cc.Service.Remove(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, removed)
}
