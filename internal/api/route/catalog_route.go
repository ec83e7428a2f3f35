package route

import (
	"time"

	"github.com/bassista/labasica/internal/api/controller"
	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/catalog"
	"github.com/gin-gonic/gin"
)

// NewCatalogRouter sets up product and category CRUD plus the cross-document reads.
func NewCatalogRouter(timeout time.Duration, group *gin.RouterGroup, repo *catalog.Repository) {
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	products := &controller.CrudController[catalog.Record]{
		Service:      controller.NewCatalogService(repo, catalog.Products),
		FilterFields: []string{"categoryId"},
	}
	products.RegisterCrudRoutes(group, "products", timeoutMiddleware)

	categories := &controller.CrudController[catalog.Record]{
		Service: controller.NewCatalogService(repo, catalog.Categories),
	}
	categories.RegisterCrudRoutes(group, "categories", timeoutMiddleware)

	cc := controller.NewCatalogController(repo)
	group.GET("categories/:id/products", timeoutMiddleware, cc.CategoryProducts)
	group.GET("stats", timeoutMiddleware, cc.Stats)
}
