package controller

import (
	"context"
	"net/http"

	"github.com/bassista/labasica/internal/catalog"
	"github.com/gin-gonic/gin"
)

// catalogService adapts the repository to CrudService for one resource.
type catalogService struct {
	repo *catalog.Repository
	res  catalog.Resource
}

// NewCatalogService binds repo to res.
func NewCatalogService(repo *catalog.Repository, res catalog.Resource) CrudService[catalog.Record] {
	return &catalogService{repo: repo, res: res}
}

func (s *catalogService) All(ctx context.Context) ([]catalog.Record, error) {
	doc, err := s.repo.GetAll(ctx, s.res)
	if err != nil {
		return nil, err
	}
	return doc.Items, nil
}

func (s *catalogService) Get(ctx context.Context, id string) (catalog.Record, error) {
	return s.repo.GetByID(ctx, s.res, id)
}

func (s *catalogService) Filter(ctx context.Context, field, value string) ([]catalog.Record, error) {
	return s.repo.GetByForeignKey(ctx, s.res, field, value)
}

func (s *catalogService) Add(ctx context.Context, item catalog.Record) (catalog.Record, error) {
	return s.repo.Add(ctx, s.res, item)
}

func (s *catalogService) Update(ctx context.Context, id string, item catalog.Record) (catalog.Record, error) {
	return s.repo.Update(ctx, s.res, id, item)
}

func (s *catalogService) Remove(ctx context.Context, id string) (catalog.Record, error) {
	return s.repo.Delete(ctx, s.res, id)
}

// CatalogController serves the read endpoints that span both documents.
type CatalogController struct {
	repo *catalog.Repository
}

func NewCatalogController(repo *catalog.Repository) *CatalogController {
	return &CatalogController{repo: repo}
}

// CategoryProducts lists the products of one category.
func (cc *CatalogController) CategoryProducts(c *gin.Context) {
	id := c.Param("id")
	if _, err := cc.repo.GetByID(c.Request.Context(), catalog.Categories, id); err != nil {
		respondError(c, err)
		return
	}
	items, err := cc.repo.GetByForeignKey(c.Request.Context(), catalog.Products, "categoryId", id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (cc *CatalogController) Stats(c *gin.Context) {
	stats, err := cc.repo.GetStats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
