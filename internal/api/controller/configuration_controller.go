package controller

import (
	"context"
	"net/http"

	"github.com/bassista/labasica/internal/config"
	"github.com/bassista/labasica/internal/store"
	"github.com/gin-gonic/gin"
)

const siteConfigDocument = "config.json"

// ConfigurationResponse is the public configuration served to the storefront.
type ConfigurationResponse struct {
	Site                  store.Document `json:"site"`
	FreeShippingThreshold float64        `json:"freeShippingThreshold"`
	ShippingCost          float64        `json:"shippingCost"`
	PointsRate            float64        `json:"pointsRate"`
	SyncIntervalSec       int            `json:"syncIntervalSec"`
	CartSyncIntervalMs    int64          `json:"cartSyncIntervalMs"`
}

// DocumentLoader reads a named document, canonical first.
type DocumentLoader interface {
	Load(ctx context.Context, name string) store.Document
}

// ConfigurationController handles configuration-related API endpoints.
type ConfigurationController struct {
	config *config.Config
	docs   DocumentLoader
}

// NewConfigurationController creates a new ConfigurationController.
func NewConfigurationController(cfg *config.Config, docs DocumentLoader) *ConfigurationController {
	return &ConfigurationController{config: cfg, docs: docs}
}

// GetConfiguration forwards the site's config.json (when there is one) together
// with the cart and sync settings the storefront needs.
func (cc *ConfigurationController) GetConfiguration(c *gin.Context) {
	site := cc.docs.Load(c.Request.Context(), siteConfigDocument)
	if site == nil {
		site = store.Document{}
	}
	delete(site, store.LastUpdatedField)

	c.JSON(http.StatusOK, ConfigurationResponse{
		Site:                  site,
		FreeShippingThreshold: cc.config.Cart.FreeShippingThreshold,
		ShippingCost:          cc.config.Cart.ShippingCost,
		PointsRate:            cc.config.Cart.PointsRate,
		SyncIntervalSec:       int(cc.config.Sync.Interval.Seconds()),
		CartSyncIntervalMs:    cc.config.Cart.SyncInterval.Milliseconds(),
	})
}
