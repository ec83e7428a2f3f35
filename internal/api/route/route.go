package route

import (
	"net/http"

	"github.com/bassista/labasica/internal/app"
	"github.com/gin-gonic/gin"
)

// SetupRoutes registers every endpoint on r: the JSON API under /api, the
// WebSocket relay, the health check and the static canonical documents.
func SetupRoutes(r *gin.Engine, appCtx *app.App) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "UP",
			"online":  appCtx.Broadcaster.IsOnline(),
		})
	})

	api := r.Group("/api")
	timeout := appCtx.Config.Server.RequestTimeout
	// a forced sync fetches every document, one after the other
	syncTimeout := timeout + 2*appCtx.Config.Data.FetchTimeout

	NewCatalogRouter(timeout, api, appCtx.Catalog)
	NewSyncRouter(timeout, syncTimeout, api, appCtx.Broadcaster, appCtx.CartSync)
	NewStorageRouter(timeout, api, appCtx.Store)
	NewCartRouter(timeout, api, appCtx.Cart)
	NewConfigurationRouter(timeout, api, appCtx.Config, appCtx.Store)

	NewWSRouter(r, appCtx.Broadcaster, appCtx.Cart, appCtx.Config.Server.CORSAllowedOrigins)
	NewDataRouter(r, appCtx.Config.Server.StaticDataDir)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}
