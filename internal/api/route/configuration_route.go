package route

import (
	"time"

	"github.com/bassista/labasica/internal/api/controller"
	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/config"
	"github.com/gin-gonic/gin"
)

// NewConfigurationRouter sets up configuration-related routes.
func NewConfigurationRouter(timeout time.Duration, group *gin.RouterGroup, cfg *config.Config, docs controller.DocumentLoader) {
	cc := controller.NewConfigurationController(cfg, docs)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("config", timeoutMiddleware, cc.GetConfiguration)
}
