package route

import (
	"time"

	"github.com/bassista/labasica/internal/api/controller"
	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

// NewSyncRouter sets up sync status and the manual sync trigger, which gets
// its own, longer timeout.
func NewSyncRouter(timeout, syncTimeout time.Duration, group *gin.RouterGroup, docs controller.DocumentSync, cartSync controller.CartSync) {
	sc := controller.NewSyncController(docs, cartSync)

	group.GET("sync/status", middleware.RequestTimeout(timeout), sc.Status)
	group.POST("sync", middleware.RequestTimeout(syncTimeout), sc.Force)
}
