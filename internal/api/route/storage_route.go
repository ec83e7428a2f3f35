package route

import (
	"time"

	"github.com/bassista/labasica/internal/api/controller"
	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/store"
	"github.com/gin-gonic/gin"
)

func NewStorageRouter(timeout time.Duration, group *gin.RouterGroup, s *store.Store) {
	sc := controller.NewStorageController(s)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("storage/keys", timeoutMiddleware, sc.Keys)
	group.GET("storage/export", timeoutMiddleware, sc.Export)
	group.POST("storage/import", timeoutMiddleware, sc.Import)
	group.DELETE("storage", timeoutMiddleware, sc.Clear)
}
