package route

import (
	"time"

	"github.com/bassista/labasica/internal/api/controller"
	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/cart"
	"github.com/gin-gonic/gin"
)

func NewCartRouter(timeout time.Duration, group *gin.RouterGroup, c *cart.Cart) {
	cc := controller.NewCartController(c)
	timeoutMiddleware := middleware.RequestTimeout(timeout)

	group.GET("cart", timeoutMiddleware, cc.Get)
	group.POST("cart/items", timeoutMiddleware, cc.AddItem)
	group.PATCH("cart/items/:id", timeoutMiddleware, cc.UpdateItem)
	group.DELETE("cart/items/:id", timeoutMiddleware, cc.RemoveItem)
	group.DELETE("cart", timeoutMiddleware, cc.Clear)
}
