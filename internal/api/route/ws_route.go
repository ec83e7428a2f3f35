package route

import (
	"github.com/bassista/labasica/internal/api/controller"
	"github.com/gin-gonic/gin"
)

// NewWSRouter exposes the change relay at /ws. It has no request timeout.
func NewWSRouter(r *gin.Engine, docs controller.ChangeFeed, cart controller.EventFeed, allowedOrigins string) {
	wc := controller.NewWSController(docs, cart, allowedOrigins)
	r.GET("/ws", wc.Handle)
}
