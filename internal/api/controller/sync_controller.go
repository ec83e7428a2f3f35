package controller

import (
	"context"
	"net/http"

	"github.com/bassista/labasica/internal/broadcast"
	"github.com/bassista/labasica/internal/cart"
	"github.com/containerd/errdefs"
	"github.com/gin-gonic/gin"
)

// DocumentSync is the broadcaster surface used by the sync endpoints.
type DocumentSync interface {
	Status() broadcast.Status
	ForceSync(ctx context.Context) error
}

// CartSync is the cart sync surface used by the sync endpoints.
type CartSync interface {
	Status() cart.SyncStatus
	ForceSync(ctx context.Context) (bool, error)
}

type SyncStatusResponse struct {
	broadcast.Status
	Cart cart.SyncStatus `json:"cart"`
}

type SyncController struct {
	docs DocumentSync
	cart CartSync
}

func NewSyncController(docs DocumentSync, cartSync CartSync) *SyncController {
	return &SyncController{docs: docs, cart: cartSync}
}

func (sc *SyncController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, sc.status())
}

// Force reconciles with the canonical source now and re-reads the shared cart.
func (sc *SyncController) Force(c *gin.Context) {
	ctx := c.Request.Context()
	if sc.cart != nil {
		if _, err := sc.cart.ForceSync(ctx); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := sc.docs.ForceSync(ctx); err != nil {
		respondError(c, errdefs.ErrUnavailable.WithMessage("sync failed: "+err.Error()))
		return
	}
	c.JSON(http.StatusOK, sc.status())
}

func (sc *SyncController) status() SyncStatusResponse {
	resp := SyncStatusResponse{Status: sc.docs.Status()}
	if sc.cart != nil {
		resp.Cart = sc.cart.Status()
	}
	return resp
}
