package controller

import (
	"net/http"
	"strconv"

	"github.com/bassista/labasica/internal/cart"
	"github.com/gin-gonic/gin"
)

type CartController struct {
	cart *cart.Cart
}

func NewCartController(c *cart.Cart) *CartController {
	return &CartController{cart: c}
}

type quantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

func (cc *CartController) Get(c *gin.Context) {
	c.JSON(http.StatusOK, cc.cart.Snapshot())
}

func (cc *CartController) AddItem(c *gin.Context) {
	var p cart.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if _, err := cc.cart.Add(c.Request.Context(), p); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cc.cart.Snapshot())
}

// UpdateItem sets the quantity; zero or less removes the item.
func (cc *CartController) UpdateItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if !cc.cart.UpdateQuantity(c.Request.Context(), id, *req.Quantity) {
		respondError(c, cart.ErrItemNotFound)
		return
	}
	c.JSON(http.StatusOK, cc.cart.Snapshot())
}

func (cc *CartController) RemoveItem(c *gin.Context) {
	id, ok := itemID(c)
	if !ok {
		return
	}
	if !cc.cart.Remove(c.Request.Context(), id) {
		respondError(c, cart.ErrItemNotFound)
		return
	}
	c.JSON(http.StatusOK, cc.cart.Snapshot())
}

func (cc *CartController) Clear(c *gin.Context) {
	cc.cart.Clear(c.Request.Context())
	c.JSON(http.StatusOK, cc.cart.Snapshot())
}

func itemID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return 0, false
	}
	return id, true
}
