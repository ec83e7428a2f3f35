// Package cart keeps the shopper's cart in a shared key-value backend and
// keeps every process's in-memory copy aligned with it.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/kv"
	"github.com/bassista/labasica/internal/logger"
	"github.com/containerd/errdefs"
)

const (
	component = "cart"

	// StorageKey holds the raw item list.
	StorageKey = "labasica_shopping_cart"
)

var (
	ErrInvalidProduct = errdefs.ErrInvalidArgument.WithMessage("Producto inválido")
	ErrItemNotFound   = errdefs.ErrNotFound.WithMessage("Producto no encontrado en el carrito")
)

type Item struct {
	ID       int     `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Quantity int     `json:"quantity"`
	AddedAt  int64   `json:"addedAt"`
}

func (it Item) valid() bool {
	return it.ID != 0 && it.Name != "" && it.Price != 0 && it.Quantity > 0
}

// Product is what a caller puts in the cart. Quantity defaults to 1.
type Product struct {
	ID       int     `json:"id" binding:"required"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Image    string  `json:"image,omitempty"`
	Quantity int     `json:"quantity,omitempty"`
}

type Totals struct {
	ItemCount    int     `json:"itemCount"`
	Subtotal     float64 `json:"subtotal"`
	Shipping     float64 `json:"shipping"`
	Total        float64 `json:"total"`
	Points       int     `json:"points"`
	FreeShipping bool    `json:"freeShipping"`
}

type Pricing struct {
	FreeShippingThreshold float64
	ShippingCost          float64
	PointsRate            float64
}

var DefaultPricing = Pricing{FreeShippingThreshold: 2000, ShippingCost: 250, PointsRate: 0.01}

// Snapshot is the cart as returned to callers.
type Snapshot struct {
	Items  []Item `json:"items"`
	Totals Totals `json:"totals"`
}

type Cart struct {
	kv      kv.Store
	pricing Pricing
	now     func() time.Time
	emitter *events.Emitter

	mu    sync.Mutex
	items []Item
}

// New loads the stored cart, dropping invalid items. A zero Pricing uses DefaultPricing.
func New(ctx context.Context, store kv.Store, pricing Pricing, now func() time.Time) *Cart {
	if pricing == (Pricing{}) {
		pricing = DefaultPricing
	}
	if now == nil {
		now = time.Now
	}
	c := &Cart{
		kv:      store,
		pricing: pricing,
		now:     now,
		emitter: events.NewEmitter(component),
	}
	items, err := c.Stored(ctx)
	if err != nil {
		logger.WithComponent(component).Errorf("failed to load cart: %v", err)
	}
	c.items = items
	return c
}

// Subscribe registers l for cart events.
func (c *Cart) Subscribe(l events.Listener) func() {
	return c.emitter.Subscribe(l)
}

// Stored reads the persisted item list, keeping only valid items.
func (c *Cart) Stored(ctx context.Context) ([]Item, error) {
	raw, err := c.kv.Get(ctx, StorageKey)
	if errdefs.IsNotFound(err) {
		return []Item{}, nil
	}
	if err != nil {
		return []Item{}, err
	}
	var stored []Item
	if err := json.Unmarshal(raw, &stored); err != nil {
		return []Item{}, fmt.Errorf("decode stored cart: %w", err)
	}
	items := make([]Item, 0, len(stored))
	for _, it := range stored {
		if it.valid() {
			items = append(items, it)
		}
	}
	return items, nil
}

func (c *Cart) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item{}, c.items...)
}

func (c *Cart) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Items: append([]Item{}, c.items...), Totals: c.totalsLocked()}
}

func (c *Cart) Totals() Totals {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalsLocked()
}

func (c *Cart) totalsLocked() Totals {
	var t Totals
	for _, it := range c.items {
		t.Subtotal += it.Price * float64(it.Quantity)
		t.ItemCount += it.Quantity
	}
	t.FreeShipping = t.Subtotal >= c.pricing.FreeShippingThreshold
	if !t.FreeShipping {
		t.Shipping = c.pricing.ShippingCost
	}
	t.Total = t.Subtotal + t.Shipping
	t.Points = int(math.Floor(t.Total * c.pricing.PointsRate * 100))
	return t
}

// Add puts p in the cart, merging quantities when the product is already there.
func (c *Cart) Add(ctx context.Context, p Product) (Item, error) {
	if p.ID == 0 {
		return Item{}, ErrInvalidProduct
	}
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}

	c.mu.Lock()
	var added Item
	if i := c.indexLocked(p.ID); i >= 0 {
		c.items[i].Quantity += qty
		added = c.items[i]
	} else {
		added = Item{
			ID:       p.ID,
			Name:     p.Name,
			Price:    p.Price,
			Image:    p.Image,
			Quantity: qty,
			AddedAt:  c.now().UnixMilli(),
		}
		c.items = append(c.items, added)
	}
	c.persistLocked(ctx)
	count := len(c.items)
	c.mu.Unlock()

	c.emit(events.ItemAddedToCart, map[string]any{"product": p, "cartTotal": count})
	return added, nil
}

// Remove reports whether an item was removed.
func (c *Cart) Remove(ctx context.Context, id int) bool {
	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	c.persistLocked(ctx)
	count := len(c.items)
	c.mu.Unlock()

	c.emit(events.ItemRemovedFromCart, map[string]any{"productId": id, "cartTotal": count})
	return true
}

// UpdateQuantity sets the quantity of an item; zero or less removes it.
func (c *Cart) UpdateQuantity(ctx context.Context, id, quantity int) bool {
	if quantity <= 0 {
		return c.Remove(ctx, id)
	}

	c.mu.Lock()
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return false
	}
	c.items[i].Quantity = quantity
	c.persistLocked(ctx)
	count := len(c.items)
	c.mu.Unlock()

	c.emit(events.CartQuantityUpdated, map[string]any{"productId": id, "newQuantity": quantity, "cartTotal": count})
	return true
}

// Clear empties the cart. Clearing an empty cart does nothing.
func (c *Cart) Clear(ctx context.Context) {
	c.mu.Lock()
	if len(c.items) == 0 {
		c.mu.Unlock()
		return
	}
	c.items = []Item{}
	c.persistLocked(ctx)
	c.mu.Unlock()

	c.emit(events.CartCleared, nil)
}

// Import replaces the cart with items and persists it without emitting events.
func (c *Cart) Import(ctx context.Context, items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]Item{}, items...)
	c.persistLocked(ctx)
}

// replace swaps the in-memory items only; used when the stored cart moved ahead.
func (c *Cart) replace(items []Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]Item{}, items...)
}

func (c *Cart) indexLocked(id int) int {
	for i, it := range c.items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func (c *Cart) persistLocked(ctx context.Context) {
	raw, err := json.Marshal(c.items)
	if err != nil {
		logger.WithComponent(component).Errorf("failed to encode cart: %v", err)
		return
	}
	if err := c.kv.Set(ctx, StorageKey, raw); err != nil {
		logger.WithComponent(component).Errorf("failed to save cart: %v", err)
	}
}

// emit sends the specific event followed by cartUpdated with the new totals.
func (c *Cart) emit(name string, detail any) {
	c.emitter.Emit(events.Event{Name: name, Payload: detail})
	c.emitter.Emit(events.Event{Name: events.CartUpdated, Payload: c.Snapshot()})
}

// ItemsEqual compares id, quantity and price position by position.
func ItemsEqual(a, b []Item) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Quantity != b[i].Quantity || a[i].Price != b[i].Price {
			return false
		}
	}
	return true
}
