// Package events is the in-process notification bus shared by the store,
// the catalog repository, the broadcaster and the cart.
package events

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bassista/labasica/internal/logger"
)

// Event names produced and consumed inside the process.
const (
	DataUpdated  = "dataUpdated"
	DataCleared  = "dataCleared"
	DataImported = "dataImported"
	DataChanged  = "dataChanged"

	ProductAdded    = "productAdded"
	ProductUpdated  = "productUpdated"
	ProductDeleted  = "productDeleted"
	CategoryAdded   = "categoryAdded"
	CategoryUpdated = "categoryUpdated"
	CategoryDeleted = "categoryDeleted"

	CartUpdated         = "cartUpdated"
	ItemAddedToCart     = "itemAddedToCart"
	ItemRemovedFromCart = "itemRemovedFromCart"
	CartQuantityUpdated = "cartQuantityUpdated"
	CartCleared         = "cartCleared"
)

// Event is a single notification. Resource is the document name
// (e.g. "products.json") when the event concerns one.
type Event struct {
	Name     string
	Resource string
	Payload  any
}

// Listener receives events. A returned error is logged and otherwise ignored.
type Listener func(Event) error

// Emitter dispatches events synchronously, in registration order.
// A failing or panicking listener never prevents the remaining ones from running.
type Emitter struct {
	component string

	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]Listener
}

// NewEmitter creates an emitter whose dispatch failures are logged under component.
func NewEmitter(component string) *Emitter {
	return &Emitter{component: component, listeners: map[uint64]Listener{}}
}

// Subscribe registers l and returns the function that removes it.
// Calling the returned function more than once is harmless.
func (e *Emitter) Subscribe(l Listener) func() {
	if l == nil {
		return func() {}
	}
	e.mu.Lock()
	e.nextID++
	id := e.nextID
	e.listeners[id] = l
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		delete(e.listeners, id)
		e.mu.Unlock()
	}
}

// Len returns the number of registered listeners.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Emit delivers ev to every listener registered at call time.
// Listeners may subscribe or unsubscribe from inside a callback.
func (e *Emitter) Emit(ev Event) {
	for _, l := range e.snapshot() {
		e.dispatch(l, ev)
	}
}

func (e *Emitter) snapshot() []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ids := make([]uint64, 0, len(e.listeners))
	for id := range e.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, e.listeners[id])
	}
	return out
}

func (e *Emitter) dispatch(l Listener, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.WithComponent(e.component).Errorf("listener panic on %s: %v", ev.Name, rec)
		}
	}()
	if err := l(ev); err != nil {
		logger.WithComponent(e.component).Errorf("listener error on %s: %v", ev.Name, err)
	}
}

// String is used in log lines.
func (ev Event) String() string {
	if ev.Resource == "" {
		return ev.Name
	}
	return fmt.Sprintf("%s(%s)", ev.Name, ev.Resource)
}
