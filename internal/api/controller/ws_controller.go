package controller

import (
	"net/http"
	"time"

	"github.com/bassista/labasica/internal/api/middleware"
	"github.com/bassista/labasica/internal/events"
	"github.com/bassista/labasica/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsQueue      = 32
	wsWriteWait  = 5 * time.Second
	wsPingPeriod = 30 * time.Second
)

// Notification is pushed to WebSocket clients when something they display changed.
type Notification struct {
	Type      string `json:"type"`
	FileName  string `json:"fileName,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// ChangeFeed delivers dataChanged for every document.
type ChangeFeed interface {
	AddGlobalListener(fn events.Listener) func()
}

// EventFeed delivers cart events.
type EventFeed interface {
	Subscribe(l events.Listener) func()
}

// WSController relays change notifications to connected admin UIs.
type WSController struct {
	docs     ChangeFeed
	cart     EventFeed
	upgrader websocket.Upgrader
}

func NewWSController(docs ChangeFeed, cart EventFeed, allowedOrigins string) *WSController {
	return &WSController{
		docs: docs,
		cart: cart,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
	}
}

// Handle upgrades the connection and streams notifications until the client goes away.
// Messages from the client are read and discarded.
func (wc *WSController) Handle(c *gin.Context) {
	log := logger.WithComponent("ws")
	conn, err := wc.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Debugf("upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	out := make(chan Notification, wsQueue)
	push := func(n Notification) {
		select {
		case out <- n:
		default:
			log.Warnf("client too slow, dropping %s notification", n.Type)
		}
	}

	unsubDocs := wc.docs.AddGlobalListener(func(ev events.Event) error {
		if ev.Name == events.DataChanged {
			push(Notification{Type: events.DataChanged, FileName: ev.Resource, Timestamp: time.Now().UnixMilli()})
		}
		return nil
	})
	defer unsubDocs()

	if wc.cart != nil {
		unsubCart := wc.cart.Subscribe(func(ev events.Event) error {
			if ev.Name == events.CartUpdated {
				push(Notification{Type: events.CartUpdated, Timestamp: time.Now().UnixMilli()})
			}
			return nil
		})
		defer unsubCart()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				log.Debugf("client disconnected: %v", err)
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-done:
			return
		case n := <-out:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(n); err != nil {
				log.Debugf("write failed: %v", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}
