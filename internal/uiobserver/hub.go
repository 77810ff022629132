// Package uiobserver is the concrete realization of spec §9's "the core
// publishes a change-notification which the UI layer subscribes to": a
// gorilla/websocket hub broadcasting store-mutation events, fronted by a
// gorilla/mux HTTP server exposing a point-in-time JSON snapshot. Domain
// code (the seller/buyer process objects) only holds a *Server and calls
// its Notify, keeping the "UI never touches domain data structures
// directly" contract from spec §9. Grounded in
// _examples/uhyunpark-hyperlicked/pkg/api/websocket.go's Hub/Client pair.
package uiobserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ChangeNotification is the frame broadcast whenever the local auction
// mirror mutates.
type ChangeNotification struct {
	AuctionID int    `json:"auction_id"`
	Reason    string `json:"reason"`
}

// Hub maintains every connected websocket client and fans out broadcast
// frames to each of them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub builds an idle hub; call Run to start its dispatch loop.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run services register/unregister/broadcast until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Debug("ui client connected", zap.String("client_id", c.id.String()))
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("ui client disconnected", zap.String("client_id", c.id.String()))
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Notify broadcasts a change-notification frame for auctionID to every
// connected websocket client. Never blocks: a client with a full send
// buffer is dropped rather than stalling the caller (the seller/buyer
// store's own mutex owner).
func (h *Hub) Notify(auctionID int, reason string) {
	data, err := json.Marshal(ChangeNotification{AuctionID: auctionID, Reason: reason})
	if err != nil {
		h.logger.Warn("marshal notification", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// Client is one websocket connection registered with a Hub, tagged with a
// random id purely for log correlation across its connect/disconnect pair.
type Client struct {
	id   uuid.UUID
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
