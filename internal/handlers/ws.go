package handlers

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tendant/simple-commerce-assembly/internal/notify"
	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second

	// Outbound frame buffer per connection; overflow drops the frame
	// and the client resyncs via the query interface
	wsSendBuffer = 32
)

// commandFrame is a client→server control message
type commandFrame struct {
	Action  string `json:"action"` // subscribe | unsubscribe
	OwnerID string `json:"owner_id"`
}

// serverFrame is a server→client message
type serverFrame struct {
	Type    string                     `json:"type"` // subscribed | unsubscribed | new_product | error
	OwnerID string                     `json:"owner_id,omitempty"`
	Product *assembly.AssembledProduct `json:"product,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// WSHandler serves the realtime notification interface over websockets
type WSHandler struct {
	registry *notify.Registry
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new websocket handler over the registry
func NewWSHandler(registry *notify.Registry) *WSHandler {
	return &WSHandler{
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// HandleWS handles GET /v1/ws. The client sends subscribe/unsubscribe
// commands; the server pushes new_product frames for subscribed owners
// until the connection closes.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Websocket upgrade failed: %v", err)
		return
	}

	client := &wsClient{
		id:       uuid.New().String(),
		conn:     conn,
		registry: h.registry,
		subs:     make(map[string]*notify.Subscriber),
		out:      make(chan serverFrame, wsSendBuffer),
	}

	log.Printf("[%s] Websocket client connected", client.id)
	go client.writeLoop()
	client.readLoop()
}

// wsClient is one live websocket connection. The read loop owns the
// subs map; pump goroutines forward subscriber channels into out; a
// single write loop owns the connection's write side.
type wsClient struct {
	id       string
	conn     *websocket.Conn
	registry *notify.Registry
	subs     map[string]*notify.Subscriber
	out      chan serverFrame
	pumps    sync.WaitGroup
}

func (c *wsClient) readLoop() {
	defer c.teardown()

	c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		var cmd commandFrame
		if err := c.conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[%s] Websocket read failed: %v", c.id, err)
			}
			return
		}

		switch cmd.Action {
		case "subscribe":
			c.subscribe(cmd.OwnerID)
		case "unsubscribe":
			c.unsubscribe(cmd.OwnerID)
		default:
			c.send(serverFrame{Type: "error", Error: "unknown action: " + cmd.Action})
		}
	}
}

func (c *wsClient) subscribe(ownerID string) {
	if ownerID == "" {
		c.send(serverFrame{Type: "error", Error: "owner_id is required"})
		return
	}
	if _, ok := c.subs[ownerID]; ok {
		c.send(serverFrame{Type: "subscribed", OwnerID: ownerID})
		return
	}

	sub := c.registry.Subscribe(ownerID)
	c.subs[ownerID] = sub

	c.pumps.Add(1)
	go func() {
		defer c.pumps.Done()
		for product := range sub.Products() {
			c.send(serverFrame{Type: "new_product", OwnerID: ownerID, Product: product})
		}
	}()

	log.Printf("[%s] Subscribed to owner %s", c.id, ownerID)
	c.send(serverFrame{Type: "subscribed", OwnerID: ownerID})
}

func (c *wsClient) unsubscribe(ownerID string) {
	sub, ok := c.subs[ownerID]
	if !ok {
		c.send(serverFrame{Type: "unsubscribed", OwnerID: ownerID})
		return
	}
	delete(c.subs, ownerID)
	c.registry.Unsubscribe(sub)
	log.Printf("[%s] Unsubscribed from owner %s", c.id, ownerID)
	c.send(serverFrame{Type: "unsubscribed", OwnerID: ownerID})
}

// send queues a frame for the write loop, dropping it if the client is
// too far behind
func (c *wsClient) send(frame serverFrame) {
	select {
	case c.out <- frame:
	default:
		log.Printf("[%s] Outbound buffer full, dropping %s frame", c.id, frame.Type)
	}
}

func (c *wsClient) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case frame, ok := <-c.out:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteJSON(frame); err != nil {
				log.Printf("[%s] Websocket write failed: %v", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// teardown releases all subscriptions and shuts down the write loop
func (c *wsClient) teardown() {
	for ownerID, sub := range c.subs {
		delete(c.subs, ownerID)
		c.registry.Unsubscribe(sub)
	}
	// Pumps exit once their subscriber channels close; only then is it
	// safe to close the outbound channel they write to
	c.pumps.Wait()
	close(c.out)
	log.Printf("[%s] Websocket client disconnected", c.id)
}
