package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// controlMessage is sent by websocket clients to pick the domains they follow
type controlMessage struct {
	Action string `json:"action"` // subscribe | unsubscribe
	Domain string `json:"domain"`
}

// client is a single websocket connection
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// push queues data without blocking, a slow client loses messages
func (c *client) push(data []byte) {
	select {
	case c.send <- data:
	default:
		lgr.Printf("[DEBUG] ws client %s is slow, message dropped", c.id)
	}
}

func (c *client) pushJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		lgr.Printf("[WARN] can't marshal ws message: %v", err)
		return
	}
	c.push(data)
}

// readPump handles control messages until the connection fails
func (c *client) readPump() {
	defer func() {
		c.hub.request(request{kind: reqUnregister, client: c})
		_ = c.conn.Close()
	}()

	pongWait := c.hub.pingPeriod * 10 / 9
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				lgr.Printf("[DEBUG] ws client %s read error: %v", c.id, err)
			}
			return
		}

		var cm controlMessage
		if err := json.Unmarshal(msg, &cm); err != nil {
			lgr.Printf("[DEBUG] ws client %s sent invalid control message: %v", c.id, err)
			continue
		}
		req := request{client: c, domain: cm.Domain}
		switch cm.Action {
		case "subscribe":
			req.kind = reqSubscribe
		case "unsubscribe":
			req.kind = reqUnsubscribe
		default:
			lgr.Printf("[DEBUG] ws client %s unknown action %q", c.id, cm.Action)
			continue
		}
		if !c.hub.request(req) {
			return
		}
	}
}

// writePump sends queued messages and keepalive pings
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.hub.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// wsHandler upgrades GET /ws to a websocket pushing store changes
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // upgrader already wrote the error response
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan []byte, sendBuffer), hub: s.hub}
	if !s.hub.request(request{kind: reqRegister, client: c}) {
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}
