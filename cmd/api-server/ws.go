package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reviwa-server/internal/auth"
	"reviwa-server/internal/hub"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsSendBuffer = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The SPA origin is enforced by the CORS layer; the handshake itself
	// accepts any origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient adapts one websocket connection to the hub's Conn interface.
type wsClient struct {
	hub    *hub.Hub
	conn   *websocket.Conn
	userID string
	role   string

	send      chan *hub.Message
	done      chan struct{}
	closeOnce sync.Once
}

func (c *wsClient) UserID() string { return c.userID }
func (c *wsClient) Role() string   { return c.role }

// Send enqueues without blocking; a client that cannot keep up is dropped.
// The send channel is never closed because the hub may still hold a snapshot
// of this connection while it is being torn down.
func (c *wsClient) Send(msg *hub.Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("[WS] Dropping slow client user=%s", c.userID)
		c.close()
	}
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() {
		c.hub.Unregister(c)
		close(c.done)
	})
}

// clientFrame is one inbound message from the browser.
type clientFrame struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// wsHandler upgrades the connection and attaches it to the hub. An invalid
// or missing token still gets a connection, just without identity rooms.
func wsHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = auth.ExtractTokenFromHeader(r)
		}

		var userID, role string
		if token != "" {
			if claims, err := auth.ValidateToken(token); err == nil {
				userID = claims.Sub
				role = claims.Role
			} else {
				log.Printf("[WS] Handshake with invalid token: %v", err)
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Upgrade failed: %v", err)
			return
		}

		client := &wsClient{
			hub:    app.Hub,
			conn:   conn,
			userID: userID,
			role:   role,
			send:   make(chan *hub.Message, wsSendBuffer),
			done:   make(chan struct{}),
		}
		app.Hub.Register(client)

		go client.writePump()
		go client.readPump()
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Printf("[WS] Bad frame from user=%s: %v", c.userID, err)
			continue
		}

		switch frame.Event {
		case "joinReport":
			c.hub.JoinReport(c, frame.Data)
		case "leaveReport":
			c.hub.LeaveReport(c, frame.Data)
		default:
			log.Printf("[WS] Unknown client event: %s", frame.Event)
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				log.Printf("[WS] Write error: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
