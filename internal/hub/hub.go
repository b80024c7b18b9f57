package hub

import (
	"fmt"
	"log"
	"sync"

	"reviwa-server/internal/domain"
)

// Room name helpers. Every connection sits in its own user room; admin
// connections additionally sit in the shared admins room; report rooms are
// joined and left explicitly by the client.
func RoomAdmins() string                { return "admins" }
func RoomUser(userID string) string     { return "user:" + userID }
func RoomReport(reportID string) string { return "report:" + reportID }

// Message is one outbound realtime frame: an event name plus its payload.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Conn is a single realtime client. Send must not block the hub; transports
// buffer internally and drop the connection when the buffer fills.
type Conn interface {
	UserID() string
	Role() string
	Send(msg *Message)
}

// Hub tracks live connections and their room memberships.
type Hub struct {
	mu    sync.RWMutex
	conns map[Conn]struct{}
	rooms map[string]map[Conn]struct{}
}

func New() *Hub {
	return &Hub{
		conns: make(map[Conn]struct{}),
		rooms: make(map[string]map[Conn]struct{}),
	}
}

// Register adds a connection and places it in its standing rooms.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.conns[c] = struct{}{}
	// Anonymous handshakes get a connection but no identity rooms.
	if c.UserID() != "" {
		h.join(c, RoomUser(c.UserID()))
	}
	if c.Role() == domain.RoleAdmin {
		h.join(c, RoomAdmins())
	}
	log.Printf("[HUB] Connected user=%s role=%s total=%d", c.UserID(), c.Role(), len(h.conns))
}

// Unregister removes a connection from the hub and every room it joined.
func (h *Hub) Unregister(c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return
	}
	delete(h.conns, c)
	for room, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	log.Printf("[HUB] Disconnected user=%s total=%d", c.UserID(), len(h.conns))
}

// JoinReport subscribes the connection to one report's room.
func (h *Hub) JoinReport(c Conn, reportID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c]; !ok {
		return
	}
	h.join(c, RoomReport(reportID))
}

// LeaveReport unsubscribes the connection from one report's room.
func (h *Hub) LeaveReport(c Conn, reportID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := RoomReport(reportID)
	if members, ok := h.rooms[room]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) join(c Conn, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[Conn]struct{})
		h.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Broadcast sends msg once to every connection in any of the given rooms.
// A connection in several target rooms still receives a single copy.
func (h *Hub) Broadcast(msg *Message, rooms ...string) {
	h.mu.RLock()
	targets := make(map[Conn]struct{})
	for _, room := range rooms {
		for c := range h.rooms[room] {
			targets[c] = struct{}{}
		}
	}
	h.mu.RUnlock()

	for c := range targets {
		c.Send(msg)
	}
}

// BroadcastAll sends msg once to every live connection.
func (h *Hub) BroadcastAll(msg *Message) {
	h.mu.RLock()
	targets := make([]Conn, 0, len(h.conns))
	for c := range h.conns {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.Send(msg)
	}
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// RoomSize returns how many connections sit in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// DebugState summarizes rooms for the health endpoint.
func (h *Hub) DebugState() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]int, len(h.rooms)+1)
	out["connections"] = len(h.conns)
	for room, members := range h.rooms {
		out[fmt.Sprintf("room:%s", room)] = len(members)
	}
	return out
}
