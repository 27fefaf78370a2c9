package socket

import (
	"sync"

	"colorgame/domain/events"

	log "github.com/sirupsen/logrus"
)

// Hub tracks live connections and their room subscriptions. It implements
// interfaces.Broadcaster; every send is best effort.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[string]*Client

	roomsMu sync.RWMutex
	rooms   map[int]map[string]*Client
}

// NewHub creates an empty hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[int]map[string]*Client),
	}
}

// Register adds a connection, replacing any stale entry for the same session
func (h *Hub) Register(c *Client) {
	h.clientsMu.Lock()
	old := h.clients[c.sessionID]
	h.clients[c.sessionID] = c
	h.clientsMu.Unlock()

	if old != nil && old != c {
		old.Close()
	}
}

// Unregister removes a connection if it is still the registered one
func (h *Hub) Unregister(c *Client) {
	h.clientsMu.Lock()
	if h.clients[c.sessionID] == c {
		delete(h.clients, c.sessionID)
	}
	h.clientsMu.Unlock()

	h.roomsMu.Lock()
	for roomID, members := range h.rooms {
		if members[c.sessionID] == c {
			delete(members, c.sessionID)
			if len(members) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	h.roomsMu.Unlock()
}

// Kick closes a session's connection, used when another connection takes over
func (h *Hub) Kick(sessionID string) {
	h.clientsMu.RLock()
	c := h.clients[sessionID]
	h.clientsMu.RUnlock()

	if c != nil {
		log.WithField("session_id", sessionID).Info("Closing connection replaced by a newer session")
		c.Close()
	}
}

// Join subscribes a session to a room's broadcasts
func (h *Hub) Join(sessionID string, roomID int) {
	h.clientsMu.RLock()
	c := h.clients[sessionID]
	h.clientsMu.RUnlock()
	if c == nil {
		return
	}

	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	members := h.rooms[roomID]
	if members == nil {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[sessionID] = c
}

// Leave unsubscribes a session from a room
func (h *Hub) Leave(sessionID string, roomID int) {
	h.roomsMu.Lock()
	defer h.roomsMu.Unlock()
	if members := h.rooms[roomID]; members != nil {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Members returns how many connections follow a room
func (h *Hub) Members(roomID int) int {
	h.roomsMu.RLock()
	defer h.roomsMu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) BroadcastRoom(roomID int, event events.Event) {
	frame, ok := h.frame(event)
	if !ok {
		return
	}

	h.roomsMu.RLock()
	targets := make([]*Client, 0, len(h.rooms[roomID]))
	for _, c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.roomsMu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) BroadcastAll(event events.Event) {
	frame, ok := h.frame(event)
	if !ok {
		return
	}

	h.clientsMu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (h *Hub) EmitToSession(sessionID string, event events.Event) bool {
	h.clientsMu.RLock()
	c := h.clients[sessionID]
	h.clientsMu.RUnlock()
	if c == nil {
		return false
	}

	frame, ok := h.frame(event)
	if !ok {
		return false
	}
	return c.enqueue(frame)
}

func (h *Hub) frame(event events.Event) ([]byte, bool) {
	frame, err := encode(event)
	if err != nil {
		log.WithField("event", event.Type()).WithError(err).Error("Failed to encode event")
		return nil, false
	}
	return frame, true
}
