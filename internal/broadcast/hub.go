// Package broadcast delivers state-change events to room-scoped
// subscriber groups. Delivery is fire-and-forget: a send failure to one
// subscriber never blocks or fails the others.
package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/callforge/switchboard/internal/logging"
)

// Subscriber receives events published to rooms it has joined. Gateway
// clients implement this over their WebSocket connection.
type Subscriber interface {
	ID() string
	SendEvent(event string, payload any, seq int64) error
}

// Hub maps room names to subscriber sets.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Subscriber // room → subID → Subscriber
	seq   atomic.Int64
	log   *logging.Logger
}

// NewHub creates an empty broadcast hub.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Subscriber),
		log:   log.Sub("broadcast"),
	}
}

// Join subscribes s to a room.
func (h *Hub) Join(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[string]Subscriber)
		h.rooms[room] = subs
	}
	subs[s.ID()] = s
	h.log.Debug().Str("room", room).Str("sub", s.ID()).Msg("joined room")
}

// Leave removes s from a room. Leaving a room it never joined is a no-op.
func (h *Hub) Leave(room string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, s.ID())
}

// LeaveAll removes s from every room, typically on disconnect.
func (h *Hub) LeaveAll(s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.rooms {
		h.leaveLocked(room, s.ID())
	}
}

func (h *Hub) leaveLocked(room, subID string) {
	subs, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := subs[subID]; !ok {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
	h.log.Debug().Str("room", room).Str("sub", subID).Msg("left room")
}

// Publish sends an event to every subscriber of the given rooms. A
// subscriber in more than one of the rooms receives the event once.
func (h *Hub) Publish(event string, payload any, rooms ...string) {
	seq := h.seq.Add(1)

	h.mu.RLock()
	targets := make(map[string]Subscriber)
	for _, room := range rooms {
		for id, s := range h.rooms[room] {
			targets[id] = s
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if err := s.SendEvent(event, payload, seq); err != nil {
			h.log.Debug().Err(err).Str("event", event).Str("sub", s.ID()).Msg("dropped event")
		}
	}
}

// RoomSize returns the number of subscribers in a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Rooms returns the names of all rooms with at least one subscriber.
func (h *Hub) Rooms() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.rooms))
	for room := range h.rooms {
		names = append(names, room)
	}
	return names
}
