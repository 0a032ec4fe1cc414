package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"hire-realtime/internal/models"
	"hire-realtime/internal/observability"
)

var (
	ErrHubNotRunning  = errors.New("hub is not running")
	ErrUnknownConn    = errors.New("unknown connection")
	ErrSlowClient     = errors.New("client outbound queue is full")
	ErrAlreadyRunning = errors.New("hub already initialized")
)

// Hub owns connection membership in rooms and fans events out to them.
type Hub struct {
	presence *Presence
	logger   *zap.Logger

	mu        sync.RWMutex
	running   bool
	clients   map[string]*Client
	rooms     map[string]map[string]*Client
	connRooms map[string]map[string]struct{}
}

// NewHub creates a stopped hub; call Initialize before registering clients.
func NewHub(presence *Presence, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		presence:  presence,
		logger:    logger,
		clients:   make(map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		connRooms: make(map[string]map[string]struct{}),
	}
}

func (h *Hub) Initialize() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return ErrAlreadyRunning
	}
	h.running = true
	h.logger.Info("socket hub initialized")
	return nil
}

// Shutdown closes every connection and empties all rooms.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.running = false
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.Close()
		h.Unregister(c)
	}
	h.logger.Info("socket hub stopped", zap.Int("closed_connections", len(clients)))
	return nil
}

func (h *Hub) Presence() *Presence { return h.presence }

// Register adds a connection, records presence and joins its personal room.
func (h *Hub) Register(c *Client) error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.clients[c.ID()] = c
	h.joinLocked(c, models.UserRoom(c.UserID()))
	h.mu.Unlock()

	h.presence.Register(c.UserID(), c.ID())
	observability.SetOnlineUsers(len(h.presence.AllOnlineUsers()))
	return nil
}

// Unregister removes a connection from every room it joined.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.ID()]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID())
	for room := range h.connRooms[c.ID()] {
		h.removeFromRoomLocked(room, c.ID())
	}
	delete(h.connRooms, c.ID())
	h.mu.Unlock()

	if h.presence.Unregister(c.UserID(), c.ID()) {
		h.logger.Debug("user offline", zap.String("user_id", c.UserID()))
	}
	observability.SetOnlineUsers(len(h.presence.AllOnlineUsers()))
}

// Join adds a registered connection to room.
func (h *Hub) Join(connID, room string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.clients[connID]
	if !ok {
		return ErrUnknownConn
	}
	h.joinLocked(c, room)
	return nil
}

// Leave removes a connection from room; unknown pairs are ignored.
func (h *Hub) Leave(connID, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomLocked(room, connID)
	if rooms, ok := h.connRooms[connID]; ok {
		delete(rooms, room)
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.ID()] = c

	rooms, ok := h.connRooms[c.ID()]
	if !ok {
		rooms = make(map[string]struct{})
		h.connRooms[c.ID()] = rooms
	}
	rooms[room] = struct{}{}
}

func (h *Hub) removeFromRoomLocked(room, connID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// RoomSize reports the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// InRoom reports whether connID has joined room.
func (h *Hub) InRoom(connID, room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// Broadcast sends event to every connection in room. An empty room is a no-op.
func (h *Hub) Broadcast(room, event string, payload any) {
	h.broadcast(room, event, payload, "")
}

// BroadcastToUser sends event to every connection of userID.
func (h *Hub) BroadcastToUser(userID, event string, payload any) {
	h.broadcast(models.UserRoom(userID), event, payload, "")
}

// BroadcastExceptUser sends event to room, skipping all connections of exceptUserID.
func (h *Hub) BroadcastExceptUser(room, event string, payload any, exceptUserID string) {
	h.broadcast(room, event, payload, exceptUserID)
}

func (h *Hub) broadcast(room, event string, payload any, exceptUserID string) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		if exceptUserID != "" && c.UserID() == exceptUserID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	frame, err := json.Marshal(models.Event{Event: event, Data: payload})
	if err != nil {
		h.logger.Error("marshal socket event", zap.String("event", event), zap.Error(err))
		return
	}

	for _, c := range targets {
		if c.enqueue(frame) || c.isClosed() {
			continue
		}
		observability.IncDroppedEvent(event)
		if bestEffort(event) {
			continue
		}
		h.logger.Warn("disconnecting slow client",
			zap.String("conn_id", c.ID()),
			zap.String("user_id", c.UserID()),
			zap.String("event", event))
		publishWSEvent(context.Background(), c.Info(), "ws_error", ErrSlowClient.Error())
		c.Close()
		h.Unregister(c)
	}
	observability.ObserveBroadcast(event, len(targets))
}

// bestEffort events may be dropped for a slow client without disconnecting it.
func bestEffort(event string) bool {
	return event == models.EventUserTyping
}
