package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"hire-realtime/internal/models"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(NewPresence(), nil)
	if err := hub.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return hub
}

func attach(t *testing.T, hub *Hub, connID, userID string) *Client {
	t.Helper()
	c := newClient(hub, nil, ConnInfo{ConnID: connID, UserID: userID})
	if err := hub.Register(c); err != nil {
		t.Fatalf("register %s: %v", connID, err)
	}
	return c
}

func drain(c *Client) []models.Event {
	var events []models.Event
	for {
		select {
		case frame := <-c.send:
			var ev models.Event
			json.Unmarshal(frame, &ev)
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestHubRegisterRequiresInitialize(t *testing.T) {
	hub := NewHub(NewPresence(), nil)
	c := newClient(hub, nil, ConnInfo{ConnID: "c1", UserID: "u1"})
	if err := hub.Register(c); err != ErrHubNotRunning {
		t.Fatalf("expected ErrHubNotRunning, got %v", err)
	}
	if err := hub.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := hub.Initialize(); err != ErrAlreadyRunning {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
}

func TestHubAutoJoinsPersonalRoomAndTracksPresence(t *testing.T) {
	hub := newTestHub(t)
	phone := attach(t, hub, "c1", "u1")
	laptop := attach(t, hub, "c2", "u1")

	if got := hub.RoomSize(models.UserRoom("u1")); got != 2 {
		t.Fatalf("expected 2 connections in personal room, got %d", got)
	}
	if !hub.Presence().IsOnline("u1") || hub.Presence().ConnectionCount("u1") != 2 {
		t.Fatalf("expected u1 online with two connections")
	}

	hub.Unregister(phone)
	if !hub.Presence().IsOnline("u1") {
		t.Fatalf("u1 should stay online while a connection remains")
	}
	hub.Unregister(laptop)
	if hub.Presence().IsOnline("u1") {
		t.Fatalf("u1 should be offline")
	}
	if hub.RoomSize(models.UserRoom("u1")) != 0 {
		t.Fatalf("expected empty personal room to be removed")
	}
}

func TestHubBroadcastToUserReachesEveryDevice(t *testing.T) {
	hub := newTestHub(t)
	phone := attach(t, hub, "c1", "u1")
	laptop := attach(t, hub, "c2", "u1")
	other := attach(t, hub, "c3", "u2")

	hub.BroadcastToUser("u1", models.EventNewMessage, map[string]string{"id": "m1"})

	for _, c := range []*Client{phone, laptop} {
		events := drain(c)
		if len(events) != 1 || events[0].Event != models.EventNewMessage {
			t.Fatalf("conn %s: unexpected events %+v", c.ID(), events)
		}
	}
	if events := drain(other); len(events) != 0 {
		t.Fatalf("u2 should receive nothing, got %+v", events)
	}
}

func TestHubBroadcastToEmptyRoomIsNoop(t *testing.T) {
	hub := newTestHub(t)
	hub.Broadcast(models.ConversationRoom("nobody"), models.EventUserTyping, nil)
}

func TestHubBroadcastExceptUserSkipsAllSenderConnections(t *testing.T) {
	hub := newTestHub(t)
	a1 := attach(t, hub, "a1", "alice")
	a2 := attach(t, hub, "a2", "alice")
	b1 := attach(t, hub, "b1", "bob")

	room := models.ConversationRoom("conv-1")
	for _, id := range []string{"a1", "a2", "b1"} {
		if err := hub.Join(id, room); err != nil {
			t.Fatalf("join: %v", err)
		}
	}

	hub.BroadcastExceptUser(room, models.EventUserTyping, models.TypingEvent{ConversationID: "conv-1", UserID: "alice", IsTyping: true}, "alice")

	if len(drain(a1)) != 0 || len(drain(a2)) != 0 {
		t.Fatalf("sender connections must not receive their own typing event")
	}
	if events := drain(b1); len(events) != 1 {
		t.Fatalf("expected bob to receive typing event, got %d", len(events))
	}
}

func TestHubPreservesPerConnectionOrder(t *testing.T) {
	hub := newTestHub(t)
	c := attach(t, hub, "c1", "u1")

	for i := 0; i < 50; i++ {
		hub.BroadcastToUser("u1", models.EventNewMessage, map[string]int{"seq": i})
	}

	events := drain(c)
	if len(events) != 50 {
		t.Fatalf("expected 50 events, got %d", len(events))
	}
	for i, ev := range events {
		data := ev.Data.(map[string]any)
		if int(data["seq"].(float64)) != i {
			t.Fatalf("event %d arrived out of order: %v", i, data["seq"])
		}
	}
}

func TestHubDropsTypingButDisconnectsSlowClientOtherwise(t *testing.T) {
	hub := newTestHub(t)
	c := attach(t, hub, "c1", "u1")
	for i := 0; i < sendBufferSize; i++ {
		c.send <- []byte(`{}`)
	}

	hub.BroadcastToUser("u1", models.EventUserTyping, nil)
	if c.isClosed() {
		t.Fatalf("typing overflow must not disconnect the client")
	}

	hub.BroadcastToUser("u1", models.EventNewMessage, nil)
	if !c.isClosed() {
		t.Fatalf("expected slow client to be closed")
	}
	if hub.Presence().IsOnline("u1") {
		t.Fatalf("expected slow client to be unregistered")
	}
}

func TestHubLeaveAndShutdown(t *testing.T) {
	hub := newTestHub(t)
	room := models.ConversationRoom("conv-1")
	clients := make([]*Client, 0, 3)
	for i := 0; i < 3; i++ {
		c := attach(t, hub, fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i))
		hub.Join(c.ID(), room)
		clients = append(clients, c)
	}

	hub.Leave("c0", room)
	if hub.InRoom("c0", room) || hub.RoomSize(room) != 2 {
		t.Fatalf("expected c0 to leave the room")
	}

	if err := hub.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	for _, c := range clients {
		if !c.isClosed() {
			t.Fatalf("expected %s closed", c.ID())
		}
	}
	if len(hub.Presence().AllOnlineUsers()) != 0 {
		t.Fatalf("expected no online users after shutdown")
	}
	if err := hub.Join("c1", room); err != ErrUnknownConn {
		t.Fatalf("expected ErrUnknownConn, got %v", err)
	}
}
