package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	grpcclient "hire-realtime/internal/grpc"
	"hire-realtime/internal/models"
)

type staticValidator map[string]string

func (v staticValidator) ValidateToken(_ context.Context, token string) (grpcclient.Identity, error) {
	if userID, ok := v[token]; ok {
		return grpcclient.Identity{UserID: userID}, nil
	}
	return grpcclient.Identity{}, errors.New("invalid token")
}

func startSocketServer(t *testing.T, register func(*Router)) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub := newTestHub(t)
	router := NewRouter(time.Second, nil)
	if register != nil {
		register(router)
	}
	handler := NewSocketHandler(hub, router, staticValidator{"tok-alice": "alice"}, nil)

	engine := gin.New()
	engine.GET("/ws", handler.Handle)
	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame map[string]any
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func TestSocketRejectsInvalidToken(t *testing.T) {
	_, url := startSocketServer(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?token=nope", nil)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %+v", resp)
	}
}

func TestSocketRoundTrip(t *testing.T) {
	hub, url := startSocketServer(t, func(r *Router) {
		r.Handle("echo", func(_ context.Context, c *Client, data json.RawMessage) (any, error) {
			return map[string]string{"user": c.UserID(), "raw": string(data)}, nil
		})
		r.Handle("boom", func(context.Context, *Client, json.RawMessage) (any, error) {
			panic("kaboom")
		})
	})

	header := http.Header{"Authorization": []string{"Bearer tok-alice"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	connected := readFrame(t, conn)
	if connected["event"] != models.EventConnected {
		t.Fatalf("expected connected frame, got %v", connected)
	}
	if !hub.Presence().IsOnline("alice") {
		t.Fatalf("expected alice online")
	}

	conn.WriteJSON(map[string]any{"id": "1", "event": "echo", "data": map[string]int{"n": 1}})
	ack := readFrame(t, conn)
	if ack["event"] != models.EventAck || ack["id"] != "1" || ack["success"] != true {
		t.Fatalf("unexpected ack %v", ack)
	}

	conn.WriteJSON(map[string]any{"id": "2", "event": "boom"})
	ack = readFrame(t, conn)
	if ack["success"] != false {
		t.Fatalf("expected failure ack, got %v", ack)
	}
	if code := ack["error"].(map[string]any)["code"]; code != "internal_error" {
		t.Fatalf("expected internal_error, got %v", code)
	}

	conn.WriteJSON(map[string]any{"id": "3", "event": "nope"})
	ack = readFrame(t, conn)
	if code := ack["error"].(map[string]any)["code"]; code != "unknown_event" {
		t.Fatalf("expected unknown_event, got %v", code)
	}

	hub.BroadcastToUser("alice", models.EventNewMessage, map[string]string{"id": "m1"})
	pushed := readFrame(t, conn)
	if pushed["event"] != models.EventNewMessage {
		t.Fatalf("expected pushed message, got %v", pushed)
	}

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	deadline := time.Now().Add(2 * time.Second)
	for hub.Presence().IsOnline("alice") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Presence().IsOnline("alice") {
		t.Fatalf("expected alice offline after close")
	}
}
