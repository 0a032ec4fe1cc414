package ws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// Client is one live socket connection. All outbound frames go through send
// and are written by a single goroutine, so frames reach the peer in the
// order they were enqueued.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	info ConnInfo

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, info ConnInfo) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		info: info,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.info.ConnID }
func (c *Client) UserID() string { return c.info.UserID }
func (c *Client) Info() ConnInfo { return c.info }
func (c *Client) Done() <-chan struct{} { return c.done }

// enqueue hands a frame to the writer without blocking.
func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Reply sends a frame to this connection only.
func (c *Client) Reply(v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.enqueue(frame) {
		c.Close()
		return ErrSlowClient
	}
	return nil
}

// Close stops the pumps. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Debug("socket write failed", zap.String("conn_id", c.info.ConnID), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// readPump dispatches inbound frames until the peer goes away and returns
// the close reason.
func (c *Client) readPump(ctx context.Context, router *Router) error {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		router.Dispatch(ctx, c, data)
	}
}
