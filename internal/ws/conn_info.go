package ws

import "time"

// ConnInfo is the identity and request context a connection was opened with.
type ConnInfo struct {
	ConnID      string
	UserID      string
	Email       string
	Role        string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
