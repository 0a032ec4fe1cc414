package ws

import (
	"sort"
	"sync"
)

// Presence tracks which users have at least one live connection.
type Presence struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{users: make(map[string]map[string]struct{})}
}

// Register records connID for userID. Registering the same pair twice is a no-op.
func (p *Presence) Register(userID, connID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		conns = make(map[string]struct{})
		p.users[userID] = conns
	}
	conns[connID] = struct{}{}
}

// Unregister forgets connID and reports whether the user went offline.
func (p *Presence) Unregister(userID, connID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	conns, ok := p.users[userID]
	if !ok {
		return false
	}
	delete(conns, connID)
	if len(conns) == 0 {
		delete(p.users, userID)
		return true
	}
	return false
}

func (p *Presence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID]) > 0
}

func (p *Presence) ConnectionCount(userID string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.users[userID])
}

// AllOnlineUsers returns a sorted snapshot of online user ids.
func (p *Presence) AllOnlineUsers() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	users := make([]string, 0, len(p.users))
	for id := range p.users {
		users = append(users, id)
	}
	sort.Strings(users)
	return users
}
