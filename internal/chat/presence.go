package chat

import (
	"encoding/json"
	"sort"
	"sync"
)

// Presence holds the server-asserted set of online peer ids. It is fed by
// userOnline/userOffline events plus the onlineUsersList snapshot, and is
// emptied whenever the connection drops.
type Presence struct {
	mu     sync.Mutex
	online map[string]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[string]struct{})}
}

func (p *Presence) apply(ev Event) {
	switch ev.Name {
	case EventUserOnline:
		if id := ev.Str(); id != "" {
			p.add(id)
		}
	case EventUserOffline:
		if id := ev.Str(); id != "" {
			p.remove(id)
		}
	case EventOnlineUsers:
		var ids []string
		if err := json.Unmarshal(ev.Data, &ids); err != nil {
			return
		}
		p.replace(ids)
	}
}

func (p *Presence) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[id] = struct{}{}
}

func (p *Presence) remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, id)
}

func (p *Presence) replace(ids []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		p.online[id] = struct{}{}
	}
}

// Reset empties the set. Called on every disconnect.
func (p *Presence) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online = make(map[string]struct{})
}

func (p *Presence) IsOnline(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.online[id]
	return ok
}

func (p *Presence) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online)
}
