package events

import "sync"

type HubManager struct {
	hubs               map[string]*Hub
	mu                 sync.Mutex
	defaultHistorySize int
}

func NewHubManager(defaultHistorySize int) *HubManager {
	return &HubManager{
		hubs:               make(map[string]*Hub),
		defaultHistorySize: defaultHistorySize,
	}
}

// Open replaces any hub for name with a fresh one. It is called when a
// server process starts.
func (m *HubManager) Open(name string) *Hub {
	m.mu.Lock()
	old := m.hubs[name]
	hub := NewHub(m.defaultHistorySize)
	go hub.Run()
	m.hubs[name] = hub
	m.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return hub
}

func (m *HubManager) GetHub(name string) (*Hub, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hub, ok := m.hubs[name]
	return hub, ok
}

// RemoveHub stops the hub for name if it is still the given one.
func (m *HubManager) RemoveHub(name string, hub *Hub) {
	m.mu.Lock()
	if current, ok := m.hubs[name]; ok && current == hub {
		delete(m.hubs, name)
	}
	m.mu.Unlock()

	if hub != nil {
		hub.Stop()
	}
}
