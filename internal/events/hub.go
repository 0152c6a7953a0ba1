package events

import (
	"sync"
)

// Subscriber receives console events from a Hub. C is closed when the hub
// stops or when the subscriber falls too far behind.
type Subscriber struct {
	C    <-chan Event
	send chan Event
	hub  *Hub
}

// Close detaches the subscriber.
func (s *Subscriber) Close() {
	s.hub.unsubscribe(s)
}

// Hub broadcasts the output of one running server to its subscribers and
// keeps a bounded history that new subscribers receive first.
type Hub struct {
	clients    map[*Subscriber]bool
	broadcast  chan Event
	register   chan *Subscriber
	unregister chan *Subscriber
	stop       chan struct{}
	stopped    chan struct{}
	stopOnce   sync.Once

	history    []Event
	maxHistory int
	mu         sync.RWMutex
}

const subscriberBuffer = 256

func NewHub(maxHistory int) *Hub {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Hub{
		broadcast:  make(chan Event, 4096),
		register:   make(chan *Subscriber),
		unregister: make(chan *Subscriber),
		clients:    make(map[*Subscriber]bool),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
		maxHistory: maxHistory,
	}
}

func (h *Hub) HistorySnapshot() []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return nil
	}
	out := make([]Event, len(h.history))
	copy(out, h.history)
	return out
}

func (h *Hub) Run() {
	defer close(h.stopped)
	for {
		select {
		case client := <-h.register:
			for _, ev := range h.HistorySnapshot() {
				select {
				case client.send <- ev:
				default:
				}
			}
			h.clients[client] = true

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}

		case ev := <-h.broadcast:
			h.deliver(ev)

		case <-h.stop:
		drain:
			for {
				select {
				case ev := <-h.broadcast:
					h.deliver(ev)
				default:
					break drain
				}
			}
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			return
		}
	}
}

func (h *Hub) deliver(ev Event) {
	if h.maxHistory > 0 && ev.Type == TypeOutput {
		h.mu.Lock()
		h.history = append(h.history, ev)
		if len(h.history) > h.maxHistory {
			h.history = h.history[len(h.history)-h.maxHistory:]
		}
		h.mu.Unlock()
	}

	for client := range h.clients {
		select {
		case client.send <- ev:
		default:
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Subscribe attaches a new subscriber. Its buffer holds the whole history
// plus subscriberBuffer live events. It returns nil if the hub has already
// stopped.
func (h *Hub) Subscribe() *Subscriber {
	send := make(chan Event, h.maxHistory+subscriberBuffer)
	sub := &Subscriber{C: send, send: send, hub: h}
	select {
	case h.register <- sub:
		return sub
	case <-h.stopped:
		return nil
	}
}

func (h *Hub) unsubscribe(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.stopped:
	}
}

// Broadcast queues ev for every subscriber. Events sent after Stop are
// dropped.
func (h *Hub) Broadcast(ev Event) {
	select {
	case <-h.stop:
		return
	default:
	}
	select {
	case h.broadcast <- ev:
	case <-h.stop:
	}
}

// Stop delivers anything still queued and closes every subscriber.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.stopped
}
