package ws

import (
	"net/http"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Console is what a websocket console needs from the process supervisor.
type Console interface {
	Subscribe(name string) (<-chan events.Event, func(), error)
	SendCommand(name, command string) error
}

// Frame is one message sent to a websocket console client.
type Frame struct {
	Type events.Type `json:"type"`
	Line string      `json:"line,omitempty"`
	Code *int        `json:"code,omitempty"`
}

type client struct {
	name    string
	conn    *websocket.Conn
	console Console
	events  <-chan events.Event
	cancel  func()
}

// ServeConsole upgrades the request and attaches it to the console of a
// running server. Text messages from the client are sent as commands.
func ServeConsole(console Console, name string, w http.ResponseWriter, r *http.Request) {
	ch, cancel, err := console.Subscribe(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		cancel()
		log.Debug().Err(err).Str("instance", name).Msg("websocket upgrade failed")
		return
	}

	c := &client{name: name, conn: conn, console: console, events: ch, cancel: cancel}
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.cancel()
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Str("instance", c.name).Msg("console client closed")
			}
			return
		}
		command := strings.TrimSpace(string(message))
		if command == "" {
			continue
		}
		if err := c.console.SendCommand(c.name, command); err != nil {
			log.Debug().Err(err).Str("instance", c.name).Msg("console command rejected")
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.events:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server stopped"))
				return
			}
			frame := Frame{Type: ev.Type, Line: ev.Line, Code: ev.Code}
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
