package sdk

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

const (
	EventStatus   = "status"
	EventProgress = "progress"
	EventDone     = "done"
	EventOutput   = "output"
)

// Event is one server-sent event. Only the fields of its Type are set. A
// console done event carries Code instead of OK and Message.
type Event struct {
	Type    string  `json:"-"`
	Message string  `json:"message"`
	Percent float64 `json:"percent"`
	Detail  string  `json:"detail"`
	OK      bool    `json:"ok"`
	Line    string  `json:"line"`
	Code    *int    `json:"code"`
	Raw     []byte  `json:"-"`
}

// EventHandler receives every event of a stream in order.
type EventHandler func(Event)

// stream reads the SSE response of method path and hands each event to fn
// until a done event arrives. If the connection breaks first, fn gets a
// synthetic failed done event and the error wraps domain.ErrConnection.
func (c *Client) stream(ctx context.Context, method, path string, body interface{}, fn EventHandler) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		if errors.Is(err, domain.ErrConnection) {
			fn(connectionLost(err))
		}
		return err
	}
	defer resp.Body.Close()

	done, err := readEvents(resp.Body, fn)
	if done {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	err = fmt.Errorf("%w: stream ended before completion: %v", domain.ErrConnection, err)
	fn(connectionLost(err))
	return err
}

func connectionLost(err error) Event {
	return Event{Type: EventDone, OK: false, Message: "Connection lost: " + err.Error()}
}

// readEvents parses an event stream. Comment lines such as keep-alive pings
// are skipped. It reports whether a done event was seen.
func readEvents(r io.Reader, fn EventHandler) (bool, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var name string
	var data []string
	dispatch := func() bool {
		defer func() { name, data = "", nil }()
		if name == "" && len(data) == 0 {
			return false
		}
		ev := Event{Type: name}
		if ev.Type == "" {
			ev.Type = "message"
		}
		raw := strings.Join(data, "\n")
		ev.Raw = []byte(raw)
		if raw != "" {
			_ = json.Unmarshal(ev.Raw, &ev)
		}
		fn(ev)
		return ev.Type == EventDone
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if dispatch() {
				return true, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := scanner.Err(); err != nil {
		return false, err
	}
	return dispatch(), nil
}
