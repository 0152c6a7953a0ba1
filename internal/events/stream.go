package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stream records the events of one long-running operation and fans them out
// to any number of subscribers. Every subscriber sees the full history in
// emission order, ending with exactly one done event. Publishing never
// blocks on subscribers, so a slow or vanished client cannot stall the
// operation.
type Stream struct {
	ID        string
	CreatedAt time.Time

	mu      sync.Mutex
	history []Event
	changed chan struct{}
	done    chan struct{}
	closed  bool
}

func NewStream() *Stream {
	return &Stream{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
		changed:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

func (s *Stream) publish(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.history = append(s.history, ev)
	close(s.changed)
	s.changed = make(chan struct{})

	if ev.Type == TypeDone {
		s.closed = true
		close(s.done)
	}
	return true
}

func (s *Stream) Status(msg string) {
	s.publish(Status(msg))
}

func (s *Stream) Progress(percent float64, detail string) {
	s.publish(Progress(percent, detail))
}

// Done ends the stream. Only the first call has any effect; it reports
// whether this call was the one that finished the stream.
func (s *Stream) Done(ok bool, msg string) bool {
	return s.publish(Done(ok, msg))
}

// Emit forwards an arbitrary event, used when relaying another stream.
func (s *Stream) Emit(ev Event) bool {
	return s.publish(ev)
}

func (s *Stream) Finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Result returns the done event once the stream has finished.
func (s *Stream) Result() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed || len(s.history) == 0 {
		return Event{}, false
	}
	return s.history[len(s.history)-1], true
}

// Wait blocks until the stream is done or ctx ends.
func (s *Stream) Wait(ctx context.Context) (Event, error) {
	select {
	case <-s.done:
		ev, _ := s.Result()
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// History returns a copy of everything published so far.
func (s *Stream) History() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.history))
	copy(out, s.history)
	return out
}

// Subscribe replays the history and then follows new events. The channel is
// closed after the done event is delivered or when ctx ends. Cancelling ctx
// only detaches this subscriber.
func (s *Stream) Subscribe(ctx context.Context) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)
		next := 0
		for {
			s.mu.Lock()
			pending := s.history[next:]
			changed := s.changed
			s.mu.Unlock()

			for _, ev := range pending {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
				next++
				if ev.Type == TypeDone {
					return
				}
			}

			if len(pending) > 0 {
				continue
			}
			select {
			case <-changed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
