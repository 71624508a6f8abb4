package aggregator

import (
	"time"
)

type EventType string

const (
	FeedsChanged  EventType = "feeds_changed"
	PostsChanged  EventType = "posts_changed"
	ErrorsChanged EventType = "errors_changed"
)

// Event describes one mutation of the store.
//
// FeedsChanged carries the feeds that were added or whose watermark moved.
// PostsChanged carries the newly ingested block in collection order.
// ErrorsChanged carries the whole errors collection after the change.
type Event struct {
	Type   EventType
	Feeds  []Feed
	Posts  []Post
	Errors []ErrorEntry
	At     time.Time
}

// Handler receives store events. Handlers run synchronously in mutation
// order; they may read the store but must not call Register or Refresh.
type Handler func(Event)

type subscriber struct {
	id      int
	handler Handler
}

// Subscribe registers h for all future events and returns a function that
// removes it.
func (s *Store) Subscribe(h Handler) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, handler: h})

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

// commit takes a delivery ticket while mu is held, releases mu, then waits
// for earlier tickets to be delivered. Handlers never run with mu held and a
// mutator never waits for delivery while holding mu.
func (s *Store) commit(events []Event) {
	if len(events) == 0 {
		s.mu.Unlock()
		return
	}

	s.issued++
	ticket := s.issued
	s.mu.Unlock()

	s.emitMu.Lock()
	for s.delivered+1 != ticket {
		s.emitCond.Wait()
	}
	s.emitMu.Unlock()

	defer func() {
		s.emitMu.Lock()
		s.delivered = ticket
		s.emitCond.Broadcast()
		s.emitMu.Unlock()
	}()

	s.subMu.Lock()
	subs := make([]subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	s.subMu.Unlock()

	for _, ev := range events {
		for _, sub := range subs {
			sub.handler(ev)
		}
	}
}
