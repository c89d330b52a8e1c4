package locker

import (
	"sync"

	"github.com/creachadair/mds/queue"
)

// A Stream is the merged, ordered event stream consumed by the lock
// state machine.
//
// Any number of producers may call Send concurrently; Send queues
// the event and returns immediately, so a producer is never blocked
// by a slow consumer. The queue is unbounded: the machine may stall
// in a blocking operation (such as spawning the locker), and an
// unlock request arriving meanwhile must still be delivered once it
// resumes.
type Stream struct {
	events   chan Event
	wakePump chan struct{}

	stopPump    chan struct{}
	pumpStopped chan struct{}

	mu    sync.Mutex
	queue queue.Queue[Event]
}

// NewStream returns an empty event stream, ready for producers.
func NewStream() *Stream {
	s := &Stream{
		events:      make(chan Event),
		wakePump:    make(chan struct{}, 1),
		stopPump:    make(chan struct{}),
		pumpStopped: make(chan struct{}),
	}
	go s.pump()
	return s
}

// Send queues ev for delivery. Send never blocks. Events sent after
// Close are discarded.
func (s *Stream) Send(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.stopPump:
		return
	default:
	}

	s.queue.Add(ev)
	if s.queue.Len() == 1 {
		select {
		case s.wakePump <- struct{}{}:
		default:
		}
	}
}

// Chan returns the channel on which events are delivered, in the
// order they were sent. The channel is closed by Close.
func (s *Stream) Chan() <-chan Event {
	return s.events
}

// Close shuts down the stream and discards undelivered events.
func (s *Stream) Close() {
	s.mu.Lock()
	select {
	case <-s.stopPump:
		s.mu.Unlock()
		return
	default:
	}
	close(s.stopPump)
	s.mu.Unlock()
	<-s.pumpStopped

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue.Clear()
}

func (s *Stream) pump() {
	defer close(s.pumpStopped)
	defer close(s.events)
	for {
		ev, ok := func() (Event, bool) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.queue.Pop()
		}()
		if !ok {
			select {
			case <-s.stopPump:
				return
			case <-s.wakePump:
				continue
			}
		}
		select {
		case s.events <- ev:
		case <-s.stopPump:
			return
		}
	}
}
