package locker

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStreamOrder(t *testing.T) {
	s := NewStream()
	defer s.Close()

	// No consumer yet: sends must complete without blocking.
	var want []Event
	for i := range 100 {
		var ev Event
		switch i % 3 {
		case 0:
			ev = ScreenIdle{Idle: i%2 == 0}
		case 1:
			ev = LockRequested{}
		case 2:
			ev = PrepareForSleep{Sleeping: i%2 == 0}
		}
		want = append(want, ev)
		s.Send(ev)
	}

	var got []Event
	for range want {
		select {
		case ev := <-s.Chan():
			got = append(got, ev)
		case <-time.After(5 * time.Second):
			t.Fatalf("stream delivered only %d of %d events", len(got), len(want))
		}
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery order (-want +got):\n%s", diff)
	}
}

func TestStreamClose(t *testing.T) {
	s := NewStream()
	s.Send(LockRequested{})
	s.Close()

	// Sending to a closed stream is a silent no-op.
	s.Send(UnlockRequested{})

	// The delivery channel terminates.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-s.Chan():
			if !ok {
				// Closing again is a no-op.
				s.Close()
				return
			}
		case <-deadline:
			t.Fatal("stream channel not closed")
		}
	}
}
