package locker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"
)

type fakeHintSession struct {
	err   error
	calls []bool
}

func (f *fakeHintSession) SetIdleHint(_ context.Context, idle bool) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, idle)
	return nil
}

func TestHintDebounce(t *testing.T) {
	session := &fakeHintSession{}
	h := NewHintPublisher(session, zerolog.Nop())

	ctx := context.Background()
	for _, idle := range []bool{true, true, false, false, false, true} {
		h.Publish(ctx, idle)
	}
	if diff := cmp.Diff([]bool{true, false, true}, session.calls); diff != "" {
		t.Errorf("bus calls (-want +got):\n%s", diff)
	}
}

func TestHintFailureRetried(t *testing.T) {
	session := &fakeHintSession{err: errors.New("bus gone")}
	h := NewHintPublisher(session, zerolog.Nop())

	ctx := context.Background()
	h.Publish(ctx, true) // fails, swallowed

	// A failed publish is not remembered as the last value, so the
	// next publish of the same value tries again.
	session.err = nil
	h.Publish(ctx, true)
	if diff := cmp.Diff([]bool{true}, session.calls); diff != "" {
		t.Errorf("bus calls (-want +got):\n%s", diff)
	}
}
