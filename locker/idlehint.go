package locker

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// A HintPublisher reflects the session's idle state back to the
// session manager. Publishing is advisory: failures must not affect
// the lock cycle.
type HintPublisher interface {
	Publish(ctx context.Context, idle bool)
}

// NoHints is a HintPublisher that publishes nothing, for when idle
// hint management is disabled.
type NoHints struct{}

func (NoHints) Publish(context.Context, bool) {}

type idleHintSetter interface {
	SetIdleHint(ctx context.Context, idle bool) error
}

type sessionHints struct {
	session idleHintSetter
	log     zerolog.Logger

	mu        sync.Mutex
	published bool
	last      bool
}

// NewHintPublisher returns a publisher that sets the idle hint on
// the given logind session. Publishes are debounced: only a change
// in value reaches the bus.
func NewHintPublisher(session idleHintSetter, log zerolog.Logger) HintPublisher {
	return &sessionHints{session: session, log: log}
}

func (h *sessionHints) Publish(ctx context.Context, idle bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.published && h.last == idle {
		return
	}
	if err := h.session.SetIdleHint(ctx, idle); err != nil {
		h.log.Warn().Err(err).Bool("idle", idle).Msg("setting session idle hint failed")
		return
	}
	h.log.Debug().Bool("idle", idle).Msg("published session idle hint")
	h.published = true
	h.last = idle
}
