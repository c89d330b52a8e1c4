package locker

import (
	"context"
	"errors"
	"fmt"

	"github.com/danderson/dbus"
	"github.com/rs/zerolog"

	"github.com/danderson/desklock/logind"
	"github.com/danderson/desklock/xss"
)

// The event source adapters. Each runs as its own goroutine,
// translating one external protocol's notifications into events on
// the shared stream. An adapter error is fatal to the daemon: a
// silently dead idle source would mean a screen that never locks, so
// partial operation is not an option. Restarting is the service
// manager's job.

// WatchSleep forwards logind's PrepareForSleep signal onto the
// stream.
func WatchSleep(ctx context.Context, conn *dbus.Conn, stream *Stream, log zerolog.Logger) error {
	w, err := conn.Watch()
	if err != nil {
		return fmt.Errorf("watching system bus: %w", err)
	}
	defer w.Close()
	if _, err := w.Match(dbus.MatchNotification[logind.PrepareForSleep]()); err != nil {
		return fmt.Errorf("subscribing to PrepareForSleep: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-w.Chan():
			if !ok {
				return errors.New("system bus watcher closed")
			}
			if n.Overflow {
				log.Warn().Msg("bus watcher overflowed, some sleep signals were lost")
			}
			sig, ok := n.Body.(*logind.PrepareForSleep)
			if !ok {
				continue
			}
			stream.Send(PrepareForSleep{Sleeping: sig.Sleeping})
		}
	}
}

// WatchSession forwards the session's Lock and Unlock signals onto
// the stream.
func WatchSession(ctx context.Context, conn *dbus.Conn, session logind.Session, stream *Stream, log zerolog.Logger) error {
	w, err := conn.Watch()
	if err != nil {
		return fmt.Errorf("watching system bus: %w", err)
	}
	defer w.Close()
	// Lock and Unlock carry no payload, so there is no signal type
	// to match on; watch the session object and dispatch by name.
	if _, err := w.Match(dbus.MatchAllSignals().Object(session.Path())); err != nil {
		return fmt.Errorf("subscribing to session %s signals: %w", session.ID(), err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-w.Chan():
			if !ok {
				return errors.New("system bus watcher closed")
			}
			if n.Overflow {
				log.Warn().Msg("bus watcher overflowed, some session signals were lost")
			}
			switch n.Name {
			case logind.SignalLock:
				stream.Send(LockRequested{})
			case logind.SignalUnlock:
				stream.Send(UnlockRequested{})
			}
		}
	}
}

// WatchScreenIdle forwards X screen saver activation changes onto
// the stream.
func WatchScreenIdle(ctx context.Context, xw *xss.Watcher, stream *Stream) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		// Next only unblocks when the connection closes.
		select {
		case <-ctx.Done():
			xw.Close()
		case <-done:
		}
	}()

	for {
		idle, err := xw.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("watching screen saver: %w", err)
		}
		stream.Send(ScreenIdle{Idle: idle})
	}
}
