// Package locker implements the lock lifecycle of a session locking
// daemon: a single state machine consuming a merged stream of
// display idle, system sleep and session lock events, driving one
// external locker process and a logind sleep inhibitor.
package locker

import (
	"context"
	"errors"
	"fmt"

	"github.com/creachadair/taskgroup"
	"github.com/danderson/dbus"
	"github.com/rs/zerolog"

	"github.com/danderson/desklock/logind"
	"github.com/danderson/desklock/xss"
)

// Config configures a Daemon.
type Config struct {
	// LockerCommand is the command line of the external locker
	// process. Required.
	LockerCommand []string
	// SessionID is the logind session to watch for lock and unlock
	// requests. Required.
	SessionID string
	// Display is the X display to watch for screen saver events.
	// Empty means $DISPLAY.
	Display string
	// PassInhibitor enables the sleep inhibitor protocol: a delay
	// lock is held whenever the screen is not locked, a duplicate
	// is inherited by the locker at spawn, the daemon's copy is
	// released once the hand-off completes, and a fresh lock is
	// taken on resume.
	PassInhibitor bool
	// PublishIdleHint mirrors the lock state into the session's
	// idle hint.
	PublishIdleHint bool

	Log zerolog.Logger
}

// A Daemon watches a session's lock-relevant event sources and keeps
// the locker process in the state they call for.
type Daemon struct {
	cfg Config
}

// New validates cfg and returns a Daemon.
func New(cfg Config) (*Daemon, error) {
	if len(cfg.LockerCommand) == 0 {
		return nil, errors.New("no locker command configured")
	}
	if cfg.SessionID == "" {
		return nil, errors.New("no session ID configured")
	}
	return &Daemon{cfg: cfg}, nil
}

// Run connects to the system bus and the X display and runs the
// daemon until ctx is canceled or a fatal error occurs. The first
// failure anywhere cancels everything else; on the way out a live
// locker is asked to stop and any held inhibitor is released.
func (d *Daemon) Run(ctx context.Context) error {
	log := d.cfg.Log

	conn, err := dbus.SystemBus(ctx)
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()

	mgr := logind.New(conn)
	session, err := mgr.Session(ctx, d.cfg.SessionID)
	if err != nil {
		return fmt.Errorf("looking up logind session %q: %w", d.cfg.SessionID, err)
	}

	xw, err := xss.Connect(d.cfg.Display)
	if err != nil {
		return err
	}
	defer xw.Close()

	stream := NewStream()
	defer stream.Close()

	sup := NewSupervisor(d.cfg.LockerCommand, stream, log.With().Str("component", "supervisor").Logger())
	var inh Inhibitors
	if d.cfg.PassInhibitor {
		inh = NewInhibitors(mgr, log.With().Str("component", "inhibit").Logger())
	}
	hint := HintPublisher(NoHints{})
	if d.cfg.PublishIdleHint {
		hint = NewHintPublisher(session, log.With().Str("component", "idlehint").Logger())
	}
	machine := NewMachine(sup, inh, hint, log.With().Str("component", "machine").Logger())

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g := taskgroup.New(cancel)
	g.Go(func() error { return WatchSleep(ctx, conn, stream, log) })
	g.Go(func() error { return WatchSession(ctx, conn, session, stream, log) })
	g.Go(func() error { return WatchScreenIdle(ctx, xw, stream) })
	g.Go(func() error { return machine.Run(ctx, stream) })

	log.Info().Str("session", session.ID()).Msg("watching for lock events")
	return g.Wait()
}
