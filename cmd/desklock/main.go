// Command desklock locks an X session through an external locker
// program.
//
// It watches three event sources: the X screen saver extension, the
// logind session's Lock/Unlock signals, and logind's PrepareForSleep
// signal. When any of them calls for a locked screen, the locker
// command is started; when the session is unlocked, it is asked to
// exit. With --transfer-sleep-lock, a logind delay inhibitor keeps
// the system from suspending until the locker is up, following the
// xss-lock $XSS_SLEEP_LOCK_FD convention.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/taskgroup"
	"github.com/danderson/dbus"
	"github.com/kr/pretty"
	"github.com/rs/zerolog"

	"github.com/danderson/desklock/locker"
	"github.com/danderson/desklock/logind"
	"github.com/danderson/desklock/xss"
)

var globalArgs struct {
	Session   string `flag:"session,Logind session to watch (default: $XDG_SESSION_ID)"`
	Display   string `flag:"display,X display to watch (default: $DISPLAY)"`
	SleepLock bool   `flag:"transfer-sleep-lock,Pass a sleep inhibitor lock to the locker via $XSS_SLEEP_LOCK_FD"`
	IdleHint  bool   `flag:"session-idle-hint,Publish the session idle hint while the screen is locked"`
	Verbose   bool   `flag:"verbose,Enable debug logging"`
	LogJSON   bool   `flag:"log-json,Write logs as JSON instead of human-readable text"`
}

func main() {
	root := &command.C{
		Name:  "desklock",
		Usage: "[flags] -- locker-command [args...]\nhelp",
		Help: `Lock the session with an external locker program.

The locker command is started whenever the screen should lock, and
is sent SIGTERM when the session is unlocked. The daemon exits with
a non-zero status on any event source failure; run it from a service
manager that restarts it.`,
		SetFlags: command.Flags(flax.MustBind, &globalArgs),
		Run:      runDaemon,
		Commands: []*command.C{
			{
				Name:  "watch",
				Usage: "watch",
				Help:  "Print lock events as they arrive, without acting on them.",
				Run:   command.Adapt(runWatch),
			},
			command.HelpCommand(nil),
			command.VersionCommand(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	env := root.NewEnv(nil).SetContext(ctx)
	command.RunOrFail(env, os.Args[1:])
}

func newLogger() zerolog.Logger {
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
	if globalArgs.LogJSON {
		out = os.Stderr
	}
	level := zerolog.InfoLevel
	if globalArgs.Verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func sessionID() (string, error) {
	if globalArgs.Session != "" {
		return globalArgs.Session, nil
	}
	return logind.CurrentSessionID()
}

func runDaemon(env *command.Env) error {
	if len(env.Args) == 0 {
		return env.Usagef("no locker command given")
	}

	log := newLogger()
	session, err := sessionID()
	if err != nil {
		return err
	}

	d, err := locker.New(locker.Config{
		LockerCommand:   env.Args,
		SessionID:       session,
		Display:         globalArgs.Display,
		PassInhibitor:   globalArgs.SleepLock,
		PublishIdleHint: globalArgs.IdleHint,
		Log:             log,
	})
	if err != nil {
		return err
	}

	err = d.Run(env.Context())
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("shutting down")
		return nil
	}
	return err
}

func runWatch(env *command.Env) error {
	log := newLogger()

	ctx, cancel := context.WithCancel(env.Context())
	defer cancel()

	conn, err := dbus.SystemBus(ctx)
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer conn.Close()

	id, err := sessionID()
	if err != nil {
		return err
	}
	session, err := logind.New(conn).Session(ctx, id)
	if err != nil {
		return fmt.Errorf("looking up logind session %q: %w", id, err)
	}

	xw, err := xss.Connect(globalArgs.Display)
	if err != nil {
		return err
	}
	defer xw.Close()

	stream := locker.NewStream()
	defer stream.Close()

	g := taskgroup.New(cancel)
	g.Go(func() error { return locker.WatchSleep(ctx, conn, stream, log) })
	g.Go(func() error { return locker.WatchSession(ctx, conn, session, stream, log) })
	g.Go(func() error { return locker.WatchScreenIdle(ctx, xw, stream) })
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-stream.Chan():
				if !ok {
					return nil
				}
				pretty.Println(ev)
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
