package locker

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// State of the lock cycle.
type State int

const (
	// Unlocked: no locker process exists.
	Unlocked State = iota
	// Locking: the locker was started but has not reported ready.
	Locking
	// Locked: the locker is up and owns its copy of the inhibitor,
	// if one was passed.
	Locked
	// Unlocking: the locker was asked to exit and has not yet done
	// so.
	Unlocking
)

func (s State) String() string {
	switch s {
	case Unlocked:
		return "unlocked"
	case Locking:
		return "locking"
	case Locked:
		return "locked"
	case Unlocking:
		return "unlocking"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// A Machine is the lock state machine. It is the stream's only
// consumer, and the only component that decides when the locker
// starts or stops. Events are handled strictly one at a time.
//
// Lock intent is level-triggered: any number of lock triggers
// (screen idle, imminent sleep, an explicit request) collapse into
// one locker start, and repeats while a cycle is in progress are
// no-ops. An unlock request that arrives before the locker is ready
// is deferred until it is, since there is nothing to stop earlier;
// a later lock trigger cancels the deferral, the latest intent wins.
//
// The sleep delay lock is held whenever the screen is not locked:
// taken at startup, released once the locker owns its duplicate,
// and taken again on resume and whenever the machine returns to
// Unlocked. logind refuses delay locks for a sleep that is already
// underway, so a lock first requested in response to
// PrepareForSleep would protect nothing.
type Machine struct {
	sup  LockerSupervisor
	inh  Inhibitors // nil when inhibitor passing is disabled
	hint HintPublisher
	log  zerolog.Logger

	state      State
	lock       InhibitorLock // standing delay lock; released at hand-off, retaken on resume
	wantUnlock bool
}

// NewMachine returns a machine in the Unlocked state. inh may be nil
// to disable inhibitor handling entirely.
func NewMachine(sup LockerSupervisor, inh Inhibitors, hint HintPublisher, log zerolog.Logger) *Machine {
	return &Machine{sup: sup, inh: inh, hint: hint, log: log}
}

// State returns the current lock state.
func (m *Machine) State() State { return m.state }

// Run consumes events from stream until the stream closes, ctx is
// canceled, or a fatal error occurs. On every return path the
// machine asks a live locker to stop and releases any inhibitor it
// still holds.
func (m *Machine) Run(ctx context.Context, stream *Stream) error {
	defer m.shutdown()
	m.acquire(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-stream.Chan():
			if !ok {
				return nil
			}
			if err := m.handle(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (m *Machine) handle(ctx context.Context, ev Event) error {
	m.log.Debug().Stringer("event", ev).Stringer("state", m.state).Msg("event")
	switch ev := ev.(type) {
	case ScreenIdle:
		if ev.Idle {
			return m.engage(ctx, "screen idle")
		}
		// The screen waking up does not unlock anything; that takes
		// an unlock request or the locker exiting.
		return nil
	case PrepareForSleep:
		if ev.Sleeping {
			return m.engage(ctx, "system sleep")
		}
		// Resumed. Take a fresh delay lock for the next sleep; the
		// one covering this sleep was released at hand-off. If the
		// screen saver is still active the display source reports it
		// again, so no state change here.
		m.acquire(ctx)
		return nil
	case LockRequested:
		return m.engage(ctx, "session lock request")
	case UnlockRequested:
		m.disengage(ctx, "session unlock request")
		return nil
	case lockerReady:
		m.ready(ctx)
		return nil
	case lockerExited:
		m.exited(ctx, ev.Err)
		return nil
	}
	return fmt.Errorf("unhandled event %T", ev)
}

// engage starts a lock cycle, unless one is already in progress.
func (m *Machine) engage(ctx context.Context, trigger string) error {
	if m.state != Unlocked {
		if m.wantUnlock {
			// Lock intent after a deferred unlock: the latest intent
			// wins, so the pending stop is dropped.
			m.log.Debug().Str("trigger", trigger).Msg("canceling deferred unlock")
			m.wantUnlock = false
		}
		m.log.Debug().Str("trigger", trigger).Stringer("state", m.state).Msg("already locking")
		return nil
	}

	var dup *os.File
	if m.inh != nil {
		m.acquire(ctx) // normally already held since startup or resume
		if m.lock != nil {
			d, err := m.lock.Dup()
			if err != nil {
				// Keep our own copy; the locker just won't get one.
				m.log.Warn().Err(err).Msg("could not duplicate inhibitor lock for the locker")
			} else {
				dup = d
			}
		}
	}

	m.log.Info().Str("trigger", trigger).Msg("locking screen")
	if err := m.sup.Start(dup); err != nil {
		// Without a locker the daemon cannot honor its one job.
		m.releaseLock()
		return err
	}
	m.setState(ctx, Locking)
	return nil
}

// disengage handles unlock intent.
func (m *Machine) disengage(ctx context.Context, trigger string) {
	switch m.state {
	case Locked:
		m.log.Info().Str("trigger", trigger).Msg("unlocking screen")
		m.sup.RequestStop()
		m.setState(ctx, Unlocking)
	case Locking:
		// Nothing to stop yet; the stop is issued once the locker
		// reports ready.
		m.log.Debug().Str("trigger", trigger).Msg("unlock deferred until locker is ready")
		m.wantUnlock = true
	default:
		m.log.Debug().Str("trigger", trigger).Stringer("state", m.state).Msg("nothing to unlock")
	}
}

// ready marks the hand-off to the locker as complete: it owns its
// inhibitor copy now, so ours is released and sleep may proceed.
func (m *Machine) ready(ctx context.Context) {
	if m.state != Locking {
		return
	}
	m.releaseLock()
	m.setState(ctx, Locked)
	if m.wantUnlock {
		m.wantUnlock = false
		m.log.Info().Msg("unlocking screen (deferred request)")
		m.sup.RequestStop()
		m.setState(ctx, Unlocking)
	}
}

// exited resets the cycle. No locker process means no locked screen,
// regardless of how it exited; getting stuck believing a dead locker
// still locks the screen would be worse than any exit status.
func (m *Machine) exited(ctx context.Context, err error) {
	if err != nil {
		m.log.Warn().Err(err).Msg("locker exited abnormally")
	} else {
		m.log.Debug().Msg("locker exited")
	}
	m.wantUnlock = false
	m.setState(ctx, Unlocked)
	// Unlocked means the next sleep has to wait for a locker again,
	// so a delay lock must be in place for it. A lock still held from
	// a cycle that never reached ready simply stays.
	m.acquire(ctx)
}

// acquire takes the delay lock, unless inhibitor passing is disabled
// or one is already held. Failure is logged and degrades the daemon
// to locking without sleep protection.
func (m *Machine) acquire(ctx context.Context) {
	if m.inh == nil || m.lock != nil {
		return
	}
	lock, err := m.inh.Acquire(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("could not take sleep inhibitor lock")
		return
	}
	m.lock = lock
}

func (m *Machine) setState(ctx context.Context, s State) {
	if m.state == s {
		return
	}
	m.log.Debug().Stringer("from", m.state).Stringer("to", s).Msg("state change")
	m.state = s
	m.hint.Publish(ctx, s != Unlocked)
}

func (m *Machine) releaseLock() {
	if m.lock == nil {
		return
	}
	if err := m.lock.Release(); err != nil {
		m.log.Warn().Err(err).Msg("releasing inhibitor lock failed")
	} else {
		m.log.Debug().Msg("released sleep inhibitor lock")
	}
	m.lock = nil
}

func (m *Machine) shutdown() {
	if m.state != Unlocked {
		m.sup.RequestStop()
	}
	m.releaseLock()
}
