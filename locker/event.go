package locker

import "fmt"

// An Event is a lock-relevant occurrence reported by one of the
// daemon's event sources. Events from different sources arrive in an
// arbitrary interleaving; events from one source keep their order.
type Event interface {
	fmt.Stringer
	event()
}

// ScreenIdle reports that the display server's screen saver
// activated (Idle true) or deactivated.
type ScreenIdle struct {
	Idle bool
}

// PrepareForSleep reports that the system is about to suspend
// (Sleeping true) or has just resumed.
type PrepareForSleep struct {
	Sleeping bool
}

// LockRequested reports an explicit lock request from the session
// manager, e.g. loginctl lock-session.
type LockRequested struct{}

// UnlockRequested reports an explicit unlock request from the
// session manager.
type UnlockRequested struct{}

// lockerReady reports that the locker process started and now owns
// its copy of the inhibitor lock, if one was passed to it.
type lockerReady struct{}

// lockerExited reports that the locker process is gone. Err is nil
// for a clean exit.
type lockerExited struct {
	Err error
}

func (ScreenIdle) event()      {}
func (PrepareForSleep) event() {}
func (LockRequested) event()   {}
func (UnlockRequested) event() {}
func (lockerReady) event()     {}
func (lockerExited) event()    {}

func (e ScreenIdle) String() string {
	if e.Idle {
		return "screen idle"
	}
	return "screen active"
}

func (e PrepareForSleep) String() string {
	if e.Sleeping {
		return "preparing for sleep"
	}
	return "resumed from sleep"
}

func (LockRequested) String() string   { return "lock requested" }
func (UnlockRequested) String() string { return "unlock requested" }
func (lockerReady) String() string     { return "locker ready" }

func (e lockerExited) String() string {
	if e.Err != nil {
		return fmt.Sprintf("locker exited: %v", e.Err)
	}
	return "locker exited"
}
