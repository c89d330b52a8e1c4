// Package logind provides an interface to the systemd-logind session
// manager DBus API.
//
// logind tracks logged-in sessions and system sleep state. The
// subset wrapped here is what a screen locking daemon needs: looking
// up a session, taking sleep inhibitor locks, subscribing to
// lock/unlock and sleep signals, and publishing session hints.
package logind

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/danderson/dbus"
)

const (
	busName      = "org.freedesktop.login1"
	managerPath  = "/org/freedesktop/login1"
	managerIface = "org.freedesktop.login1.Manager"
	sessionIface = "org.freedesktop.login1.Session"
)

// CurrentSessionID returns the identifier of the logind session this
// process is running in, as reported by $XDG_SESSION_ID.
func CurrentSessionID() (string, error) {
	id := os.Getenv("XDG_SESSION_ID")
	if id == "" {
		return "", errors.New("$XDG_SESSION_ID is not set, cannot determine the current logind session")
	}
	return id, nil
}

type Manager struct{ iface dbus.Interface }

// New returns an interface to the logind manager on the system bus
// connection conn.
func New(conn *dbus.Conn) Manager {
	obj := conn.Peer(busName).Object(managerPath)
	return Interface(obj)
}

// Interface returns a logind manager interface on the given object.
func Interface(obj dbus.Object) Manager {
	return Manager{
		iface: obj.Interface(managerIface),
	}
}

// Session returns a handle to the logind session with the given ID.
func (m Manager) Session(ctx context.Context, id string) (Session, error) {
	var path dbus.ObjectPath
	if err := m.iface.Call(ctx, "GetSession", id, &path); err != nil {
		return Session{}, err
	}
	obj := m.iface.Conn().Peer(busName).Object(path)
	return Session{
		id:    id,
		path:  path,
		iface: obj.Interface(sessionIface),
	}, nil
}

// A What is a set of system state changes that an inhibitor lock
// applies to, in logind's colon-separated string encoding. Use
// [WhatSet] to combine several.
type What string

const (
	Shutdown           What = "shutdown"
	Sleep              What = "sleep"
	Idle               What = "idle"
	HandlePowerKey     What = "handle-power-key"
	HandleSuspendKey   What = "handle-suspend-key"
	HandleHibernateKey What = "handle-hibernate-key"
	HandleLidSwitch    What = "handle-lid-switch"
)

// WhatSet combines several inhibitable state changes into one set.
func WhatSet(whats ...What) What {
	strs := make([]string, len(whats))
	for i, w := range whats {
		strs[i] = string(w)
	}
	return What(strings.Join(strs, ":"))
}

// A Mode is the strength of an inhibitor lock.
type Mode string

const (
	// Block prevents the inhibited state change entirely, for as
	// long as the lock is held.
	Block Mode = "block"
	// Delay holds off the inhibited state change until the lock is
	// released, up to a logind-enforced time limit.
	Delay Mode = "delay"
)

// Inhibit takes an inhibitor lock for the given state changes.
//
// who and why are human-readable strings naming the application
// taking the lock and its reason, shown by tools like
// systemd-inhibit. The returned lock is held until released.
func (m Manager) Inhibit(ctx context.Context, what What, who, why string, mode Mode) (*InhibitorLock, error) {
	req := struct {
		What, Who, Why, Mode string
	}{string(what), who, why, string(mode)}
	var fd *os.File
	if err := m.iface.Call(ctx, "Inhibit", req, &fd); err != nil {
		return nil, err
	}
	return &InhibitorLock{file: fd}, nil
}

// Handle to a logind session.
type Session struct {
	id    string
	path  dbus.ObjectPath
	iface dbus.Interface
}

// ID returns the session's logind identifier.
func (s Session) ID() string { return s.id }

// Path returns the session's bus object path. Session signals
// (Lock, Unlock) are emitted on this object.
func (s Session) Path() dbus.ObjectPath { return s.path }

// Lock asks logind to lock the session. logind responds by emitting
// the Lock signal on the session object.
func (s Session) Lock(ctx context.Context) error {
	return s.iface.Call(ctx, "Lock", nil, nil)
}

// Unlock asks logind to unlock the session.
func (s Session) Unlock(ctx context.Context) error {
	return s.iface.Call(ctx, "Unlock", nil, nil)
}

// SetIdleHint reports to logind whether the session is idle. logind
// feeds the hint into system-wide idle policy such as automatic
// suspend.
func (s Session) SetIdleHint(ctx context.Context, idle bool) error {
	return s.iface.Call(ctx, "SetIdleHint", idle, nil)
}

// SetLockedHint reports to logind whether the session is currently
// locked.
func (s Session) SetLockedHint(ctx context.Context, locked bool) error {
	return s.iface.Call(ctx, "SetLockedHint", locked, nil)
}

// Active reports whether the session is the one in the foreground on
// its seat.
func (s Session) Active(ctx context.Context) (bool, error) {
	var ret bool
	err := s.iface.GetProperty(ctx, "Active", &ret)
	return ret, err
}

// IdleHint reports the session's current idle hint.
func (s Session) IdleHint(ctx context.Context) (bool, error) {
	var ret bool
	err := s.iface.GetProperty(ctx, "IdleHint", &ret)
	return ret, err
}

// Session object signal names. The Lock and Unlock signals carry no
// payload, so they cannot be given registered signal types; match
// them on the session object and dispatch on the notification name.
const (
	SignalLock   = "Lock"
	SignalUnlock = "Unlock"
)

// PrepareForSleep signals that the system is about to sleep
// (Sleeping true), or has just resumed (Sleeping false).
//
// Holders of delay-mode sleep inhibitor locks must do their final
// pre-sleep work and release their locks when they receive this
// signal with Sleeping set.
//
// PrepareForSleep implements the
// org.freedesktop.login1.Manager.PrepareForSleep signal.
type PrepareForSleep struct {
	Sleeping bool
}

// PrepareForShutdown signals that the system is about to shut down,
// or that a pending shutdown was cancelled.
//
// PrepareForShutdown implements the
// org.freedesktop.login1.Manager.PrepareForShutdown signal.
type PrepareForShutdown struct {
	ShuttingDown bool
}

func init() {
	dbus.RegisterSignalType[PrepareForSleep](managerIface, "PrepareForSleep")
	dbus.RegisterSignalType[PrepareForShutdown](managerIface, "PrepareForShutdown")
}
