// Package xss reports X11 screen saver activation changes.
//
// The X screen saver extension emits a notify event when the server
// decides the display has gone idle (screen saver on) or that the
// user is back (screen saver off). This is the display server's own
// idleness verdict, driven by its configured timeout, as opposed to
// polling the idle counter.
package xss

import (
	"errors"
	"fmt"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/screensaver"
	"github.com/jezek/xgb/xproto"
)

// A Watcher delivers screen saver state changes from one X display.
type Watcher struct {
	conn *xgb.Conn
}

// Connect subscribes to screen saver events on the given display.
// An empty display means $DISPLAY.
func Connect(display string) (*Watcher, error) {
	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, fmt.Errorf("connecting to X server: %w", err)
	}
	if err := screensaver.Init(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("initializing screen saver extension: %w", err)
	}
	if _, err := screensaver.QueryVersion(conn, 1, 0).Reply(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("querying screen saver extension version: %w", err)
	}

	root := xproto.Setup(conn).DefaultScreen(conn).Root
	err = screensaver.SelectInputChecked(conn, xproto.Drawable(root), screensaver.EventNotifyMask|screensaver.EventCycleMask).Check()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribing to screen saver events: %w", err)
	}

	return &Watcher{conn: conn}, nil
}

// Next blocks until the screen saver turns on or off, and reports
// the new state. It returns an error if the display connection is
// lost or closed; per-request X protocol errors are skipped.
func (w *Watcher) Next() (idle bool, err error) {
	for {
		ev, xerr := w.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			return false, errors.New("X server connection closed")
		}
		if xerr != nil {
			continue
		}
		n, ok := ev.(screensaver.NotifyEvent)
		if !ok {
			continue
		}
		switch n.State {
		case screensaver.StateOn:
			return true, nil
		case screensaver.StateOff:
			return false, nil
		}
		// Cycle and Disabled are not idleness changes.
	}
}

// Close shuts down the display connection, unblocking any pending
// Next call.
func (w *Watcher) Close() {
	w.conn.Close()
}
