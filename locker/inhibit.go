package locker

import (
	"context"
	"os"

	"github.com/rs/zerolog"

	"github.com/danderson/desklock/logind"
)

const (
	inhibitWho = "desklock"
	inhibitWhy = "Locking screen before sleep"
)

// An InhibitorLock is a held sleep inhibition. The machine holds at
// most one, kept standing whenever the screen is not locked.
type InhibitorLock interface {
	// Dup returns an independent reference to the same inhibition,
	// for inheriting into the locker process.
	Dup() (*os.File, error)
	// Release drops the lock. Idempotent.
	Release() error
}

// Inhibitors hands out sleep inhibitor locks.
type Inhibitors interface {
	// Acquire takes a delay-mode sleep inhibitor. Failure means the
	// daemon proceeds without sleep protection; it is not fatal.
	Acquire(ctx context.Context) (InhibitorLock, error)
}

type logindInhibitors struct {
	mgr logind.Manager
	log zerolog.Logger
}

// NewInhibitors returns an Inhibitors backed by logind delay locks
// for the sleep state change.
func NewInhibitors(mgr logind.Manager, log zerolog.Logger) Inhibitors {
	return logindInhibitors{mgr: mgr, log: log}
}

func (i logindInhibitors) Acquire(ctx context.Context) (InhibitorLock, error) {
	lock, err := i.mgr.Inhibit(ctx, logind.Sleep, inhibitWho, inhibitWhy, logind.Delay)
	if err != nil {
		return nil, err
	}
	i.log.Debug().Msg("took sleep inhibitor lock")
	return lock, nil
}
