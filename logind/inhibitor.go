package logind

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// An InhibitorLock is a held inhibitor, backed by a file descriptor
// from logind. The inhibition lasts until every reference to it (the
// lock itself and any duplicates made with [InhibitorLock.Dup]) has
// been released.
type InhibitorLock struct {
	mu   sync.Mutex
	file *os.File
}

// Dup returns an independent reference to the same inhibition,
// suitable for inheriting into a child process. Closing the
// duplicate and releasing the original are independent: logind lifts
// the inhibition only once both are gone.
//
// The caller owns the returned file.
func (l *InhibitorLock) Dup() (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil, errors.New("inhibitor lock already released")
	}
	fd, err := unix.Dup(int(l.file.Fd()))
	if err != nil {
		return nil, fmt.Errorf("duplicating inhibitor fd: %w", err)
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "inhibitor"), nil
}

// Release drops the lock. Releasing an already released lock is a
// no-op.
func (l *InhibitorLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Held reports whether the lock is still held.
func (l *InhibitorLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file != nil
}
