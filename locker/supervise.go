package locker

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
)

// sleepLockFdEnv tells the locker which inherited file descriptor
// carries the sleep inhibitor lock. The name and convention come
// from xss-lock; xsecurelock and friends understand it. The locker
// signals readiness by closing the descriptor, or by exiting.
const sleepLockFdEnv = "XSS_SLEEP_LOCK_FD"

// A LockerSupervisor owns the lifecycle of the external locker
// process.
type LockerSupervisor interface {
	// Start launches the locker. If inhibitor is non-nil, the locker
	// inherits it as its copy of the sleep inhibitor lock; Start
	// takes ownership of the file either way. Start must not be
	// called while a previously started locker is still alive.
	Start(inhibitor *os.File) error
	// RequestStop asks a running locker to exit gracefully. It is a
	// no-op when no locker is running.
	RequestStop()
}

// Supervisor runs the locker command as a child process, reporting
// its lifecycle onto the event stream: lockerReady after a
// successful spawn, lockerExited once the child is gone.
type Supervisor struct {
	argv   []string
	stream *Stream
	log    zerolog.Logger

	mu   sync.Mutex
	proc *os.Process
}

// NewSupervisor returns a supervisor for the given locker command
// line.
func NewSupervisor(argv []string, stream *Stream, log zerolog.Logger) *Supervisor {
	return &Supervisor{argv: argv, stream: stream, log: log}
}

// Start implements [LockerSupervisor].
func (s *Supervisor) Start(inhibitor *os.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc != nil {
		return errors.New("locker process already running")
	}

	cmd := exec.Command(s.argv[0], s.argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if inhibitor != nil {
		// ExtraFiles places the descriptor at fd 3 in the child.
		cmd.ExtraFiles = []*os.File{inhibitor}
		cmd.Env = append(os.Environ(), sleepLockFdEnv+"=3")
	}

	if err := cmd.Start(); err != nil {
		if inhibitor != nil {
			inhibitor.Close()
		}
		return fmt.Errorf("starting locker %q: %w", s.argv[0], err)
	}
	if inhibitor != nil {
		// The child holds its own copy now.
		inhibitor.Close()
	}

	s.proc = cmd.Process
	s.log.Debug().Int("pid", cmd.Process.Pid).Msg("locker started")

	// Readiness goes on the stream before the waiter exists, so the
	// exit notification of a short-lived locker can never overtake
	// it.
	s.stream.Send(lockerReady{})
	go s.wait(cmd)
	return nil
}

func (s *Supervisor) wait(cmd *exec.Cmd) {
	err := cmd.Wait()

	s.mu.Lock()
	s.proc = nil
	s.mu.Unlock()

	s.stream.Send(lockerExited{Err: err})
}

// RequestStop implements [LockerSupervisor]. The locker is asked to
// exit with SIGTERM; its eventual exit arrives as an event.
func (s *Supervisor) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proc == nil {
		return
	}
	s.log.Debug().Int("pid", s.proc.Pid).Msg("asking locker to exit")
	if err := s.proc.Signal(syscall.SIGTERM); err != nil {
		s.log.Warn().Err(err).Msg("signaling locker failed")
	}
}

// Running reports whether a locker process is currently alive.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc != nil
}
