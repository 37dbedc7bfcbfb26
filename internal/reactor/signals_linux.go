//go:build linux

package reactor

import (
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// WatchSignals starts a goroutine forwarding the given OS signals into
// the reactor via NotifySignal, translating each os.Signal to its unix
// signal number. Call once per process; the returned stop func removes
// the os/signal subscription.
func (r *Reactor) WatchSignals(sigs ...os.Signal) (stop func()) {
	ch := make(chan os.Signal, 16)
	signal.Notify(ch, sigs...)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case s := <-ch:
				if n, ok := signalNumber(s); ok {
					r.NotifySignal(n)
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		close(done)
	}
}

func signalNumber(s os.Signal) (int, bool) {
	if u, ok := s.(syscall.Signal); ok {
		return int(u), true
	}
	return 0, false
}

// ReapChildren performs a non-blocking wait4 loop, reaping every
// terminated child and forwarding each via NotifyChild. Call this from a
// SIGCHLD-triggered EventSignal dispatch.
func (r *Reactor) ReapChildren() error {
	for {
		var status unix.WaitStatus
		pid, err := unix.Wait4(-1, &status, unix.WNOHANG, nil)
		if err != nil {
			if err == unix.ECHILD {
				return nil
			}
			return &IoError{Op: "wait4", Err: err}
		}
		if pid <= 0 {
			return nil
		}
		r.NotifyChild(pid, status.ExitStatus())
	}
}
