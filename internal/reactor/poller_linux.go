//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// epollPoller backs the reactor with a real epoll(7) set. A self-pipe's
// read end is always registered so AddSource/SetEnabled/Exit calls from
// other goroutines (the signal-forwarding goroutine, control socket
// handlers) can interrupt an in-progress wait.
type epollPoller struct {
	epfd     int
	wakeR    int
	wakeW    int
	watching map[int]bool
}

func newPoller() (poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, &IoError{Op: "epoll_create1", Err: err}
	}

	fds := make([]int, 2)
	if err := unix.Pipe2(fds, unix.O_CLOEXEC|unix.O_NONBLOCK); err != nil {
		unix.Close(epfd)
		return nil, &IoError{Op: "pipe2", Err: err}
	}

	p := &epollPoller{epfd: epfd, wakeR: fds[0], wakeW: fds[1], watching: make(map[int]bool)}
	if err := p.addFD(p.wakeR); err != nil {
		p.close()
		return nil, err
	}
	return p, nil
}

func (p *epollPoller) addFD(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return &IoError{Op: "epoll_ctl add", Err: err}
	}
	p.watching[fd] = true
	return nil
}

func (p *epollPoller) delFD(fd int) error {
	if !p.watching[fd] {
		return nil
	}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		return &IoError{Op: "epoll_ctl del", Err: err}
	}
	delete(p.watching, fd)
	return nil
}

func (p *epollPoller) wait(timeout time.Duration) ([]int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(p.epfd, events, ms)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, &IoError{Op: "epoll_wait", Err: err}
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == p.wakeR {
			drainWakePipe(p.wakeR)
			continue
		}
		ready = append(ready, fd)
	}
	return ready, nil
}

func (p *epollPoller) wake() {
	var buf [1]byte
	unix.Write(p.wakeW, buf[:])
}

func drainWakePipe(fd int) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (p *epollPoller) close() error {
	unix.Close(p.wakeR)
	unix.Close(p.wakeW)
	return unix.Close(p.epfd)
}
