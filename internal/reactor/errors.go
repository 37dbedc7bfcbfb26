package reactor

import "fmt"

// IoError wraps a failure from the underlying poller (epoll_create1,
// epoll_ctl, epoll_wait, pipe2).
type IoError struct {
	Op  string
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("reactor: %s: %v", e.Op, e.Err) }
func (e *IoError) Unwrap() error { return e.Err }
