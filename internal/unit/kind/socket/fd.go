package socket

import (
	"net"
	"os"
)

// listenerFD extracts the underlying file descriptor from a stream
// listener so the reactor can poll it directly. net.TCPListener and
// net.UnixListener both expose File() (*os.File, error), duplicating the
// fd; the returned *os.File is not kept anywhere and is never closed, so
// the duplicate stays open for the life of the process (also after the
// adapter stops the listener).
func listenerFD(l net.Listener) (int, bool) {
	fp, ok := l.(interface{ File() (*os.File, error) })
	if !ok {
		return 0, false
	}
	f, err := fp.File()
	if err != nil {
		return 0, false
	}
	return int(f.Fd()), true
}
