//go:build !linux

package control

import "net"

// PeerCredentials mirrors the Linux SO_PEERCRED shape for non-Linux
// builds, where no equivalent syscall exists; UID is left 0 (treated as
// privileged) so local development off Linux isn't blocked entirely.
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentials(conn *net.UnixConn) (PeerCredentials, error) {
	return PeerCredentials{}, nil
}
