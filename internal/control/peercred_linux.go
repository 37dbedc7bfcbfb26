//go:build linux

package control

import (
	"net"

	"golang.org/x/sys/unix"
)

// PeerCredentials reads the connecting process's pid/uid/gid off a unix
// socket via SO_PEERCRED (spec.md §6: "Peer credentials (pid/uid/gid) are
// read via SO_PEERCRED").
type PeerCredentials struct {
	PID int32
	UID uint32
	GID uint32
}

func peerCredentials(conn *net.UnixConn) (PeerCredentials, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return PeerCredentials{}, err
	}

	var cred *unix.Ucred
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		cred, sockErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return PeerCredentials{}, err
	}
	if sockErr != nil {
		return PeerCredentials{}, sockErr
	}
	return PeerCredentials{PID: cred.Pid, UID: cred.Uid, GID: cred.Gid}, nil
}
