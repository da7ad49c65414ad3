//go:build unix

package stream

import (
	"os"

	"golang.org/x/sys/unix"
)

// nonblockFlag keeps open(2) on a named pipe from waiting for a writer.
const nonblockFlag = unix.O_NONBLOCK

// readable polls f with a zero timeout. Hangup and error count as readable:
// the read that follows reports them.
func readable(f *os.File) bool {
	conn, err := f.SyscallConn()
	if err != nil {
		return true
	}

	ready := true
	ctrlErr := conn.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, 0)
			if err == unix.EINTR {
				continue
			}
			if err != nil {
				return
			}
			ready = n > 0 && fds[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0
			return
		}
	})
	if ctrlErr != nil {
		return true
	}
	return ready
}
