//go:build unix

package fifo

import "golang.org/x/sys/unix"

func mkfifo(name string, mode uint32) error {
	return unix.Mkfifo(name, mode)
}
