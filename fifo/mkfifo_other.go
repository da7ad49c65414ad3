//go:build !unix

package fifo

func mkfifo(string, uint32) error {
	return ErrUnsupported
}
