// Package fifo creates the named pipes that cooperating processes exchange
// frames over.
//
// A typical orchestrator creates one pipe per direction before starting a
// worker and passes the paths on the worker's command line:
//
//	requests, err := fifo.MakeTemp(dir, "requests")
//	responses, err := fifo.MakeTemp(dir, "responses")
package fifo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Mode is the permission set of pipes created by this package
const Mode os.FileMode = 0o600

// ErrUnsupported is returned on platforms without named pipes
var ErrUnsupported = errors.New("fifo: named pipes are not supported on this platform")

// Make creates a named pipe at name. It fails if name already exists.
func Make(name string) error {
	if err := mkfifo(name, uint32(Mode)); err != nil {
		return &os.PathError{Op: "mkfifo", Path: name, Err: err}
	}
	return nil
}

// TempPath returns a fresh pipe path in dir (os.TempDir() when empty). The
// file is not created.
func TempPath(dir, prefix string) string {
	if dir == "" {
		dir = os.TempDir()
	}
	if prefix == "" {
		prefix = "framepipe"
	}
	return filepath.Join(dir, fmt.Sprintf("%s-%s.fifo", prefix, uuid.NewString()))
}

// MakeTemp creates a named pipe at TempPath(dir, prefix) and returns its path
func MakeTemp(dir, prefix string) (string, error) {
	name := TempPath(dir, prefix)
	if err := Make(name); err != nil {
		return "", err
	}
	return name, nil
}

// IsFIFO reports whether name exists and is a named pipe
func IsFIFO(name string) bool {
	info, err := os.Stat(name)
	return err == nil && info.Mode()&os.ModeNamedPipe != 0
}
