//go:build !unix

package stream

import "os"

const nonblockFlag = 0

// readable cannot poll here, so a non-blocking read falls through to a read.
func readable(*os.File) bool {
	return true
}
