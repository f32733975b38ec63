//go:build unix

package slamon

import (
	"os"
	"syscall"
)

var visibilitySignals = []os.Signal{syscall.SIGCONT}
