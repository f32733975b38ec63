//go:build !unix

package slamon

import "os"

var visibilitySignals []os.Signal
