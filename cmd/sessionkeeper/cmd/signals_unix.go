//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

// SIGCONT arrives when a stopped process resumes, the closest a terminal
// process gets to becoming visible again.
var visibilitySignals = []os.Signal{syscall.SIGCONT}

func isVisibilitySignal(sig os.Signal) bool {
	return sig == syscall.SIGCONT
}
