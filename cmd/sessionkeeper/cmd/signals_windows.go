//go:build windows

package cmd

import "os"

var visibilitySignals []os.Signal

func isVisibilitySignal(os.Signal) bool {
	return false
}
