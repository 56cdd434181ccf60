//go:build !windows

package process

import (
	"os"
	"syscall"
)

// binaryName is the proxy executable's file name.
const binaryName = "hoverfly"

// terminate asks the process to stop gracefully.
func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
