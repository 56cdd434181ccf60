//go:build windows

package process

import "os"

const binaryName = "hoverfly.exe"

// terminate asks the process to stop. Windows cannot deliver os.Interrupt to
// another process, so a failed interrupt falls back to killing it.
func terminate(p *os.Process) error {
	if err := p.Signal(os.Interrupt); err != nil {
		return p.Kill()
	}
	return nil
}
