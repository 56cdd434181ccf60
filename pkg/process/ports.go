package process

import (
	"context"
	"fmt"
	"net"
)

// maxPortAttempts bounds how many ports are drawn while skipping ones already used.
const maxPortAttempts = 50

// freePort reserves a loopback TCP port with SO_REUSEADDR, reads its number
// and releases it. Ports in used are skipped; the returned port is added to used.
func freePort(used map[int]bool) (int, error) {
	lc := net.ListenConfig{Control: reuseAddr}
	for range maxPortAttempts {
		ln, err := lc.Listen(context.Background(), "tcp", "127.0.0.1:0")
		if err != nil {
			return 0, err
		}
		port := ln.Addr().(*net.TCPAddr).Port
		_ = ln.Close()
		if used[port] {
			continue
		}
		used[port] = true
		return port, nil
	}
	return 0, fmt.Errorf("no unused port after %d attempts", maxPortAttempts)
}
