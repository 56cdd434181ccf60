package hoverflytest

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestRun_PortInUse(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ap", strconv.Itoa(port), "-pp", "0"}, &stdout, &stderr)

	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "address already in use")
}

func TestRun_BadFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-no-such-flag"}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestRun_AuthNeedsCredentials(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-auth", "-ap", "0", "-pp", "0"}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "-username")
}

func TestRun_ExitAfter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ap", "0", "-pp", "0", "-exit-after", "50ms"}, &stdout, &stderr)
	assert.Equal(t, 3, code)
	assert.Contains(t, stdout.String(), "Admin interface port:")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	admin := freePort(t)
	proxy := freePort(t)

	dir := t.TempDir()
	simFile := filepath.Join(dir, "sim.json")
	require.NoError(t, os.WriteFile(simFile, []byte(`{"data":{"pairs":[{"request":{},"response":{"status":204}}]},"meta":{"schemaVersion":"v5"}}`), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	var stdout, stderr bytes.Buffer
	go func() {
		done <- run(ctx, []string{
			"-ap", strconv.Itoa(admin),
			"-pp", strconv.Itoa(proxy),
			"-capture",
			"-import", simFile,
		}, &stdout, &stderr)
	}()

	adminURL := "http://127.0.0.1:" + strconv.Itoa(admin)
	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", "127.0.0.1:"+strconv.Itoa(admin), 50*time.Millisecond)
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 5*time.Second, 20*time.Millisecond, "admin port never opened at %s", adminURL)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
	assert.Contains(t, stdout.String(), "Mode: capture")
}

func TestRun_ImportRejectsV1(t *testing.T) {
	simFile := filepath.Join(t.TempDir(), "sim.json")
	require.NoError(t, os.WriteFile(simFile, []byte(`{"data":{"pairs":[]},"meta":{"schemaVersion":"v1"}}`), 0o600))

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-ap", "0", "-pp", "0", "-import", simFile}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "v1 simulation is not supported")
}
