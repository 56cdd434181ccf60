package process

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/hoverflytest"
)

// helperEnv makes the test binary act as the proxy. Its value picks the
// behavior: "serve" runs the fake proxy, "hang" never becomes healthy and
// ignores SIGTERM, "crash" prints to stderr and exits 1.
const helperEnv = "HOVERFLYTEST_PROCESS_HELPER"

func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "serve":
		os.Exit(hoverflytest.Main(os.Args[1:]))
	case "hang":
		signal.Ignore(syscall.SIGTERM, os.Interrupt)
		time.Sleep(time.Minute)
		os.Exit(0)
	case "crash":
		fmt.Fprintln(os.Stderr, "fatal: could not load certificate")
		os.Exit(1)
	}
}

func helperConfig(t *testing.T, opts ...config.Option) *config.Config {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)
	base := []config.Option{
		config.WithBinaryLocation(exe),
		config.WithStartupTimeout(10 * time.Second),
		config.WithShutdownTimeout(2 * time.Second),
	}
	cfg, err := config.New(append(base, opts...)...)
	require.NoError(t, err)
	return cfg
}

func helperManager(t *testing.T, behavior string, cfg *config.Config, opts ...Option) *Manager {
	t.Helper()
	m := New(cfg, append([]Option{WithEnv(helperEnv + "=" + behavior)}, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func healthy(t *testing.T, adminURL string) bool {
	t.Helper()
	resp, err := http.Get(adminURL + "/api/health")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func TestManager_StartAndClose(t *testing.T) {
	m := helperManager(t, "serve", helperConfig(t))

	inst, err := m.Start(context.Background())
	require.NoError(t, err)

	assert.NotZero(t, inst.AdminPort)
	assert.NotZero(t, inst.ProxyPort)
	assert.NotEqual(t, inst.AdminPort, inst.ProxyPort)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", inst.AdminPort), inst.AdminURL)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", inst.ProxyPort), inst.ProxyURL)
	assert.True(t, healthy(t, inst.AdminURL))
	assert.Same(t, inst, m.Instance())
	assert.NoError(t, m.ExitError())

	select {
	case <-m.Exited():
		t.Fatal("proxy exited while running")
	default:
	}

	exited := m.Exited()
	require.NoError(t, m.Close())
	<-exited
	assert.False(t, healthy(t, inst.AdminURL))
	assert.Nil(t, m.Instance())
}

func TestManager_CloseIsIdempotent(t *testing.T) {
	m := helperManager(t, "serve", helperConfig(t))
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	assert.Equal(t, int32(1), m.terminations.Load())
}

func TestManager_CloseBeforeStart(t *testing.T) {
	m := New(helperConfig(t))
	assert.NoError(t, m.Close())

	select {
	case <-m.Exited():
	default:
		t.Fatal("Exited should be closed without a running proxy")
	}
}

func TestManager_AlreadyStarted(t *testing.T) {
	m := helperManager(t, "serve", helperConfig(t))
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	_, err = m.Start(context.Background())
	assert.True(t, errs.Is(err, errs.KindAlreadyStarted), "got %v", err)
}

func TestManager_RestartAfterClose(t *testing.T) {
	m := helperManager(t, "serve", helperConfig(t))
	first, err := m.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	second, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.PID, second.PID)
	assert.True(t, healthy(t, second.AdminURL))
}

func TestManager_ConfiguredPortsAndMode(t *testing.T) {
	adminPort, err := freePort(map[int]bool{})
	require.NoError(t, err)
	proxyPort, err := freePort(map[int]bool{adminPort: true})
	require.NoError(t, err)

	cfg := helperConfig(t,
		config.WithAdminPort(adminPort),
		config.WithProxyPort(proxyPort),
		config.WithMode(types.ModeCapture),
	)
	m := helperManager(t, "serve", cfg)

	inst, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, adminPort, inst.AdminPort)
	assert.Equal(t, proxyPort, inst.ProxyPort)

	resp, err := http.Get(inst.AdminURL + "/api/v2/hoverfly/mode")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"capture"`)
}

func TestManager_RetriesPortClash(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()
	busyPort := busy.Addr().(*net.TCPAddr).Port

	calls := 0
	m := helperManager(t, "serve", helperConfig(t))
	m.allocate = func(used map[int]bool) (int, error) {
		calls++
		if calls == 1 {
			used[busyPort] = true
			return busyPort, nil
		}
		return freePort(used)
	}

	inst, err := m.Start(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, busyPort, inst.AdminPort)
	assert.NotEqual(t, busyPort, inst.ProxyPort)
	assert.Equal(t, 4, calls, "two ports per attempt")
}

func TestManager_ConfiguredPortClashIsNotRetried(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()
	busyPort := busy.Addr().(*net.TCPAddr).Port
	proxyPort, err := freePort(map[int]bool{busyPort: true})
	require.NoError(t, err)

	cfg := helperConfig(t, config.WithAdminPort(busyPort), config.WithProxyPort(proxyPort))
	m := helperManager(t, "serve", cfg)

	_, err = m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProxy), "got %v", err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestManager_EarlyExit(t *testing.T) {
	m := helperManager(t, "crash", helperConfig(t))

	start := time.Now()
	_, err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindProxy), "got %v", err)
	assert.Contains(t, err.Error(), "could not load certificate")
	assert.Less(t, time.Since(start), 5*time.Second, "early exit should fail fast")
	assert.Nil(t, m.Instance())
}

func TestManager_StartupTimeout(t *testing.T) {
	cfg := helperConfig(t,
		config.WithStartupTimeout(500*time.Millisecond),
		config.WithShutdownTimeout(200*time.Millisecond),
	)
	m := helperManager(t, "hang", cfg)

	_, err := m.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindStartupTimeout), "got %v", err)
	assert.Equal(t, int32(1), m.terminations.Load())
	assert.Nil(t, m.Instance())
}

func TestManager_ContextCancelled(t *testing.T) {
	m := helperManager(t, "hang", helperConfig(t, config.WithShutdownTimeout(200*time.Millisecond)))

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_, err := m.Start(ctx)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindTimeout), "got %v", err)
}

func TestManager_ExitDetected(t *testing.T) {
	cfg := helperConfig(t, config.WithCommands("-exit-after", "1s"))
	m := helperManager(t, "serve", cfg)

	_, err := m.Start(context.Background())
	require.NoError(t, err)

	select {
	case <-m.Exited():
	case <-time.After(10 * time.Second):
		t.Fatal("exit not observed")
	}
	require.Error(t, m.ExitError())
	assert.Contains(t, m.ExitError().Error(), "exit status 3")
}

func TestManager_LogToFile(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "proxy.log")
	m := helperManager(t, "serve", helperConfig(t, config.WithLogFile(logFile)))

	inst, err := m.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprintf("stdout Admin interface port: %d", inst.AdminPort))
}

func TestManager_ScratchDirRemoved(t *testing.T) {
	m := helperManager(t, "serve", helperConfig(t))
	_, err := m.Start(context.Background())
	require.NoError(t, err)

	m.mu.Lock()
	scratch := m.child.scratch
	m.mu.Unlock()
	require.DirExists(t, scratch)

	require.NoError(t, m.Close())
	assert.NoDirExists(t, scratch)
}

func TestManager_MissingBinary(t *testing.T) {
	cfg, err := config.New(config.WithBinaryLocation(filepath.Join(t.TempDir(), "nope")))
	require.NoError(t, err)

	_, err = New(cfg).Start(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindBinaryNotFound), "got %v", err)
	assert.True(t, strings.Contains(err.Error(), "does not exist"))
}
