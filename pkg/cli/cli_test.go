package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/hoverfly-go/pkg/adminclient"
	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/hoverflytest"
)

// helperEnv makes the test binary serve as the proxy spawned by "start".
const helperEnv = "HOVERFLYTEST_CLI_HELPER"

func TestMain(m *testing.M) {
	if os.Getenv(helperEnv) == "serve" {
		os.Exit(hoverflytest.Main(os.Args[1:]))
	}
	os.Exit(m.Run())
}

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const helloSimulation = `{
  "data": {"pairs": [{"request": {"path": [{"matcher": "exact", "value": "/hello"}]}, "response": {"status": 200, "body": "hi"}}]},
  "meta": {"schemaVersion": "v5.2"}
}`

func TestAdminURLOptions(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr string
	}{
		{name: "host and port", raw: "http://10.0.0.5:9888", want: "http://10.0.0.5:9888"},
		{name: "https", raw: "https://proxy.internal:443", want: "https://proxy.internal:443"},
		{name: "default port", raw: "http://proxy.internal", want: "http://proxy.internal:8888"},
		{name: "no scheme", raw: "localhost:8888", wantErr: "invalid --admin-url"},
		{name: "garbage", raw: "not a url", wantErr: "invalid --admin-url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := adminURLOptions(tt.raw)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			cfg, err := config.New(append(opts, config.WithRemote(true))...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.AdminURL(0))
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		hint string
	}{
		{name: "network", err: errs.Errorf("adminclient.Health", errs.KindNetwork, "refused"), hint: "hoverctl start"},
		{name: "binary", err: errs.Errorf("process.Start", errs.KindBinaryNotFound, "missing"), hint: "HOVERFLY_BINARY"},
		{name: "other kind", err: errs.Errorf("adminclient.SetMode", errs.KindInvalidMode, "bad")},
		{name: "plain", err: assert.AnError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describe(tt.err)
			assert.True(t, strings.HasPrefix(got, tt.err.Error()))
			if tt.hint == "" {
				assert.Equal(t, tt.err.Error(), got)
				return
			}
			assert.Contains(t, got, tt.hint)
		})
	}
}

func TestConfigLayering(t *testing.T) {
	t.Setenv(config.EnvAdminPort, "9777")
	t.Setenv(config.EnvLogLevel, "warn")
	file := writeFile(t, "hoverfly.yaml", "adminHost: files.example.test\nadminPort: 7000\n")

	g := &globals{configPath: file}
	cfg, err := g.config()
	require.NoError(t, err)
	assert.Equal(t, "http://files.example.test:9777", cfg.AdminURL(0), "env overrides the file")
	assert.Equal(t, "warn", cfg.LogLevel())

	g = &globals{configPath: file, adminURL: "http://127.0.0.1:1234", logLevel: "debug"}
	cfg, err = g.config(config.WithMode(types.ModeSpy))
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:1234", cfg.AdminURL(0), "flags override env")
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, types.ModeSpy, cfg.Mode())

	t.Setenv("HOVERFLY_ADMINPORT", "1")
	_, err = (&globals{}).config()
	require.Error(t, err)
}

func TestImportExportCommands(t *testing.T) {
	srv := hoverflytest.NewServer()
	t.Cleanup(srv.Close)
	sim := writeFile(t, "sim.json", helloSimulation)

	code, stdout, stderr := run(t, "import", "--admin-url", srv.AdminURL(), sim)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Imported 1 pair(s)")
	assert.Len(t, srv.Pairs(), 1)

	code, _, stderr = run(t, "import", "--admin-url", srv.AdminURL(), "--append", sim)
	require.Equal(t, 0, code, stderr)
	assert.Len(t, srv.Pairs(), 2)

	out := filepath.Join(t.TempDir(), "exported.json")
	code, _, stderr = run(t, "export", "--admin-url", srv.AdminURL(), "-o", out)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stderr, "Exported 2 pair(s)")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"/hello"`)

	code, stdout, stderr = run(t, "export", "--admin-url", srv.AdminURL(), "--yaml")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "schemaVersion: v5.2")
}

func TestModeCommand(t *testing.T) {
	srv := hoverflytest.NewServer()
	t.Cleanup(srv.Close)

	code, _, stderr := run(t, "mode", "--admin-url", srv.AdminURL(), "capture", "--header", "Content-Type,Authorization", "--stateful")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, types.ModeCapture, srv.Mode())

	client := adminclient.New(srv.AdminURL())
	t.Cleanup(client.Close)
	info, err := client.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"Content-Type", "Authorization"}, info.Arguments.HeadersWhitelist)
	assert.True(t, info.Arguments.Stateful)

	code, _, stderr = run(t, "mode", "--admin-url", srv.AdminURL(), "simulate", "--stateful")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "only apply to capture mode")
	assert.Equal(t, types.ModeCapture, srv.Mode())
}

func TestHealthCommand_Unreachable(t *testing.T) {
	code, stdout, stderr := run(t, "health", "--admin-url", "http://127.0.0.1:1", "--json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, `"status": "unhealthy"`)
	assert.Contains(t, stdout, `"adminUrl": "http://127.0.0.1:1"`)
	assert.Contains(t, stderr, "Is the proxy running?")
}

func TestCommands_Login(t *testing.T) {
	srv := hoverflytest.NewServer(hoverflytest.WithAuth("benji", "secret"))
	t.Cleanup(srv.Close)

	code, _, stderr := run(t, "mode", "--admin-url", srv.AdminURL())
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "status 401")

	t.Setenv(config.EnvUsername, "benji")
	t.Setenv(config.EnvPassword, "secret")
	code, stdout, stderr := run(t, "mode", "--admin-url", srv.AdminURL())
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "simulate\n", stdout)
}

func TestStartCommand(t *testing.T) {
	exe, err := os.Executable()
	require.NoError(t, err)
	t.Setenv(helperEnv, "serve")
	sim := writeFile(t, "sim.json", helloSimulation)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var stdout, stderr syncBuffer
	done := make(chan int, 1)
	go func() {
		done <- Execute(ctx, []string{"start", "--binary", exe, "--import", sim, "--mode", "spy"}, &stdout, &stderr)
	}()

	adminRE := regexp.MustCompile(`Admin URL: (\S+)`)
	var adminURL string
	require.Eventually(t, func() bool {
		if m := adminRE.FindStringSubmatch(stdout.String()); m != nil {
			adminURL = m[1]
			return true
		}
		return false
	}, 15*time.Second, 50*time.Millisecond, "stderr: %s", stderr.String())
	assert.Contains(t, stdout.String(), "Proxy URL: http://")
	assert.Contains(t, stdout.String(), "Mode: spy")

	client := adminclient.New(adminURL)
	t.Cleanup(client.Close)
	mode, err := client.Mode(ctx)
	require.NoError(t, err)
	assert.Equal(t, types.ModeSpy, mode)
	got, err := client.Simulation(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Data.Pairs, 1)

	cancel()
	select {
	case code := <-done:
		assert.Equal(t, 0, code, stderr.String())
	case <-time.After(15 * time.Second):
		t.Fatal("start did not return after cancellation")
	}
	assert.Contains(t, stdout.String(), "Stopping proxy")

	ok, _ := client.Health(context.Background())
	assert.False(t, ok)
}

func TestStartCommand_BinaryNotFound(t *testing.T) {
	t.Setenv(config.EnvCacheDir, t.TempDir())
	code, _, stderr := run(t, "start", "--binary", filepath.Join(t.TempDir(), "hoverfly"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "BinaryNotFound")
	assert.Contains(t, stderr, "HOVERFLY_BINARY")
}
