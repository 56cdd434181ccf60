package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, "http", cfg.Scheme())
	assert.Equal(t, "localhost", cfg.AdminHost())
	assert.Zero(t, cfg.AdminPort())
	assert.Zero(t, cfg.ProxyPort())
	assert.Equal(t, types.ModeSimulate, cfg.Mode())
	assert.Equal(t, "info", cfg.LogLevel())
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout())
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout())
	assert.Equal(t, DefaultVersion, cfg.Version())
	assert.Nil(t, cfg.DecodeOptions())
}

func TestNew_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{name: "valid ports", opts: []Option{WithAdminPort(8888), WithProxyPort(8500)}},
		{name: "both ports allocated", opts: []Option{WithAdminPort(0), WithProxyPort(0)}},
		{name: "same ports", opts: []Option{WithAdminPort(8888), WithProxyPort(8888)}, wantErr: "both 8888"},
		{name: "admin port out of range", opts: []Option{WithAdminPort(70000)}, wantErr: "admin port 70000 is out of range"},
		{name: "proxy port negative", opts: []Option{WithProxyPort(-1)}, wantErr: "proxy port -1 is out of range"},
		{name: "cert without key", opts: []Option{WithSSLCert("cert.pem")}, wantErr: "set together"},
		{name: "key without cert", opts: []Option{WithSSLKey("key.pem")}, wantErr: "set together"},
		{name: "cert and key", opts: []Option{WithSSLCert("cert.pem"), WithSSLKey("key.pem")}},
		{name: "username only", opts: []Option{WithAuth("benji", "")}, wantErr: "username and password"},
		{name: "upstream host:port", opts: []Option{WithUpstreamProxy("corp:3128")}},
		{name: "upstream without host", opts: []Option{WithUpstreamProxy("http://")}, wantErr: "missing host"},
		{name: "upstream bad port", opts: []Option{WithUpstreamProxy("corp:99999")}, wantErr: "upstream proxy"},
		{name: "bad scheme", opts: []Option{WithScheme("ftp")}, wantErr: "scheme"},
		{name: "upper case scheme", opts: []Option{WithScheme("HTTPS")}},
		{name: "bad destination", opts: []Option{WithDestination("(")}, wantErr: "regular expression"},
		{name: "bad log level", opts: []Option{WithLogLevel("loud")}, wantErr: "log level"},
		{name: "bad mode", opts: []Option{WithMode("record")}, wantErr: "record"},
		{name: "bad remote middleware", opts: []Option{WithMiddleware(types.Middleware{Remote: "nope"})}, wantErr: "middleware"},
		{name: "zero startup timeout", opts: []Option{WithStartupTimeout(0)}, wantErr: "startup timeout"},
		{name: "negative shutdown timeout", opts: []Option{WithShutdownTimeout(-time.Second)}, wantErr: "shutdown timeout"},
		{name: "empty version", opts: []Option{WithVersion("")}, wantErr: "version"},
		{name: "empty admin host", opts: []Option{WithAdminHost("")}, wantErr: "admin host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := New(tt.opts...)
			if tt.wantErr == "" {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				return
			}
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.True(t, errs.Is(err, errs.KindInvalidArgument))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_Normalizes(t *testing.T) {
	cfg, err := New(
		WithScheme("HTTPS"),
		WithLogLevel("DEBUG"),
		WithMode("Capture"),
		WithUpstreamProxy("corp:3128"),
	)
	require.NoError(t, err)
	assert.Equal(t, "https", cfg.Scheme())
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, types.ModeCapture, cfg.Mode())
	assert.Equal(t, "http://corp:3128", cfg.UpstreamProxy())
}

func TestCaptureHeaders_Dedupe(t *testing.T) {
	cfg, err := New(WithCaptureHeaders("Content-Type", "authorization", "content-type", " ", "Authorization", "X-Trace"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Content-Type", "authorization", "X-Trace"}, cfg.CaptureHeaders())
}

func TestConfig_Immutable(t *testing.T) {
	headers := []string{"A", "B"}
	cfg, err := New(WithCaptureHeaders(headers...), WithCommands("-import", "sim.json"))
	require.NoError(t, err)

	headers[0] = "changed"
	got := cfg.CaptureHeaders()
	got[1] = "changed"
	cmds := cfg.Commands()
	cmds[0] = "changed"

	assert.Equal(t, []string{"A", "B"}, cfg.CaptureHeaders())
	assert.Equal(t, []string{"-import", "sim.json"}, cfg.Commands())
}

func TestConfig_With(t *testing.T) {
	base, err := New(WithAdminPort(8888), WithCommands("-a"))
	require.NoError(t, err)

	derived, err := base.With(WithProxyPort(8500), WithCommands("-b"))
	require.NoError(t, err)
	assert.Equal(t, 8500, derived.ProxyPort())
	assert.Equal(t, []string{"-a", "-b"}, derived.Commands())
	assert.Zero(t, base.ProxyPort())
	assert.Equal(t, []string{"-a"}, base.Commands())

	_, err = base.With(WithProxyPort(8888))
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestRemoteDefaults(t *testing.T) {
	cfg, err := New(WithRemote(true), WithAdminHost("hoverfly.internal"))
	require.NoError(t, err)
	assert.Equal(t, DefaultRemoteAdminPort, cfg.AdminPort())
	assert.Equal(t, DefaultRemoteProxyPort, cfg.ProxyPort())
	assert.Equal(t, "http://hoverfly.internal:8888", cfg.AdminURL(0))
	assert.Equal(t, "http://hoverfly.internal:9999", cfg.AdminURL(9999))
}

func TestLogFileImpliesLogToFile(t *testing.T) {
	cfg, err := New(WithLogFile("/tmp/hoverfly.log"))
	require.NoError(t, err)
	assert.True(t, cfg.LogToFile())
}

func TestLegacyMatchersDecodeOption(t *testing.T) {
	cfg, err := New(WithLegacyMatchers(true))
	require.NoError(t, err)
	assert.Len(t, cfg.DecodeOptions(), 1)
}

// --- File ---

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hoverfly.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
adminPort: 8888
proxyPort: 8500
mode: capture
captureHeaders: [Content-Type, content-type, Authorization]
upstreamProxy: corp:3128
middleware:
  remote: http://localhost:9000/process
startupTimeout: 20s
legacyMatchers: true
commands: ["-import", "sim.json"]
`), 0o600))

	opts, err := LoadFile(path)
	require.NoError(t, err)
	cfg, err := New(opts...)
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.AdminPort())
	assert.Equal(t, 8500, cfg.ProxyPort())
	assert.Equal(t, types.ModeCapture, cfg.Mode())
	assert.Equal(t, []string{"Content-Type", "Authorization"}, cfg.CaptureHeaders())
	assert.Equal(t, "http://corp:3128", cfg.UpstreamProxy())
	assert.Equal(t, "http://localhost:9000/process", cfg.Middleware().Remote)
	assert.Equal(t, 20*time.Second, cfg.StartupTimeout())
	assert.True(t, cfg.LegacyMatchers())
	assert.Equal(t, []string{"-import", "sim.json"}, cfg.Commands())
}

func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"unknown key", "adminPort: 8888\nproxyPorts: 8500\n", "proxyPorts"},
		{"wrong type", "adminPort: lots\n", "lots"},
		{"bad yaml", "adminPort: [\n", "hoverfly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "hoverfly.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o600))
			_, err := LoadFile(path)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindInvalidArgument))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}

func TestParseFile_Empty(t *testing.T) {
	f, err := ParseFile(nil)
	require.NoError(t, err)
	assert.Empty(t, f.Options())
}

// --- Environment ---

func TestFromEnviron(t *testing.T) {
	opts, err := fromEnviron([]string{
		"PATH=/usr/bin",
		"HOVERFLY_ADMIN_PORT=9888",
		"HOVERFLY_PROXY_PORT=9500",
		"HOVERFLY_CAPTURE_HEADERS=Content-Type,Authorization",
		"HOVERFLY_REMOTE=true",
		"HOVERFLY_STARTUP_TIMEOUT=3s",
		"HOVERFLY_USERNAME=benji",
		"HOVERFLY_PASSWORD=secret",
		"HOVERFLY_MANIFEST=/etc/hoverfly/manifest.json",
	})
	require.NoError(t, err)
	cfg, err := New(opts...)
	require.NoError(t, err)

	assert.Equal(t, 9888, cfg.AdminPort())
	assert.Equal(t, 9500, cfg.ProxyPort())
	assert.Equal(t, []string{"Content-Type", "Authorization"}, cfg.CaptureHeaders())
	assert.True(t, cfg.Remote())
	assert.Equal(t, 3*time.Second, cfg.StartupTimeout())
	assert.Equal(t, "benji", cfg.Username())
	assert.Equal(t, "secret", cfg.Password())
	assert.Equal(t, "/etc/hoverfly/manifest.json", cfg.ManifestFile())
}

func TestFromEnviron_Errors(t *testing.T) {
	tests := []struct {
		name    string
		environ []string
		wantErr string
	}{
		{"unknown variable", []string{"HOVERFLY_ADMINPORT=1"}, "HOVERFLY_ADMINPORT"},
		{"bad integer", []string{"HOVERFLY_ADMIN_PORT=high"}, "not an integer"},
		{"bad boolean", []string{"HOVERFLY_REMOTE=sometimes"}, "not a boolean"},
		{"bad duration", []string{"HOVERFLY_STARTUP_TIMEOUT=10"}, "not a duration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fromEnviron(tt.environ)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.KindInvalidArgument))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvMode, "spy")
	opts, err := FromEnv()
	require.NoError(t, err)
	cfg, err := New(opts...)
	require.NoError(t, err)
	assert.Equal(t, types.ModeSpy, cfg.Mode())
}

func TestTLSConfig(t *testing.T) {
	plain, err := New()
	require.NoError(t, err)
	tlsCfg, err := plain.TLSConfig()
	require.NoError(t, err)
	assert.Nil(t, tlsCfg)

	secure, err := New(WithScheme("https"))
	require.NoError(t, err)
	tlsCfg, err = secure.TLSConfig()
	require.NoError(t, err)
	require.NotNil(t, tlsCfg)
	assert.NotNil(t, tlsCfg.RootCAs)

	bad := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	withCA, err := New(WithScheme("https"), WithCACert(bad))
	require.NoError(t, err)
	_, err = withCA.TLSConfig()
	assert.True(t, errs.Is(err, errs.KindInvalidArgument))
}
