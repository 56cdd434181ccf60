package process

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/logging"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name string
		opts []config.Option
		want []string
	}{
		{
			name: "defaults",
			want: []string{"-ap", "1000", "-pp", "2000", "-log-level", "info", "-db", "memory"},
		},
		{
			name: "capture mode",
			opts: []config.Option{config.WithMode(types.ModeCapture)},
			want: []string{"-ap", "1000", "-pp", "2000", "-capture", "-log-level", "info", "-db", "memory"},
		},
		{
			name: "simulate needs no flag",
			opts: []config.Option{config.WithMode(types.ModeSimulate)},
			want: []string{"-ap", "1000", "-pp", "2000", "-log-level", "info", "-db", "memory"},
		},
		{
			name: "everything",
			opts: []config.Option{
				config.WithMode(types.ModeSpy),
				config.WithMiddleware(types.Middleware{Binary: "python3", Script: "mw.py"}),
				config.WithSSLCert("cert.pem"),
				config.WithSSLKey("key.pem"),
				config.WithUpstreamProxy("corp:3128"),
				config.WithDestination("api.example.com"),
				config.WithProxyLocalOnly(true),
				config.WithAuth("admin", "secret"),
				config.WithLogLevel("debug"),
				config.WithCommands("-disable-cache"),
			},
			want: []string{
				"-ap", "1000", "-pp", "2000", "-spy",
				"-middleware", "python3 mw.py",
				"-cert", "cert.pem", "-key", "key.pem",
				"-upstream-proxy", "http://corp:3128",
				"-destination", "api.example.com",
				"-listen-on-host", "127.0.0.1",
				"-auth", "-username", "admin", "-password", "secret",
				"-log-level", "debug", "-db", "memory",
				"-disable-cache",
			},
		},
		{
			name: "remote middleware",
			opts: []config.Option{config.WithMiddleware(types.Middleware{Remote: "http://localhost:9000/mw"})},
			want: []string{
				"-ap", "1000", "-pp", "2000",
				"-middleware", "http://localhost:9000/mw",
				"-log-level", "info", "-db", "memory",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.New(tt.opts...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, buildArgs(cfg, 1000, 2000))
		})
	}
}

func TestTail(t *testing.T) {
	tl := newTail(3)
	for _, line := range []string{"a", "b", "c", "d"} {
		tl.add(line)
	}
	assert.Equal(t, "b\nc\nd", tl.String())
	assert.True(t, tl.contains("c\nd"))
	assert.False(t, tl.contains("a"))
}

func TestPump(t *testing.T) {
	var file bytes.Buffer
	var mu sync.Mutex
	keep := newTail(tailLines)

	err := pump(strings.NewReader("one\ntwo\n"), "stderr", logging.Nop(), &file, &mu, keep)
	require.NoError(t, err)
	assert.Equal(t, "stderr one\nstderr two\n", file.String())
	assert.Equal(t, "one\ntwo", keep.String())
}

func TestPump_DrainsAfterScanError(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte(strings.Repeat("x", 2<<20) + "\n"))
		_, _ = pw.Write([]byte("after\n"))
		_ = pw.Close()
	}()

	err := pump(pr, "stdout", logging.Nop(), nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading stdout")
}

func TestPump_ReadError(t *testing.T) {
	err := pump(iotest.ErrReader(io.ErrUnexpectedEOF), "stdout", logging.Nop(), nil, nil, nil)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestFreePort(t *testing.T) {
	used := map[int]bool{}
	seen := map[int]bool{}
	for range 5 {
		port, err := freePort(used)
		require.NoError(t, err)
		assert.False(t, seen[port], "port %d handed out twice", port)
		seen[port] = true
	}
	assert.Len(t, used, 5)
}
