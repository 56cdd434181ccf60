// Package process runs the proxy binary as a child process.
//
// A Manager resolves the binary (configured path, version cache, $PATH or a
// verified download), allocates free ports, spawns the proxy in a scratch
// directory, waits for its admin health check and tears it down on Close:
//
//	m := process.New(cfg, process.WithLogger(logger))
//	inst, err := m.Start(ctx)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//	client := adminclient.New(inst.AdminURL)
package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/hoverfly-go/pkg/adminclient"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/logging"
)

const (
	// maxStartAttempts bounds retries after the child reports a port clash.
	maxStartAttempts = 3

	// healthTimeout bounds one health request during startup.
	healthTimeout = time.Second

	// pipeWaitDelay bounds how long Wait waits for output pipes held open by
	// grandchildren such as middleware scripts.
	pipeWaitDelay = 2 * time.Second

	// defaultLogFileName is used in the temp directory when no log file is set.
	defaultLogFileName = "hoverfly.log"
)

// bindFailures are the messages a proxy prints when a port is taken.
var bindFailures = []string{
	"address already in use",
	"Only one usage of each socket address",
}

var errBindFailed = errors.New("proxy could not bind its ports")

// Instance describes a running proxy.
type Instance struct {
	AdminPort int
	ProxyPort int
	AdminURL  string
	ProxyURL  string
	PID       int
}

// Manager owns at most one proxy child process.
type Manager struct {
	cfg      *config.Config
	log      *slog.Logger
	env      []string
	manifest Manifest
	client   *http.Client
	allocate func(used map[int]bool) (int, error)

	mu    sync.Mutex
	child *child

	terminations atomic.Int32
}

// child is one spawned proxy process.
type child struct {
	cmd     *exec.Cmd
	inst    *Instance
	scratch string
	logFile io.WriteCloser
	output  *tail

	exited  chan struct{}
	waitErr error
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger receiving lifecycle events and proxy output.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.log = logger
		}
	}
}

// WithEnv adds KEY=VALUE pairs to the child's environment.
func WithEnv(kv ...string) Option {
	return func(m *Manager) {
		m.env = append(m.env, kv...)
	}
}

// WithManifest replaces the bundled download manifest.
func WithManifest(manifest Manifest) Option {
	return func(m *Manager) {
		m.manifest = manifest
	}
}

// WithDownloadClient sets the HTTP client used to download the binary.
func WithDownloadClient(client *http.Client) Option {
	return func(m *Manager) {
		if client != nil {
			m.client = client
		}
	}
}

// New creates a Manager for cfg. Nothing is started until Start.
func New(cfg *config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:      cfg,
		log:      logging.Nop(),
		allocate: freePort,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.manifest == nil {
		manifest, err := DefaultManifest()
		if err != nil {
			m.log.Warn("ignoring bundled manifest", "error", err)
		}
		m.manifest = manifest
	}
	if m.client == nil {
		m.client = downloadClient()
	}
	return m
}

// Start resolves the binary, spawns the proxy and blocks until its admin API
// is healthy. The startup timeout bounds the wait; the binary download is
// bounded by ctx alone.
func (m *Manager) Start(ctx context.Context) (*Instance, error) {
	const op = "process.Start"

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.child != nil {
		return nil, errs.Errorf(op, errs.KindAlreadyStarted, "proxy already running with pid %d", m.child.inst.PID)
	}

	binary, err := m.resolveBinary(ctx)
	if err != nil {
		return nil, err
	}

	used := make(map[int]bool)
	for attempt := 1; ; attempt++ {
		adminPort, proxyPort, allocated, err := m.ports(used)
		if err != nil {
			return nil, errs.E(op, errs.KindProxy, fmt.Errorf("allocating ports: %w", err))
		}

		c, err := m.spawn(ctx, binary, adminPort, proxyPort)
		if err == nil {
			m.child = c
			m.log.Info("proxy started",
				"pid", c.inst.PID, "adminPort", adminPort, "proxyPort", proxyPort, "mode", m.cfg.Mode())
			return c.inst, nil
		}
		if !errors.Is(err, errBindFailed) {
			return nil, err
		}
		if !allocated || attempt == maxStartAttempts {
			return nil, errs.Errorf(op, errs.KindProxy,
				"ports %d/%d unavailable after %d attempt(s): %v", adminPort, proxyPort, attempt, err)
		}
		m.log.Warn("proxy port taken, retrying", "attempt", attempt, "adminPort", adminPort, "proxyPort", proxyPort)
	}
}

// ports returns the configured ports, allocating the zero ones. allocated
// reports whether any port was drawn fresh.
func (m *Manager) ports(used map[int]bool) (admin, proxy int, allocated bool, err error) {
	admin, proxy = m.cfg.AdminPort(), m.cfg.ProxyPort()
	used[admin], used[proxy] = true, true
	if admin == 0 {
		if admin, err = m.allocate(used); err != nil {
			return 0, 0, false, err
		}
		allocated = true
	}
	if proxy == 0 {
		if proxy, err = m.allocate(used); err != nil {
			return 0, 0, false, err
		}
		allocated = true
	}
	return admin, proxy, allocated, nil
}

// spawn starts one child on the given ports and waits for readiness. On any
// failure the child is stopped and its resources released.
func (m *Manager) spawn(ctx context.Context, binary string, adminPort, proxyPort int) (*child, error) {
	const op = "process.Start"

	scratch, err := os.MkdirTemp("", "hoverfly-*")
	if err != nil {
		return nil, errs.E(op, errs.KindProxy, err)
	}

	args := buildArgs(m.cfg, adminPort, proxyPort)
	cmd := exec.Command(binary, args...)
	cmd.Dir = scratch
	cmd.Env = append(os.Environ(), m.env...)
	cmd.WaitDelay = pipeWaitDelay

	c := &child{
		cmd:     cmd,
		scratch: scratch,
		output:  newTail(tailLines),
		exited:  make(chan struct{}),
	}
	if m.cfg.LogToFile() {
		path := m.cfg.LogFile()
		if path == "" {
			path = filepath.Join(os.TempDir(), defaultLogFileName)
		}
		c.logFile = logging.RotatingFile(path)
	}

	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	var fileMu sync.Mutex
	var file io.Writer
	if c.logFile != nil {
		file = c.logFile
	}
	var g errgroup.Group
	g.Go(func() error { return pump(outR, "stdout", m.log, file, &fileMu, c.output) })
	g.Go(func() error { return pump(errR, "stderr", m.log, file, &fileMu, c.output) })

	m.log.Debug("spawning proxy", "binary", binary, "args", args, "dir", scratch)
	if err := cmd.Start(); err != nil {
		_ = outW.Close()
		_ = errW.Close()
		_ = g.Wait()
		c.release()
		kind := errs.KindProxy
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, exec.ErrNotFound) {
			kind = errs.KindBinaryNotFound
		}
		return nil, errs.E(op, kind, err)
	}

	go func() {
		c.waitErr = cmd.Wait()
		_ = outW.Close()
		_ = errW.Close()
		if err := g.Wait(); err != nil {
			m.log.Warn("proxy output", "error", err)
		}
		close(c.exited)
	}()

	host := m.cfg.AdminHost()
	c.inst = &Instance{
		AdminPort: adminPort,
		ProxyPort: proxyPort,
		AdminURL:  m.cfg.AdminURL(adminPort),
		ProxyURL:  "http://" + net.JoinHostPort(host, strconv.Itoa(proxyPort)),
		PID:       cmd.Process.Pid,
	}

	if err := m.awaitReady(ctx, c); err != nil {
		m.stop(c)
		return nil, err
	}
	return c, nil
}

// awaitReady polls the child's health endpoint within the startup timeout.
func (m *Manager) awaitReady(ctx context.Context, c *child) error {
	const op = "process.Start"

	tlsConfig, err := m.cfg.TLSConfig()
	if err != nil {
		return err
	}
	client := adminclient.New(c.inst.AdminURL,
		adminclient.WithTimeout(healthTimeout),
		adminclient.WithTLSConfig(tlsConfig),
		adminclient.WithLogger(m.log),
	)
	defer client.Close()

	readyCtx, cancel := context.WithTimeout(ctx, m.cfg.StartupTimeout())
	defer cancel()

	err = waitReady(readyCtx, client, c.exited)
	if err == nil {
		// A foreign process already serving the admin port answers health
		// checks too; the child then dies on bind.
		select {
		case <-c.exited:
			err = errExited
		case <-time.After(readyInitialInterval):
		}
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errExited):
		<-c.exited
		out := c.output.String()
		for _, marker := range bindFailures {
			if c.output.contains(marker) {
				return fmt.Errorf("%w: %s", errBindFailed, out)
			}
		}
		return errs.Errorf(op, errs.KindProxy, "proxy exited before becoming ready (%v): %s", c.waitErr, out)
	case ctx.Err() != nil:
		return errs.E(op, errs.KindTimeout, ctx.Err())
	case errors.Is(err, context.DeadlineExceeded):
		return errs.Errorf(op, errs.KindStartupTimeout,
			"proxy not healthy at %s within %s", c.inst.AdminURL, m.cfg.StartupTimeout())
	default:
		return errs.E(op, errs.KindProxy, err)
	}
}

// Close stops the proxy: a graceful signal, then a kill after the shutdown
// timeout. The scratch directory is removed. Close is idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	c := m.child
	m.child = nil
	m.mu.Unlock()

	if c == nil {
		return nil
	}
	m.stop(c)
	m.log.Info("proxy stopped", "pid", c.inst.PID)
	return nil
}

// stop terminates c and waits for its output to drain.
func (m *Manager) stop(c *child) {
	select {
	case <-c.exited:
	default:
		m.terminations.Add(1)
		if err := terminate(c.cmd.Process); err != nil {
			m.log.Debug("terminate proxy", "pid", c.cmd.Process.Pid, "error", err)
		}
		timer := time.NewTimer(m.cfg.ShutdownTimeout())
		defer timer.Stop()
		select {
		case <-c.exited:
		case <-timer.C:
			m.log.Warn("proxy ignored termination, killing", "pid", c.cmd.Process.Pid)
			_ = c.cmd.Process.Kill()
			<-c.exited
		}
	}
	c.release()
}

func (c *child) release() {
	if c.logFile != nil {
		_ = c.logFile.Close()
	}
	_ = os.RemoveAll(c.scratch)
}

// Instance returns the running proxy, or nil.
func (m *Manager) Instance() *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.child == nil {
		return nil
	}
	return m.child.inst
}

// Exited returns a channel closed when the running proxy exits. Without a
// running proxy the channel is already closed.
func (m *Manager) Exited() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.child == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return m.child.exited
}

// ExitError describes why the proxy exited. It is nil while the proxy runs
// or when none was started.
func (m *Manager) ExitError() error {
	m.mu.Lock()
	c := m.child
	m.mu.Unlock()
	if c == nil {
		return nil
	}
	select {
	case <-c.exited:
	default:
		return nil
	}
	if c.waitErr != nil {
		return fmt.Errorf("proxy pid %d exited: %w", c.inst.PID, c.waitErr)
	}
	return fmt.Errorf("proxy pid %d exited", c.inst.PID)
}
