package hoverfly

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/getmockd/hoverfly-go/pkg/adminclient"
	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/process"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// Hoverfly controls one proxy. It is safe for concurrent use; Start and
// Close serialize with each other.
type Hoverfly struct {
	cfg         *config.Config
	log         *slog.Logger
	processOpts []process.Option
	sourceHTTP  *http.Client

	mu       sync.RWMutex
	client   *adminclient.Client
	proc     *process.Manager
	proxyURL string
}

// Option configures a Hoverfly.
type Option func(*Hoverfly)

// WithLogger sets the logger for lifecycle events and proxy output.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Hoverfly) {
		if logger != nil {
			h.log = logger
		}
	}
}

// WithProcessOptions passes options to the process manager.
func WithProcessOptions(opts ...process.Option) Option {
	return func(h *Hoverfly) {
		h.processOpts = append(h.processOpts, opts...)
	}
}

// WithSourceClient sets the HTTP client FromURL sources are fetched with.
func WithSourceClient(hc *http.Client) Option {
	return func(h *Hoverfly) {
		if hc != nil {
			h.sourceHTTP = hc
		}
	}
}

// New creates a Hoverfly for cfg. A nil cfg means the defaults.
func New(cfg *config.Config, opts ...Option) *Hoverfly {
	if cfg == nil {
		cfg, _ = config.New()
	}
	h := &Hoverfly{
		cfg:        cfg,
		log:        logging.Nop(),
		sourceHTTP: &http.Client{Timeout: time.Minute},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Config returns the configuration the proxy was started with.
func (h *Hoverfly) Config() *config.Config {
	return h.cfg
}

// Start brings the proxy up: it spawns the binary, or checks the configured
// endpoint is healthy when the configuration is remote. It then logs in when
// credentials are set and applies the start mode. A remote proxy keeps its
// current mode unless a mode other than simulate is configured.
func (h *Hoverfly) Start(ctx context.Context) error {
	const op = "hoverfly.Start"

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.client != nil {
		return errs.Errorf(op, errs.KindAlreadyStarted, "proxy already running at %s", h.client.BaseURL())
	}

	tlsConfig, err := h.cfg.TLSConfig()
	if err != nil {
		return err
	}

	var (
		adminURL string
		proxyURL string
		proc     *process.Manager
	)
	if h.cfg.Remote() {
		adminURL = h.cfg.AdminURL(0)
		proxyURL = "http://" + net.JoinHostPort(h.cfg.AdminHost(), strconv.Itoa(h.cfg.ProxyPort()))
	} else {
		proc = process.New(h.cfg, append([]process.Option{process.WithLogger(h.log)}, h.processOpts...)...)
		inst, err := proc.Start(ctx)
		if err != nil {
			return err
		}
		adminURL, proxyURL = inst.AdminURL, inst.ProxyURL
	}

	clientOpts := []adminclient.Option{
		adminclient.WithToken(h.cfg.AuthToken()),
		adminclient.WithLogger(h.log),
		adminclient.WithDecodeOptions(h.cfg.DecodeOptions()...),
	}
	if tlsConfig != nil {
		clientOpts = append(clientOpts, adminclient.WithTLSConfig(tlsConfig))
	}
	client := adminclient.New(adminURL, clientOpts...)

	if err := h.configure(ctx, client); err != nil {
		client.Close()
		if proc != nil {
			_ = proc.Close()
		}
		return err
	}

	h.client, h.proc, h.proxyURL = client, proc, proxyURL
	h.log.Info("hoverfly ready", "admin", adminURL, "proxy", proxyURL, "mode", h.cfg.Mode(), "remote", proc == nil)
	return nil
}

// configure prepares a freshly reachable proxy.
func (h *Hoverfly) configure(ctx context.Context, client *adminclient.Client) error {
	const op = "hoverfly.Start"

	if h.cfg.Remote() {
		ok, err := client.Health(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Errorf(op, errs.KindProxy, "proxy at %s is not healthy", client.BaseURL())
		}
	}

	if h.cfg.Username() != "" && h.cfg.AuthToken() == "" {
		if _, err := client.Login(ctx, h.cfg.Username(), h.cfg.Password()); err != nil {
			return err
		}
	}

	if h.cfg.Remote() {
		if dest := h.cfg.Destination(); dest != "" {
			if err := client.SetDestination(ctx, dest); err != nil {
				return err
			}
		}
		if upstream := h.cfg.UpstreamProxy(); upstream != "" {
			if err := client.SetUpstreamProxy(ctx, upstream); err != nil {
				return err
			}
		}
		if mw := h.cfg.Middleware(); !mw.IsZero() {
			if _, err := client.SetMiddleware(ctx, mw); err != nil {
				return err
			}
		}
	}

	headers := h.cfg.CaptureHeaders()
	capture := h.cfg.Mode() == types.ModeCapture
	switch {
	case capture && len(headers) > 0:
		return client.SetMode(ctx, types.ModeCapture, &types.ModeArguments{HeadersWhitelist: headers})
	case h.cfg.Remote() && h.cfg.Mode() != types.ModeSimulate:
		return client.SetMode(ctx, h.cfg.Mode(), nil)
	}
	return nil
}

// Close stops the proxy and invalidates the admin client. Closing a remote
// proxy only drops the client. Close is idempotent.
func (h *Hoverfly) Close() error {
	h.mu.Lock()
	client, proc := h.client, h.proc
	h.client, h.proc, h.proxyURL = nil, nil, ""
	h.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if proc != nil {
		return proc.Close()
	}
	return nil
}

// ready returns the admin client, or a NotStarted error when the proxy is
// not running.
func (h *Hoverfly) ready(op string) (*adminclient.Client, error) {
	h.mu.RLock()
	client, proc := h.client, h.proc
	h.mu.RUnlock()

	if client == nil {
		return nil, errs.Errorf(op, errs.KindNotStarted, "proxy is not running")
	}
	if proc != nil {
		select {
		case <-proc.Exited():
			return nil, errs.E(op, errs.KindNotStarted, proc.ExitError())
		default:
		}
	}
	return client, nil
}

// AdminClient returns the client for the running proxy, or nil.
func (h *Hoverfly) AdminClient() *adminclient.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// AdminURL returns the admin API base URL, or "" when not started.
func (h *Hoverfly) AdminURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.client == nil {
		return ""
	}
	return h.client.BaseURL()
}

// ProxyURL returns the URL to configure as an HTTP proxy, or "" when not started.
func (h *Hoverfly) ProxyURL() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.proxyURL
}

// ImportSimulation replaces the proxy's simulation with the one src produces.
func (h *Hoverfly) ImportSimulation(ctx context.Context, src Source) error {
	return h.upload(ctx, "hoverfly.ImportSimulation", src, (*adminclient.Client).SetSimulation)
}

// AddSimulation appends the pairs src produces to the proxy's simulation.
func (h *Hoverfly) AddSimulation(ctx context.Context, src Source) error {
	return h.upload(ctx, "hoverfly.AddSimulation", src, (*adminclient.Client).AddSimulation)
}

func (h *Hoverfly) upload(ctx context.Context, op string, src Source,
	send func(*adminclient.Client, context.Context, *simulation.Simulation) error) error {
	client, err := h.ready(op)
	if err != nil {
		return err
	}
	if src.load == nil {
		return errs.Errorf(op, errs.KindInvalidArgument, "empty simulation source")
	}
	sim, err := src.load(ctx, h.sourceHTTP, h.cfg.DecodeOptions())
	if err != nil {
		return errs.E(op, kindOr(err, errs.KindInvalidArgument), err)
	}
	h.log.Debug("uploading simulation", "op", op, "source", src.String(), "pairs", len(sim.Data.Pairs))
	return send(client, ctx, sim)
}

// ExportSimulation returns the proxy's current simulation.
func (h *Hoverfly) ExportSimulation(ctx context.Context) (*simulation.Simulation, error) {
	client, err := h.ready("hoverfly.ExportSimulation")
	if err != nil {
		return nil, err
	}
	return client.Simulation(ctx)
}

// SetMode switches the proxy's mode. args only matter for capture.
func (h *Hoverfly) SetMode(ctx context.Context, mode types.Mode, args *types.ModeArguments) error {
	client, err := h.ready("hoverfly.SetMode")
	if err != nil {
		return err
	}
	return client.SetMode(ctx, mode, args)
}

// Info returns the proxy's current settings.
func (h *Hoverfly) Info(ctx context.Context) (*types.HoverflyInfo, error) {
	client, err := h.ready("hoverfly.Info")
	if err != nil {
		return nil, err
	}
	return client.Info(ctx)
}

// Reset returns the proxy to a clean simulate state: no simulation, journal
// or state, and every destination proxied.
func (h *Hoverfly) Reset(ctx context.Context) error {
	client, err := h.ready("hoverfly.Reset")
	if err != nil {
		return err
	}
	steps := []func(context.Context) error{
		client.DeleteSimulation,
		client.DeleteJournal,
		client.DeleteState,
		func(ctx context.Context) error { return client.SetDestination(ctx, ".") },
		func(ctx context.Context) error { return client.SetMode(ctx, types.ModeSimulate, nil) },
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}

func kindOr(err error, fallback errs.Kind) errs.Kind {
	if kind := errs.KindOf(err); kind != "" {
		return kind
	}
	return fallback
}
