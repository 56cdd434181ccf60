// Package config builds the immutable configuration shared by the process
// manager, the facade and hoverctl.
//
// A Config is assembled from functional options and validated once:
//
//	cfg, err := config.New(
//	    config.WithProxyPort(8500),
//	    config.WithCaptureHeaders("Content-Type", "Authorization"),
//	)
//
// Options can also come from a YAML file (LoadFile) or from HOVERFLY_*
// environment variables (FromEnv); both reject keys they do not recognize.
// Later options win, so callers usually apply file, then environment, then
// their own options.
package config

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// Defaults.
const (
	DefaultScheme          = "http"
	DefaultAdminHost       = "localhost"
	DefaultLogLevel        = "info"
	DefaultVersion         = "v1.10.5"
	DefaultStartupTimeout  = 10 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	// Ports assumed for a remote proxy when none are given.
	DefaultRemoteAdminPort = 8888
	DefaultRemoteProxyPort = 8500
)

// settings is the mutable form options write into.
type settings struct {
	scheme          string
	adminHost       string
	adminPort       int
	proxyPort       int
	proxyLocalOnly  bool
	authToken       string
	username        string
	password        string
	sslCert         string
	sslKey          string
	caCert          string
	upstreamProxy   string
	destination     string
	captureHeaders  []string
	middleware      types.Middleware
	binaryLocation  string
	logLevel        string
	logToFile       bool
	logFile         string
	commands        []string
	mode            types.Mode
	remote          bool
	startupTimeout  time.Duration
	shutdownTimeout time.Duration
	legacyMatchers  bool
	cacheDir        string
	manifestFile    string
	version         string
}

// Config is an immutable, validated configuration. The zero value is not
// usable; build one with New.
type Config struct {
	s settings
}

// New applies opts over the defaults and validates the result. Validation
// failures are errs.KindInvalidArgument.
func New(opts ...Option) (*Config, error) {
	s := settings{
		scheme:          DefaultScheme,
		adminHost:       DefaultAdminHost,
		logLevel:        DefaultLogLevel,
		mode:            types.ModeSimulate,
		startupTimeout:  DefaultStartupTimeout,
		shutdownTimeout: DefaultShutdownTimeout,
		version:         DefaultVersion,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &Config{s: s}, nil
}

// With returns a copy of c with opts applied and validated again.
func (c *Config) With(opts ...Option) (*Config, error) {
	s := c.s
	s.captureHeaders = slices.Clone(c.s.captureHeaders)
	s.commands = slices.Clone(c.s.commands)
	for _, opt := range opts {
		opt(&s)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &Config{s: s}, nil
}

func invalid(format string, args ...any) error {
	return errs.Errorf("config.New", errs.KindInvalidArgument, format, args...)
}

// normalize validates s and rewrites fields into canonical form.
func (s *settings) normalize() error {
	s.scheme = strings.ToLower(s.scheme)
	if s.scheme != "http" && s.scheme != "https" {
		return invalid("scheme must be http or https, got %q", s.scheme)
	}
	if s.adminHost == "" {
		return invalid("admin host is empty")
	}

	if s.remote {
		if s.adminPort == 0 {
			s.adminPort = DefaultRemoteAdminPort
		}
		if s.proxyPort == 0 {
			s.proxyPort = DefaultRemoteProxyPort
		}
	}
	if s.adminPort < 0 || s.adminPort > 65535 {
		return invalid("admin port %d is out of range", s.adminPort)
	}
	if s.proxyPort < 0 || s.proxyPort > 65535 {
		return invalid("proxy port %d is out of range", s.proxyPort)
	}
	if s.adminPort != 0 && s.adminPort == s.proxyPort {
		return invalid("proxy port and admin port are both %d", s.adminPort)
	}

	if (s.sslCert == "") != (s.sslKey == "") {
		return invalid("ssl cert and ssl key must be set together")
	}
	if (s.username == "") != (s.password == "") {
		return invalid("username and password must be set together")
	}

	if s.upstreamProxy != "" {
		normalized, err := normalizeProxyURL(s.upstreamProxy)
		if err != nil {
			return invalid("upstream proxy %q: %v", s.upstreamProxy, err)
		}
		s.upstreamProxy = normalized
	}
	if s.destination != "" {
		if _, err := regexp.Compile(s.destination); err != nil {
			return invalid("destination %q is not a valid regular expression: %v", s.destination, err)
		}
	}
	if s.middleware.Remote != "" {
		if u, err := url.Parse(s.middleware.Remote); err != nil || u.Host == "" {
			return invalid("remote middleware %q is not a URL", s.middleware.Remote)
		}
	}

	s.captureHeaders = dedupeFold(s.captureHeaders)

	if !logging.ValidLevel(s.logLevel) {
		return invalid("unknown log level %q", s.logLevel)
	}
	s.logLevel = strings.ToLower(s.logLevel)

	mode, err := types.ParseMode(string(s.mode))
	if err != nil {
		return invalid("%v", err)
	}
	s.mode = mode

	if s.startupTimeout <= 0 {
		return invalid("startup timeout must be positive")
	}
	if s.shutdownTimeout <= 0 {
		return invalid("shutdown timeout must be positive")
	}
	if s.version == "" {
		return invalid("version is empty")
	}
	return nil
}

// normalizeProxyURL accepts "host:port" as shorthand for "http://host:port".
func normalizeProxyURL(raw string) (string, error) {
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	if port := u.Port(); port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", fmt.Errorf("bad port %q", port)
		}
	}
	return u.String(), nil
}

// dedupeFold drops case-insensitive duplicates, keeping the first spelling.
func dedupeFold(headers []string) []string {
	if len(headers) == 0 {
		return nil
	}
	fold := cases.Fold()
	seen := make(map[string]bool, len(headers))
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		key := fold.String(h)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, h)
	}
	return out
}

// Scheme returns the admin API scheme, http or https.
func (c *Config) Scheme() string {
	return c.s.scheme
}

// AdminHost returns the host the admin API and proxy are reached on.
func (c *Config) AdminHost() string {
	return c.s.adminHost
}

// AdminPort returns the configured admin port; zero means allocate one.
func (c *Config) AdminPort() int {
	return c.s.adminPort
}

// ProxyPort returns the configured proxy port; zero means allocate one.
func (c *Config) ProxyPort() int {
	return c.s.proxyPort
}

// ProxyLocalOnly reports whether the proxy binds to loopback only.
func (c *Config) ProxyLocalOnly() bool {
	return c.s.proxyLocalOnly
}

// AuthToken returns the bearer token for the admin API, or "".
func (c *Config) AuthToken() string {
	return c.s.authToken
}

// Username returns the admin API user; set together with Password.
func (c *Config) Username() string {
	return c.s.username
}

// Password returns the admin API password.
func (c *Config) Password() string {
	return c.s.password
}

// SSLCert returns the certificate the proxy presents, passed as -cert.
func (c *Config) SSLCert() string {
	return c.s.sslCert
}

// SSLKey returns the key for SSLCert, passed as -key.
func (c *Config) SSLKey() string {
	return c.s.sslKey
}

// CACert returns the CA certificate path trusted for https admin traffic.
func (c *Config) CACert() string {
	return c.s.caCert
}

// UpstreamProxy returns the normalized upstream proxy URL.
func (c *Config) UpstreamProxy() string {
	return c.s.upstreamProxy
}

// Destination returns the regular expression of hosts the proxy intercepts.
func (c *Config) Destination() string {
	return c.s.destination
}

// Middleware returns the middleware the proxy runs responses through.
func (c *Config) Middleware() types.Middleware {
	return c.s.middleware
}

// BinaryLocation returns the explicit proxy binary path; "" means look it up.
func (c *Config) BinaryLocation() string {
	return c.s.binaryLocation
}

// LogLevel returns the log level for both the client and the proxy.
func (c *Config) LogLevel() string {
	return c.s.logLevel
}

// LogToFile reports whether proxy output is also written to LogFile.
func (c *Config) LogToFile() bool {
	return c.s.logToFile
}

// LogFile returns the proxy output log path; empty means hoverfly.log in the system temp directory.
func (c *Config) LogFile() string {
	return c.s.logFile
}

// Mode returns the mode the proxy starts in.
func (c *Config) Mode() types.Mode {
	return c.s.mode
}

// Remote reports whether an existing proxy is driven instead of spawning one.
func (c *Config) Remote() bool {
	return c.s.remote
}

// StartupTimeout bounds how long Start waits for the admin API to become healthy.
func (c *Config) StartupTimeout() time.Duration {
	return c.s.startupTimeout
}

// ShutdownTimeout is how long Close waits after terminating before killing.
func (c *Config) ShutdownTimeout() time.Duration {
	return c.s.shutdownTimeout
}

// LegacyMatchers reports whether single-object field matchers are accepted.
func (c *Config) LegacyMatchers() bool {
	return c.s.legacyMatchers
}

// CacheDir returns the binary cache directory override.
func (c *Config) CacheDir() string {
	return c.s.cacheDir
}

// ManifestFile returns the path of a download manifest that overrides the
// bundled one, or "".
func (c *Config) ManifestFile() string {
	return c.s.manifestFile
}

// Version returns the proxy release used for downloads and the cache layout.
func (c *Config) Version() string {
	return c.s.version
}

// CaptureHeaders returns a copy of the deduplicated capture header list.
func (c *Config) CaptureHeaders() []string { return slices.Clone(c.s.captureHeaders) }

// Commands returns a copy of the pass-through proxy arguments.
func (c *Config) Commands() []string { return slices.Clone(c.s.commands) }

// AdminURL returns the admin API base URL for port, e.g. "http://localhost:8888".
// A zero port means the configured admin port.
func (c *Config) AdminURL(port int) string {
	if port == 0 {
		port = c.s.adminPort
	}
	return c.s.scheme + "://" + net.JoinHostPort(c.s.adminHost, strconv.Itoa(port))
}

// DecodeOptions returns the simulation decode options implied by the configuration.
func (c *Config) DecodeOptions() []simulation.DecodeOption {
	if c.s.legacyMatchers {
		return []simulation.DecodeOption{simulation.WithLegacyMatchers()}
	}
	return nil
}
