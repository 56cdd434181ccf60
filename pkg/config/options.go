package config

import (
	"time"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
)

// Option sets one configuration field. Validation happens in New.
type Option func(*settings)

// WithScheme sets the admin API scheme, "http" or "https".
func WithScheme(scheme string) Option {
	return func(s *settings) { s.scheme = scheme }
}

// WithAdminHost sets the host the admin API is reached on.
func WithAdminHost(host string) Option {
	return func(s *settings) { s.adminHost = host }
}

// WithAdminPort sets the admin port. Zero allocates a free port at start.
func WithAdminPort(port int) Option {
	return func(s *settings) { s.adminPort = port }
}

// WithProxyPort sets the proxy port. Zero allocates a free port at start.
func WithProxyPort(port int) Option {
	return func(s *settings) { s.proxyPort = port }
}

// WithProxyLocalOnly binds the proxy to the loopback interface only.
func WithProxyLocalOnly(localOnly bool) Option {
	return func(s *settings) { s.proxyLocalOnly = localOnly }
}

// WithAuthToken sets the bearer token sent to the admin API.
func WithAuthToken(token string) Option {
	return func(s *settings) { s.authToken = token }
}

// WithAuth enables admin authentication on a spawned proxy and logs in with
// these credentials at start.
func WithAuth(username, password string) Option {
	return func(s *settings) {
		s.username = username
		s.password = password
	}
}

// WithSSLCert sets the certificate the proxy presents when intercepting https.
func WithSSLCert(path string) Option {
	return func(s *settings) { s.sslCert = path }
}

// WithSSLKey sets the key matching WithSSLCert.
func WithSSLKey(path string) Option {
	return func(s *settings) { s.sslKey = path }
}

// WithCACert sets the CA certificate trusted for https admin traffic.
func WithCACert(path string) Option {
	return func(s *settings) { s.caCert = path }
}

// WithUpstreamProxy routes the proxy's outbound traffic through another proxy.
// "host:port" is read as "http://host:port".
func WithUpstreamProxy(proxyURL string) Option {
	return func(s *settings) { s.upstreamProxy = proxyURL }
}

// WithDestination restricts the hosts the proxy acts on to those matching the
// regular expression.
func WithDestination(destination string) Option {
	return func(s *settings) { s.destination = destination }
}

// WithCaptureHeaders sets the request headers recorded in capture mode. "*"
// captures every header. Duplicates differing only in case are dropped.
func WithCaptureHeaders(headers ...string) Option {
	return func(s *settings) { s.captureHeaders = append([]string(nil), headers...) }
}

// WithMiddleware registers middleware on a spawned proxy.
func WithMiddleware(mw types.Middleware) Option {
	return func(s *settings) { s.middleware = mw }
}

// WithBinaryLocation points at a proxy executable, skipping cache lookup and download.
func WithBinaryLocation(path string) Option {
	return func(s *settings) { s.binaryLocation = path }
}

// WithLogLevel sets the proxy's log level: debug, info, warn or error.
func WithLogLevel(level string) Option {
	return func(s *settings) { s.logLevel = level }
}

// WithLogToFile writes the proxy's output to a rotating log file.
func WithLogToFile(enabled bool) Option {
	return func(s *settings) { s.logToFile = enabled }
}

// WithLogFile sets the log file path used with WithLogToFile.
func WithLogFile(path string) Option {
	return func(s *settings) {
		s.logFile = path
		if path != "" {
			s.logToFile = true
		}
	}
}

// WithCommands appends raw arguments to the proxy command line.
func WithCommands(args ...string) Option {
	return func(s *settings) { s.commands = append(s.commands, args...) }
}

// WithMode sets the mode the proxy starts in.
func WithMode(mode types.Mode) Option {
	return func(s *settings) { s.mode = mode }
}

// WithRemote drives an already running proxy instead of spawning one.
func WithRemote(remote bool) Option {
	return func(s *settings) { s.remote = remote }
}

// WithStartupTimeout bounds how long start waits for the proxy to become healthy.
func WithStartupTimeout(d time.Duration) Option {
	return func(s *settings) { s.startupTimeout = d }
}

// WithShutdownTimeout bounds how long close waits after asking the proxy to stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *settings) { s.shutdownTimeout = d }
}

// WithLegacyMatchers accepts single-object field matchers in imported simulations.
func WithLegacyMatchers(enabled bool) Option {
	return func(s *settings) { s.legacyMatchers = enabled }
}

// WithCacheDir overrides where downloaded proxy binaries are cached.
func WithCacheDir(dir string) Option {
	return func(s *settings) { s.cacheDir = dir }
}

// WithManifestFile points at a JSON download manifest whose entries take
// precedence over the bundled one. Its layout is that of process.Manifest.
func WithManifestFile(path string) Option {
	return func(s *settings) { s.manifestFile = path }
}

// WithVersion selects the proxy release to download and cache.
func WithVersion(version string) Option {
	return func(s *settings) { s.version = version }
}
