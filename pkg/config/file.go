package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// File is the YAML form of a configuration. Unset fields keep their defaults.
//
//	adminPort: 8888
//	proxyPort: 8500
//	mode: capture
//	captureHeaders: [Content-Type, Authorization]
//	startupTimeout: 20s
type File struct {
	Scheme          string            `yaml:"scheme,omitempty"`
	AdminHost       string            `yaml:"adminHost,omitempty"`
	AdminPort       int               `yaml:"adminPort,omitempty"`
	ProxyPort       int               `yaml:"proxyPort,omitempty"`
	ProxyLocalOnly  bool              `yaml:"proxyLocalOnly,omitempty"`
	AuthToken       string            `yaml:"authToken,omitempty"`
	Username        string            `yaml:"username,omitempty"`
	Password        string            `yaml:"password,omitempty"`
	SSLCert         string            `yaml:"sslCert,omitempty"`
	SSLKey          string            `yaml:"sslKey,omitempty"`
	CACert          string            `yaml:"caCert,omitempty"`
	UpstreamProxy   string            `yaml:"upstreamProxy,omitempty"`
	Destination     string            `yaml:"destination,omitempty"`
	CaptureHeaders  []string          `yaml:"captureHeaders,omitempty"`
	Middleware      *types.Middleware `yaml:"middleware,omitempty"`
	BinaryLocation  string            `yaml:"binaryLocation,omitempty"`
	LogLevel        string            `yaml:"logLevel,omitempty"`
	LogToFile       bool              `yaml:"logToFile,omitempty"`
	LogFile         string            `yaml:"logFile,omitempty"`
	Commands        []string          `yaml:"commands,omitempty"`
	Mode            types.Mode        `yaml:"mode,omitempty"`
	Remote          bool              `yaml:"remote,omitempty"`
	StartupTimeout  time.Duration     `yaml:"startupTimeout,omitempty"`
	ShutdownTimeout time.Duration     `yaml:"shutdownTimeout,omitempty"`
	LegacyMatchers  bool              `yaml:"legacyMatchers,omitempty"`
	CacheDir        string            `yaml:"cacheDir,omitempty"`
	Manifest        string            `yaml:"manifest,omitempty"`
	Version         string            `yaml:"version,omitempty"`
}

// LoadFile reads a YAML configuration file and returns it as options.
func LoadFile(path string) ([]Option, error) {
	const op = "config.LoadFile"

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.E(op, errs.KindInvalidArgument, err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, errs.E(op, errs.KindInvalidArgument, fmt.Errorf("%s: %w", path, err))
	}
	return f.Options(), nil
}

// ParseFile decodes YAML configuration. Unknown keys are an error.
func ParseFile(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// Options converts the set fields of f into options.
func (f *File) Options() []Option {
	var opts []Option
	add := func(set bool, opt Option) {
		if set {
			opts = append(opts, opt)
		}
	}
	add(f.Scheme != "", WithScheme(f.Scheme))
	add(f.AdminHost != "", WithAdminHost(f.AdminHost))
	add(f.AdminPort != 0, WithAdminPort(f.AdminPort))
	add(f.ProxyPort != 0, WithProxyPort(f.ProxyPort))
	add(f.ProxyLocalOnly, WithProxyLocalOnly(true))
	add(f.AuthToken != "", WithAuthToken(f.AuthToken))
	add(f.Username != "" || f.Password != "", WithAuth(f.Username, f.Password))
	add(f.SSLCert != "", WithSSLCert(f.SSLCert))
	add(f.SSLKey != "", WithSSLKey(f.SSLKey))
	add(f.CACert != "", WithCACert(f.CACert))
	add(f.UpstreamProxy != "", WithUpstreamProxy(f.UpstreamProxy))
	add(f.Destination != "", WithDestination(f.Destination))
	add(len(f.CaptureHeaders) > 0, WithCaptureHeaders(f.CaptureHeaders...))
	if f.Middleware != nil {
		opts = append(opts, WithMiddleware(*f.Middleware))
	}
	add(f.BinaryLocation != "", WithBinaryLocation(f.BinaryLocation))
	add(f.LogLevel != "", WithLogLevel(f.LogLevel))
	add(f.LogToFile, WithLogToFile(true))
	add(f.LogFile != "", WithLogFile(f.LogFile))
	add(len(f.Commands) > 0, WithCommands(f.Commands...))
	add(f.Mode != "", WithMode(f.Mode))
	add(f.Remote, WithRemote(true))
	add(f.StartupTimeout != 0, WithStartupTimeout(f.StartupTimeout))
	add(f.ShutdownTimeout != 0, WithShutdownTimeout(f.ShutdownTimeout))
	add(f.LegacyMatchers, WithLegacyMatchers(true))
	add(f.CacheDir != "", WithCacheDir(f.CacheDir))
	add(f.Manifest != "", WithManifestFile(f.Manifest))
	add(f.Version != "", WithVersion(f.Version))
	return opts
}
