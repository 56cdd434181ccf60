package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// EnvPrefix prefixes every environment variable FromEnv reads.
const EnvPrefix = "HOVERFLY_"

// Environment variable names.
const (
	EnvScheme          = "HOVERFLY_SCHEME"
	EnvAdminHost       = "HOVERFLY_ADMIN_HOST"
	EnvAdminPort       = "HOVERFLY_ADMIN_PORT"
	EnvProxyPort       = "HOVERFLY_PROXY_PORT"
	EnvProxyLocalOnly  = "HOVERFLY_PROXY_LOCAL_ONLY"
	EnvAuthToken       = "HOVERFLY_AUTH_TOKEN"
	EnvUsername        = "HOVERFLY_USERNAME"
	EnvPassword        = "HOVERFLY_PASSWORD"
	EnvSSLCert         = "HOVERFLY_SSL_CERT"
	EnvSSLKey          = "HOVERFLY_SSL_KEY"
	EnvCACert          = "HOVERFLY_CA_CERT"
	EnvUpstreamProxy   = "HOVERFLY_UPSTREAM_PROXY"
	EnvDestination     = "HOVERFLY_DESTINATION"
	EnvCaptureHeaders  = "HOVERFLY_CAPTURE_HEADERS"
	EnvBinaryLocation  = "HOVERFLY_BINARY"
	EnvLogLevel        = "HOVERFLY_LOG_LEVEL"
	EnvLogFile         = "HOVERFLY_LOG_FILE"
	EnvMode            = "HOVERFLY_MODE"
	EnvRemote          = "HOVERFLY_REMOTE"
	EnvStartupTimeout  = "HOVERFLY_STARTUP_TIMEOUT"
	EnvShutdownTimeout = "HOVERFLY_SHUTDOWN_TIMEOUT"
	EnvLegacyMatchers  = "HOVERFLY_LEGACY_MATCHERS"
	EnvCacheDir        = "HOVERFLY_CACHE_DIR"
	EnvManifest        = "HOVERFLY_MANIFEST"
	EnvVersion         = "HOVERFLY_VERSION"
)

type envParser func(value string) (Option, error)

var envParsers = map[string]envParser{
	EnvScheme:         str(WithScheme),
	EnvAdminHost:      str(WithAdminHost),
	EnvAdminPort:      integer(WithAdminPort),
	EnvProxyPort:      integer(WithProxyPort),
	EnvProxyLocalOnly: boolean(WithProxyLocalOnly),
	EnvAuthToken:      str(WithAuthToken),
	EnvUsername: func(v string) (Option, error) {
		return func(s *settings) { s.username = v }, nil
	},
	EnvPassword: func(v string) (Option, error) {
		return func(s *settings) { s.password = v }, nil
	},
	EnvSSLCert:       str(WithSSLCert),
	EnvSSLKey:        str(WithSSLKey),
	EnvCACert:        str(WithCACert),
	EnvUpstreamProxy: str(WithUpstreamProxy),
	EnvDestination:   str(WithDestination),
	EnvCaptureHeaders: func(v string) (Option, error) {
		return WithCaptureHeaders(strings.Split(v, ",")...), nil
	},
	EnvBinaryLocation: str(WithBinaryLocation),
	EnvLogLevel:       str(WithLogLevel),
	EnvLogFile:        str(WithLogFile),
	EnvMode: func(v string) (Option, error) {
		return WithMode(types.Mode(v)), nil
	},
	EnvRemote:          boolean(WithRemote),
	EnvStartupTimeout:  duration(WithStartupTimeout),
	EnvShutdownTimeout: duration(WithShutdownTimeout),
	EnvLegacyMatchers:  boolean(WithLegacyMatchers),
	EnvCacheDir:        str(WithCacheDir),
	EnvManifest:        str(WithManifestFile),
	EnvVersion:         str(WithVersion),
}

func str(with func(string) Option) envParser {
	return func(v string) (Option, error) { return with(v), nil }
}

func integer(with func(int) Option) envParser {
	return func(v string) (Option, error) {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %q", v)
		}
		return with(n), nil
	}
}

func boolean(with func(bool) Option) envParser {
	return func(v string) (Option, error) {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("not a boolean: %q", v)
		}
		return with(b), nil
	}
}

func duration(with func(time.Duration) Option) envParser {
	return func(v string) (Option, error) {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("not a duration: %q", v)
		}
		return with(d), nil
	}
}

// FromEnv returns options for every HOVERFLY_* variable in the environment.
// An unrecognized HOVERFLY_* name or an unparseable value is an error.
func FromEnv() ([]Option, error) {
	return fromEnviron(os.Environ())
}

func fromEnviron(environ []string) ([]Option, error) {
	const op = "config.FromEnv"

	vars := map[string]string{}
	for _, kv := range environ {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		vars[name] = value
	}
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	var opts []Option
	for _, name := range names {
		parse, ok := envParsers[name]
		if !ok {
			return nil, errs.Errorf(op, errs.KindInvalidArgument, "unknown variable %s", name)
		}
		opt, err := parse(vars[name])
		if err != nil {
			return nil, errs.Errorf(op, errs.KindInvalidArgument, "%s: %v", name, err)
		}
		opts = append(opts, opt)
	}
	return opts, nil
}
