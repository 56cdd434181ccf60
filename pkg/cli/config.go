package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/getmockd/hoverfly-go/pkg/adminclient"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// config layers the configuration file, HOVERFLY_* variables, the global
// flags and extra, later sources winning.
func (g *globals) config(extra ...config.Option) (*config.Config, error) {
	var opts []config.Option
	if g.configPath != "" {
		fileOpts, err := config.LoadFile(g.configPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, fileOpts...)
	}

	envOpts, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	opts = append(opts, envOpts...)

	if g.adminURL != "" {
		urlOpts, err := adminURLOptions(g.adminURL)
		if err != nil {
			return nil, err
		}
		opts = append(opts, urlOpts...)
	}
	if g.token != "" {
		opts = append(opts, config.WithAuthToken(g.token))
	}
	if g.logLevel != "" {
		opts = append(opts, config.WithLogLevel(g.logLevel))
	}
	return config.New(append(opts, extra...)...)
}

// adminURLOptions splits an admin URL into scheme, host and port options.
func adminURLOptions(raw string) ([]config.Option, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid --admin-url %q: want scheme://host:port", raw)
	}
	opts := []config.Option{
		config.WithScheme(u.Scheme),
		config.WithAdminHost(u.Hostname()),
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port in --admin-url %q", raw)
		}
		opts = append(opts, config.WithAdminPort(port))
	}
	return opts, nil
}

func (g *globals) logger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel()),
		Format: logging.ParseFormat(g.logFormat),
		Output: w,
	})
}

// client returns an admin client for an already running proxy, logged in when
// credentials are configured without a token.
func (g *globals) client(ctx context.Context, stderr io.Writer) (*adminclient.Client, *config.Config, error) {
	cfg, err := g.config(config.WithRemote(true))
	if err != nil {
		return nil, nil, err
	}
	tlsConfig, err := cfg.TLSConfig()
	if err != nil {
		return nil, nil, err
	}

	opts := []adminclient.Option{
		adminclient.WithToken(cfg.AuthToken()),
		adminclient.WithLogger(g.logger(cfg, stderr)),
		adminclient.WithDecodeOptions(cfg.DecodeOptions()...),
	}
	if tlsConfig != nil {
		opts = append(opts, adminclient.WithTLSConfig(tlsConfig))
	}
	client := adminclient.New(cfg.AdminURL(0), opts...)

	if cfg.Username() != "" && cfg.AuthToken() == "" {
		if _, err := client.Login(ctx, cfg.Username(), cfg.Password()); err != nil {
			return nil, nil, err
		}
	}
	return client, cfg, nil
}

// readSimulation decodes a simulation file; .yaml and .yml files are read as YAML.
func readSimulation(path string, opts ...simulation.DecodeOption) (*simulation.Simulation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if isYAML(path) {
		return simulation.FromYAML(data, opts...)
	}
	return simulation.Decode(data, opts...)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
