package process

import (
	"strconv"
	"strings"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
)

// modeFlags maps start modes to the proxy flag selecting them. Simulate is
// the proxy's default and needs none.
var modeFlags = map[types.Mode]string{
	types.ModeCapture:    "-capture",
	types.ModeSpy:        "-spy",
	types.ModeSynthesize: "-synthesize",
	types.ModeModify:     "-modify",
	types.ModeDiff:       "-diff",
}

// buildArgs assembles the proxy command line for cfg on the given ports.
func buildArgs(cfg *config.Config, adminPort, proxyPort int) []string {
	args := []string{
		"-ap", strconv.Itoa(adminPort),
		"-pp", strconv.Itoa(proxyPort),
	}
	if flag, ok := modeFlags[cfg.Mode()]; ok {
		args = append(args, flag)
	}
	if mw := middlewareArg(cfg.Middleware()); mw != "" {
		args = append(args, "-middleware", mw)
	}
	if cfg.SSLCert() != "" {
		args = append(args, "-cert", cfg.SSLCert(), "-key", cfg.SSLKey())
	}
	if cfg.UpstreamProxy() != "" {
		args = append(args, "-upstream-proxy", cfg.UpstreamProxy())
	}
	if cfg.Destination() != "" {
		args = append(args, "-destination", cfg.Destination())
	}
	if cfg.ProxyLocalOnly() {
		args = append(args, "-listen-on-host", "127.0.0.1")
	}
	if cfg.Username() != "" {
		args = append(args, "-auth", "-username", cfg.Username(), "-password", cfg.Password())
	}
	args = append(args, "-log-level", cfg.LogLevel(), "-db", "memory")
	return append(args, cfg.Commands()...)
}

// middlewareArg renders middleware the way the proxy's -middleware flag expects:
// a URL for remote middleware, otherwise "binary script".
func middlewareArg(mw types.Middleware) string {
	if mw.Remote != "" {
		return mw.Remote
	}
	return strings.TrimSpace(mw.Binary + " " + mw.Script)
}
