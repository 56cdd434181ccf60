// Package logging configures the log/slog loggers used across hoverfly-go.
//
// The admin client logs each request at debug level, the process manager
// relays every line the proxy prints, and hoverctl logs to stderr:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.ParseLevel(cfg.LogLevel()),
//	    Format: logging.FormatJSON,
//	    File:   "hoverfly-client.log",
//	})
//	mgr := process.New(cfg, process.WithLogger(logger))
//
// With Config.File set, records are written to the console handler and, as
// JSON, to a file rotated by size (see RotatingFile). The proxy's own output
// file uses RotatingFile directly.
//
// Components take a *slog.Logger option and default to Nop.
package logging
