package hoverflytest

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// Main runs the server as a standalone process and returns its exit code.
// args are the proxy binary's flags, e.g. ["-ap", "8888", "-pp", "8500", "-capture"].
// It serves until SIGINT or SIGTERM.
func Main(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return run(ctx, args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hoverfly", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		adminPort   = fs.Int("ap", 8888, "admin port")
		proxyPort   = fs.Int("pp", 8500, "proxy port")
		host        = fs.String("listen-on-host", "127.0.0.1", "interface to bind")
		capture     = fs.Bool("capture", false, "start in capture mode")
		spy         = fs.Bool("spy", false, "start in spy mode")
		synthesize  = fs.Bool("synthesize", false, "start in synthesize mode")
		modify      = fs.Bool("modify", false, "start in modify mode")
		diff        = fs.Bool("diff", false, "start in diff mode")
		destination = fs.String("destination", ".", "destination regular expression")
		upstream    = fs.String("upstream-proxy", "", "upstream proxy")
		middleware  = fs.String("middleware", "", "middleware command")
		auth        = fs.Bool("auth", false, "enable authentication")
		username    = fs.String("username", "", "admin username")
		password    = fs.String("password", "", "admin password")
		logLevel    = fs.String("log-level", "info", "log level")
		importFile  = fs.String("import", "", "simulation file to load at startup")
		_           = fs.String("cert", "", "CA certificate")
		_           = fs.String("key", "", "CA key")
		_           = fs.String("db", "memory", "persistence")
		exitAfter   = fs.Duration("exit-after", 0, "exit with status 3 after this long")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	logger := logging.New(logging.Config{
		Level:  logging.ParseLevel(*logLevel),
		Output: stderr,
	})

	opts := []Option{WithLogger(logger)}
	switch {
	case *capture:
		opts = append(opts, WithMode(types.ModeCapture))
	case *spy:
		opts = append(opts, WithMode(types.ModeSpy))
	case *synthesize:
		opts = append(opts, WithMode(types.ModeSynthesize))
	case *modify:
		opts = append(opts, WithMode(types.ModeModify))
	case *diff:
		opts = append(opts, WithMode(types.ModeDiff))
	}
	if *auth {
		if *username == "" || *password == "" {
			fmt.Fprintln(stderr, "-auth requires -username and -password")
			return 1
		}
		opts = append(opts, WithAuth(*username, *password))
	}

	s := newServer(opts...)
	s.destination = *destination
	s.upstreamProxy = *upstream
	if *middleware != "" {
		s.middleware = types.Middleware{Binary: *middleware}
	}
	if *importFile != "" {
		data, err := os.ReadFile(*importFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		sim, err := simulation.Decode(data, simulation.WithLegacyMatchers())
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		s.pairs = sim.Data.Pairs
		s.globalActions = sim.Data.GlobalActions
	}

	adminLn, err := net.Listen("tcp", net.JoinHostPort(*host, strconv.Itoa(*adminPort)))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	proxyLn, err := net.Listen("tcp", net.JoinHostPort(*host, strconv.Itoa(*proxyPort)))
	if err != nil {
		_ = adminLn.Close()
		fmt.Fprintln(stderr, err)
		return 1
	}

	adminSrv := &http.Server{Handler: s.AdminHandler(), ReadHeaderTimeout: 10 * time.Second}
	proxySrv := &http.Server{Handler: s.ProxyHandler(), ReadHeaderTimeout: 10 * time.Second}

	fmt.Fprintf(stdout, "Default proxy port: %d\n", proxyLn.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(stdout, "Admin interface port: %d\n", adminLn.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(stdout, "Mode: %s\n", s.mode)

	if *exitAfter > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *exitAfter)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(adminSrv, adminLn) })
	g.Go(func() error { return serve(proxySrv, proxyLn) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(adminSrv.Shutdown(shutdownCtx), proxySrv.Shutdown(shutdownCtx))
	})
	if err := g.Wait(); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return 3
	}
	logger.Info("stopped")
	return 0
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
