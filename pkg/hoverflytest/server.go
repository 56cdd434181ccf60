// Package hoverflytest provides an in-process stand-in for the proxy: its
// admin API and a proxy listener with simulate, capture, spy and diff modes.
//
// Tests of code built on the admin client use NewServer:
//
//	srv := hoverflytest.NewServer()
//	defer srv.Close()
//	client := adminclient.New(srv.AdminURL())
//
// Main runs the same server as a process, understanding the proxy binary's
// flags, so process lifecycle code can be exercised without the real binary.
package hoverflytest

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/logging"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// Version is reported by GET /api/v2/hoverfly and stamped on exported simulations.
const Version = "v1.10.5-test"

// Server holds the proxy's mutable state and serves both the admin API and
// the proxy port.
type Server struct {
	log       *slog.Logger
	latency   time.Duration
	username  string
	password  string
	secret    []byte
	transport http.RoundTripper

	mu            sync.Mutex
	mode          types.Mode
	args          types.ModeArguments
	destination   string
	upstreamProxy string
	middleware    types.Middleware
	pairs         []simulation.RequestResponsePair
	globalActions *simulation.GlobalActions
	journal       []simulation.JournalEntry
	state         map[string]string
	diffs         []types.Diff
	counters      map[string]int

	admin *httptest.Server
	proxy *httptest.Server
}

// Option configures a Server.
type Option func(*Server)

// WithAuth requires a bearer token obtained from POST /api/token-auth with
// these credentials on every admin call except the health check.
func WithAuth(username, password string) Option {
	return func(s *Server) {
		s.username = username
		s.password = password
	}
}

// WithMode sets the initial mode.
func WithMode(mode types.Mode) Option {
	return func(s *Server) {
		s.mode = mode
	}
}

// WithLatency delays every admin response by d.
func WithLatency(d time.Duration) Option {
	return func(s *Server) {
		s.latency = d
	}
}

// WithLogger sets the server's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithTransport sets the transport used to forward proxied requests upstream.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Server) {
		s.transport = rt
	}
}

func newServer(opts ...Option) *Server {
	s := &Server{
		log:         logging.Nop(),
		mode:        types.ModeSimulate,
		destination: ".",
		pairs:       []simulation.RequestResponsePair{},
		state:       map[string]string{},
		counters:    map[string]int{},
		secret:      make([]byte, 32),
	}
	_, _ = rand.Read(s.secret)
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.Proxy = nil
		s.transport = t
	}
	return s
}

// NewServer starts the admin API and proxy listeners on loopback ports.
func NewServer(opts ...Option) *Server {
	s := newServer(opts...)
	s.admin = httptest.NewServer(s.AdminHandler())
	s.proxy = httptest.NewServer(s.ProxyHandler())
	return s
}

// AdminURL returns the base URL of the admin API.
func (s *Server) AdminURL() string {
	return s.admin.URL
}

// ProxyURL returns the URL to configure as an HTTP proxy.
func (s *Server) ProxyURL() string {
	return s.proxy.URL
}

// Close shuts both listeners down.
func (s *Server) Close() {
	if s.admin != nil {
		s.admin.Close()
	}
	if s.proxy != nil {
		s.proxy.Close()
	}
}

// Mode returns the current mode.
func (s *Server) Mode() types.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Pairs returns a copy of the loaded pairs.
func (s *Server) Pairs() []simulation.RequestResponsePair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]simulation.RequestResponsePair(nil), s.pairs...)
}

// Journal returns a copy of the recorded entries, oldest first.
func (s *Server) Journal() []simulation.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]simulation.JournalEntry(nil), s.journal...)
}

// Record appends an entry to the journal as if the proxy had served it.
func (s *Server) Record(e simulation.JournalEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(e)
}

// record must be called with s.mu held.
func (s *Server) record(e simulation.JournalEntry) {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.TimeStarted == "" {
		e.TimeStarted = time.Now().UTC().Format(simulation.TimeStartedLayout)
	}
	if e.Mode == "" {
		e.Mode = string(s.mode)
	}
	s.journal = append(s.journal, e)
	s.counters[e.Mode]++
}
