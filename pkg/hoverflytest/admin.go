package hoverflytest

import (
	"encoding/json"
	"maps"
	"net/http"
	"net/url"
	"os/exec"
	"regexp"
	"sort"
	"time"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/httputil"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// DefaultJournalLimit is the page size used when a journal query sets none.
const DefaultJournalLimit = 25

// AdminHandler returns the admin API handler.
func (s *Server) AdminHandler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return s.withMiddleware(mux)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/token-auth", s.handleTokenAuth)

	// Proxy settings
	mux.HandleFunc("GET /api/v2/hoverfly", s.handleInfo)
	mux.HandleFunc("GET /api/v2/hoverfly/mode", s.handleGetMode)
	mux.HandleFunc("PUT /api/v2/hoverfly/mode", s.handleSetMode)
	mux.HandleFunc("GET /api/v2/hoverfly/destination", s.handleGetDestination)
	mux.HandleFunc("PUT /api/v2/hoverfly/destination", s.handleSetDestination)
	mux.HandleFunc("GET /api/v2/hoverfly/upstream-proxy", s.handleGetUpstreamProxy)
	mux.HandleFunc("PUT /api/v2/hoverfly/upstream-proxy", s.handleSetUpstreamProxy)
	mux.HandleFunc("GET /api/v2/hoverfly/middleware", s.handleGetMiddleware)
	mux.HandleFunc("PUT /api/v2/hoverfly/middleware", s.handleSetMiddleware)

	// Simulation
	mux.HandleFunc("GET /api/v2/simulation", s.handleGetSimulation)
	mux.HandleFunc("PUT /api/v2/simulation", s.handlePutSimulation)
	mux.HandleFunc("POST /api/v2/simulation", s.handlePostSimulation)
	mux.HandleFunc("DELETE /api/v2/simulation", s.handleDeleteSimulation)

	// Journal
	mux.HandleFunc("GET /api/v2/journal", s.handleGetJournal)
	mux.HandleFunc("POST /api/v2/journal", s.handleSearchJournal)
	mux.HandleFunc("DELETE /api/v2/journal", s.handleDeleteJournal)

	// State
	mux.HandleFunc("GET /api/v2/state", s.handleGetState)
	mux.HandleFunc("PUT /api/v2/state", s.handleSetState)
	mux.HandleFunc("PATCH /api/v2/state", s.handlePatchState)
	mux.HandleFunc("DELETE /api/v2/state", s.handleDeleteState)

	// Diff
	mux.HandleFunc("GET /api/v2/diff", s.handleGetDiff)
	mux.HandleFunc("DELETE /api/v2/diff", s.handleDeleteDiff)
}

func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.latency > 0 {
			select {
			case <-time.After(s.latency):
			case <-r.Context().Done():
				return
			}
		}
		if !s.authorized(r) {
			httputil.WriteError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		s.log.Debug("admin request", "method", r.Method, "path", r.URL.Path)
		handler.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteOK(w, types.HealthResponse{Message: "Hoverfly is healthy"})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	info := types.HoverflyInfo{
		Destination:   s.destination,
		Middleware:    s.middleware,
		Mode:          s.mode,
		Arguments:     s.args,
		Usage:         types.Usage{Counters: maps.Clone(s.counters)},
		Version:       Version,
		UpstreamProxy: s.upstreamProxy,
	}
	s.mu.Unlock()
	httputil.WriteOK(w, info)
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := types.ModeRequest{Mode: s.mode, Arguments: &s.args}
	s.mu.Unlock()
	httputil.WriteOK(w, resp)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode      string               `json:"mode"`
		Arguments *types.ModeArguments `json:"arguments"`
	}
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	mode, err := types.ParseMode(req.Mode)
	if err != nil {
		httputil.WriteErrorf(w, http.StatusUnprocessableEntity, "Not a valid mode: %s", req.Mode)
		return
	}

	s.mu.Lock()
	s.mode = mode
	s.args = types.ModeArguments{}
	if req.Arguments != nil {
		s.args = *req.Arguments
	}
	resp := types.ModeRequest{Mode: s.mode, Arguments: &s.args}
	s.mu.Unlock()

	s.log.Info("mode changed", "mode", mode)
	httputil.WriteOK(w, resp)
}

func (s *Server) handleGetDestination(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := types.DestinationRequest{Destination: s.destination}
	s.mu.Unlock()
	httputil.WriteOK(w, resp)
}

func (s *Server) handleSetDestination(w http.ResponseWriter, r *http.Request) {
	var req types.DestinationRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	if req.Destination == "" {
		httputil.WriteError(w, http.StatusUnprocessableEntity, "Destination not provided")
		return
	}
	if _, err := regexp.Compile(req.Destination); err != nil {
		httputil.WriteErrorf(w, http.StatusUnprocessableEntity, "Destination is not a valid regular expression: %v", err)
		return
	}
	s.mu.Lock()
	s.destination = req.Destination
	s.mu.Unlock()
	httputil.WriteOK(w, req)
}

func (s *Server) handleGetUpstreamProxy(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	resp := types.UpstreamProxyRequest{UpstreamProxy: s.upstreamProxy}
	s.mu.Unlock()
	httputil.WriteOK(w, resp)
}

func (s *Server) handleSetUpstreamProxy(w http.ResponseWriter, r *http.Request) {
	var req types.UpstreamProxyRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	if req.UpstreamProxy != "" {
		u, err := url.Parse(req.UpstreamProxy)
		if err != nil || u.Host == "" {
			httputil.WriteErrorf(w, http.StatusUnprocessableEntity, "Invalid upstream proxy: %s", req.UpstreamProxy)
			return
		}
	}
	s.mu.Lock()
	s.upstreamProxy = req.UpstreamProxy
	s.mu.Unlock()
	httputil.WriteOK(w, req)
}

func (s *Server) handleGetMiddleware(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	mw := s.middleware
	s.mu.Unlock()
	httputil.WriteOK(w, mw)
}

func (s *Server) handleSetMiddleware(w http.ResponseWriter, r *http.Request) {
	var mw types.Middleware
	if err := httputil.ReadJSON(r, &mw); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	switch {
	case mw.Remote != "":
		if u, err := url.Parse(mw.Remote); err != nil || u.Host == "" {
			httputil.WriteErrorf(w, http.StatusUnprocessableEntity, "Invalid middleware: %s is not a URL", mw.Remote)
			return
		}
	case mw.Binary != "":
		if _, err := exec.LookPath(mw.Binary); err != nil {
			httputil.WriteErrorf(w, http.StatusUnprocessableEntity, "Invalid middleware: %v", err)
			return
		}
	}
	s.mu.Lock()
	s.middleware = mw
	s.mu.Unlock()
	httputil.WriteOK(w, mw)
}

func (s *Server) handleGetSimulation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	sim := simulation.New(append([]simulation.RequestResponsePair(nil), s.pairs...)...)
	sim.Data.GlobalActions = s.globalActions
	s.mu.Unlock()
	sim.Meta.HoverflyVersion = Version

	raw, err := simulation.Encode(sim)
	if err != nil {
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(raw)
}

func (s *Server) readSimulation(w http.ResponseWriter, r *http.Request) (*simulation.Simulation, bool) {
	body, err := httputil.ReadBody(r)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	sim, err := simulation.Decode(body, simulation.WithLegacyMatchers())
	if err != nil {
		httputil.WriteErrorf(w, http.StatusBadRequest, "Invalid simulation: %v", err)
		return nil, false
	}
	return sim, true
}

func (s *Server) handlePutSimulation(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.readSimulation(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pairs = sim.Data.Pairs
	s.globalActions = sim.Data.GlobalActions
	s.mu.Unlock()
	s.handleGetSimulation(w, r)
}

func (s *Server) handlePostSimulation(w http.ResponseWriter, r *http.Request) {
	sim, ok := s.readSimulation(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	s.pairs = append(s.pairs, sim.Data.Pairs...)
	if ga := sim.Data.GlobalActions; ga != nil {
		if s.globalActions == nil {
			s.globalActions = &simulation.GlobalActions{}
		}
		s.globalActions.Delays = append(s.globalActions.Delays, ga.Delays...)
		s.globalActions.DelaysLogNormal = append(s.globalActions.DelaysLogNormal, ga.DelaysLogNormal...)
	}
	s.mu.Unlock()
	s.handleGetSimulation(w, r)
}

func (s *Server) handleDeleteSimulation(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pairs = []simulation.RequestResponsePair{}
	s.globalActions = nil
	s.mu.Unlock()
	s.handleGetSimulation(w, r)
}

func (s *Server) handleGetJournal(w http.ResponseWriter, r *http.Request) {
	q, err := types.ParseJournalQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	entries := make([]simulation.JournalEntry, 0, len(s.journal))
	for _, e := range s.journal {
		if inWindow(e, q.From, q.To) {
			entries = append(entries, e)
		}
	}
	s.mu.Unlock()

	if q.Sort == types.SortTimeStartedDesc {
		sort.SliceStable(entries, func(i, j int) bool { return entries[i].TimeStarted > entries[j].TimeStarted })
	}

	limit := q.Limit
	if limit == 0 {
		limit = DefaultJournalLimit
	}
	page := paginate(entries, q.Offset, limit)
	httputil.WriteOK(w, simulation.Journal{Entries: page, Offset: q.Offset, Limit: limit, Total: len(entries)})
}

func inWindow(e simulation.JournalEntry, from, to time.Time) bool {
	if from.IsZero() && to.IsZero() {
		return true
	}
	started, err := e.Started()
	if err != nil {
		return false
	}
	if !from.IsZero() && started.Before(from) {
		return false
	}
	if !to.IsZero() && started.After(to) {
		return false
	}
	return true
}

func paginate(entries []simulation.JournalEntry, offset, limit int) []simulation.JournalEntry {
	if offset >= len(entries) {
		return []simulation.JournalEntry{}
	}
	end := min(offset+limit, len(entries))
	return entries[offset:end]
}

func (s *Server) handleSearchJournal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Request *simulation.RequestMatcher `json:"request"`
	}
	body, err := httputil.ReadBody(r)
	if err != nil || json.Unmarshal(body, &req) != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	if req.Request == nil {
		httputil.WriteError(w, http.StatusBadRequest, "No \"request\" object in search parameters")
		return
	}
	if bad := unknownMatcher(*req.Request); bad != "" {
		httputil.WriteErrorf(w, http.StatusBadRequest, "Unknown matcher: %s", bad)
		return
	}

	s.mu.Lock()
	j := simulation.Journal{Entries: append([]simulation.JournalEntry(nil), s.journal...)}
	s.mu.Unlock()

	found := j.Filter(*req.Request)
	found.Limit = DefaultJournalLimit
	httputil.WriteOK(w, found)
}

// unknownMatcher returns the first matcher kind in m the proxy does not define.
func unknownMatcher(m simulation.RequestMatcher) simulation.MatcherKind {
	lists := [][]simulation.FieldMatcher{m.Path, m.Method, m.Destination, m.Scheme, m.Body, m.Query}
	for _, fms := range m.Headers {
		lists = append(lists, fms)
	}
	for _, fms := range m.QueryParams {
		lists = append(lists, fms)
	}
	for _, fms := range lists {
		for _, fm := range fms {
			if !fm.Matcher.Known() {
				return fm.Matcher
			}
		}
	}
	return ""
}

func (s *Server) handleDeleteJournal(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.journal = nil
	s.mu.Unlock()
	httputil.WriteOK(w, simulation.Journal{Entries: []simulation.JournalEntry{}, Limit: DefaultJournalLimit})
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	state := maps.Clone(s.state)
	s.mu.Unlock()
	httputil.WriteOK(w, types.StateBody{State: state})
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request) {
	var req types.StateBody
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	s.mu.Lock()
	s.state = map[string]string{}
	maps.Copy(s.state, req.State)
	s.mu.Unlock()
	s.handleGetState(w, r)
}

func (s *Server) handlePatchState(w http.ResponseWriter, r *http.Request) {
	var req types.StateBody
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "Malformed JSON")
		return
	}
	s.mu.Lock()
	maps.Copy(s.state, req.State)
	s.mu.Unlock()
	s.handleGetState(w, r)
}

func (s *Server) handleDeleteState(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.state = map[string]string{}
	s.mu.Unlock()
	s.handleGetState(w, r)
}

func (s *Server) handleGetDiff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	diffs := append([]types.Diff{}, s.diffs...)
	s.mu.Unlock()
	httputil.WriteOK(w, types.DiffResponse{Diff: diffs})
}

func (s *Server) handleDeleteDiff(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.diffs = nil
	s.mu.Unlock()
	httputil.WriteOK(w, types.DiffResponse{Diff: []types.Diff{}})
}
