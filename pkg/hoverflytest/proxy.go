package hoverflytest

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/getmockd/hoverfly-go/internal/matching"
	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/httputil"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// NoMatchStatus is returned on the proxy port when no pair matches in simulate mode.
const NoMatchStatus = http.StatusBadGateway

// hop-by-hop headers are neither forwarded nor captured.
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Proxy-Connection", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// ProxyHandler returns the handler for the proxy port. It accepts both
// absolute-form proxy requests and origin-form requests (webserver style).
func (s *Server) ProxyHandler() http.Handler {
	return http.HandlerFunc(s.serveProxy)
}

func (s *Server) serveProxy(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	body, err := httputil.ReadBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := concreteRequest(r, body)

	s.mu.Lock()
	mode := s.mode
	destination := s.destination
	s.mu.Unlock()

	if !destinationMatches(destination, req.Destination) {
		resp, err := s.forward(r, body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeConcrete(w, resp)
		return
	}

	var resp simulation.ConcreteResponse
	switch mode {
	case types.ModeSimulate:
		resp = s.simulate(req)
	case types.ModeSpy:
		var ok bool
		if resp, ok = s.lookup(req); !ok {
			resp = s.forwardOrError(r, body)
		}
	case types.ModeCapture:
		resp = s.forwardOrError(r, body)
		if resp.Status != http.StatusBadGateway {
			s.capture(req, resp)
		}
	case types.ModeDiff:
		resp = s.forwardOrError(r, body)
		s.diff(req, resp)
	case types.ModeSynthesize:
		resp = errorResponse(http.StatusServiceUnavailable, "Synthesize mode requires middleware, which is not available")
	default:
		resp = s.forwardOrError(r, body)
	}

	s.mu.Lock()
	s.record(simulation.JournalEntry{
		Request:     req,
		Response:    resp,
		Mode:        string(mode),
		TimeStarted: started.UTC().Format(simulation.TimeStartedLayout),
		Latency:     float64(time.Since(started).Microseconds()) / 1000,
	})
	s.mu.Unlock()

	writeConcrete(w, resp)
}

func destinationMatches(destination, host string) bool {
	if destination == "" || destination == "." {
		return true
	}
	ok, err := regexp.MatchString(destination, host)
	return err == nil && ok
}

func concreteRequest(r *http.Request, body []byte) simulation.ConcreteRequest {
	host := r.URL.Host
	if host == "" {
		host = r.Host
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}
	headers := map[string][]string{}
	for k, v := range r.Header {
		if slices.Contains(hopHeaders, k) {
			continue
		}
		headers[k] = append([]string(nil), v...)
	}
	return simulation.ConcreteRequest{
		Path:        r.URL.Path,
		Method:      r.Method,
		Destination: host,
		Scheme:      scheme,
		Query:       r.URL.RawQuery,
		Body:        string(body),
		Headers:     headers,
	}
}

// lookup finds the first pair accepting req and applies its state transitions.
func (s *Server) lookup(req simulation.ConcreteRequest) (simulation.ConcreteResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pair := range s.pairs {
		if !pair.Request.Matches(req, s.state) {
			continue
		}
		res := pair.Response
		for k, v := range res.TransitionsState {
			s.state[k] = v
		}
		for _, k := range res.RemovesState {
			delete(s.state, k)
		}
		delay := time.Duration(res.FixedDelay) * time.Millisecond
		if s.globalActions != nil {
			for _, d := range s.globalActions.Delays {
				if destinationMatches(d.URLPattern, req.Destination+req.Path) &&
					(d.HTTPMethod == "" || strings.EqualFold(d.HTTPMethod, req.Method)) {
					delay += time.Duration(d.Delay) * time.Millisecond
				}
			}
		}
		if delay > 0 {
			s.mu.Unlock()
			time.Sleep(delay)
			s.mu.Lock()
		}
		return simulation.ConcreteResponse{
			Status:      res.Status,
			Body:        res.Body,
			EncodedBody: res.EncodedBody,
			Headers:     res.Headers,
		}, true
	}
	return simulation.ConcreteResponse{}, false
}

func (s *Server) simulate(req simulation.ConcreteRequest) simulation.ConcreteResponse {
	if resp, ok := s.lookup(req); ok {
		return resp
	}
	return errorResponse(NoMatchStatus, "Hoverfly Error!\n\nThere was an error when matching\n\nGot error: Could not find a match for request")
}

func errorResponse(status int, msg string) simulation.ConcreteResponse {
	return simulation.ConcreteResponse{
		Status:  status,
		Body:    msg,
		Headers: map[string][]string{"Content-Type": {"text/plain; charset=utf-8"}},
	}
}

func (s *Server) forwardOrError(r *http.Request, body []byte) simulation.ConcreteResponse {
	resp, err := s.forward(r, body)
	if err != nil {
		return errorResponse(http.StatusBadGateway, "Hoverfly Error!\n\nThere was an error when forwarding the request to the intended destination\n\nGot error: "+err.Error())
	}
	return resp
}

// forward sends the request to its destination, via the upstream proxy when one is set.
func (s *Server) forward(r *http.Request, body []byte) (simulation.ConcreteResponse, error) {
	target := *r.URL
	if target.Host == "" {
		target.Host = r.Host
	}
	if target.Scheme == "" {
		target.Scheme = "http"
	}

	out, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), bytes.NewReader(body))
	if err != nil {
		return simulation.ConcreteResponse{}, err
	}
	for k, v := range r.Header {
		if !slices.Contains(hopHeaders, k) {
			out.Header[k] = v
		}
	}

	rt := s.transport
	s.mu.Lock()
	upstream := s.upstreamProxy
	s.mu.Unlock()
	if upstream != "" {
		if u, err := url.Parse(upstream); err == nil {
			if t, ok := rt.(*http.Transport); ok {
				t = t.Clone()
				t.Proxy = http.ProxyURL(u)
				rt = t
			}
		}
	}

	resp, err := rt.RoundTrip(out)
	if err != nil {
		return simulation.ConcreteResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return simulation.ConcreteResponse{}, err
	}
	headers := map[string][]string{}
	for k, v := range resp.Header {
		if !slices.Contains(hopHeaders, k) {
			headers[k] = v
		}
	}
	return simulation.ConcreteResponse{Status: resp.StatusCode, Body: string(respBody), Headers: headers}, nil
}

// capture records an exchange as a pair with exact matchers.
func (s *Server) capture(req simulation.ConcreteRequest, resp simulation.ConcreteResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := simulation.RequestMatcher{
		Path:        []simulation.FieldMatcher{simulation.Exact(req.Path)},
		Method:      []simulation.FieldMatcher{simulation.Exact(req.Method)},
		Destination: []simulation.FieldMatcher{simulation.Exact(req.Destination)},
		Scheme:      []simulation.FieldMatcher{simulation.Exact(req.Scheme)},
		Body:        []simulation.FieldMatcher{simulation.Exact(req.Body)},
		Query:       []simulation.FieldMatcher{simulation.Exact(matching.CanonicalQuery(req.Query))},
	}
	for name, values := range req.Headers {
		if !s.headerCaptured(name) {
			continue
		}
		if m.Headers == nil {
			m.Headers = map[string][]simulation.FieldMatcher{}
		}
		m.Headers[name] = []simulation.FieldMatcher{simulation.Exact(strings.Join(values, ";"))}
	}

	out := simulation.Response{
		Status:  resp.Status,
		Body:    resp.Body,
		Headers: resp.Headers,
	}
	if !isText(resp.Headers) && resp.Body != "" {
		out.Body = base64.StdEncoding.EncodeToString([]byte(resp.Body))
		out.EncodedBody = true
	}
	s.pairs = append(s.pairs, simulation.RequestResponsePair{Request: m, Response: out})
}

// headerCaptured must be called with s.mu held.
func (s *Server) headerCaptured(name string) bool {
	for _, h := range s.args.HeadersWhitelist {
		if h == "*" || strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

func isText(headers map[string][]string) bool {
	for k, v := range headers {
		if !strings.EqualFold(k, "Content-Type") || len(v) == 0 {
			continue
		}
		ct := strings.ToLower(v[0])
		return strings.HasPrefix(ct, "text/") || strings.Contains(ct, "json") ||
			strings.Contains(ct, "xml") || strings.Contains(ct, "javascript") ||
			strings.Contains(ct, "x-www-form-urlencoded")
	}
	return true
}

// diff compares a real response with the simulated one and records differences.
func (s *Server) diff(req simulation.ConcreteRequest, actual simulation.ConcreteResponse) {
	expected, ok := s.lookup(req)
	if !ok {
		return
	}
	var entries []types.DiffEntry
	if expected.Status != actual.Status {
		entries = append(entries, types.DiffEntry{Field: "status", Expected: strconv.Itoa(expected.Status), Actual: strconv.Itoa(actual.Status)})
	}
	if expected.Body != actual.Body {
		entries = append(entries, types.DiffEntry{Field: "body", Expected: expected.Body, Actual: actual.Body})
	}
	if len(entries) == 0 {
		return
	}
	report := types.DiffReport{Timestamp: time.Now().UTC().Format(time.RFC3339), DiffEntries: entries}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.diffs {
		if d.Request.Method == req.Method && d.Request.Host == req.Destination &&
			d.Request.Path == req.Path && d.Request.Query == req.Query {
			s.diffs[i].DiffReports = append(s.diffs[i].DiffReports, report)
			return
		}
	}
	s.diffs = append(s.diffs, types.Diff{
		Request:     types.DiffRequest{Method: req.Method, Host: req.Destination, Path: req.Path, Query: req.Query},
		DiffReports: []types.DiffReport{report},
	})
}

func writeConcrete(w http.ResponseWriter, resp simulation.ConcreteResponse) {
	for k, v := range resp.Headers {
		for _, vv := range v {
			w.Header().Add(k, vv)
		}
	}
	body := []byte(resp.Body)
	if resp.EncodedBody {
		if decoded, err := base64.StdEncoding.DecodeString(resp.Body); err == nil {
			body = decoded
		}
	}
	w.Header().Del("Content-Length")
	w.WriteHeader(resp.Status)
	_, _ = w.Write(body)
}
