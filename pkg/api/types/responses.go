// Package types provides the wire types of the proxy admin API shared by the
// admin client, the facade, the CLI and the in-process test server.
package types

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Mode selects the proxy's global behavior.
type Mode string

// Proxy modes.
const (
	ModeSimulate   Mode = "simulate"
	ModeCapture    Mode = "capture"
	ModeModify     Mode = "modify"
	ModeSynthesize Mode = "synthesize"
	ModeSpy        Mode = "spy"
	ModeDiff       Mode = "diff"
)

// Modes returns every mode the proxy understands.
func Modes() []Mode {
	return []Mode{ModeSimulate, ModeCapture, ModeModify, ModeSynthesize, ModeSpy, ModeDiff}
}

// ParseMode parses a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("unknown mode %q", s)
	}
	return m, nil
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	for _, known := range Modes() {
		if m == known {
			return true
		}
	}
	return false
}

func (m Mode) String() string {
	return string(m)
}

// ModeArguments tune capture behavior. They are ignored outside CAPTURE mode.
type ModeArguments struct {
	HeadersWhitelist   []string `json:"headersWhitelist,omitempty" yaml:"headersWhitelist,omitempty"`
	Stateful           bool     `json:"stateful,omitempty" yaml:"stateful,omitempty"`
	MatchingStrategy   string   `json:"matchingStrategy,omitempty" yaml:"matchingStrategy,omitempty"`
	OverwriteDuplicate bool     `json:"overwriteDuplicate,omitempty" yaml:"overwriteDuplicate,omitempty"`
}

// ModeRequest is the body of PUT /api/v2/hoverfly/mode.
type ModeRequest struct {
	Mode      Mode           `json:"mode"`
	Arguments *ModeArguments `json:"arguments,omitempty"`
}

// Middleware describes a request/response transform run inside the proxy.
// Either Binary (with optional Script) or Remote is set.
type Middleware struct {
	Binary string `json:"binary" yaml:"binary,omitempty"`
	Script string `json:"script" yaml:"script,omitempty"`
	Remote string `json:"remote" yaml:"remote,omitempty"`
}

// IsZero reports whether no middleware is configured.
func (m Middleware) IsZero() bool {
	return m.Binary == "" && m.Script == "" && m.Remote == ""
}

// Usage holds the proxy's per-mode request counters.
type Usage struct {
	Counters map[string]int `json:"counters"`
}

// HoverflyInfo is the response of GET /api/v2/hoverfly.
type HoverflyInfo struct {
	Destination   string        `json:"destination"`
	Middleware    Middleware    `json:"middleware"`
	Mode          Mode          `json:"mode"`
	Arguments     ModeArguments `json:"arguments"`
	IsWebServer   bool          `json:"isWebServer"`
	Usage         Usage         `json:"usage"`
	Version       string        `json:"version"`
	UpstreamProxy string        `json:"upstreamProxy"`
}

// DestinationRequest is the body of PUT /api/v2/hoverfly/destination.
type DestinationRequest struct {
	Destination string `json:"destination"`
}

// UpstreamProxyRequest is the body of PUT /api/v2/hoverfly/upstream-proxy.
type UpstreamProxyRequest struct {
	UpstreamProxy string `json:"upstreamProxy"`
}

// ErrorResponse is the proxy's error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Message string `json:"message"`
}

// StateBody is the request and response body of /api/v2/state.
type StateBody struct {
	State map[string]string `json:"state"`
}

// DiffEntry is a single field difference observed in DIFF mode.
type DiffEntry struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// DiffReport groups the differences observed for one request.
type DiffReport struct {
	Timestamp   string      `json:"timestamp"`
	DiffEntries []DiffEntry `json:"diffEntries"`
}

// DiffRequest identifies the request a diff belongs to.
type DiffRequest struct {
	Method string `json:"method"`
	Host   string `json:"host"`
	Path   string `json:"path"`
	Query  string `json:"query"`
}

// Diff is the set of reports collected for one request.
type Diff struct {
	Request     DiffRequest  `json:"request"`
	DiffReports []DiffReport `json:"diffReports"`
}

// DiffResponse is the body of GET /api/v2/diff.
type DiffResponse struct {
	Diff []Diff `json:"diff"`
}

// TokenRequest is the body of POST /api/token-auth.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries the bearer token issued by POST /api/token-auth.
type TokenResponse struct {
	Token string `json:"token"`
}

// Journal sort orders.
const (
	SortTimeStartedAsc  = "timeStarted:asc"
	SortTimeStartedDesc = "timeStarted:desc"
)

// JournalQuery holds the pagination and time-window parameters of GET /api/v2/journal.
// Zero values are omitted from the query string.
type JournalQuery struct {
	Offset int
	Limit  int
	From   time.Time
	To     time.Time
	Sort   string
}

// Values encodes the query as URL parameters. From and To are sent as Unix
// milliseconds.
func (q *JournalQuery) Values() url.Values {
	v := url.Values{}
	if q == nil {
		return v
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.From.IsZero() {
		v.Set("from", strconv.FormatInt(q.From.UnixMilli(), 10))
	}
	if !q.To.IsZero() {
		v.Set("to", strconv.FormatInt(q.To.UnixMilli(), 10))
	}
	if q.Sort != "" {
		v.Set("sort", q.Sort)
	}
	return v
}

// ParseJournalQuery is the inverse of JournalQuery.Values.
func ParseJournalQuery(v url.Values) (*JournalQuery, error) {
	q := &JournalQuery{Sort: v.Get("sort")}
	var err error
	if s := v.Get("offset"); s != "" {
		if q.Offset, err = strconv.Atoi(s); err != nil || q.Offset < 0 {
			return nil, fmt.Errorf("invalid offset %q", s)
		}
	}
	if s := v.Get("limit"); s != "" {
		if q.Limit, err = strconv.Atoi(s); err != nil || q.Limit < 0 {
			return nil, fmt.Errorf("invalid limit %q", s)
		}
	}
	if s := v.Get("from"); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid from %q", s)
		}
		q.From = time.UnixMilli(ms)
	}
	if s := v.Get("to"); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid to %q", s)
		}
		q.To = time.UnixMilli(ms)
	}
	switch q.Sort {
	case "", SortTimeStartedAsc, SortTimeStartedDesc:
	default:
		return nil, fmt.Errorf("invalid sort %q", q.Sort)
	}
	return q, nil
}
