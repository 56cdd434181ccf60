package simulation

import (
	"time"

	"github.com/expr-lang/expr"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// TimeStartedLayout is the layout of JournalEntry.TimeStarted.
const TimeStartedLayout = "2006-01-02T15:04:05.000Z07:00"

// Journal is a page of recorded exchanges.
type Journal struct {
	Entries []JournalEntry `json:"journal"`
	Offset  int            `json:"offset"`
	Limit   int            `json:"limit"`
	Total   int            `json:"total"`
}

// JournalEntry records one request the proxy handled and what it answered.
type JournalEntry struct {
	ID          string           `json:"id,omitempty"`
	Request     ConcreteRequest  `json:"request"`
	Response    ConcreteResponse `json:"response"`
	Mode        string           `json:"mode"`
	TimeStarted string           `json:"timeStarted"`
	// Latency is in milliseconds.
	Latency float64 `json:"latency"`
}

// Started parses TimeStarted.
func (e JournalEntry) Started() (time.Time, error) {
	t, err := time.Parse(TimeStartedLayout, e.TimeStarted)
	if err != nil {
		return time.Parse(time.RFC3339Nano, e.TimeStarted)
	}
	return t, nil
}

// ConcreteRequest is a request as observed by the proxy.
type ConcreteRequest struct {
	Path        string              `json:"path"`
	Method      string              `json:"method"`
	Destination string              `json:"destination"`
	Scheme      string              `json:"scheme"`
	Query       string              `json:"query"`
	Body        string              `json:"body"`
	Headers     map[string][]string `json:"headers,omitempty"`
}

// ConcreteResponse is a response as sent by the proxy.
type ConcreteResponse struct {
	Status      int                 `json:"status"`
	Body        string              `json:"body"`
	EncodedBody bool                `json:"encodedBody"`
	Headers     map[string][]string `json:"headers,omitempty"`
}

// Filter returns the entries whose request m accepts, evaluated locally.
func (j *Journal) Filter(m RequestMatcher) *Journal {
	out := &Journal{Entries: []JournalEntry{}}
	for _, e := range j.Entries {
		if m.Matches(e.Request, nil) {
			out.Entries = append(out.Entries, e)
		}
	}
	out.Total = len(out.Entries)
	return out
}

// Where returns the entries for which the boolean expression holds. The
// expression sees a JournalEntry, e.g. `Response.Status >= 500 && Request.Method == "POST"`.
func (j *Journal) Where(expression string) (*Journal, error) {
	const op = "simulation.Journal.Where"

	program, err := expr.Compile(expression, expr.Env(JournalEntry{}), expr.AsBool())
	if err != nil {
		return nil, errs.E(op, errs.KindInvalidArgument, err)
	}
	out := &Journal{Entries: []JournalEntry{}}
	for _, e := range j.Entries {
		v, err := expr.Run(program, e)
		if err != nil {
			return nil, errs.E(op, errs.KindInvalidArgument, err)
		}
		if ok, _ := v.(bool); ok {
			out.Entries = append(out.Entries, e)
		}
	}
	out.Total = len(out.Entries)
	return out, nil
}
