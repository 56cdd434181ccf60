// Package simulation models proxy simulations and journals and converts them
// to and from the proxy's JSON wire format.
//
// Documents are gated on meta.schemaVersion before anything else is decoded:
// schema v1 is rejected outright, v2 and newer are accepted.
package simulation

import (
	"encoding/json"
	"strings"
	"time"
)

// SchemaVersion is the schema version written by New.
const SchemaVersion = "v5.2"

// Simulation is a complete, versioned set of request/response pairs.
type Simulation struct {
	Data HoverflyData `json:"data"`
	Meta Meta         `json:"meta"`
}

// New returns a simulation holding pairs, stamped with SchemaVersion and the current time.
func New(pairs ...RequestResponsePair) *Simulation {
	if pairs == nil {
		pairs = []RequestResponsePair{}
	}
	return &Simulation{
		Data: HoverflyData{Pairs: pairs},
		Meta: Meta{
			SchemaVersion: SchemaVersion,
			TimeExported:  time.Now().UTC().Format(time.RFC3339),
		},
	}
}

// Meta describes where and when a simulation was produced.
type Meta struct {
	SchemaVersion   string `json:"schemaVersion"`
	HoverflyVersion string `json:"hoverflyVersion,omitempty"`
	TimeExported    string `json:"timeExported,omitempty"`
}

// ExportedAt parses TimeExported.
func (m Meta) ExportedAt() (time.Time, error) {
	return time.Parse(time.RFC3339, m.TimeExported)
}

// HoverflyData holds the pairs and global actions of a simulation.
type HoverflyData struct {
	Pairs         []RequestResponsePair `json:"pairs"`
	GlobalActions *GlobalActions        `json:"globalActions,omitempty"`
}

// MarshalJSON always writes pairs as an array.
func (d HoverflyData) MarshalJSON() ([]byte, error) {
	type alias HoverflyData
	a := alias(d)
	if a.Pairs == nil {
		a.Pairs = []RequestResponsePair{}
	}
	return json.Marshal(a)
}

// UnmarshalJSON always leaves Pairs non-nil.
func (d *HoverflyData) UnmarshalJSON(data []byte) error {
	type alias HoverflyData
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Pairs == nil {
		a.Pairs = []RequestResponsePair{}
	}
	*d = HoverflyData(a)
	return nil
}

// GlobalActions apply to every matching response.
type GlobalActions struct {
	Delays          []Delay          `json:"delays"`
	DelaysLogNormal []LogNormalDelay `json:"delaysLogNormal,omitempty"`
}

// UnmarshalJSON drops an empty delaysLogNormal list.
func (g *GlobalActions) UnmarshalJSON(data []byte) error {
	type alias GlobalActions
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.DelaysLogNormal = orNil(a.DelaysLogNormal)
	*g = GlobalActions(a)
	return nil
}

// Delay adds a fixed latency, in milliseconds, to responses for URLs matching URLPattern.
type Delay struct {
	URLPattern string `json:"urlPattern"`
	Delay      int    `json:"delay"`
	HTTPMethod string `json:"httpMethod,omitempty"`
}

// LogNormalDelay adds a log-normally distributed latency, in milliseconds.
// URLPattern and HTTPMethod are only used in global actions.
type LogNormalDelay struct {
	URLPattern string `json:"urlPattern,omitempty"`
	HTTPMethod string `json:"httpMethod,omitempty"`
	Min        int    `json:"min"`
	Max        int    `json:"max"`
	Mean       int    `json:"mean"`
	Median     int    `json:"median"`
}

// RequestResponsePair is one canned exchange.
type RequestResponsePair struct {
	Request  RequestMatcher `json:"request"`
	Response Response       `json:"response"`
}

// Response is the response served when a pair's matcher accepts a request.
type Response struct {
	Status           int                 `json:"status"`
	Body             string              `json:"body"`
	BodyFile         string              `json:"bodyFile,omitempty"`
	EncodedBody      bool                `json:"encodedBody"`
	Templated        bool                `json:"templated"`
	Headers          map[string][]string `json:"headers,omitempty"`
	FixedDelay       int                 `json:"fixedDelay,omitempty"`
	LogNormalDelay   *LogNormalDelay     `json:"logNormalDelay,omitempty"`
	TransitionsState map[string]string   `json:"transitionsState,omitempty"`
	RemovesState     []string            `json:"removesState,omitempty"`
}

// UnmarshalJSON leaves empty headers, transitionsState and removesState nil.
func (r *Response) UnmarshalJSON(data []byte) error {
	type alias Response
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	a.Headers = mapOrNil(a.Headers)
	a.TransitionsState = mapOrNil(a.TransitionsState)
	a.RemovesState = orNil(a.RemovesState)
	*r = Response(a)
	return nil
}

// Header returns the values of the named response header, looked up case-insensitively.
func (r Response) Header(name string) []string {
	if v, ok := r.Headers[name]; ok {
		return v
	}
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}
