package simulation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/getmockd/hoverfly-go/internal/matching"
)

// MatcherKind names the comparison a FieldMatcher performs.
type MatcherKind string

// Known matcher kinds.
const (
	MatcherExact    MatcherKind = matching.KindExact
	MatcherGlob     MatcherKind = matching.KindGlob
	MatcherRegex    MatcherKind = matching.KindRegex
	MatcherXPath    MatcherKind = matching.KindXPath
	MatcherJSON     MatcherKind = matching.KindJSON
	MatcherJSONPath MatcherKind = matching.KindJSONPath
	MatcherXML      MatcherKind = matching.KindXML
)

// Known reports whether the proxy defines k. Unknown kinds survive a
// decode/encode round trip but never match locally.
func (k MatcherKind) Known() bool {
	_, ok := matching.Canonical(string(k))
	return ok
}

// FieldMatcher is one predicate over a request field.
type FieldMatcher struct {
	Matcher MatcherKind    `json:"matcher"`
	Value   string         `json:"value"`
	Config  map[string]any `json:"config,omitempty"`

	// rawValue is set when the wire value was not a JSON string; Value then
	// holds the raw JSON text and is written back unquoted.
	rawValue bool
}

// Exact matches a field equal to value.
func Exact(value string) FieldMatcher { return FieldMatcher{Matcher: MatcherExact, Value: value} }

// Glob matches a field against a "*" wildcard pattern.
func Glob(pattern string) FieldMatcher { return FieldMatcher{Matcher: MatcherGlob, Value: pattern} }

// Regex matches a field containing a match for pattern.
func Regex(pattern string) FieldMatcher { return FieldMatcher{Matcher: MatcherRegex, Value: pattern} }

// XPath matches an XML field containing an element selected by expr.
func XPath(expr string) FieldMatcher { return FieldMatcher{Matcher: MatcherXPath, Value: expr} }

// JSON matches a field semantically equal to the JSON document value.
func JSON(value string) FieldMatcher { return FieldMatcher{Matcher: MatcherJSON, Value: value} }

// JSONPath matches a JSON field in which expr selects at least one value.
func JSONPath(expr string) FieldMatcher { return FieldMatcher{Matcher: MatcherJSONPath, Value: expr} }

// XML matches a field canonically equal to the XML document value.
func XML(value string) FieldMatcher { return FieldMatcher{Matcher: MatcherXML, Value: value} }

// Matches evaluates the matcher against actual.
func (f FieldMatcher) Matches(actual string) bool {
	return matching.Field(string(f.Matcher), f.Value, actual)
}

func (f FieldMatcher) String() string {
	return fmt.Sprintf("%s(%q)", f.Matcher, f.Value)
}

// MarshalJSON writes the matcher, restoring non-string values verbatim.
func (f FieldMatcher) MarshalJSON() ([]byte, error) {
	var value json.RawMessage
	if f.rawValue && json.Valid([]byte(f.Value)) {
		value = json.RawMessage(f.Value)
	} else {
		b, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		value = b
	}
	return json.Marshal(struct {
		Matcher MatcherKind     `json:"matcher"`
		Value   json.RawMessage `json:"value"`
		Config  map[string]any  `json:"config,omitempty"`
	}{f.Matcher, value, f.Config})
}

// UnmarshalJSON canonicalizes known kinds case-insensitively.
func (f *FieldMatcher) UnmarshalJSON(data []byte) error {
	var wire struct {
		Matcher string          `json:"matcher"`
		Value   json.RawMessage `json:"value"`
		Config  map[string]any  `json:"config"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Matcher == "" {
		return fmt.Errorf("field matcher without a matcher kind")
	}
	kind, _ := matching.Canonical(wire.Matcher)
	*f = FieldMatcher{Matcher: MatcherKind(kind), Config: wire.Config}

	raw := strings.TrimSpace(string(wire.Value))
	switch {
	case raw == "" || raw == "null":
	case raw[0] == '"':
		if err := json.Unmarshal(wire.Value, &f.Value); err != nil {
			return err
		}
	default:
		f.Value = raw
		f.rawValue = true
	}
	return nil
}

func toMatching(fms []FieldMatcher) []matching.Matcher {
	out := make([]matching.Matcher, len(fms))
	for i, fm := range fms {
		out[i] = matching.Matcher{Kind: string(fm.Matcher), Value: fm.Value}
	}
	return out
}

// RequestMatcher describes the requests a pair answers. A nil field matches anything.
//
// Query is either a list of matchers over the whole canonical query string or,
// when QueryParams is set, a map of matchers per query parameter. The two forms
// share the "query" wire key.
type RequestMatcher struct {
	Path          []FieldMatcher            `json:"path,omitempty"`
	Method        []FieldMatcher            `json:"method,omitempty"`
	Destination   []FieldMatcher            `json:"destination,omitempty"`
	Scheme        []FieldMatcher            `json:"scheme,omitempty"`
	Body          []FieldMatcher            `json:"body,omitempty"`
	Query         []FieldMatcher            `json:"-"`
	QueryParams   map[string][]FieldMatcher `json:"-"`
	Headers       map[string][]FieldMatcher `json:"headers,omitempty"`
	RequiresState map[string]string         `json:"requiresState,omitempty"`
}

type requestMatcherWire struct {
	Path          []FieldMatcher            `json:"path,omitempty"`
	Method        []FieldMatcher            `json:"method,omitempty"`
	Destination   []FieldMatcher            `json:"destination,omitempty"`
	Scheme        []FieldMatcher            `json:"scheme,omitempty"`
	Body          []FieldMatcher            `json:"body,omitempty"`
	Query         json.RawMessage           `json:"query,omitempty"`
	Headers       map[string][]FieldMatcher `json:"headers,omitempty"`
	RequiresState map[string]string         `json:"requiresState,omitempty"`
}

// MarshalJSON writes the query in whichever form is set.
func (m RequestMatcher) MarshalJSON() ([]byte, error) {
	w := requestMatcherWire{
		Path:          m.Path,
		Method:        m.Method,
		Destination:   m.Destination,
		Scheme:        m.Scheme,
		Body:          m.Body,
		Headers:       m.Headers,
		RequiresState: m.RequiresState,
	}
	var err error
	switch {
	case m.QueryParams != nil:
		w.Query, err = json.Marshal(m.QueryParams)
	case m.Query != nil:
		w.Query, err = json.Marshal(m.Query)
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the query as a matcher list or a per-parameter map.
func (m *RequestMatcher) UnmarshalJSON(data []byte) error {
	var w requestMatcherWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = RequestMatcher{
		Path:          orNil(w.Path),
		Method:        orNil(w.Method),
		Destination:   orNil(w.Destination),
		Scheme:        orNil(w.Scheme),
		Body:          orNil(w.Body),
		Headers:       mapOrNil(w.Headers),
		RequiresState: mapOrNil(w.RequiresState),
	}
	raw := strings.TrimSpace(string(w.Query))
	switch {
	case raw == "" || raw == "null":
	case raw[0] == '[':
		if err := json.Unmarshal(w.Query, &m.Query); err != nil {
			return err
		}
		m.Query = orNil(m.Query)
	case raw[0] == '{':
		if err := json.Unmarshal(w.Query, &m.QueryParams); err != nil {
			return err
		}
		m.QueryParams = mapOrNil(m.QueryParams)
	default:
		return &json.UnmarshalTypeError{Value: "scalar", Field: "query", Type: reflect.TypeOf(m.Query)}
	}
	return nil
}

// orNil and mapOrNil collapse empty collections to nil, so a decoded value
// matches what decoding its own encoding yields (empty fields are omitted).
func orNil[S ~[]E, E any](s S) S {
	if len(s) == 0 {
		return nil
	}
	return s
}

func mapOrNil[M ~map[K]V, K comparable, V any](m M) M {
	if len(m) == 0 {
		return nil
	}
	return m
}

// HeaderMatchers returns the matchers for the named header, looked up case-insensitively.
func (m RequestMatcher) HeaderMatchers(name string) []FieldMatcher {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return nil
}

// Matches evaluates the matcher against a concrete request locally. state is
// the proxy state consulted by RequiresState; it may be nil.
func (m RequestMatcher) Matches(r ConcreteRequest, state map[string]string) bool {
	if !matching.All(toMatching(m.Path), r.Path) ||
		!matching.All(toMatching(m.Method), r.Method) ||
		!matching.All(toMatching(m.Destination), r.Destination) ||
		!matching.All(toMatching(m.Scheme), r.Scheme) ||
		!matching.All(toMatching(m.Body), r.Body) ||
		!matching.All(toMatching(m.Query), matching.CanonicalQuery(r.Query)) {
		return false
	}
	if len(m.QueryParams) > 0 {
		values, _ := url.ParseQuery(strings.TrimPrefix(r.Query, "?"))
		for key, fms := range m.QueryParams {
			actual, ok := values[key]
			if !ok && len(fms) > 0 {
				return false
			}
			if !matching.All(toMatching(fms), strings.Join(actual, ";")) {
				return false
			}
		}
	}
	for name, fms := range m.Headers {
		if len(fms) == 0 {
			continue
		}
		actual, ok := matching.HeaderValue(r.Headers, name)
		if !ok || !matching.All(toMatching(fms), actual) {
			return false
		}
	}
	for k, v := range m.RequiresState {
		if state[k] != v {
			return false
		}
	}
	return true
}
