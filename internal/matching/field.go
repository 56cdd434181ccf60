package matching

import (
	"net/url"
	"regexp"
	"strings"
	"sync"
)

// Matcher kinds, in their canonical wire spelling.
const (
	KindExact    = "exact"
	KindGlob     = "glob"
	KindRegex    = "regex"
	KindXPath    = "xpath"
	KindJSON     = "json"
	KindJSONPath = "jsonPath"
	KindXML      = "xml"
)

var kinds = []string{KindExact, KindGlob, KindRegex, KindXPath, KindJSON, KindJSONPath, KindXML}

// Canonical returns the canonical spelling of kind, compared case-insensitively,
// and whether the kind is known.
func Canonical(kind string) (string, bool) {
	for _, k := range kinds {
		if strings.EqualFold(k, kind) {
			return k, true
		}
	}
	return kind, false
}

// Matcher is one field matcher.
type Matcher struct {
	Kind  string
	Value string
}

// All reports whether every matcher accepts actual. An empty list accepts anything.
func All(matchers []Matcher, actual string) bool {
	for _, m := range matchers {
		if !Field(m.Kind, m.Value, actual) {
			return false
		}
	}
	return true
}

// Field reports whether a single matcher of the given kind accepts actual.
func Field(kind, pattern, actual string) bool {
	canonical, ok := Canonical(kind)
	if !ok {
		return false
	}
	switch canonical {
	case KindExact:
		return pattern == actual
	case KindGlob:
		return matchGlob(pattern, actual)
	case KindRegex:
		return matchRegex(pattern, actual)
	case KindXPath:
		return matchXPath(pattern, actual)
	case KindJSON:
		return matchJSON(pattern, actual)
	case KindJSONPath:
		return matchJSONPath(pattern, actual)
	case KindXML:
		return matchXML(pattern, actual)
	}
	return false
}

var regexCache sync.Map // pattern -> *regexp.Regexp, or nil for invalid patterns

func matchRegex(pattern, actual string) bool {
	if v, ok := regexCache.Load(pattern); ok {
		re, _ := v.(*regexp.Regexp)
		return re != nil && re.MatchString(actual)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		regexCache.Store(pattern, (*regexp.Regexp)(nil))
		return false
	}
	regexCache.Store(pattern, re)
	return re.MatchString(actual)
}

// CanonicalQuery sorts a raw query string by key so that matchers compare
// against a stable rendering. Unparseable queries are returned unchanged.
func CanonicalQuery(raw string) string {
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	return values.Encode()
}

// HeaderValue returns the values of the named header joined with ";".
// The name is looked up case-insensitively; ok is false when the header is absent.
func HeaderValue(headers map[string][]string, name string) (value string, ok bool) {
	if v, found := headers[name]; found {
		return strings.Join(v, ";"), true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.Join(v, ";"), true
		}
	}
	return "", false
}
