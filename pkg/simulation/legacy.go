package simulation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var matcherFields = []string{"path", "method", "destination", "scheme", "body", "query"}

// legacyKinds maps the keys of v2-v4 request field objects to matcher kinds.
var legacyKinds = []struct{ key, kind string }{
	{"exactMatch", "exact"},
	{"globMatch", "glob"},
	{"regexMatch", "regex"},
	{"xpathMatch", "xpath"},
	{"jsonMatch", "json"},
	{"jsonPathMatch", "jsonPath"},
	{"xmlMatch", "xml"},
}

// canonicalizeLegacy rewrites single-object and plain-string request field
// matchers into matcher arrays. Fields already in array form are untouched.
func canonicalizeLegacy(data []byte) ([]byte, error) {
	pairs := gjson.GetBytes(data, "data.pairs")
	if !pairs.IsArray() {
		return data, nil
	}

	var err error
	for i, pair := range pairs.Array() {
		req := pair.Get("request")
		if !req.IsObject() {
			continue
		}
		base := fmt.Sprintf("data.pairs.%d.request", i)

		for _, field := range matcherFields {
			v := req.Get(field)
			if field == "query" && v.IsObject() && !isMatcherObject(v) {
				// per-parameter query map
				continue
			}
			if data, err = rewriteMatcher(data, base+"."+field, v); err != nil {
				return nil, err
			}
		}

		headers := req.Get("headers")
		if headers.IsObject() {
			headers.ForEach(func(name, v gjson.Result) bool {
				data, err = rewriteMatcher(data, base+".headers."+escapePath(name.String()), v)
				return err == nil
			})
			if err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func rewriteMatcher(data []byte, path string, v gjson.Result) ([]byte, error) {
	list, ok := legacyList(v)
	if !ok {
		return data, nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return sjson.SetRawBytes(data, path, raw)
}

type legacyMatcher struct {
	Matcher string          `json:"matcher"`
	Value   json.RawMessage `json:"value"`
}

// legacyList converts v into matcher array form; ok is false when v needs no rewrite.
func legacyList(v gjson.Result) ([]legacyMatcher, bool) {
	switch {
	case v.Type == gjson.String:
		return []legacyMatcher{{Matcher: "exact", Value: json.RawMessage(v.Raw)}}, true
	case v.IsObject() && v.Get("matcher").Exists():
		return []legacyMatcher{{Matcher: v.Get("matcher").String(), Value: rawOrNull(v.Get("value"))}}, true
	case v.IsObject():
		var list []legacyMatcher
		for _, lk := range legacyKinds {
			if m := v.Get(lk.key); m.Exists() && m.Type != gjson.Null {
				list = append(list, legacyMatcher{Matcher: lk.kind, Value: json.RawMessage(m.Raw)})
			}
		}
		return list, len(list) > 0
	}
	return nil, false
}

func isMatcherObject(v gjson.Result) bool {
	if v.Get("matcher").Exists() {
		return true
	}
	for _, lk := range legacyKinds {
		if v.Get(lk.key).Exists() {
			return true
		}
	}
	return false
}

func rawOrNull(v gjson.Result) json.RawMessage {
	if !v.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(v.Raw)
}

// escapePath escapes gjson/sjson path metacharacters in a single key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
