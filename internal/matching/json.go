package matching

import (
	"reflect"
	"strings"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

func matchJSON(expected, actual string) bool {
	if strings.TrimSpace(expected) == "" {
		return strings.TrimSpace(actual) == ""
	}
	want, err := oj.ParseString(expected)
	if err != nil {
		return false
	}
	got, err := oj.ParseString(actual)
	if err != nil {
		return false
	}
	return reflect.DeepEqual(normalizeNumbers(want), normalizeNumbers(got))
}

// normalizeNumbers widens integers to float64 so 1 and 1.0 compare equal.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case map[string]any:
		for k, child := range t {
			t[k] = normalizeNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = normalizeNumbers(child)
		}
		return t
	}
	return v
}

func matchJSONPath(expr, actual string) bool {
	x, err := jp.ParseString(expr)
	if err != nil {
		return false
	}
	data, err := oj.ParseString(actual)
	if err != nil {
		return false
	}
	return len(x.Get(data)) > 0
}
