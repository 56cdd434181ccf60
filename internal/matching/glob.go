package matching

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// globSep stands in for "/" so that doublestar's "*" is not stopped by path
// separators. The proxy's glob has no notion of path segments.
const globSep = "\x1f"

func matchGlob(pattern, actual string) bool {
	if pattern == actual {
		return true
	}
	ok, err := doublestar.Match(
		strings.ReplaceAll(pattern, "/", globSep),
		strings.ReplaceAll(actual, "/", globSep),
	)
	return err == nil && ok
}
