// Package flags provides reusable flag types for CLI commands.
package flags

import (
	"fmt"
	"strings"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
)

// StringSlice is a repeatable string flag that also splits on commas.
type StringSlice []string

// String returns the string representation of the flag value.
func (s *StringSlice) String() string {
	return strings.Join(*s, ",")
}

// Set appends the comma-separated values in value.
func (s *StringSlice) Set(value string) error {
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			*s = append(*s, v)
		}
	}
	return nil
}

// Type specifies the type label for Cobra flags.
func (s *StringSlice) Type() string {
	return "strings"
}

// Mode is a flag holding a proxy mode, validated on Set.
type Mode types.Mode

func (m *Mode) String() string {
	return string(*m)
}

func (m *Mode) Set(value string) error {
	mode, err := types.ParseMode(value)
	if err != nil {
		return fmt.Errorf("%w (want one of %s)", err, modeNames())
	}
	*m = Mode(mode)
	return nil
}

func (m *Mode) Type() string {
	return "mode"
}

func modeNames() string {
	names := make([]string, 0, len(types.Modes()))
	for _, mode := range types.Modes() {
		names = append(names, string(mode))
	}
	return strings.Join(names, "|")
}
