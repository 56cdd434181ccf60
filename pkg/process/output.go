package process

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// tailLines is how many stderr lines are kept for error messages.
const tailLines = 20

// tail keeps the last n lines written to it.
type tail struct {
	mu    sync.Mutex
	n     int
	lines []string
}

func newTail(n int) *tail {
	return &tail{n: n}
}

func (t *tail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.n {
		t.lines = t.lines[len(t.lines)-t.n:]
	}
}

func (t *tail) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "\n")
}

func (t *tail) contains(substr string) bool {
	return strings.Contains(t.String(), substr)
}

// pump copies r line by line to the logger, to file when non-nil and to
// keep when non-nil, until EOF.
func pump(r io.Reader, stream string, logger *slog.Logger, file io.Writer, fileMu *sync.Mutex, keep *tail) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		logger.Debug("proxy output", "stream", stream, "line", line)
		if keep != nil {
			keep.add(line)
		}
		if file != nil {
			fileMu.Lock()
			_, err := fmt.Fprintf(file, "%s %s\n", stream, line)
			fileMu.Unlock()
			if err != nil {
				logger.Warn("writing proxy log failed", "error", err)
				file = nil
			}
		}
	}
	if err := sc.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return fmt.Errorf("reading %s: %w", stream, err)
	}
	return nil
}
