package hoverfly

import (
	"context"
	"fmt"
	"strings"

	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// VerificationError reports a journal count that differs from the expected one.
type VerificationError struct {
	Want    int
	Got     int
	Entries []simulation.JournalEntry
}

func (e *VerificationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "expected %d matching request(s), journal has %d", e.Want, e.Got)
	for _, entry := range e.Entries {
		r := entry.Request
		fmt.Fprintf(&b, "\n  %s %s://%s%s", r.Method, r.Scheme, r.Destination, r.Path)
		if r.Query != "" {
			b.WriteString("?" + r.Query)
		}
	}
	return b.String()
}

// Verify checks that the journal holds exactly times requests matching m.
// A count mismatch is a *VerificationError; search failures keep their
// admin client kinds.
func (h *Hoverfly) Verify(ctx context.Context, m simulation.RequestMatcher, times int) error {
	const op = "hoverfly.Verify"

	if times < 0 {
		return errs.Errorf(op, errs.KindInvalidArgument, "times must not be negative, got %d", times)
	}
	client, err := h.ready(op)
	if err != nil {
		return err
	}
	journal, err := client.SearchJournal(ctx, m)
	if err != nil {
		return err
	}
	got := len(journal.Entries)
	if journal.Total > got {
		got = journal.Total
	}
	if got != times {
		return &VerificationError{Want: times, Got: got, Entries: journal.Entries}
	}
	return nil
}

// VerifyNone checks that no request matching m reached the proxy.
func (h *Hoverfly) VerifyNone(ctx context.Context, m simulation.RequestMatcher) error {
	return h.Verify(ctx, m, 0)
}
