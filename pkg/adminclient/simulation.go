package adminclient

import (
	"context"
	"net/http"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// Simulation exports the proxy's current simulation.
func (c *Client) Simulation(ctx context.Context) (*simulation.Simulation, error) {
	const op = "adminclient.Simulation"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/simulation"})
	if err != nil {
		return nil, err
	}
	sim, err := simulation.Decode(body, c.decodeOpts...)
	if err != nil {
		kind := errs.KindOf(err)
		if kind == "" {
			kind = errs.KindProtocol
		}
		return nil, errs.E(op, kind, err)
	}
	return sim, nil
}

// SetSimulation replaces the proxy's simulation with sim.
func (c *Client) SetSimulation(ctx context.Context, sim *simulation.Simulation) error {
	return c.uploadSimulation(ctx, "adminclient.SetSimulation", http.MethodPut, sim)
}

// AddSimulation appends sim's pairs to the proxy's simulation.
func (c *Client) AddSimulation(ctx context.Context, sim *simulation.Simulation) error {
	return c.uploadSimulation(ctx, "adminclient.AddSimulation", http.MethodPost, sim)
}

func (c *Client) uploadSimulation(ctx context.Context, op, method string, sim *simulation.Simulation) error {
	raw, err := simulation.Encode(sim)
	if err != nil {
		return errs.E(op, errs.KindOf(err), err)
	}
	_, err = c.send(ctx, request{
		op:        op,
		method:    method,
		path:      "/api/v2/simulation",
		raw:       raw,
		clientErr: errs.KindBadSimulation,
	})
	return err
}

// DeleteSimulation removes every pair and global action.
func (c *Client) DeleteSimulation(ctx context.Context) error {
	_, err := c.send(ctx, request{op: "adminclient.DeleteSimulation", method: http.MethodDelete, path: "/api/v2/simulation"})
	return err
}

// Journal returns a page of the proxy's journal. q may be nil.
func (c *Client) Journal(ctx context.Context, q *types.JournalQuery) (*simulation.Journal, error) {
	const op = "adminclient.Journal"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/journal", query: q.Values()})
	if err != nil {
		return nil, err
	}
	return decodeJournal(op, body)
}

// SearchJournal returns the journal entries whose request m accepts.
func (c *Client) SearchJournal(ctx context.Context, m simulation.RequestMatcher) (*simulation.Journal, error) {
	const op = "adminclient.SearchJournal"

	body, err := c.send(ctx, request{
		op:         op,
		method:     http.MethodPost,
		path:       "/api/v2/journal",
		body:       searchRequest{Request: m},
		badRequest: errs.KindBadMatcher,
	})
	if err != nil {
		return nil, err
	}
	return decodeJournal(op, body)
}

// DeleteJournal clears the journal.
func (c *Client) DeleteJournal(ctx context.Context) error {
	_, err := c.send(ctx, request{op: "adminclient.DeleteJournal", method: http.MethodDelete, path: "/api/v2/journal"})
	return err
}

type searchRequest struct {
	Request simulation.RequestMatcher `json:"request"`
}

func decodeJournal(op string, body []byte) (*simulation.Journal, error) {
	var j simulation.Journal
	if err := decode(op, body, &j); err != nil {
		return nil, err
	}
	if j.Entries == nil {
		j.Entries = []simulation.JournalEntry{}
	}
	return &j, nil
}
