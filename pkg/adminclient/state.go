package adminclient

import (
	"context"
	"net/http"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
)

// State returns the proxy's state map.
func (c *Client) State(ctx context.Context) (map[string]string, error) {
	const op = "adminclient.State"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/state"})
	if err != nil {
		return nil, err
	}
	var resp types.StateBody
	if err := decode(op, body, &resp); err != nil {
		return nil, err
	}
	if resp.State == nil {
		resp.State = map[string]string{}
	}
	return resp.State, nil
}

// SetState replaces the state map.
func (c *Client) SetState(ctx context.Context, state map[string]string) error {
	_, err := c.send(ctx, request{
		op:     "adminclient.SetState",
		method: http.MethodPut,
		path:   "/api/v2/state",
		body:   types.StateBody{State: state},
	})
	return err
}

// PatchState merges state into the state map.
func (c *Client) PatchState(ctx context.Context, state map[string]string) error {
	_, err := c.send(ctx, request{
		op:     "adminclient.PatchState",
		method: http.MethodPatch,
		path:   "/api/v2/state",
		body:   types.StateBody{State: state},
	})
	return err
}

// DeleteState clears the state map.
func (c *Client) DeleteState(ctx context.Context) error {
	_, err := c.send(ctx, request{op: "adminclient.DeleteState", method: http.MethodDelete, path: "/api/v2/state"})
	return err
}

// Diffs returns the differences collected in diff mode.
func (c *Client) Diffs(ctx context.Context) ([]types.Diff, error) {
	const op = "adminclient.Diffs"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/diff"})
	if err != nil {
		return nil, err
	}
	var resp types.DiffResponse
	if err := decode(op, body, &resp); err != nil {
		return nil, err
	}
	if resp.Diff == nil {
		resp.Diff = []types.Diff{}
	}
	return resp.Diff, nil
}

// DeleteDiffs clears the collected differences.
func (c *Client) DeleteDiffs(ctx context.Context) error {
	_, err := c.send(ctx, request{op: "adminclient.DeleteDiffs", method: http.MethodDelete, path: "/api/v2/diff"})
	return err
}
