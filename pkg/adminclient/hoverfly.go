package adminclient

import (
	"context"
	"net/http"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// Health reports whether the admin API answers GET /api/health with 200.
// Only transport failures are returned as errors.
func (c *Client) Health(ctx context.Context) (bool, error) {
	const op = "adminclient.Health"

	_, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/health"})
	if err == nil {
		return true, nil
	}
	switch errs.KindOf(err) {
	case errs.KindNetwork, errs.KindTimeout, errs.KindNotStarted:
		return false, err
	}
	return false, nil
}

// Info returns the proxy's current configuration.
func (c *Client) Info(ctx context.Context) (*types.HoverflyInfo, error) {
	const op = "adminclient.Info"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/hoverfly"})
	if err != nil {
		return nil, err
	}
	var info types.HoverflyInfo
	if err := decode(op, body, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Mode returns the proxy's current mode.
func (c *Client) Mode(ctx context.Context) (types.Mode, error) {
	const op = "adminclient.Mode"

	body, err := c.send(ctx, request{op: op, method: http.MethodGet, path: "/api/v2/hoverfly/mode"})
	if err != nil {
		return "", err
	}
	var resp types.ModeRequest
	if err := decode(op, body, &resp); err != nil {
		return "", err
	}
	return resp.Mode, nil
}

// SetMode switches the proxy's mode. args apply to capture mode only and may be nil.
func (c *Client) SetMode(ctx context.Context, mode types.Mode, args *types.ModeArguments) error {
	const op = "adminclient.SetMode"

	if !mode.Valid() {
		return errs.Errorf(op, errs.KindInvalidArgument, "unknown mode %q", mode)
	}
	_, err := c.send(ctx, request{
		op:        op,
		method:    http.MethodPut,
		path:      "/api/v2/hoverfly/mode",
		body:      types.ModeRequest{Mode: mode, Arguments: args},
		clientErr: errs.KindInvalidMode,
	})
	return err
}

// SetDestination restricts the hosts the proxy acts on. "." matches every host.
func (c *Client) SetDestination(ctx context.Context, destination string) error {
	const op = "adminclient.SetDestination"

	_, err := c.send(ctx, request{
		op:        op,
		method:    http.MethodPut,
		path:      "/api/v2/hoverfly/destination",
		body:      types.DestinationRequest{Destination: destination},
		clientErr: errs.KindInvalidMode,
	})
	return err
}

// SetUpstreamProxy routes the proxy's outbound traffic through proxyURL.
func (c *Client) SetUpstreamProxy(ctx context.Context, proxyURL string) error {
	const op = "adminclient.SetUpstreamProxy"

	_, err := c.send(ctx, request{
		op:        op,
		method:    http.MethodPut,
		path:      "/api/v2/hoverfly/upstream-proxy",
		body:      types.UpstreamProxyRequest{UpstreamProxy: proxyURL},
		clientErr: errs.KindInvalidMode,
	})
	return err
}

// SetMiddleware registers a middleware and returns the configuration the proxy accepted.
func (c *Client) SetMiddleware(ctx context.Context, mw types.Middleware) (*types.Middleware, error) {
	const op = "adminclient.SetMiddleware"

	body, err := c.send(ctx, request{
		op:        op,
		method:    http.MethodPut,
		path:      "/api/v2/hoverfly/middleware",
		body:      mw,
		clientErr: errs.KindInvalidMode,
	})
	if err != nil {
		return nil, err
	}
	var accepted types.Middleware
	if len(body) == 0 {
		return &mw, nil
	}
	if err := decode(op, body, &accepted); err != nil {
		return nil, err
	}
	return &accepted, nil
}

// Login exchanges credentials for a token, which the client then adopts.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	const op = "adminclient.Login"

	body, err := c.send(ctx, request{
		op:     op,
		method: http.MethodPost,
		path:   "/api/token-auth",
		body:   types.TokenRequest{Username: username, Password: password},
	})
	if err != nil {
		return "", err
	}
	var resp types.TokenResponse
	if err := decode(op, body, &resp); err != nil {
		return "", err
	}
	if resp.Token == "" {
		return "", errs.Errorf(op, errs.KindProtocol, "empty token in response")
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}
