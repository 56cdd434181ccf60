package process

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/getmockd/hoverfly-go/pkg/adminclient"
)

// Readiness poll schedule.
const (
	readyInitialInterval = 100 * time.Millisecond
	readyMultiplier      = 1.5
	readyMaxInterval     = 2 * time.Second
)

var (
	errNotReady = errors.New("admin endpoint not healthy yet")
	errExited   = errors.New("proxy exited before becoming ready")
)

// waitReady polls the health endpoint until it answers 200, the child exits
// or ctx ends. It returns errExited when exited closes first.
func waitReady(ctx context.Context, client *adminclient.Client, exited <-chan struct{}) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = readyInitialInterval
	policy.Multiplier = readyMultiplier
	policy.MaxInterval = readyMaxInterval
	policy.RandomizationFactor = 0
	policy.MaxElapsedTime = 0

	check := func() error {
		select {
		case <-exited:
			return backoff.Permanent(errExited)
		default:
		}
		ok, err := client.Health(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return errNotReady
		}
		return nil
	}
	err := backoff.Retry(check, backoff.WithContext(policy, ctx))
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
