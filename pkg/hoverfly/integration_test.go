//go:build integration

package hoverfly

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/getmockd/hoverfly-go/pkg/api/types"
	"github.com/getmockd/hoverfly-go/pkg/config"
	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

const hoverflyImage = "spectolabs/hoverfly:" + config.DefaultVersion

// realProxy starts the proxy image and returns a Hoverfly attached to it.
func realProxy(t *testing.T) *Hoverfly {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        hoverflyImage,
			ExposedPorts: []string{"8888/tcp", "8500/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("8888/tcp"),
		},
		Started: true,
	}
	container, err := testcontainers.GenericContainer(ctx, req)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	adminPort, err := container.MappedPort(ctx, "8888/tcp")
	require.NoError(t, err)
	proxyPort, err := container.MappedPort(ctx, "8500/tcp")
	require.NoError(t, err)

	admin, err := strconv.Atoi(adminPort.Port())
	require.NoError(t, err)
	proxy, err := strconv.Atoi(proxyPort.Port())
	require.NoError(t, err)

	cfg, err := config.New(
		config.WithRemote(true),
		config.WithAdminHost(host),
		config.WithAdminPort(admin),
		config.WithProxyPort(proxy),
	)
	require.NoError(t, err)

	hf := New(cfg)
	require.NoError(t, hf.Start(ctx))
	t.Cleanup(func() { _ = hf.Close() })
	return hf
}

func TestIntegration_Scenarios(t *testing.T) {
	hf := realProxy(t)
	ctx := context.Background()

	t.Run("health", func(t *testing.T) {
		ok, err := hf.AdminClient().Health(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("capture arguments", func(t *testing.T) {
		args := &types.ModeArguments{HeadersWhitelist: []string{"Content-Type", "Authorization"}}
		require.NoError(t, hf.SetMode(ctx, types.ModeCapture, args))
		info, err := hf.Info(ctx)
		require.NoError(t, err)
		assert.Equal(t, args.HeadersWhitelist, info.Arguments.HeadersWhitelist)
		require.NoError(t, hf.SetMode(ctx, types.ModeSimulate, nil))
	})

	t.Run("v1 rejected", func(t *testing.T) {
		err := hf.ImportSimulation(ctx, FromBytes([]byte(`{"data":{"pairs":[]},"meta":{"schemaVersion":"v1"}}`)))
		assert.True(t, errs.Is(err, errs.KindSchema), "got %v", err)
	})

	t.Run("round trip", func(t *testing.T) {
		want := simulation.New(simulation.RequestResponsePair{
			Request: simulation.RequestMatcher{
				Destination: []simulation.FieldMatcher{simulation.Glob("*")},
			},
			Response: simulation.Response{Status: http.StatusOK, Body: "ok"},
		})
		require.NoError(t, hf.ImportSimulation(ctx, FromSimulation(want)))
		got, err := hf.ExportSimulation(ctx)
		require.NoError(t, err)
		require.Len(t, got.Data.Pairs, 1)
		assert.Equal(t, want.Data.Pairs[0].Response.Body, got.Data.Pairs[0].Response.Body)
	})

	t.Run("journal filter", func(t *testing.T) {
		client := proxied(t, hf)
		fetch(t, client, "http://hoverfly.io/")
		fetch(t, client, "http://specto.io/")
		matcher := simulation.RequestMatcher{Destination: []simulation.FieldMatcher{simulation.Glob("hoverfly.*")}}
		assert.NoError(t, hf.Verify(ctx, matcher, 1))
	})

	t.Run("reset", func(t *testing.T) {
		require.NoError(t, hf.Reset(ctx))
		sim, err := hf.ExportSimulation(ctx)
		require.NoError(t, err)
		assert.Empty(t, sim.Data.Pairs)
	})
}
