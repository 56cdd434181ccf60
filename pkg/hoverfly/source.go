package hoverfly

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/getmockd/hoverfly-go/pkg/errs"
	"github.com/getmockd/hoverfly-go/pkg/simulation"
)

// maxSourceSize bounds simulations fetched from a URL.
var maxSourceSize int64 = 64 << 20

// Source produces a simulation to upload.
type Source struct {
	name string
	load func(ctx context.Context, hc *http.Client, opts []simulation.DecodeOption) (*simulation.Simulation, error)
}

// String names the source for log and error messages.
func (s Source) String() string {
	return s.name
}

// FromSimulation uses sim. It is re-encoded and decoded so it gets the same
// checks as any other source.
func FromSimulation(sim *simulation.Simulation) Source {
	return Source{
		name: "simulation value",
		load: func(_ context.Context, _ *http.Client, opts []simulation.DecodeOption) (*simulation.Simulation, error) {
			if sim == nil {
				return nil, fmt.Errorf("nil simulation")
			}
			data, err := simulation.Encode(sim)
			if err != nil {
				return nil, err
			}
			return simulation.Decode(data, opts...)
		},
	}
}

// FromBytes decodes data as a JSON simulation document.
func FromBytes(data []byte) Source {
	return Source{
		name: "bytes",
		load: func(_ context.Context, _ *http.Client, opts []simulation.DecodeOption) (*simulation.Simulation, error) {
			return simulation.Decode(data, opts...)
		},
	}
}

// FromFile reads a simulation from path. Files ending in .yaml or .yml are
// read as YAML, anything else as JSON.
func FromFile(path string) Source {
	return Source{
		name: path,
		load: func(_ context.Context, _ *http.Client, opts []simulation.DecodeOption) (*simulation.Simulation, error) {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, errs.E("hoverfly.FromFile", errs.KindInvalidArgument, err)
			}
			return decodeNamed(filepath.Ext(path), data, opts)
		},
	}
}

// FromURL fetches a simulation with a GET request when it is used.
func FromURL(rawURL string) Source {
	return Source{
		name: rawURL,
		load: func(ctx context.Context, hc *http.Client, opts []simulation.DecodeOption) (*simulation.Simulation, error) {
			const op = "hoverfly.FromURL"

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, errs.E(op, errs.KindInvalidArgument, err)
			}
			resp, err := hc.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, errs.E(op, errs.KindTimeout, err)
				}
				return nil, errs.E(op, errs.KindNetwork, err)
			}
			defer func() { _ = resp.Body.Close() }()

			if resp.StatusCode != http.StatusOK {
				return nil, errs.Errorf(op, errs.KindInvalidArgument, "GET %s: %s", rawURL, resp.Status)
			}
			data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceSize+1))
			if err != nil {
				return nil, errs.E(op, errs.KindNetwork, err)
			}
			if int64(len(data)) > maxSourceSize {
				return nil, errs.Errorf(op, errs.KindInvalidArgument, "GET %s: simulation exceeds %d bytes", rawURL, maxSourceSize)
			}
			ext := path.Ext(req.URL.Path)
			if strings.Contains(resp.Header.Get("Content-Type"), "yaml") {
				ext = ".yaml"
			}
			return decodeNamed(ext, data, opts)
		},
	}
}

func decodeNamed(ext string, data []byte, opts []simulation.DecodeOption) (*simulation.Simulation, error) {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return simulation.FromYAML(data, opts...)
	default:
		return simulation.Decode(data, opts...)
	}
}
