// Package hoverfly drives a Hoverfly proxy from Go tests.
//
// A Hoverfly value owns one proxy for its lifetime: Start spawns the binary
// (or attaches to a running proxy when the configuration is remote), Close
// tears it down. In between, simulations are imported and exported and the
// journal is verified through the admin API.
//
// # Basic Usage
//
//	func TestCheckout(t *testing.T) {
//	    cfg, err := config.New(config.WithMode(types.ModeSimulate))
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    hf := hoverfly.New(cfg)
//	    if err := hf.Start(ctx); err != nil {
//	        t.Fatal(err)
//	    }
//	    defer hf.Close()
//
//	    if err := hf.ImportSimulation(ctx, hoverfly.FromFile("testdata/checkout.json")); err != nil {
//	        t.Fatal(err)
//	    }
//
//	    proxyURL, _ := url.Parse(hf.ProxyURL())
//	    client := &http.Client{Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)}}
//	    // exercise code using client ...
//	}
//
// # Sources
//
// Simulations can come from a value, raw bytes, a file (JSON, or YAML when
// the name ends in .yaml or .yml) or a URL. Every source is decoded with the
// configured decode options, so v1 documents are rejected before anything
// reaches the proxy:
//
//	hf.ImportSimulation(ctx, hoverfly.FromSimulation(sim)) // replace
//	hf.AddSimulation(ctx, hoverfly.FromURL(fixtureURL))    // append
//
// # Capturing
//
// Start in capture mode, drive traffic through the proxy, then export:
//
//	cfg, _ := config.New(
//	    config.WithMode(types.ModeCapture),
//	    config.WithCaptureHeaders("Authorization"),
//	)
//	...
//	sim, err := hf.ExportSimulation(ctx)
//
// # Verification
//
// Verify searches the journal and checks how often matching requests were
// seen:
//
//	err := hf.Verify(ctx, simulation.RequestMatcher{
//	    Method: []simulation.FieldMatcher{simulation.Exact("POST")},
//	    Path:   []simulation.FieldMatcher{simulation.Glob("/orders/*")},
//	}, 1)
//
// # Errors
//
// Errors are *errs.Error values. Operations before Start, after Close or
// after the proxy process died fail with errs.KindNotStarted.
package hoverfly
