package config

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/getmockd/hoverfly-go/pkg/errs"
)

// TLSConfig returns the client TLS configuration for https admin traffic, or
// nil when the scheme is http. The CA certificate, when set, is added to the
// system pool.
func (c *Config) TLSConfig() (*tls.Config, error) {
	const op = "config.TLSConfig"

	if c.s.scheme != "https" {
		return nil, nil
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if c.s.caCert != "" {
		pem, err := os.ReadFile(c.s.caCert)
		if err != nil {
			return nil, errs.E(op, errs.KindInvalidArgument, err)
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errs.Errorf(op, errs.KindInvalidArgument, "no certificates found in %s", c.s.caCert)
		}
	}
	return &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}, nil
}
