package shipper

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/obsidianstack/logshipper/agent/internal/config"
)

// headerTenant is the Loki multi-tenancy header.
const headerTenant = "X-Scope-OrgID"

// authRoundTripper injects tenant and authentication headers into every
// outgoing push.
type authRoundTripper struct {
	base   http.RoundTripper
	auth   config.AuthConfig
	tenant string
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.tenant == "" && t.auth.Mode != "apikey" && t.auth.Mode != "bearer" && t.auth.Mode != "basic" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	if t.tenant != "" {
		req.Header.Set(headerTenant, t.tenant)
	}
	switch t.auth.Mode {
	case "apikey":
		req.Header.Set(t.auth.Header, t.auth.Key())
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	case "basic":
		req.SetBasicAuth(t.auth.Username, t.auth.Password())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs the reusable push client. The dialer and TLS
// handshake are bounded by ConnectTimeout, the whole exchange by
// ConnectTimeout + RequestTimeout.
func buildHTTPClient(cfg config.ShipperConfig) (*http.Client, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.Auth.Mode == "mtls" {
		cert, err := tls.LoadX509KeyPair(cfg.Auth.CertFile, cfg.Auth.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}

		if cfg.Auth.CAFile != "" {
			caPEM, err := os.ReadFile(cfg.Auth.CAFile)
			if err != nil {
				return nil, fmt.Errorf("read ca file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(caPEM) {
				return nil, fmt.Errorf("no valid certs found in ca file %q", cfg.Auth.CAFile)
			}
			tlsCfg.RootCAs = pool
		}
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsCfg,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.RequestTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: &authRoundTripper{base: base, auth: cfg.Auth, tenant: cfg.TenantID},
		Timeout:   cfg.ConnectTimeout + cfg.RequestTimeout,
	}, nil
}
