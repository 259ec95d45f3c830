package security

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"math"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/obsidianstack/logshipper/agent/internal/config"
)

// Certificate states reported by Check.
const (
	StateValid       = "valid"
	StateExpiring    = "expiring"
	StateExpired     = "expired"
	StateUntrusted   = "untrusted"
	StateUnreachable = "unreachable"
)

// expiringWithin is the window in which a valid certificate is reported as expiring.
const expiringWithin = 30 * 24 * time.Hour

// CertStatus describes the aggregator's leaf certificate.
type CertStatus struct {
	Endpoint string
	Issuer   string
	NotAfter time.Time
	DaysLeft int
	State    string
	Err      error
}

// Check dials the aggregator configured in cfg and returns a CertStatus
// describing its leaf certificate.
//
// Returns nil for non-HTTPS URLs; there is no TLS certificate to inspect.
// The dial is bounded by cfg.ConnectTimeout so a slow or unreachable host
// does not hold up agent startup.
func Check(ctx context.Context, cfg config.ShipperConfig) *CertStatus {
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{Endpoint: cfg.URL}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		// No explicit port in the URL; append the HTTPS default.
		host = net.JoinHostPort(host, "443")
	}

	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
		ServerName:         u.Hostname(),
	}
	if cfg.Auth.CAFile != "" {
		if pool, err := loadPool(cfg.Auth.CAFile); err == nil {
			tlsCfg.RootCAs = pool
		}
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsCfg}
	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Err = err
		var verr *tls.CertificateVerificationError
		if errors.As(err, &verr) {
			if len(verr.UnverifiedCertificates) > 0 {
				fill(cs, verr.UnverifiedCertificates[0], time.Now())
			}
			cs.State = StateUntrusted
			return cs
		}
		cs.State = StateUnreachable
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.State = StateUnreachable
		return cs
	}

	fill(cs, peerCerts[0], time.Now())
	return cs
}

// fill records leaf's validity window relative to now.
func fill(cs *CertStatus, leaf *x509.Certificate, now time.Time) {
	left := leaf.NotAfter.Sub(now)

	cs.NotAfter = leaf.NotAfter.UTC()
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(left.Hours() / 24))
	cs.State = classify(left)
}

func classify(left time.Duration) string {
	switch {
	case left <= 0:
		return StateExpired
	case left <= expiringWithin:
		return StateExpiring
	default:
		return StateValid
	}
}

func loadPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("no certificates in " + path)
	}
	return pool, nil
}
