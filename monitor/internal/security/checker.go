// Package security inspects the TLS certificate served by the data API so
// that an expiring or broken endpoint shows up on the health report before
// polling starts to fail.
package security

import (
	"context"
	"crypto/tls"
	"math"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/prisminsights/prism/monitor/internal/config"
)

const (
	dialTimeout  = 10 * time.Second
	expiringDays = 30
)

// CertStatus describes the leaf certificate of one endpoint.
type CertStatus struct {
	Endpoint  string    `json:"endpoint"`
	AuthType  string    `json:"auth_type"`
	Status    string    `json:"status"` // valid | expiring | expired | unreachable
	Issuer    string    `json:"issuer,omitempty"`
	NotAfter  string    `json:"not_after,omitempty"`
	DaysLeft  int       `json:"days_left"`
	CheckedAt time.Time `json:"checked_at"`
}

// Check dials the data API and returns the state of its certificate.
// Returns nil for plain-HTTP endpoints.
func Check(ctx context.Context, ds config.DataSourceConfig) *CertStatus {
	u, err := url.Parse(ds.BaseURL)
	if err != nil || u.Scheme != "https" {
		return nil
	}

	cs := &CertStatus{
		Endpoint:  ds.BaseURL,
		AuthType:  ds.Auth.Mode,
		CheckedAt: time.Now(),
	}
	if cs.AuthType == "" {
		cs.AuthType = "none"
	}

	host := u.Host
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, "443")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{},
		Config: &tls.Config{
			InsecureSkipVerify: ds.TLS.InsecureSkipVerify, //nolint:gosec
		},
	}

	netConn, err := dialer.DialContext(dialCtx, "tcp", host)
	if err != nil {
		cs.Status = "unreachable"
		return cs
	}
	conn := netConn.(*tls.Conn)
	defer conn.Close()

	peerCerts := conn.ConnectionState().PeerCertificates
	if len(peerCerts) == 0 {
		cs.Status = "unreachable"
		return cs
	}

	leaf := peerCerts[0]
	daysLeft := leaf.NotAfter.Sub(cs.CheckedAt).Hours() / 24

	cs.NotAfter = leaf.NotAfter.UTC().Format(time.RFC3339)
	cs.Issuer = leaf.Issuer.CommonName
	cs.DaysLeft = int(math.Floor(daysLeft))
	cs.Status = classify(daysLeft)
	return cs
}

func classify(daysLeft float64) string {
	switch {
	case daysLeft <= 0:
		return "expired"
	case daysLeft <= expiringDays:
		return "expiring"
	default:
		return "valid"
	}
}

// Cache re-checks the certificate at most once per TTL so the health
// endpoint does not dial on every request.
type Cache struct {
	ttl   time.Duration
	check func(context.Context) *CertStatus

	mu      sync.Mutex
	cfg     config.DataSourceConfig
	last    *CertStatus
	checked time.Time
}

// NewCache returns a Cache for ds.
func NewCache(ds config.DataSourceConfig, ttl time.Duration) *Cache {
	c := &Cache{ttl: ttl, cfg: ds}
	c.check = func(ctx context.Context) *CertStatus {
		c.mu.Lock()
		cfg := c.cfg
		c.mu.Unlock()
		return Check(ctx, cfg)
	}
	return c
}

// SetDataSource replaces the endpoint and invalidates the cached result.
func (c *Cache) SetDataSource(ds config.DataSourceConfig) {
	c.mu.Lock()
	c.cfg = ds
	c.last = nil
	c.checked = time.Time{}
	c.mu.Unlock()
}

// Get returns the cached status, re-checking when it is older than the TTL.
func (c *Cache) Get(ctx context.Context) *CertStatus {
	c.mu.Lock()
	if !c.checked.IsZero() && time.Since(c.checked) < c.ttl {
		cs := c.last
		c.mu.Unlock()
		return cs
	}
	c.mu.Unlock()

	cs := c.check(ctx)

	c.mu.Lock()
	c.last = cs
	c.checked = time.Now()
	c.mu.Unlock()
	return cs
}
