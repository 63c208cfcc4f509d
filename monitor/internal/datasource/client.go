// Package datasource fetches the monitored collections from the Prism data
// API over HTTP.
package datasource

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/prisminsights/prism/monitor/internal/config"
	"github.com/prisminsights/prism/pkg/types"
)

// maxBodyBytes caps a single collection response.
const maxBodyBytes = 32 << 20

// ErrStatus is matched by errors.Is for any non-200 response.
var ErrStatus = errors.New("unexpected status")

// StatusError reports a non-200 response from the data API.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s %d", e.URL, ErrStatus, e.Code)
}

// Is lets errors.Is(err, ErrStatus) match any StatusError.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

// Client implements the monitor's DataSource against the REST data API.
// It builds the HTTP client once and reuses it for every fetch.
type Client struct {
	cfg    config.DataSourceConfig
	client *http.Client
}

// New returns a Client for the given data source configuration.
func New(cfg config.DataSourceConfig) *Client {
	return &Client{cfg: cfg, client: buildHTTPClient(cfg)}
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string { return c.cfg.BaseURL }

// FetchClients returns the current client records.
func (c *Client) FetchClients(ctx context.Context) ([]types.Client, error) {
	var out []types.Client
	if err := c.get(ctx, types.CollectionClients, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchLicenses returns the current license records.
func (c *Client) FetchLicenses(ctx context.Context) ([]types.License, error) {
	var out []types.License
	if err := c.get(ctx, types.CollectionLicenses, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchLeads returns the current lead records.
func (c *Client) FetchLeads(ctx context.Context) ([]types.Lead, error) {
	var out []types.Lead
	if err := c.get(ctx, types.CollectionLeads, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// URL returns the full request URL for collection under the configured layout.
func (c *Client) URL(collection types.Collection) string {
	base := strings.TrimRight(c.cfg.BaseURL, "/")
	if c.cfg.Layout == config.LayoutGateway {
		return base + "/" + string(collection)
	}
	return base + "/api/" + string(collection)
}

// get performs an HTTP GET for collection and decodes the JSON array into out.
func (c *Client) get(ctx context.Context, collection types.Collection, out any) error {
	url := c.URL(collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("datasource: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("datasource: get %s: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return fmt.Errorf("datasource: get %s: %w", collection, &StatusError{URL: url, Code: resp.StatusCode})
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("datasource: decode %s: %w", collection, err)
	}
	return nil
}

// authRoundTripper injects authentication headers into every outgoing request.
type authRoundTripper struct {
	base http.RoundTripper
	auth config.AuthConfig
}

func (t *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	switch t.auth.Mode {
	case "apikey":
		req = req.Clone(req.Context())
		req.Header.Set(t.auth.EffectiveHeader(), t.auth.Key())
	case "bearer":
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer "+t.auth.Token())
	}
	return t.base.RoundTrip(req)
}

// buildHTTPClient constructs an http.Client for the configured auth and TLS settings.
func buildHTTPClient(cfg config.DataSourceConfig) *http.Client {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}
	return &http.Client{
		Transport: &authRoundTripper{
			base: &http.Transport{TLSClientConfig: tlsCfg, Proxy: http.ProxyFromEnvironment},
			auth: cfg.Auth,
		},
		Timeout: cfg.Timeout,
	}
}
