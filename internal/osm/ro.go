package osm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/piwi3910/nfvacct/internal/config"
)

// ROClient talks to the OpenMANO resource orchestrator. The RO API is
// unauthenticated on the management network.
type ROClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewROClient creates a new RO client.
func NewROClient(cfg *config.ROConfig) (*ROClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	raw := cfg.URL
	if raw == "" {
		raw = "http://localhost:9090/openmano"
	}
	baseURL, err := parseBaseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid ro url: %w", err)
	}

	return &ROClient{
		httpClient: newHTTPClient(cfg.RequestTimeout),
		baseURL:    baseURL,
	}, nil
}

// ListTenants returns every RO tenant.
func (c *ROClient) ListTenants(ctx context.Context) ([]ROTenant, error) {
	resp, err := c.do(ctx, "/tenants")
	if err != nil {
		return nil, fmt.Errorf("failed to list ro tenants: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list ro tenants: %w", statusError(resp))
	}

	var body struct {
		Tenants []ROTenant `json:"tenants"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode ro tenants: %w", err)
	}
	return body.Tenants, nil
}

// InstanceExists reports whether the tenant owns the RO instance nsrID.
func (c *ROClient) InstanceExists(ctx context.Context, tenantID, nsrID string) (bool, error) {
	resp, err := c.do(ctx, "/"+url.PathEscape(tenantID)+"/instances/"+url.PathEscape(nsrID))
	if err != nil {
		return false, fmt.Errorf("failed to get ro instance: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound, http.StatusBadRequest:
		return false, nil
	default:
		return false, fmt.Errorf("failed to get ro instance: %w", statusError(resp))
	}
}

// Health checks that the RO answers the tenant listing.
func (c *ROClient) Health(ctx context.Context) error {
	_, err := c.ListTenants(ctx)
	return err
}

func (c *ROClient) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}
