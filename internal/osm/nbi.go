package osm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/piwi3910/nfvacct/internal/config"
)

// ErrNotFound is returned when the NBI or RO answers 404.
var ErrNotFound = errors.New("osm resource not found")

// errRetryable marks a response that should be retried.
var errRetryable = errors.New("retryable error")

// NBIClient is a REST client for the OSM northbound interface.
// It authenticates lazily and refreshes the token on expiry or 401.
type NBIClient struct {
	config     *config.NBIConfig
	httpClient *http.Client
	baseURL    string

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time

	now func() time.Time
}

// NewNBIClient creates a new NBI client.
func NewNBIClient(cfg *config.NBIConfig) (*NBIClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	baseURL, err := parseBaseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid nbi url: %w", err)
	}

	return &NBIClient{
		config:     cfg,
		httpClient: newHTTPClient(cfg.RequestTimeout),
		baseURL:    baseURL,
		now:        time.Now,
	}, nil
}

func parseBaseURL(raw string) (string, error) {
	base := strings.TrimSuffix(raw, "/")
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url %q must be absolute", raw)
	}
	return base, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Authenticate obtains an access token. A cached unexpired token is reused.
func (c *NBIClient) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return nil
	}
	return c.authenticateLocked(ctx)
}

func (c *NBIClient) authenticateLocked(ctx context.Context) error {
	reqBody, err := json.Marshal(map[string]string{
		"username": c.config.Username,
		"password": c.config.Password,
		"project":  c.config.Project,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal auth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/osm/admin/v1/tokens", bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed: %w", statusError(resp))
	}

	var authResp struct {
		ID        string `json:"id"`
		ProjectID string `json:"project_id"`
		Expires   any    `json:"expires"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		return fmt.Errorf("failed to decode auth response: %w", err)
	}
	if authResp.ID == "" {
		return fmt.Errorf("authentication response carries no token id")
	}

	c.token = authResp.ID
	c.tokenExpiry = c.parseExpiry(authResp.Expires)
	return nil
}

// parseExpiry accepts the RFC 3339 string or the epoch seconds OSM releases
// have used, falling back to one hour from now.
func (c *NBIClient) parseExpiry(v any) time.Time {
	switch e := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, e); err == nil {
			return t
		}
	case float64:
		if e > 0 {
			return time.Unix(int64(e), 0)
		}
	}
	return c.now().Add(time.Hour)
}

func (c *NBIClient) invalidateToken(stale string) {
	c.mu.Lock()
	if c.token == stale {
		c.token = ""
		c.tokenExpiry = time.Time{}
	}
	c.mu.Unlock()
}

func (c *NBIClient) currentToken(ctx context.Context) (string, error) {
	if err := c.Authenticate(ctx); err != nil {
		return "", err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token, nil
}

// Health verifies connectivity and credentials.
func (c *NBIClient) Health(ctx context.Context) error {
	if err := c.Authenticate(ctx); err != nil {
		return fmt.Errorf("authentication check failed: %w", err)
	}
	if err := c.get(ctx, "/osm/admin/v1/tokens", nil); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// Close drops the cached token and idle connections.
func (c *NBIClient) Close() error {
	c.mu.Lock()
	c.token = ""
	c.tokenExpiry = time.Time{}
	c.mu.Unlock()

	c.httpClient.CloseIdleConnections()
	return nil
}

// GetNSInstance fetches an NS instance. Returns ErrNotFound if OSM no longer knows it.
func (c *NBIClient) GetNSInstance(ctx context.Context, nsID string) (*NSInstance, error) {
	var ns NSInstance
	if err := c.get(ctx, "/osm/nslcm/v1/ns_instances/"+url.PathEscape(nsID), &ns); err != nil {
		return nil, fmt.Errorf("failed to get ns instance %s: %w", nsID, err)
	}
	return &ns, nil
}

// ListVNFInstances lists the VNF records of an NS instance.
func (c *NBIClient) ListVNFInstances(ctx context.Context, nsID string) ([]VNFInstance, error) {
	var vnfs []VNFInstance
	path := "/osm/nslcm/v1/vnf_instances?nsr-id-ref=" + url.QueryEscape(nsID)
	if err := c.get(ctx, path, &vnfs); err != nil {
		return nil, fmt.Errorf("failed to list vnf instances of %s: %w", nsID, err)
	}
	return vnfs, nil
}

// GetVIMAccount fetches a VIM account.
func (c *NBIClient) GetVIMAccount(ctx context.Context, vimID string) (*VIMAccount, error) {
	var vim VIMAccount
	if err := c.get(ctx, "/osm/admin/v1/vim_accounts/"+url.PathEscape(vimID), &vim); err != nil {
		return nil, fmt.Errorf("failed to get vim account %s: %w", vimID, err)
	}
	return &vim, nil
}

// GetVNFPackage fetches a VNF package descriptor.
func (c *NBIClient) GetVNFPackage(ctx context.Context, vnfdID string) (*VNFPackage, error) {
	var pkg VNFPackage
	if err := c.get(ctx, "/osm/vnfpkgm/v1/vnf_packages/"+url.PathEscape(vnfdID), &pkg); err != nil {
		return nil, fmt.Errorf("failed to get vnf package %s: %w", vnfdID, err)
	}
	return &pkg, nil
}

// get performs an authenticated GET with retries on 401, 429 and 503.
func (c *NBIClient) get(ctx context.Context, path string, result any) error {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := c.waitForRetry(ctx, attempt); err != nil {
			return err
		}

		token, err := c.currentToken(ctx)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		err = c.handleResponse(resp, token, result)
		_ = resp.Body.Close()

		if err == nil {
			return nil
		}
		if !errors.Is(err, errRetryable) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *NBIClient) handleResponse(resp *http.Response, token string, result any) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		if result != nil && resp.StatusCode != http.StatusNoContent {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil

	case http.StatusNotFound:
		return ErrNotFound

	case http.StatusUnauthorized:
		c.invalidateToken(token)
		return fmt.Errorf("authentication expired: %w", errRetryable)

	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %w", statusError(resp), errRetryable)

	default:
		return statusError(resp)
	}
}

// waitForRetry implements linear backoff capped at RetryMaxDelay.
func (c *NBIClient) waitForRetry(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}

	delay := c.config.RetryDelay * time.Duration(attempt)
	if c.config.RetryMaxDelay > 0 && delay > c.config.RetryMaxDelay {
		delay = c.config.RetryMaxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("context canceled during retry wait: %w", ctx.Err())
	}
}

func statusError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("request failed (status %d, failed to read body: %w)", resp.StatusCode, err)
	}
	return fmt.Errorf("request failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
