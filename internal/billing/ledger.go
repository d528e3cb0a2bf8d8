// Package billing is the client of the accounting backend. A Ledger holds the
// bearer credential, opens and closes NS, VNF and VDU sessions and logs VDU
// consumption against open sessions.
//
// Every call is attempted once with the cached credential. A 401 or 403 causes
// exactly one re-login and one retry; there are no other retries. Transport
// failures and 5xx answers feed a circuit breaker that fails calls fast while
// the backend is down.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/piwi3910/nfvacct/internal/config"
)

const (
	authPath       = "/api/authenticate"
	accountingPath = "/api/accounting"
	maxBodyBytes   = 1 << 20
)

var (
	// ErrUnauthorized is returned when the backend still rejects the credential after re-login.
	ErrUnauthorized = errors.New("billing backend rejected credentials")

	// ErrUnopenedSession is returned when closing or logging against a session that was never opened.
	ErrUnopenedSession = errors.New("billing session was never opened")

	// ErrUnknownKind is returned for a session kind without a route.
	ErrUnknownKind = errors.New("unknown session kind")
)

// StatusError is a non-success answer from the backend.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("billing request failed (status %d): %s", e.StatusCode, e.Body)
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Ledger) { l.httpClient = c }
}

// WithClock replaces the time source used for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// Ledger is a stateful client of the accounting backend. It is safe for concurrent use.
type Ledger struct {
	cfg        *config.BillingConfig
	httpClient *http.Client
	rootURL    string
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	token string
}

type reply struct {
	status int
	body   []byte
}

// New builds a Ledger and logs in. A failed login is returned as an error.
func New(ctx context.Context, cfg *config.BillingConfig, logger *zap.Logger, opts ...Option) (*Ledger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("billing host cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	protocol := cfg.Protocol
	if protocol == "" {
		protocol = "https"
	}

	l := &Ledger{
		cfg:     cfg,
		rootURL: fmt.Sprintf("%s://%s:%d", protocol, cfg.Host, cfg.Port),
		logger:  logger.Named("billing"),
		now:     time.Now,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(l)
	}
	l.breaker = l.newBreaker()

	if err := l.login(ctx); err != nil {
		return nil, fmt.Errorf("failed to log in to billing backend: %w", err)
	}
	return l, nil
}

func (l *Ledger) newBreaker() *gobreaker.CircuitBreaker {
	failures := l.cfg.Breaker.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := l.cfg.Breaker.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "billing",
		MaxRequests: l.cfg.Breaker.MaxRequests,
		Interval:    l.cfg.Breaker.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			l.logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			switch to {
			case gobreaker.StateClosed:
				breakerState.Set(0)
			case gobreaker.StateHalfOpen:
				breakerState.Set(1)
			case gobreaker.StateOpen:
				breakerState.Set(2)
			}
		},
	})
}

// login exchanges the configured username and password for a bearer token.
func (l *Ledger) login(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{
		"username": l.cfg.Username,
		"password": l.cfg.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	r, err := l.send(ctx, http.MethodPost, l.rootURL+authPath, body, false)
	if err != nil {
		return err
	}
	if r.status != http.StatusOK {
		return &StatusError{StatusCode: r.status, Body: truncate(r.body)}
	}

	var auth struct {
		IDToken string `json:"id_token"`
	}
	if err := json.Unmarshal(r.body, &auth); err != nil {
		return fmt.Errorf("failed to decode authentication response: %w", err)
	}
	if auth.IDToken == "" {
		return fmt.Errorf("authentication response carries no id_token")
	}

	l.mu.Lock()
	l.token = auth.IDToken
	l.mu.Unlock()

	l.logger.Info("logged in to billing backend")
	return nil
}

// Open opens a session and returns its id.
func (l *Ledger) Open(ctx context.Context, kind Kind, attrs Attributes) (int64, error) {
	spec, err := lookupKind(kind)
	if err != nil {
		return 0, err
	}
	if attrs == nil || attrs.Kind() != kind {
		return 0, fmt.Errorf("attributes do not describe a %s session", kind)
	}

	body, err := l.do(ctx, string(kind), "open", http.MethodPost, spec.openPath, attrs.payload(l.timestamp()))
	if err != nil {
		return 0, fmt.Errorf("failed to open %s session: %w", kind, err)
	}

	id, err := strconv.ParseInt(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s session id %q: %w", kind, truncate(body), err)
	}

	l.logger.Info("opened session", zap.String("kind", string(kind)), zap.Int64("session_id", id))
	return id, nil
}

// Close closes a session. Session ids below zero were never opened and are
// rejected with ErrUnopenedSession without contacting the backend.
func (l *Ledger) Close(ctx context.Context, sessionID int64, kind Kind) error {
	spec, err := lookupKind(kind)
	if err != nil {
		return err
	}
	if sessionID < 0 {
		return ErrUnopenedSession
	}

	payload := struct {
		ID int64 `json:"id"`
	}{sessionID}

	if _, err := l.do(ctx, string(kind), "close", http.MethodPost, spec.closePath, payload); err != nil {
		return fmt.Errorf("failed to close %s session %d: %w", kind, sessionID, err)
	}

	l.logger.Info("closed session", zap.String("kind", string(kind)), zap.Int64("session_id", sessionID))
	return nil
}

// LogConsumption reports one consumption value against a VDU session.
func (l *Ledger) LogConsumption(ctx context.Context, consumptionType string, value float64, vduSessionID int64) error {
	if vduSessionID < 0 {
		return ErrUnopenedSession
	}

	payload := struct {
		Timestamp        float64 `json:"timestamp"`
		ConsumptionType  string  `json:"consumption_type"`
		ConsumptionValue float64 `json:"consumption_value"`
		VduSessionID     int64   `json:"vdu_session_id"`
	}{l.timestamp(), consumptionType, value, vduSessionID}

	if _, err := l.do(ctx, "consumption", "log", http.MethodPost, "/logVduConsumption", payload); err != nil {
		return fmt.Errorf("failed to log %s consumption for session %d: %w", consumptionType, vduSessionID, err)
	}

	l.logger.Debug("logged vdu consumption",
		zap.String("kind", consumptionType),
		zap.Float64("value", value),
		zap.Int64("session_id", vduSessionID),
	)
	return nil
}

// AvailableUserResources returns the backend's available user resource list as raw JSON.
func (l *Ledger) AvailableUserResources(ctx context.Context) (json.RawMessage, error) {
	body, err := l.do(ctx, "resources", "list", http.MethodGet, "/availableUserResourceList", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list available user resources: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("available user resources is not valid JSON")
	}
	return json.RawMessage(body), nil
}

// Health reports an error while the circuit breaker is open.
func (l *Ledger) Health(_ context.Context) error {
	if l.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("billing backend: %w", gobreaker.ErrOpenState)
	}
	return nil
}

// Shutdown releases idle connections.
func (l *Ledger) Shutdown() {
	l.httpClient.CloseIdleConnections()
}

// do runs one accounting call under the retry contract and returns the body of a 2xx answer.
func (l *Ledger) do(ctx context.Context, kind, op, method, path string, payload any) ([]byte, error) {
	start := time.Now()
	defer func() {
		callDuration.WithLabelValues(kind, op).Observe(time.Since(start).Seconds())
	}()

	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	url := l.rootURL + accountingPath + path

	r, err := l.send(ctx, method, url, body, true)
	if err != nil {
		callsTotal.WithLabelValues(kind, op, "error").Inc()
		return nil, err
	}

	if isAuthFailure(r.status) {
		l.logger.Warn("billing credential rejected, logging in again",
			zap.String("kind", kind),
			zap.String("op", op),
			zap.Int("status", r.status),
		)

		if err := l.login(ctx); err != nil {
			reauthTotal.WithLabelValues("failure").Inc()
			callsTotal.WithLabelValues(kind, op, "unauthorized").Inc()
			return nil, fmt.Errorf("%w: re-authentication failed: %w", ErrUnauthorized, err)
		}
		reauthTotal.WithLabelValues("success").Inc()

		r, err = l.send(ctx, method, url, body, true)
		if err != nil {
			callsTotal.WithLabelValues(kind, op, "error").Inc()
			return nil, err
		}
		if isAuthFailure(r.status) {
			callsTotal.WithLabelValues(kind, op, "unauthorized").Inc()
			return nil, fmt.Errorf("%w: status %d after re-authentication", ErrUnauthorized, r.status)
		}
	}

	if r.status < 200 || r.status > 299 {
		callsTotal.WithLabelValues(kind, op, strconv.Itoa(r.status)).Inc()
		return nil, &StatusError{StatusCode: r.status, Body: truncate(r.body)}
	}

	callsTotal.WithLabelValues(kind, op, "ok").Inc()
	return r.body, nil
}

// send performs a single HTTP exchange through the circuit breaker.
// Transport errors and 5xx answers count as breaker failures.
func (l *Ledger) send(ctx context.Context, method, url string, body []byte, auth bool) (*reply, error) {
	res, err := l.breaker.Execute(func() (interface{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if auth {
			l.mu.Lock()
			token := l.token
			l.mu.Unlock()
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
		}

		resp, err := l.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}

		r := &reply{status: resp.StatusCode, body: data}
		if resp.StatusCode >= http.StatusInternalServerError {
			return r, &StatusError{StatusCode: resp.StatusCode, Body: truncate(data)}
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*reply), nil
}

func (l *Ledger) timestamp() float64 {
	return float64(l.now().UnixNano()) / float64(time.Second)
}

func isAuthFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func truncate(b []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit]
	}
	return s
}
