package credentials

import (
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

	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
)

const (
	// maxTokenResponse bounds the token endpoint response body.
	maxTokenResponse = 64 << 10

	// expiryMargin refreshes tokens this long before they expire.
	expiryMargin = 30 * time.Second
)

// tokenResponse is the OAuth2-style token endpoint reply.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	Token       string `json:"token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// HTTP fetches tokens from a REST endpoint using the client-credentials
// grant. Tokens are cached until shortly before expiry. Concurrent callers
// share one in-flight request, and repeated failures open a circuit
// breaker so that reconnect storms do not hammer the endpoint.
type HTTP struct {
	cfg     config.CredentialsConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  Logger
	now     func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewHTTP creates an HTTP provider. A nil client gets one with cfg.Timeout.
func NewHTTP(cfg config.CredentialsConfig, client *http.Client, logger Logger) *HTTP {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = nopLogger{}
	}

	maxFailures := cfg.Breaker.MaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}

	p := &HTTP{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "credentials",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return p
}

// Token returns the cached token or fetches a fresh one.
func (p *HTTP) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	if p.token != "" && p.now().Before(p.expires) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	v, err, _ := p.group.Do("token", func() (any, error) {
		return p.breaker.Execute(func() (any, error) {
			return p.fetch(ctx)
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return "", err
	}
	return v.(string), nil
}

// State returns the breaker state name: closed, half-open or open.
func (p *HTTP) State() string {
	return p.breaker.State().String()
}

// Invalidate drops the cached token, forcing a fetch on the next call.
// Links call it after the peer rejected the token.
func (p *HTTP) Invalidate() {
	p.mu.Lock()
	p.token = ""
	p.expires = time.Time{}
	p.mu.Unlock()
}

func (p *HTTP) fetch(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if p.cfg.ClientID != "" {
		form.Set("client_id", p.cfg.ClientID)
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponse))
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	token := tr.AccessToken
	if token == "" {
		token = tr.Token
	}
	if token == "" {
		return "", fmt.Errorf("%w: response carries no token", ErrBadResponse)
	}

	ttl := p.cfg.CacheTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	if ttl > 2*expiryMargin {
		ttl -= expiryMargin
	}

	p.mu.Lock()
	p.token = token
	p.expires = p.now().Add(ttl)
	p.mu.Unlock()

	p.logger.Debug("token refreshed", "expires_in", ttl)
	return token, nil
}
