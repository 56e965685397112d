package client

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"

	"github.com/InventoLabs/dealergate/apierr"
	"github.com/InventoLabs/dealergate/models"
)

const (
	// Tokens are considered expired this long before the server says they
	// are, so a request never leaves with a credential about to die mid-call.
	defaultExpiryMargin = 30 * time.Second

	tokenCacheKey = "access_token"
)

// TokenProvider supplies the bearer credential for gateway requests.
// Implementations own whatever caching they do; the gateway only asks.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
	Clear()
}

// PasswordGrantConfig configures the identity endpoint exchange.
type PasswordGrantConfig struct {
	TokenURL     string
	ClientID     string
	Username     string
	Password     string
	ExpiryMargin time.Duration // defaults to 30s
	HTTPClient   *http.Client  // defaults to a 10s-timeout client
	Logger       *slog.Logger
}

type passwordGrantProvider struct {
	cfg        PasswordGrantConfig
	httpClient *http.Client
	logger     *slog.Logger

	cache *ttlcache.Cache[string, string]
	group singleflight.Group
}

// NewPasswordGrantProvider returns a TokenProvider that performs a
// password-grant exchange lazily and caches the credential until shortly
// before its server-declared expiry. Concurrent callers that observe an
// expired credential share a single in-flight exchange.
func NewPasswordGrantProvider(cfg PasswordGrantConfig) (TokenProvider, error) {
	if cfg.TokenURL == "" {
		return nil, apierr.Validation("token URL cannot be empty", apierr.Context{Op: "token_provider"})
	}
	if cfg.ClientID == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, apierr.Validation("client id, username and password are all required", apierr.Context{Op: "token_provider"})
	}
	if cfg.ExpiryMargin == 0 {
		cfg.ExpiryMargin = defaultExpiryMargin
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cache := ttlcache.New[string, string](
		ttlcache.WithDisableTouchOnHit[string, string](),
	)

	return &passwordGrantProvider{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.WithGroup("token_provider"),
		cache:      cache,
	}, nil
}

func (p *passwordGrantProvider) Token(ctx context.Context) (string, error) {
	if item := p.cache.Get(tokenCacheKey); item != nil {
		return item.Value(), nil
	}

	v, err, shared := p.group.Do(tokenCacheKey, func() (any, error) {
		// A concurrent caller may have refreshed while we waited on the flight.
		if item := p.cache.Get(tokenCacheKey); item != nil {
			return item.Value(), nil
		}

		token, ttl, err := p.exchange(ctx)
		if err != nil {
			return "", err
		}
		p.cache.Set(tokenCacheKey, token, ttl)
		p.logger.Debug("Credential refreshed", "valid_for", ttl)
		return token, nil
	})
	if err != nil {
		return "", err
	}
	if shared {
		p.logger.Debug("Credential exchange coalesced with concurrent caller")
	}
	return v.(string), nil
}

// Clear forcibly invalidates the cached credential. Used when an upstream
// call reports an authentication failure despite a seemingly valid token.
func (p *passwordGrantProvider) Clear() {
	p.cache.Delete(tokenCacheKey)
}

// exchange performs the form-encoded password-grant POST. Failures here are
// terminal: credential problems are never retried by classification.
func (p *passwordGrantProvider) exchange(ctx context.Context) (string, time.Duration, error) {
	errCtx := apierr.Context{Op: "token_exchange", Resource: "identity endpoint"}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", p.cfg.ClientID)
	form.Set("username", p.cfg.Username)
	form.Set("password", p.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, apierr.Classify(err, errCtx)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Error("Credential exchange request failed", "error", err)
		return "", 0, apierr.Classify(err, errCtx)
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		p.logger.Warn("Credential exchange rejected", "status_code", resp.StatusCode)
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		errCtx.Hint = "check client id, username and password"
		return "", 0, apierr.Authentication(resp.StatusCode, msg, errCtx)
	}
	if readErr != nil {
		return "", 0, apierr.InvalidResponse("could not read identity response", readErr, errCtx)
	}

	var tok models.TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", 0, apierr.InvalidResponse("identity response is not valid JSON", err, errCtx)
	}
	if tok.AccessToken == "" {
		return "", 0, apierr.InvalidResponse("identity response carries no access_token", nil, errCtx)
	}

	ttl := time.Duration(tok.ExpiresIn)*time.Second - p.cfg.ExpiryMargin
	if ttl <= 0 {
		// Server-side expiry shorter than our margin; keep it for one second
		// so back-to-back calls in the same operation reuse it.
		ttl = time.Second
	}
	return tok.AccessToken, ttl, nil
}

// StaticTokenProvider returns a fixed token. Useful for tests and for
// deployments that manage the credential externally.
type StaticTokenProvider string

func (s StaticTokenProvider) Token(context.Context) (string, error) { return string(s), nil }
func (s StaticTokenProvider) Clear()                                {}
