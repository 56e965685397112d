package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/InventoLabs/dealergate/apierr"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultRetryAttempts  = 3
	defaultRetryBaseDelay = 1 * time.Second
)

// Config for the inventory API gateway.
type Config struct {
	BaseURL string
	Country string // country segment for URL scoping, e.g. "it"

	Tokens TokenProvider

	Timeout        time.Duration
	RetryAttempts  int           // total attempts including the first; default 3
	RetryBaseDelay time.Duration // first backoff delay; doubles per attempt

	// RateLimit caps outgoing request rate when > 0, to stay under upstream
	// 429 thresholds. Zero disables pacing.
	RateLimit float64
	RateBurst int

	// LeadTimeout bounds SubmitLead calls; default 10s.
	LeadTimeout time.Duration

	SkipVerify bool
	Logger     *slog.Logger
}

// Client is the authenticated, retrying gateway to the inventory API.
// All requests are scoped to a country segment and carry a bearer credential
// fetched from the TokenProvider per attempt.
type Client struct {
	baseURL    *url.URL
	country    string
	httpClient *http.Client
	tokens     TokenProvider
	logger     *slog.Logger

	retryAttempts  int
	retryBaseDelay time.Duration
	limiter        *rate.Limiter

	leadTimeout time.Duration
}

// NewClient validates the configuration and builds a gateway.
func NewClient(cfg *Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, apierr.Validation("base URL cannot be empty", apierr.Context{Op: "new_client"})
	}
	if cfg.Tokens == nil {
		return nil, apierr.Validation("token provider cannot be nil", apierr.Context{Op: "new_client"})
	}

	baseURL, err := url.Parse(cfg.BaseURL)
	if err != nil || baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, apierr.Validation(fmt.Sprintf("base URL %q is not an absolute URL", cfg.BaseURL), apierr.Context{Op: "new_client"})
	}

	country := cfg.Country
	if country == "" {
		country = "it"
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clientLogger := logger.WithGroup("dealergate_client")

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	retryAttempts := cfg.RetryAttempts
	if retryAttempts == 0 {
		retryAttempts = defaultRetryAttempts
	}
	retryBaseDelay := cfg.RetryBaseDelay
	if retryBaseDelay == 0 {
		retryBaseDelay = defaultRetryBaseDelay
	}
	leadTimeout := cfg.LeadTimeout
	if leadTimeout == 0 {
		leadTimeout = 10 * time.Second
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipVerify},
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	clientLogger.Debug("Gateway initialized",
		"base_url", baseURL.String(),
		"country", country,
		"retry_attempts", retryAttempts)

	return &Client{
		baseURL:        baseURL,
		country:        country,
		httpClient:     &http.Client{Transport: transport, Timeout: timeout},
		tokens:         cfg.Tokens,
		logger:         clientLogger,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		limiter:        limiter,
		leadTimeout:    leadTimeout,
	}, nil
}

// Tokens exposes the credential provider, letting upstream code clear the
// cache after a detected auth failure.
func (c *Client) Tokens() TokenProvider { return c.tokens }

// requestOptions carry per-call variations of a gateway request.
type requestOptions struct {
	country     string
	contentType string
	headers     http.Header
}

type RequestOption func(*requestOptions)

// WithCountry overrides the configured country segment for one call.
func WithCountry(country string) RequestOption {
	return func(o *requestOptions) { o.country = country }
}

// WithHeader attaches an extra header to one call.
func WithHeader(key, value string) RequestOption {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = http.Header{}
		}
		o.headers.Set(key, value)
	}
}

func withContentType(ct string) RequestOption {
	return func(o *requestOptions) { o.contentType = ct }
}

// endpoint joins base URL, country segment and resource path.
func (c *Client) endpoint(country, path string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + country + "/" + strings.TrimLeft(path, "/")
	return u.String()
}

// Do executes one gateway request with bounded exponential-backoff retry.
// Only failures whose classification is retryable are attempted again; the
// rest surface immediately. On success the raw response body is returned.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, opts ...RequestOption) ([]byte, error) {
	options := requestOptions{country: c.country, contentType: "application/json"}
	for _, opt := range opts {
		opt(&options)
	}

	reqID := uuid.NewString()
	fullURL := c.endpoint(options.country, path)
	errCtx := apierr.Context{Op: fmt.Sprintf("%s %s", method, path)}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		if attempt > 1 {
			delay := c.retryBaseDelay * (1 << (attempt - 2))
			c.logger.Warn("Retrying after transient failure",
				"request_id", reqID, "attempt", attempt, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, apierr.Classify(ctx.Err(), errCtx)
			}
		}

		respBody, err := c.doOnce(ctx, method, fullURL, body, &options, reqID, errCtx)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !apierr.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, fullURL string, body []byte, options *requestOptions, reqID string, errCtx apierr.Context) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apierr.Classify(err, errCtx)
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, apierr.Classify(err, errCtx)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return nil, apierr.Classify(err, errCtx)
	}
	if body != nil {
		req.Header.Set("Content-Type", options.contentType)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	for k, vs := range options.headers {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	c.logger.Debug("Sending request", "request_id", reqID, "method", method, "url", fullURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Classify(err, errCtx)
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("Received non-2xx status",
			"request_id", reqID, "status_code", resp.StatusCode, "url", fullURL)
		return nil, apierr.FromStatus(resp.StatusCode, upstreamMessage(respBody), errCtx)
	}
	if readErr != nil {
		return nil, apierr.InvalidResponse("could not read response body", readErr, errCtx)
	}

	c.logger.Debug("Request successful", "request_id", reqID, "status_code", resp.StatusCode)
	return respBody, nil
}

// upstreamMessage extracts a human-readable message from an error body,
// trying the API's JSON envelope first and falling back to raw text.
func upstreamMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	var envelope struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		switch {
		case envelope.Message != "":
			return envelope.Message
		case envelope.Error != "":
			return envelope.Error
		case envelope.Detail != "":
			return envelope.Detail
		}
	}
	return trimmed
}

// DoJSON executes a request with a JSON body and decodes a JSON response into
// target. A non-JSON success body with a non-nil target is an invalid
// response; with a nil target the body is discarded.
func (c *Client) DoJSON(ctx context.Context, method, path string, body, target any, opts ...RequestOption) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return apierr.Validation("request body is not serializable: "+err.Error(), apierr.Context{Op: fmt.Sprintf("%s %s", method, path)})
		}
	}

	respBody, err := c.Do(ctx, method, path, payload, opts...)
	if err != nil {
		return err
	}
	if target == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, target); err != nil {
		return apierr.InvalidResponse("response body is not valid JSON", err, apierr.Context{Op: fmt.Sprintf("%s %s", method, path)})
	}
	return nil
}

// Verb wrappers. They carry no semantics beyond the method.

func (c *Client) GetJSON(ctx context.Context, path string, target any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, target, opts...)
}

func (c *Client) PostJSON(ctx context.Context, path string, body, target any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodPost, path, body, target, opts...)
}

func (c *Client) PutJSON(ctx context.Context, path string, body, target any, opts ...RequestOption) error {
	return c.DoJSON(ctx, http.MethodPut, path, body, target, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) error {
	_, err := c.Do(ctx, http.MethodDelete, path, nil, opts...)
	return err
}
