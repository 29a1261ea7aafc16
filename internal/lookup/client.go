package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"certenrich/internal/platform/config"
)

// maxErrorBody bounds how much of a failed response is echoed into the error.
const maxErrorBody = 512

// Client calls the bulk certificates endpoint.
type Client struct {
	url              string
	id               string
	secret           string
	httpClient       *http.Client
	limiter          *rate.Limiter
	maxResponseBytes int64
}

type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (transport, proxies, TLS).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a lookup client from the API configuration.
func New(cfg config.API, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		url:              cfg.URL,
		id:               cfg.ID,
		secret:           cfg.Secret,
		httpClient:       &http.Client{Timeout: cfg.Timeout},
		maxResponseBytes: cfg.MaxResponseBytes,
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		return nil, errors.New("http client is required")
	}

	return c, nil
}

// Lookup performs one bulk lookup for the given fingerprints. It makes a
// single attempt; callers decide how to degrade on error.
func (c *Client) Lookup(ctx context.Context, fingerprints []string) (Response, error) {
	if len(fingerprints) == 0 {
		return Response{}, nil
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, NewError(CategoryRateLimited, "client-side rate limit wait aborted", err)
		}
	}

	body, err := json.Marshal(Request{Fingerprints: fingerprints})
	if err != nil {
		return nil, NewError(CategoryInternal, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, NewError(CategoryInternal, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.id != "" || c.secret != "" {
		req.SetBasicAuth(c.id, c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, statusError(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	return c.decode(resp.Body)
}

func (c *Client) decode(body io.Reader) (Response, error) {
	var out Response
	if err := json.NewDecoder(io.LimitReader(body, c.maxResponseBytes)).Decode(&out); err != nil {
		if isTimeout(err) {
			return nil, NewError(CategoryTimeout, "read response", err)
		}
		return nil, NewError(CategoryBadData, fmt.Sprintf("decode response (limit %d bytes)", c.maxResponseBytes), err)
	}
	if out == nil {
		out = Response{}
	}
	return out, nil
}
