// Package client sends mxapi endpoints to a homeserver over HTTP.
//
// It is one possible transport for the contracts in r0 and unversioned:
// it renders a request with the endpoint, attaches credentials according to
// the endpoint's declared policy, and decodes success payloads into the
// endpoint's response type. Error payloads are returned as
// *mxapi.MatrixError with the raw body untouched.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/broady/mxapi"
)

// MaxResponseSize bounds how much of a response body is read.
const MaxResponseSize int64 = 64 << 20

// ErrNoAccessToken is returned when an endpoint requires authentication and
// the client has no token.
var ErrNoAccessToken = errors.New("client: endpoint requires an access token")

// Config holds configuration for creating a Client.
type Config struct {
	// HomeserverURL is the base URL of the homeserver (e.g., "https://matrix.example.org").
	HomeserverURL string
	// AccessToken is sent as a bearer token to endpoints that require
	// authentication. It may be empty for unauthenticated use.
	AccessToken string
	// AlwaysAuthenticate sends the token to every endpoint, including those
	// declared as not requiring it. Some of those still reject anonymous
	// callers (get_member_events answers 403 to non-members).
	AlwaysAuthenticate bool
	// RateLimitRetries is how many times a rate-limited endpoint is retried
	// after M_LIMIT_EXCEEDED. Zero disables retries.
	RateLimitRetries int
	// HTTPClient is used for all requests. If nil, http.DefaultClient is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	baseURL            string
	accessToken        string
	alwaysAuthenticate bool
	rateLimitRetries   int
	httpClient         *http.Client
	logger             *slog.Logger
}

// New creates a client.
func New(config Config) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, errors.New("client: HomeserverURL is required")
	}
	// Request URLs are built by concatenation so that rendered paths are
	// sent exactly as the endpoint produced them.
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("client: invalid HomeserverURL %q: %w", config.HomeserverURL, err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:            strings.TrimRight(config.HomeserverURL, "/"),
		accessToken:        config.AccessToken,
		alwaysAuthenticate: config.AlwaysAuthenticate,
		rateLimitRetries:   config.RateLimitRetries,
		httpClient:         httpClient,
		logger:             logger,
	}, nil
}

// WithAccessToken returns a copy of the client that uses token.
func (c *Client) WithAccessToken(token string) *Client {
	clone := *c
	clone.accessToken = token
	return &clone
}

// Call renders and sends one operation and decodes its success payload.
func Call[P, Q, B, R any](ctx context.Context, c *Client, e *mxapi.Endpoint[P, Q, B, R], p P, q Q, b B) (R, error) {
	var zero R
	req, err := e.NewRequest(p, q, b)
	if err != nil {
		return zero, err
	}
	body, err := c.Do(ctx, e, req)
	if err != nil {
		return zero, err
	}
	return e.DecodeResponse(body)
}

// Do sends a rendered request for d and returns the success payload.
// A non-2xx response with a Matrix error envelope yields *mxapi.MatrixError.
func (c *Client) Do(ctx context.Context, d mxapi.Descriptor, req *mxapi.Request) ([]byte, error) {
	token := ""
	if d.RequiresAuthentication() || c.alwaysAuthenticate {
		token = c.accessToken
	}
	if d.RequiresAuthentication() && token == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoAccessToken, d.Name())
	}

	for attempt := 0; ; attempt++ {
		body, err := c.send(ctx, d.Name(), req, token)
		var matrixErr *mxapi.MatrixError
		if err == nil || !d.RateLimited() || attempt >= c.rateLimitRetries ||
			!errors.As(err, &matrixErr) || matrixErr.Code != mxapi.ErrCodeLimitExceeded {
			return body, err
		}
		wait := time.Duration(matrixErr.RetryAfterMs) * time.Millisecond
		c.logger.Info("rate limited, retrying",
			"endpoint", d.Name(),
			"attempt", attempt+1,
			"retry_after", wait,
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (c *Client) send(ctx context.Context, name string, req *mxapi.Request, token string) ([]byte, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	request, err := http.NewRequestWithContext(ctx, string(req.Method), req.URL(c.baseURL), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("client: failed to create request: %w", err)
	}
	if req.Body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("client: request to %s %s failed: %w", req.Method, req.Path, err)
	}
	defer response.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("client: failed to read response body: %w", err)
	}

	c.logger.Debug("matrix request",
		"endpoint", name,
		"method", req.Method,
		"path", req.Path,
		"status", response.StatusCode,
		"duration", time.Since(start),
	)

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr mxapi.MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("client: unexpected %d response from %s %s: %s",
			response.StatusCode, req.Method, req.Path, string(responseBody))
	}
	matrixErr.StatusCode = response.StatusCode
	matrixErr.Body = responseBody
	return nil, &matrixErr
}

// NewTransactionID returns a fresh idempotency token for operations that
// take a caller-supplied transaction ID, such as r0.RedactEvent.
func NewTransactionID() string {
	return uuid.NewString()
}
