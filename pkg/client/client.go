// Package client is a typed HTTP client for the economy API.
// SocialView builds an optimistic relationship view on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alem-hub/xp-economy/internal/application/query"
	"github.com/alem-hub/xp-economy/internal/domain/shared"
	"github.com/alem-hub/xp-economy/internal/domain/social"
	"github.com/alem-hub/xp-economy/pkg/logger"
	"github.com/alem-hub/xp-economy/pkg/retry"
)

const (
	headerAccountID = "X-Account-ID"
	maxResponseSize = 1 << 20
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the API client.
type Config struct {
	// BaseURL is the API root, e.g. http://localhost:8080
	BaseURL string

	// AccountID is sent as the gateway identity header.
	AccountID string

	// Timeout is the HTTP request timeout
	Timeout time.Duration

	// ReadAttempts bounds retries of GET requests. Writes are never retried.
	ReadAttempts int

	// ReadRetryDelay is the first backoff delay between GET attempts.
	ReadRetryDelay time.Duration

	// Logger for structured logging
	Logger *logger.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(baseURL, accountID string) Config {
	return Config{
		BaseURL:        baseURL,
		AccountID:      accountID,
		Timeout:        10 * time.Second,
		ReadAttempts:   3,
		ReadRetryDelay: 100 * time.Millisecond,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the economy API on behalf of one account.
type Client struct {
	config     Config
	httpClient *http.Client
	reads      *retry.Retrier
	logger     *logger.Logger
}

// New creates a new API client.
func New(config Config) *Client {
	if config.Logger == nil {
		config.Logger = logger.Default()
	}
	if config.ReadAttempts < 1 {
		config.ReadAttempts = 1
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		reads: retry.New(
			retry.WithMaxAttempts(config.ReadAttempts),
			retry.WithInitialDelay(config.ReadRetryDelay),
			retry.WithMaxDelay(2*time.Second),
			retry.WithRetryIf(shared.IsRetryable),
		),
		logger: config.Logger.With(logger.Component("api_client")),
	}
}

// APIError is a non-2xx reply. It unwraps to the matching domain error kind,
// so shared.IsNotFound and friends work on client errors.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found", "feature_disabled":
		return shared.ErrNotFound
	case "insufficient_xp":
		return shared.ErrInsufficientFunds
	case "conflict":
		return shared.ErrAlreadyExists
	case "forbidden":
		return shared.ErrForbidden
	case "unauthorized":
		return shared.ErrUnauthorized
	case "invalid_request":
		return shared.ErrInvalidInput
	case "unavailable", "rate_limited":
		return shared.ErrServiceUnavailable
	}
	if e.StatusCode >= http.StatusInternalServerError {
		return shared.ErrServiceUnavailable
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CONNECTION OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

type connectionReply struct {
	Status social.ViewerStatus `json:"status"`
}

// Peers lists every other account with its connection status.
func (c *Client) Peers(ctx context.Context) ([]query.PeerDTO, error) {
	var out []query.PeerDTO
	if err := c.get(ctx, "/api/v1/connections", &out); err != nil {
		return nil, fmt.Errorf("list peers: %w", err)
	}
	return out, nil
}

// RequestConnection sends a connection request to userID.
func (c *Client) RequestConnection(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return c.connection(ctx, http.MethodPost, "/api/v1/connections/"+url.PathEscape(userID))
}

// AcceptConnection accepts the pending request userID sent.
func (c *Client) AcceptConnection(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return c.connection(ctx, http.MethodPost, "/api/v1/connections/"+url.PathEscape(userID)+"/accept")
}

// RemoveConnection rejects, withdraws or disconnects.
func (c *Client) RemoveConnection(ctx context.Context, userID string) (social.ViewerStatus, error) {
	return c.connection(ctx, http.MethodDelete, "/api/v1/connections/"+url.PathEscape(userID))
}

func (c *Client) connection(ctx context.Context, method, path string) (social.ViewerStatus, error) {
	var reply connectionReply
	if err := c.do(ctx, method, path, nil, &reply); err != nil {
		return "", fmt.Errorf("%s %s: %w", method, path, err)
	}
	return reply.Status, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GROUP OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

type membershipReply struct {
	Status string `json:"status"`
}

// Groups lists groups with the caller's membership status.
func (c *Client) Groups(ctx context.Context) ([]query.GroupDTO, error) {
	var out []query.GroupDTO
	if err := c.get(ctx, "/api/v1/groups", &out); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	return out, nil
}

// JoinGroup asks to join groupID. The reply is the resulting membership status.
func (c *Client) JoinGroup(ctx context.Context, groupID string) (string, error) {
	var reply membershipReply
	path := "/api/v1/groups/" + url.PathEscape(groupID) + "/join"
	if err := c.do(ctx, http.MethodPost, path, nil, &reply); err != nil {
		return "", fmt.Errorf("join group %s: %w", groupID, err)
	}
	return reply.Status, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP HELPERS
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.reads.Do(ctx, func(ctx context.Context) error {
		return c.do(ctx, http.MethodGet, path, nil, out)
	})
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAccountID, c.config.AccountID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.WrapError("client", method, shared.ErrServiceUnavailable, "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("api call",
		logger.String("method", method),
		logger.String("path", path),
		logger.Int("status", resp.StatusCode),
		logger.Latency(time.Since(start)),
	)

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("parse response: %w", err)
	}
	if resp.StatusCode >= 300 || !env.Success {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("parse data: %w", err)
		}
	}
	return nil
}
