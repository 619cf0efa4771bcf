package kioku

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Kioku server (e.g. "http://localhost:8080").
	BaseURL string

	// Name is the member name used to obtain a token.
	Name string

	// APIKey is the member's secret.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a client with
	// Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	// Check-conflicts waits on a language model, so keep this generous.
	Timeout time.Duration
}

// Client is an HTTP client for the Kioku API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	tokenMgr *tokenManager
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL, Name, or APIKey is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("kioku: BaseURL is required")
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("kioku: Name is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("kioku: APIKey is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  baseURL,
		client:   httpClient,
		tokenMgr: newTokenManager(baseURL, cfg.Name, cfg.APIKey, httpClient),
	}, nil
}

// RecordFact stores a fact in the member's project.
func (c *Client) RecordFact(ctx context.Context, req CreateFactRequest) (*Fact, error) {
	var fact Fact
	if err := c.do(ctx, http.MethodPost, "/v1/facts", req, &fact); err != nil {
		return nil, err
	}
	return &fact, nil
}

// ListFacts returns every fact in the member's project, oldest first.
func (c *Client) ListFacts(ctx context.Context) ([]Fact, error) {
	var facts []Fact
	if err := c.do(ctx, http.MethodGet, "/v1/facts", nil, &facts); err != nil {
		return nil, err
	}
	return facts, nil
}

// GetFact returns one fact.
func (c *Client) GetFact(ctx context.Context, id uuid.UUID) (*Fact, error) {
	var fact Fact
	if err := c.do(ctx, http.MethodGet, "/v1/facts/"+id.String(), nil, &fact); err != nil {
		return nil, err
	}
	return &fact, nil
}

// DeleteFact removes a fact and its events.
func (c *Client) DeleteFact(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/facts/"+id.String(), nil, nil)
}

// RecordDecision stores a decision in the member's project.
func (c *Client) RecordDecision(ctx context.Context, req CreateDecisionRequest) (*Decision, error) {
	var decision Decision
	if err := c.do(ctx, http.MethodPost, "/v1/decisions", req, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// ListDecisions returns every decision in the member's project, oldest first.
func (c *Client) ListDecisions(ctx context.Context) ([]Decision, error) {
	var decisions []Decision
	if err := c.do(ctx, http.MethodGet, "/v1/decisions", nil, &decisions); err != nil {
		return nil, err
	}
	return decisions, nil
}

// GetDecision returns one decision.
func (c *Client) GetDecision(ctx context.Context, id uuid.UUID) (*Decision, error) {
	var decision Decision
	if err := c.do(ctx, http.MethodGet, "/v1/decisions/"+id.String(), nil, &decision); err != nil {
		return nil, err
	}
	return &decision, nil
}

// DeleteDecision removes a decision and its events.
func (c *Client) DeleteDecision(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/v1/decisions/"+id.String(), nil, nil)
}

// CheckFactConflicts runs contradiction detection over all facts.
// A detection failure is reported in DetectionResult.Error, not as err.
func (c *Client) CheckFactConflicts(ctx context.Context, opts *CheckOptions) (*DetectionResult, error) {
	return c.checkConflicts(ctx, "/v1/facts/check-conflicts", opts)
}

// CheckDecisionConflicts runs contradiction detection over all decisions.
// A detection failure is reported in DetectionResult.Error, not as err.
func (c *Client) CheckDecisionConflicts(ctx context.Context, opts *CheckOptions) (*DetectionResult, error) {
	return c.checkConflicts(ctx, "/v1/decisions/check-conflicts", opts)
}

func (c *Client) checkConflicts(ctx context.Context, path string, opts *CheckOptions) (*DetectionResult, error) {
	var body any
	if opts != nil {
		body = opts
	}
	var result DetectionResult
	if err := c.do(ctx, http.MethodPost, path, body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FactEvents returns the history of a fact, oldest first.
func (c *Client) FactEvents(ctx context.Context, id uuid.UUID) ([]Event, error) {
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/v1/facts/"+id.String()+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// DecisionEvents returns the history of a decision, oldest first.
func (c *Client) DecisionEvents(ctx context.Context, id uuid.UUID) ([]Event, error) {
	var events []Event
	if err := c.do(ctx, http.MethodGet, "/v1/decisions/"+id.String()+"/events", nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Health checks the server's health status. It does not authenticate.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("kioku: create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("kioku: GET /health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := handleResponse(resp, &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// do sends an authenticated request. A 401 drops the cached token and the
// request is retried once with a fresh one.
func (c *Client) do(ctx context.Context, method, path string, body, dest any) error {
	var encoded []byte
	if body != nil {
		var err error
		if encoded, err = json.Marshal(body); err != nil {
			return fmt.Errorf("kioku: marshal request body: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.send(ctx, method, path, encoded, dest)
		if attempt == 0 && IsUnauthorized(err) {
			c.tokenMgr.invalidate()
			continue
		}
		return err
	}
}

func (c *Client) send(ctx context.Context, method, path string, encoded []byte, dest any) error {
	token, err := c.tokenMgr.getToken(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("kioku: create request: %w", err)
	}
	if encoded != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("kioku: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("kioku: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Responses are wrapped in {"data": ...}; tolerate a bare body.
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("kioku: decode response envelope: %w", err)
	}
	data, ok := envelope["data"]
	if !ok {
		data = bodyBytes
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("kioku: decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
