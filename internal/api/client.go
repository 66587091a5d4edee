package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "DEPTCMS_HTTP_TIMEOUT"
	apiTokenEnvKey     = "DEPTCMS_API_TOKEN"
)

// Client talks to a running deptcms server.
type Client struct {
	baseURL   string
	http      *http.Client
	authToken string
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: httpTimeoutFromEnv()},
		authToken: strings.TrimSpace(os.Getenv(apiTokenEnvKey)),
	}
}

// Health reports server liveness and the number of open tenant namespaces.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var resp HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", &resp)
	return resp, err
}

// Me returns the identity behind DEPTCMS_API_TOKEN.
func (c *Client) Me(ctx context.Context) (AuthMeResponse, error) {
	var resp Envelope
	var me AuthMeResponse
	resp.Data = &me
	err := c.do(ctx, http.MethodGet, "/v1/auth/me", &resp)
	return me, err
}

// HasToken reports whether requests carry a bearer token.
func (c *Client) HasToken() bool {
	return c.authToken != ""
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError is a non-2xx reply. Code and ErrorCode are empty when the body was
// not a deptcms error envelope.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "":
		return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("api error: %d", e.Status)
	}
}

func decodeError(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Message != "" {
		return &APIError{Status: resp.StatusCode, Code: errResp.Code, ErrorCode: errResp.ErrorCode, Message: errResp.Message}
	}
	return &APIError{Status: resp.StatusCode, Message: "api error: " + resp.Status}
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
