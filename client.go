package spacechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// DefaultTimeout is the default HTTP timeout used by the client.
	DefaultTimeout = 10 * time.Second

	maxResponseSize = 10 * 1024 * 1024
)

// Client is a chat platform HTTP client.
//
// It covers the capability surface the room engine consumes: people,
// rooms, memberships, messages, read receipts and the live event feeds.
type Client struct {
	baseURL    string
	httpClient *http.Client
	sseClient  *http.Client // No response timeout; SSE connections are long-lived.
	token      string
}

// New creates a new client.
func New(baseURL string) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		sseClient: &http.Client{},
	}, nil
}

// NewWithToken creates a new client authenticated with a bearer access token.
func NewWithToken(baseURL, token string) (*Client, error) {
	c, err := New(baseURL)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

// BaseURL returns the server base URL the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string

	// Message and TrackingID are filled from the platform's
	// {"message": ..., "trackingId": ...} error body when present.
	Message    string
	TrackingID string
}

func (e *APIError) Error() string {
	if e.Message != "" && e.TrackingID != "" {
		return fmt.Sprintf("spacechat: http %d: %s, Tracking ID: %s", e.StatusCode, e.Message, e.TrackingID)
	}
	if e.Message != "" {
		return fmt.Sprintf("spacechat: http %d: %s", e.StatusCode, e.Message)
	}
	if e.Body == "" {
		return fmt.Sprintf("spacechat: http %d", e.StatusCode)
	}
	return fmt.Sprintf("spacechat: http %d: %s", e.StatusCode, e.Body)
}

func newAPIError(status int, data []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(data)}
	var body struct {
		Message    string `json:"message"`
		TrackingID string `json:"trackingId"`
	}
	if json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Message
		apiErr.TrackingID = body.TrackingID
	}
	return apiErr
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, in any, out any) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	resp, err := c.doRaw(ctx, method, path, contentType, "application/json", body)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseSize)
	data, err := io.ReadAll(limited)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, method, path, contentType, accept string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", accept)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
