package spacechat

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"
)

// SSEEvent is a single Server-Sent Event.
type SSEEvent struct {
	ID    string
	Event string
	Data  string
}

// SSEStream decodes a text/event-stream body.
//
// Callers unmarshal Data as JSON based on Event.
type SSEStream struct {
	body io.ReadCloser
	r    *bufio.Reader
}

func NewSSEStream(body io.ReadCloser) *SSEStream {
	return &SSEStream{body: body, r: bufio.NewReader(body)}
}

func (s *SSEStream) Close() error {
	if s.body == nil {
		return nil
	}
	return s.body.Close()
}

// Next reads the next SSE event. It returns io.EOF when the stream ends.
func (s *SSEStream) Next() (*SSEEvent, error) {
	var id, eventName string
	var dataLines []string

	for {
		line, err := s.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && (eventName != "" || len(dataLines) > 0) {
				return &SSEEvent{ID: id, Event: eventName, Data: strings.Join(dataLines, "\n")}, nil
			}
			return nil, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if eventName == "" && len(dataLines) == 0 {
				continue
			}
			return &SSEEvent{ID: id, Event: eventName, Data: strings.Join(dataLines, "\n")}, nil
		}
		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case strings.HasPrefix(line, "id:"):
			id = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		}
	}
}

// EventStream opens the live resource event feed for the authenticated
// person. resources selects which resource kinds are delivered
// ("messages", "memberships", "rooms"); empty means all of them.
//
// Uses a dedicated HTTP client without response timeout since SSE connections are long-lived.
func (c *Client) EventStream(ctx context.Context, resources ...string) (*SSEStream, error) {
	path := "/v1/events"
	if len(resources) > 0 {
		path += "?resources=" + urlQueryEscape(strings.Join(resources, ","))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	c.authorize(req)

	resp, err := c.sseClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, newAPIError(resp.StatusCode, body)
	}
	return NewSSEStream(resp.Body), nil
}
