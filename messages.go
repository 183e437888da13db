package spacechat

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
)

// Message is a chat message as stored by the platform.
type Message struct {
	ID          string   `json:"id"`
	RoomID      string   `json:"roomId"`
	PersonID    string   `json:"personId"`
	PersonEmail string   `json:"personEmail,omitempty"`
	Text        string   `json:"text,omitempty"`
	Markdown    string   `json:"markdown,omitempty"`
	HTML        string   `json:"html,omitempty"`
	Files       []string `json:"files,omitempty"`
	Created     string   `json:"created,omitempty"`
}

// Content returns the HTML body when present, the plain text otherwise.
func (m *Message) Content() string {
	if m.HTML != "" {
		return m.HTML
	}
	return m.Text
}

type ListMessagesResponse struct {
	Items []Message `json:"items"`
}

type ListMessagesParams struct {
	RoomID string
	Max    int
}

// ListMessages returns the most recent messages of a room, newest first.
func (c *Client) ListMessages(ctx context.Context, p ListMessagesParams) (*ListMessagesResponse, error) {
	path := "/v1/messages?roomId=" + urlQueryEscape(p.RoomID)
	if p.Max > 0 {
		path += "&max=" + itoa(p.Max)
	}
	var out ListMessagesResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetMessage fetches a single message by id. Live events only carry the
// id, so the content has to be fetched separately.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var out Message
	if err := c.get(ctx, "/v1/messages/"+urlPathEscape(messageID), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type CreateMessageRequest struct {
	RoomID   string `json:"roomId"`
	Text     string `json:"text,omitempty"`
	Markdown string `json:"markdown,omitempty"`
}

func (c *Client) CreateMessage(ctx context.Context, req *CreateMessageRequest) (*Message, error) {
	if req == nil || req.RoomID == "" {
		return nil, &ValidationError{Field: "roomId"}
	}
	var out Message
	if err := c.post(ctx, "/v1/messages", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FileMessageRequest posts a message with one file attachment.
type FileMessageRequest struct {
	RoomID string
	// FileName is the name the attachment is uploaded under.
	FileName    string
	ContentType string
	File        io.Reader
	// Markdown is optional message text sent alongside the file.
	Markdown string
}

// ValidationError reports a request that was rejected before any network I/O.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "spacechat: missing required parameter: " + e.Field
}

// ErrValidation matches any *ValidationError with errors.Is.
var ErrValidation = errors.New("spacechat: validation failed")

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// CreateMessageWithFile posts a multipart message with a file attachment.
func (c *Client) CreateMessageWithFile(ctx context.Context, req *FileMessageRequest) (*Message, error) {
	if req == nil || req.RoomID == "" {
		return nil, &ValidationError{Field: "roomId"}
	}
	if req.File == nil {
		return nil, &ValidationError{Field: "file"}
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("roomId", req.RoomID); err != nil {
		return nil, err
	}
	if req.Markdown != "" {
		if err := w.WriteField("markdown", req.Markdown); err != nil {
			return nil, err
		}
	}

	name := filepath.Base(req.FileName)
	if req.FileName == "" {
		name = "attachment"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="`+escapeQuotes(name)+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, req.File); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	resp, err := c.doRaw(ctx, http.MethodPost, "/v1/messages", w.FormDataContentType(), "application/json", &buf)
	if err != nil {
		return nil, err
	}
	var out Message
	if err := decodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
