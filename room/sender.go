// ABOUTME: Outbound message sender for text and file attachments.
// ABOUTME: Rejects a missing room or file before any network call.

package room

import (
	"context"
	"fmt"
	"strings"
)

// Sender submits locally composed messages to the platform.
type Sender struct {
	platform Platform
}

func NewSender(platform Platform) *Sender {
	return &Sender{platform: platform}
}

func (s *Sender) SendText(ctx context.Context, roomID ID, text string) error {
	if roomID.IsZero() {
		return ErrMissingRoomID
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("sending message: empty text")
	}
	if err := s.platform.SendMessage(ctx, roomID, text); err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// SendFile uploads file as a message attachment with optional text.
func (s *Sender) SendFile(ctx context.Context, roomID ID, file File, text string) error {
	if roomID.IsZero() {
		return ErrMissingRoomID
	}
	if file.Content == nil {
		return ErrMissingFile
	}
	if err := s.platform.SendMessageWithAttachment(ctx, roomID, file, text); err != nil {
		return fmt.Errorf("sending file message: %w", err)
	}
	return nil
}
