// ABOUTME: Capability surface the engine consumes from the chat platform,
// ABOUTME: plus the adapter binding it to the spacechat HTTP client.

package room

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	spacechat "github.com/awebai/spacechat"
)

// Member is one room membership with optional read status.
type Member struct {
	PersonID          ID
	DisplayName       string
	LastSeenMessageID ID
}

// Message is a fetched message.
type Message struct {
	ID             ID
	RoomID         ID
	AuthorPersonID ID
	// Text is the HTML body when the platform provides one, plain text otherwise.
	Text string
}

// File is an attachment to upload.
type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Platform is everything the engine needs from the chat platform SDK.
type Platform interface {
	GetMembers(ctx context.Context, roomID ID) ([]Member, error)
	// GetRecentMessages returns up to max messages, newest first.
	GetRecentMessages(ctx context.Context, roomID ID, max int) ([]Message, error)
	GetMessage(ctx context.Context, messageID ID) (Message, error)
	SendMessage(ctx context.Context, roomID ID, text string) error
	SendMessageWithAttachment(ctx context.Context, roomID ID, file File, text string) error
	PublishReadReceipt(ctx context.Context, personID, messageID, roomID ID) error
}

// ReadStatusMode says how member read status is obtained.
type ReadStatusMode string

const (
	// ReadStatusEmbedded asks for read status inside the membership listing.
	ReadStatusEmbedded ReadStatusMode = "embedded"
	// ReadStatusSeparate issues a separate read-status query and merges it.
	ReadStatusSeparate ReadStatusMode = "separate"
)

// ParseReadStatusMode defaults to ReadStatusEmbedded.
func ParseReadStatusMode(s string) (ReadStatusMode, error) {
	switch s {
	case "", string(ReadStatusEmbedded):
		return ReadStatusEmbedded, nil
	case string(ReadStatusSeparate):
		return ReadStatusSeparate, nil
	default:
		return "", fmt.Errorf("unknown read status mode %q (want embedded or separate)", s)
	}
}

// ClientPlatform implements Platform on top of *spacechat.Client.
type ClientPlatform struct {
	client     *spacechat.Client
	readStatus ReadStatusMode
}

func NewClientPlatform(client *spacechat.Client, mode ReadStatusMode) *ClientPlatform {
	if mode == "" {
		mode = ReadStatusEmbedded
	}
	return &ClientPlatform{client: client, readStatus: mode}
}

func (p *ClientPlatform) GetMembers(ctx context.Context, roomID ID) ([]Member, error) {
	var memberships []spacechat.Membership
	var statuses []spacechat.ParticipantReadStatus

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := p.client.ListMemberships(gCtx, spacechat.ListMembershipsParams{
			RoomID:            roomID.String(),
			IncludeReadStatus: p.readStatus == ReadStatusEmbedded,
		})
		if err != nil {
			return fmt.Errorf("listing memberships: %w", err)
		}
		memberships = resp.Items
		return nil
	})
	if p.readStatus == ReadStatusSeparate {
		g.Go(func() error {
			resp, err := p.client.RoomReadStatus(gCtx, roomID.String())
			if err != nil {
				return fmt.Errorf("getting read status: %w", err)
			}
			statuses = resp.Items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lastSeen := make(map[string]string, len(statuses))
	for _, s := range statuses {
		lastSeen[s.PersonID] = s.LastSeenID
	}

	members := make([]Member, 0, len(memberships))
	for _, m := range memberships {
		seen := m.LastSeenID
		if v, ok := lastSeen[m.PersonID]; ok {
			seen = v
		}
		members = append(members, Member{
			PersonID:          ID(m.PersonID),
			DisplayName:       m.PersonDisplayName,
			LastSeenMessageID: ID(seen),
		})
	}
	return members, nil
}

func (p *ClientPlatform) GetRecentMessages(ctx context.Context, roomID ID, max int) ([]Message, error) {
	resp, err := p.client.ListMessages(ctx, spacechat.ListMessagesParams{RoomID: roomID.String(), Max: max})
	if err != nil {
		return nil, err
	}
	out := make([]Message, len(resp.Items))
	for i := range resp.Items {
		out[i] = convertMessage(&resp.Items[i])
	}
	return out, nil
}

func (p *ClientPlatform) GetMessage(ctx context.Context, messageID ID) (Message, error) {
	msg, err := p.client.GetMessage(ctx, messageID.String())
	if err != nil {
		return Message{}, err
	}
	return convertMessage(msg), nil
}

func (p *ClientPlatform) SendMessage(ctx context.Context, roomID ID, text string) error {
	_, err := p.client.CreateMessage(ctx, &spacechat.CreateMessageRequest{RoomID: roomID.String(), Text: text})
	return err
}

func (p *ClientPlatform) SendMessageWithAttachment(ctx context.Context, roomID ID, file File, text string) error {
	_, err := p.client.CreateMessageWithFile(ctx, &spacechat.FileMessageRequest{
		RoomID:      roomID.String(),
		FileName:    file.Name,
		ContentType: file.ContentType,
		File:        file.Content,
		Markdown:    text,
	})
	return err
}

func (p *ClientPlatform) PublishReadReceipt(ctx context.Context, personID, messageID, roomID ID) error {
	return p.client.UpdateLastSeen(ctx, roomID.String(), &spacechat.UpdateLastSeenRequest{
		PersonID:   personID.String(),
		LastSeenID: messageID.String(),
	})
}

func convertMessage(m *spacechat.Message) Message {
	return Message{
		ID:             ID(m.ID),
		RoomID:         ID(m.RoomID),
		AuthorPersonID: ID(m.PersonID),
		Text:           m.Content(),
	}
}
