// ABOUTME: Snapshot loader: initial fetch of members, recent messages and read state.
// ABOUTME: Either returns a complete RoomState or an error; nothing partial escapes.

package room

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/awebai/spacechat/logging"
)

// DefaultMaxMessages is the history page fetched on room entry.
const DefaultMaxMessages = 20

// SnapshotLoader builds the initial RoomState of a room.
type SnapshotLoader struct {
	Platform      Platform
	LocalPersonID ID
	MaxMessages   int
	// Publisher receives the reconciliation receipt when the local user's
	// read marker is behind the newest message.
	Publisher ReceiptPublisher
	Logger    zerolog.Logger
}

// Load fetches the room. Any fetch failure returns an error wrapping
// ErrSnapshotFailed and no state.
func (l *SnapshotLoader) Load(ctx context.Context, roomID ID) (RoomState, error) {
	if roomID.IsZero() {
		return RoomState{}, fmt.Errorf("%w: %w", ErrSnapshotFailed, ErrMissingRoomID)
	}
	max := l.MaxMessages
	if max <= 0 {
		max = DefaultMaxMessages
	}

	var members []Member
	var recent []Message
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		members, err = l.Platform.GetMembers(gCtx, roomID)
		if err != nil {
			return fmt.Errorf("listing members: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		recent, err = l.Platform.GetRecentMessages(gCtx, roomID, max)
		if err != nil {
			return fmt.Errorf("listing messages: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return RoomState{}, fmt.Errorf("%w: %w", ErrSnapshotFailed, err)
	}

	state := newRoomState(roomID)
	for _, m := range members {
		state.Members[m.PersonID] = m.DisplayName
		state.LastReadByMember[m.PersonID] = ""
		if !m.LastSeenMessageID.IsZero() {
			state.LastReadByMember[m.PersonID] = m.LastSeenMessageID
		}
	}

	// The platform returns newest first; the feed is oldest first.
	state.Messages = make([]ChatEntry, 0, len(recent))
	for i := len(recent) - 1; i >= 0; i-- {
		msg := recent[i]
		state.Messages = append(state.Messages, ChatEntry{
			Kind:              EntryMessage,
			MessageID:         msg.ID,
			AuthorPersonID:    msg.AuthorPersonID,
			AuthorDisplayName: state.DisplayName(msg.AuthorPersonID),
			Text:              msg.Text,
		})
	}
	if len(recent) > 0 {
		state.LastMessageID = recent[0].ID
	}

	log := l.Logger.With().Str(logging.FieldRoom, roomID.String()).Logger()
	if !state.LastMessageID.IsZero() && state.LastReadByMember[l.LocalPersonID] != state.LastMessageID {
		state.LastReadByMember[l.LocalPersonID] = state.LastMessageID
		if l.Publisher != nil {
			l.Publisher.Publish(l.LocalPersonID, state.LastMessageID, roomID)
		}
		log.Debug().Str(logging.FieldMessage, state.LastMessageID.String()).Msg("local read marker caught up on entry")
	}

	log.Info().
		Int("members", len(state.Members)).
		Int("messages", len(state.Messages)).
		Msg("room snapshot loaded")
	return state.Clone(), nil
}
