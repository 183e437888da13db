// ABOUTME: Room State Store: the single writer of RoomState.
// ABOUTME: Merges snapshot results and normalized live events under duplicate/stale-tolerant rules.

package room

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/awebai/spacechat/logging"
)

// ReceiptPublisher sends the local user's read position. Publish must not block.
type ReceiptPublisher interface {
	Publish(personID, messageID, roomID ID)
}

// StoreConfig wires a Store to its collaborators.
type StoreConfig struct {
	LocalPersonID ID
	// Platform is used to fetch message content for created events.
	Platform  Platform
	Publisher ReceiptPublisher
	Logger    zerolog.Logger
	OnNotice  func(Notice)
}

// Store holds the authoritative RoomState for the active room. All
// mutation goes through ApplyEvent and the attention methods.
//
// Store is not safe for concurrent use; Session serializes access on a
// single goroutine.
type Store struct {
	cfg StoreConfig
	log zerolog.Logger

	roomID        ID
	members       map[ID]string
	lastRead      map[ID]ID
	lastMessageID ID
	feed          feed
	seen          map[ID]struct{}

	attention AttentionState
}

// NewStore creates a store from a loaded snapshot. The attention state starts as Looking.
func NewStore(initial RoomState, cfg StoreConfig) *Store {
	s := &Store{
		cfg:           cfg,
		log:           cfg.Logger.With().Str(logging.FieldRoom, initial.RoomID.String()).Logger(),
		roomID:        initial.RoomID,
		members:       make(map[ID]string, len(initial.Members)),
		lastRead:      make(map[ID]ID, len(initial.LastReadByMember)),
		lastMessageID: initial.LastMessageID,
		feed:          newFeed(),
		seen:          map[ID]struct{}{},
		attention:     Looking,
	}
	for k, v := range initial.Members {
		s.members[k] = v
	}
	for k, v := range initial.LastReadByMember {
		s.lastRead[k] = v
	}
	for k := range s.members {
		if _, ok := s.lastRead[k]; !ok {
			s.lastRead[k] = ""
		}
	}
	for _, e := range initial.Messages {
		if e.Kind == EntryBoundary {
			continue
		}
		s.feed.append(e)
		if !e.MessageID.IsZero() {
			s.seen[e.MessageID] = struct{}{}
		}
	}
	return s
}

// State returns a deep copy of the current room state.
func (s *Store) State() RoomState {
	out := RoomState{
		RoomID:           s.roomID,
		Members:          make(map[ID]string, len(s.members)),
		Messages:         make([]ChatEntry, s.feed.len()),
		LastMessageID:    s.lastMessageID,
		LastReadByMember: make(map[ID]ID, len(s.lastRead)),
	}
	for k, v := range s.members {
		out.Members[k] = v
	}
	copy(out.Messages, s.feed.entries)
	for k, v := range s.lastRead {
		out.LastReadByMember[k] = v
	}
	return out
}

// Attention returns the local attention state.
func (s *Store) Attention() AttentionState {
	return s.attention
}

// ApplyEvent merges one normalized event. A created message is fetched
// synchronously before it is appended.
func (s *Store) ApplyEvent(ctx context.Context, ev Event) Result {
	if me, ok := ev.(MessageEvent); ok && me.Action == MessageCreated {
		if r, fetch := s.checkCreated(me); !fetch {
			return s.record(ev, r)
		}
		msg, err := s.fetch(ctx, me)
		return s.commitCreated(me, msg, err)
	}
	return s.record(ev, s.apply(ev))
}

// needsFetch reports whether ev is a created message whose content must
// be fetched before it can be committed.
func (s *Store) needsFetch(ev Event) (MessageEvent, bool) {
	me, ok := ev.(MessageEvent)
	if !ok || me.Action != MessageCreated {
		return MessageEvent{}, false
	}
	_, fetch := s.checkCreated(me)
	return me, fetch
}

func (s *Store) fetch(ctx context.Context, me MessageEvent) (Message, error) {
	if s.cfg.Platform == nil {
		return Message{}, fmt.Errorf("no platform configured to fetch message %s", me.MessageID)
	}
	return s.cfg.Platform.GetMessage(ctx, me.MessageID)
}

func (s *Store) checkCreated(me MessageEvent) (Result, bool) {
	if me.RoomID != s.roomID {
		return ignored("message for another room"), false
	}
	if me.MessageID.IsZero() {
		return failed("message event without id", ErrMalformedEvent), false
	}
	if _, dup := s.seen[me.MessageID]; dup {
		return ignored("duplicate message"), false
	}
	return Result{}, true
}

// commitCreated appends a fetched message. A fetch error drops the event.
func (s *Store) commitCreated(me MessageEvent, msg Message, fetchErr error) Result {
	if fetchErr != nil {
		return s.record(me, failed("fetching message content", fetchErr))
	}
	// Re-check: a duplicate may have been committed while this fetch was in flight.
	if r, ok := s.checkCreated(me); !ok {
		return s.record(me, r)
	}

	author := msg.AuthorPersonID
	if author.IsZero() {
		author = me.PersonID
	}
	s.feed.append(ChatEntry{
		Kind:              EntryMessage,
		MessageID:         me.MessageID,
		AuthorPersonID:    author,
		AuthorDisplayName: s.displayName(author),
		Text:              msg.Text,
	})
	s.seen[me.MessageID] = struct{}{}
	s.lastMessageID = me.MessageID

	if s.attention == Looking {
		s.lastRead[s.cfg.LocalPersonID] = me.MessageID
		s.publish(me.MessageID)
	}
	if _, member := s.members[author]; member {
		s.lastRead[author] = me.MessageID
	}
	return s.record(me, applied("message appended"))
}

func (s *Store) apply(ev Event) Result {
	switch e := ev.(type) {
	case MessageEvent:
		if e.Action == MessageDeleted {
			return s.applyMessageDeleted(e)
		}
		if e.Action == MessageCreated {
			if r, fetch := s.checkCreated(e); !fetch {
				return r
			}
			return failed("created message requires a content fetch", ErrMalformedEvent)
		}
		return failed("unknown message action", fmt.Errorf("%w: %s", ErrUnhandledEvent, e.Action))
	case MembershipEvent:
		switch e.Action {
		case MembershipCreated:
			return s.applyMembershipCreated(e)
		case MembershipDeleted:
			return s.applyMembershipDeleted(e)
		case MembershipRead:
			return s.applyRead(e)
		}
		return failed("unknown membership action", fmt.Errorf("%w: %s", ErrUnhandledEvent, e.Action))
	case RoomEvent:
		return ignored("room events need no state change")
	default:
		return failed("unknown event type", fmt.Errorf("%w: %T", ErrUnhandledEvent, ev))
	}
}

func (s *Store) applyMessageDeleted(e MessageEvent) Result {
	if e.RoomID != s.roomID {
		return ignored("message deletion for another room")
	}
	idx := s.feed.indexOf(e.MessageID)
	author := e.PersonID
	name := ""
	if idx >= 0 {
		entry := s.feed.entries[idx]
		if author.IsZero() {
			author = entry.AuthorPersonID
		}
		name = entry.AuthorDisplayName
	}
	if name == "" {
		name = s.displayName(author)
	}
	s.notify(Notice{
		Kind:      NoticeMessageDeleted,
		RoomID:    s.roomID,
		MessageID: e.MessageID,
		PersonID:  author,
		Text:      "A message was deleted by " + name,
	})

	if idx < 0 {
		return ignored("deleted message not in view")
	}
	if s.feed.entries[idx].Deleted {
		return ignored("message already deleted")
	}
	s.feed.entries[idx].Deleted = true
	s.feed.entries[idx].Text = ""
	return applied("message marked deleted")
}

func (s *Store) applyMembershipCreated(e MembershipEvent) Result {
	if e.RoomID != s.roomID {
		return ignored("membership for another room")
	}
	if e.PersonID.IsZero() {
		return failed("membership event without person", ErrMalformedEvent)
	}
	name, member := s.members[e.PersonID]
	_, seeded := s.lastRead[e.PersonID]
	if member && seeded && name == e.DisplayName {
		return ignored("already a member")
	}
	s.members[e.PersonID] = e.DisplayName
	if !member || !seeded {
		s.lastRead[e.PersonID] = ""
	}
	return applied("member added")
}

func (s *Store) applyMembershipDeleted(e MembershipEvent) Result {
	if e.RoomID != s.roomID {
		return ignored("membership deletion for another room")
	}
	if e.PersonID == s.cfg.LocalPersonID {
		return fatal("local membership removed", ErrLocalMembershipRemoved)
	}
	if _, ok := s.members[e.PersonID]; !ok {
		return ignored("not a member")
	}
	delete(s.members, e.PersonID)
	delete(s.lastRead, e.PersonID)
	return applied("member removed")
}

func (s *Store) applyRead(e MembershipEvent) Result {
	if e.RoomID != s.roomID {
		return ignored("read receipt for another room")
	}
	if e.PersonID == s.cfg.LocalPersonID {
		return ignored("own read receipt echo")
	}
	if e.MessageID.IsZero() {
		return failed("read receipt without message id", ErrMalformedEvent)
	}
	if _, ok := s.members[e.PersonID]; !ok {
		return ignored("read receipt from non-member")
	}
	if e.MessageID != s.lastMessageID {
		return ignored("stale read receipt")
	}
	if s.lastRead[e.PersonID] == e.MessageID {
		return ignored("read marker already current")
	}
	s.lastRead[e.PersonID] = e.MessageID
	return applied("read marker advanced")
}

func (s *Store) displayName(personID ID) string {
	if name, ok := s.members[personID]; ok && name != "" {
		return name
	}
	return UnknownAuthorLabel
}

func (s *Store) publish(messageID ID) {
	if s.cfg.Publisher == nil || messageID.IsZero() {
		return
	}
	s.cfg.Publisher.Publish(s.cfg.LocalPersonID, messageID, s.roomID)
}

func (s *Store) notify(n Notice) {
	if s.cfg.OnNotice != nil {
		s.cfg.OnNotice(n)
	}
}

// record logs the outcome of one event and returns it unchanged.
func (s *Store) record(ev Event, r Result) Result {
	var e *zerolog.Event
	switch r.Outcome {
	case Applied, Ignored:
		e = s.log.Debug()
	case Failed:
		e = s.log.Warn().Err(r.Err)
	default:
		e = s.log.Error().Err(r.Err)
	}
	e = e.Str(logging.FieldOutcome, r.Outcome.String()).Str(logging.FieldReason, r.Reason)
	if ev != nil {
		e = e.Str(logging.FieldEvent, fmt.Sprint(ev))
	}
	e.Msg("room event")
	return r
}
