// ABOUTME: Data model of the room engine: opaque ids, chat entries, room state.
// ABOUTME: RoomState values handed out to callers are deep copies.

package room

import "sort"

// ID is an opaque platform identifier. The engine only compares ids for
// equality; constructing them from raw platform UUIDs is the normalizer's job.
type ID string

func (id ID) String() string { return string(id) }

// IsZero reports whether the id is empty ("unknown" / "never read").
func (id ID) IsZero() bool { return id == "" }

// UnknownAuthorLabel is shown for messages whose author is no longer a member.
const UnknownAuthorLabel = "User Who Left"

// EntryKind tags a ChatEntry.
type EntryKind int

const (
	EntryMessage EntryKind = iota
	// EntryBoundary is the synthetic "new messages" divider.
	EntryBoundary
)

func (k EntryKind) String() string {
	switch k {
	case EntryMessage:
		return "message"
	case EntryBoundary:
		return "boundaryMarker"
	default:
		return "unknown"
	}
}

// ChatEntry is one item of the message feed.
type ChatEntry struct {
	Kind              EntryKind
	MessageID         ID
	AuthorPersonID    ID
	AuthorDisplayName string
	Text              string
	// Deleted marks a message removed on the platform after it was shown.
	Deleted bool
}

func boundaryEntry() ChatEntry {
	return ChatEntry{Kind: EntryBoundary}
}

// RoomState is the local view of one room.
type RoomState struct {
	RoomID ID
	// Members maps personId to display name.
	Members  map[ID]string
	Messages []ChatEntry
	// LastMessageID is the newest message known locally. Read markers are
	// only meaningful when they equal it.
	LastMessageID ID
	// LastReadByMember has a key for every member; "" means never read.
	LastReadByMember map[ID]ID
}

func newRoomState(roomID ID) *RoomState {
	return &RoomState{
		RoomID:           roomID,
		Members:          map[ID]string{},
		LastReadByMember: map[ID]ID{},
	}
}

// Clone returns a deep copy.
func (s *RoomState) Clone() RoomState {
	out := RoomState{
		RoomID:           s.RoomID,
		Members:          make(map[ID]string, len(s.Members)),
		Messages:         make([]ChatEntry, len(s.Messages)),
		LastMessageID:    s.LastMessageID,
		LastReadByMember: make(map[ID]ID, len(s.LastReadByMember)),
	}
	for k, v := range s.Members {
		out.Members[k] = v
	}
	copy(out.Messages, s.Messages)
	for k, v := range s.LastReadByMember {
		out.LastReadByMember[k] = v
	}
	return out
}

// DisplayName resolves a person to a member name, or UnknownAuthorLabel.
func (s RoomState) DisplayName(personID ID) string {
	if name, ok := s.Members[personID]; ok {
		return name
	}
	return UnknownAuthorLabel
}

// CaughtUp lists members whose read marker is the newest message, sorted
// by id. Empty when the room has no messages.
func (s RoomState) CaughtUp() []ID {
	if s.LastMessageID.IsZero() {
		return nil
	}
	var out []ID
	for personID, lastRead := range s.LastReadByMember {
		if _, member := s.Members[personID]; !member {
			continue
		}
		if lastRead == s.LastMessageID {
			out = append(out, personID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BoundaryCount returns how many boundary markers the feed holds.
func (s RoomState) BoundaryCount() int {
	n := 0
	for _, e := range s.Messages {
		if e.Kind == EntryBoundary {
			n++
		}
	}
	return n
}

// AttentionState is the local user's "looking / away / back" state.
type AttentionState int

const (
	Looking AttentionState = iota
	Away
	Back
)

func (a AttentionState) String() string {
	switch a {
	case Looking:
		return "looking"
	case Away:
		return "away"
	case Back:
		return "back"
	default:
		return "unknown"
	}
}

// ParseAttention accepts the two user-settable targets, "away" and "looking".
func ParseAttention(s string) (AttentionState, bool) {
	switch s {
	case "away":
		return Away, true
	case "looking":
		return Looking, true
	default:
		return Looking, false
	}
}

// NoticeKind classifies user-facing notices that are not state changes.
type NoticeKind string

const (
	NoticeMessageDeleted NoticeKind = "message_deleted"
)

// Notice is surfaced to the presentation layer via Options.OnNotice.
type Notice struct {
	Kind      NoticeKind
	RoomID    ID
	MessageID ID
	PersonID  ID
	Text      string
}
