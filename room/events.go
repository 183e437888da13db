// ABOUTME: Normalized live events and the outcome of applying them.
// ABOUTME: Events are produced by the normalizer and consumed by the Store.

package room

import "fmt"

// Event is a normalized live event: a MessageEvent, MembershipEvent or RoomEvent.
type Event interface {
	// Room returns the room the event belongs to.
	Room() ID
	isEvent()
}

type MessageAction string

const (
	MessageCreated MessageAction = "created"
	MessageDeleted MessageAction = "deleted"
)

// MessageEvent carries only identifiers; content is fetched on demand.
type MessageEvent struct {
	Action    MessageAction
	MessageID ID
	RoomID    ID
	// PersonID is the author, when the event source knows it.
	PersonID ID
}

func (e MessageEvent) Room() ID { return e.RoomID }
func (MessageEvent) isEvent()   {}

func (e MessageEvent) String() string {
	return fmt.Sprintf("message:%s", e.Action)
}

type MembershipAction string

const (
	MembershipCreated MembershipAction = "created"
	MembershipDeleted MembershipAction = "deleted"
	// MembershipRead is a remote read receipt.
	MembershipRead MembershipAction = "read"
)

type MembershipEvent struct {
	Action      MembershipAction
	RoomID      ID
	PersonID    ID
	DisplayName string
	// MessageID is the message a read receipt refers to.
	MessageID ID
}

func (e MembershipEvent) Room() ID { return e.RoomID }
func (MembershipEvent) isEvent()   {}

func (e MembershipEvent) String() string {
	return fmt.Sprintf("membership:%s", e.Action)
}

type RoomAction string

const (
	RoomCreated RoomAction = "created"
)

type RoomEvent struct {
	Action RoomAction
	RoomID ID
}

func (e RoomEvent) Room() ID { return e.RoomID }
func (RoomEvent) isEvent()   {}

func (e RoomEvent) String() string {
	return fmt.Sprintf("room:%s", e.Action)
}

// Outcome classifies what applying an event or action did.
type Outcome int

const (
	// Applied means the state changed.
	Applied Outcome = iota
	// Ignored means the input was expected and deliberately a no-op.
	Ignored
	// Failed means processing failed; state is unchanged.
	Failed
	// Fatal means the room session cannot continue.
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Ignored:
		return "ignored"
	case Failed:
		return "failed"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is returned by every Store mutation.
type Result struct {
	Outcome Outcome
	Reason  string
	Err     error
}

func applied(reason string) Result { return Result{Outcome: Applied, Reason: reason} }
func ignored(reason string) Result { return Result{Outcome: Ignored, Reason: reason} }

func failed(reason string, err error) Result {
	return Result{Outcome: Failed, Reason: reason, Err: err}
}

func fatal(reason string, err error) Result {
	return Result{Outcome: Fatal, Reason: reason, Err: err}
}
