// ABOUTME: Event normalizer: maps platform feed payloads to Message/Membership/Room events.
// ABOUTME: The only place where opaque ids are built from raw platform UUIDs.

package room

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	spacechat "github.com/awebai/spacechat"
)

// resourceEnvelope is the data payload of a resource SSE event.
type resourceEnvelope struct {
	Resource string       `json:"resource"`
	Event    string       `json:"event"`
	Data     resourceData `json:"data"`
}

type resourceData struct {
	ID                string `json:"id"`
	RoomID            string `json:"roomId"`
	PersonID          string `json:"personId"`
	PersonDisplayName string `json:"personDisplayName"`
	LastSeenID        string `json:"lastSeenId"`
}

// DecodeResourceEvent converts a resource SSE event to a normalized Event.
// Events the engine does not consume return an error wrapping ErrUnhandledEvent.
func DecodeResourceEvent(sse *spacechat.SSEEvent) (Event, error) {
	var env resourceEnvelope
	if err := json.Unmarshal([]byte(sse.Data), &env); err != nil {
		return nil, fmt.Errorf("%w: decoding %q payload: %v", ErrMalformedEvent, sse.Event, err)
	}
	resource := env.Resource
	if resource == "" {
		resource = sse.Event
	}
	d := env.Data

	switch resource {
	case "messages":
		switch env.Event {
		case "created":
			return MessageEvent{Action: MessageCreated, MessageID: ID(d.ID), RoomID: ID(d.RoomID), PersonID: ID(d.PersonID)}, nil
		case "deleted":
			return MessageEvent{Action: MessageDeleted, MessageID: ID(d.ID), RoomID: ID(d.RoomID), PersonID: ID(d.PersonID)}, nil
		}
	case "memberships":
		switch env.Event {
		case "created":
			return MembershipEvent{Action: MembershipCreated, RoomID: ID(d.RoomID), PersonID: ID(d.PersonID), DisplayName: d.PersonDisplayName}, nil
		case "deleted":
			return MembershipEvent{Action: MembershipDeleted, RoomID: ID(d.RoomID), PersonID: ID(d.PersonID), DisplayName: d.PersonDisplayName}, nil
		case "seen":
			return MembershipEvent{Action: MembershipRead, RoomID: ID(d.RoomID), PersonID: ID(d.PersonID), MessageID: ID(d.LastSeenID)}, nil
		}
	case "rooms":
		if env.Event == "created" {
			return RoomEvent{Action: RoomCreated, RoomID: ID(d.ID)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s", ErrUnhandledEvent, resource, env.Event)
}

// DefaultURNPrefix is the public id namespace of the platform.
const DefaultURNPrefix = "ciscospark://us"

// URNCodec builds public ids from raw activity UUIDs:
// base64("<prefix>/<KIND>/<uuid>").
type URNCodec struct {
	Prefix string
}

func (c URNCodec) encode(kind, uuid string) ID {
	if uuid == "" {
		return ""
	}
	prefix := c.Prefix
	if prefix == "" {
		prefix = DefaultURNPrefix
	}
	return ID(base64.StdEncoding.EncodeToString([]byte(prefix + "/" + kind + "/" + uuid)))
}

func (c URNCodec) Message(uuid string) ID { return c.encode("MESSAGE", uuid) }
func (c URNCodec) Room(uuid string) ID    { return c.encode("ROOM", uuid) }
func (c URNCodec) Person(uuid string) ID  { return c.encode("PEOPLE", uuid) }

// ActivityNormalizer converts device activity envelopes to normalized events.
type ActivityNormalizer struct {
	Codec URNCodec
}

// Normalize maps an activity verb to an Event. Verbs the engine does not
// consume return an error wrapping ErrUnhandledEvent.
func (n ActivityNormalizer) Normalize(env *spacechat.ActivityEnvelope) (Event, error) {
	if env == nil || env.Data.Activity == nil || env.Data.Activity.Verb == "" {
		return nil, fmt.Errorf("%w: no activity verb", ErrUnhandledEvent)
	}
	a := env.Data.Activity
	roomID := n.Codec.Room(a.Target.ID)

	switch strings.ToLower(a.Verb) {
	case "post":
		return MessageEvent{Action: MessageCreated, MessageID: n.Codec.Message(a.ID), RoomID: roomID, PersonID: n.Codec.Person(a.Actor.EntryUUID)}, nil
	case "delete":
		// The deleted message is the activity object; fall back to the activity id.
		msgUUID := a.Object.ID
		if msgUUID == "" {
			msgUUID = a.ID
		}
		return MessageEvent{Action: MessageDeleted, MessageID: n.Codec.Message(msgUUID), RoomID: roomID, PersonID: n.Codec.Person(a.Actor.EntryUUID)}, nil
	case "add":
		return MembershipEvent{Action: MembershipCreated, RoomID: roomID, PersonID: n.Codec.Person(a.Object.EntryUUID), DisplayName: a.Object.DisplayName}, nil
	case "leave":
		return MembershipEvent{Action: MembershipDeleted, RoomID: roomID, PersonID: n.Codec.Person(a.Object.EntryUUID), DisplayName: a.Object.DisplayName}, nil
	case "acknowledge":
		return MembershipEvent{Action: MembershipRead, RoomID: roomID, PersonID: n.Codec.Person(a.Actor.EntryUUID), MessageID: n.Codec.Message(a.Object.ID)}, nil
	default:
		return nil, fmt.Errorf("%w: activity verb %q", ErrUnhandledEvent, a.Verb)
	}
}
