// ABOUTME: Sentinel errors of the room engine.
// ABOUTME: Callers match them with errors.Is; wrapped causes stay reachable.

package room

import "errors"

var (
	// ErrLocalMembershipRemoved ends the session: the local user lost access to the room.
	ErrLocalMembershipRemoved = errors.New("room: local user was removed from the room")

	// ErrSnapshotFailed wraps any failure of the initial room fetch.
	ErrSnapshotFailed = errors.New("room: snapshot failed")

	// ErrSessionEnded is returned by session actions after the session stopped.
	ErrSessionEnded = errors.New("room: session ended, re-enter the room")

	// ErrNotEntered is returned by session actions before EnterRoom succeeded.
	ErrNotEntered = errors.New("room: room not entered")

	// ErrUnhandledEvent marks platform events the engine does not consume.
	ErrUnhandledEvent = errors.New("room: unhandled event")

	// ErrMalformedEvent marks events missing a required field.
	ErrMalformedEvent = errors.New("room: malformed event")

	ErrMissingRoomID = errors.New("room: missing required parameter: roomId")
	ErrMissingFile   = errors.New("room: missing required parameter: file")
)
