package spacechat

import "context"

// Room is a chat space the authenticated person belongs to.
type Room struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Type         string `json:"type,omitempty"`
	LastActivity string `json:"lastActivity,omitempty"`
	Created      string `json:"created,omitempty"`
}

type ListRoomsResponse struct {
	Items []Room `json:"items"`
}

// ListRooms lists rooms the authenticated person is a member of.
func (c *Client) ListRooms(ctx context.Context, max int) (*ListRoomsResponse, error) {
	path := "/v1/rooms"
	if max > 0 {
		path += "?max=" + itoa(max)
	}
	var out ListRoomsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParticipantReadStatus is one participant's last read position in a room.
type ParticipantReadStatus struct {
	PersonID     string `json:"personId"`
	LastSeenID   string `json:"lastSeenId,omitempty"`
	LastSeenDate string `json:"lastSeenDate,omitempty"`
}

type RoomReadStatusResponse struct {
	Items []ParticipantReadStatus `json:"items"`
}

// RoomReadStatus returns the last message each participant has seen.
//
// Servers that embed read status in memberships do not need this call;
// see ListMembershipsParams.IncludeReadStatus.
func (c *Client) RoomReadStatus(ctx context.Context, roomID string) (*RoomReadStatusResponse, error) {
	var out RoomReadStatusResponse
	if err := c.get(ctx, "/v1/rooms/"+urlPathEscape(roomID)+"/read-status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLastSeenRequest is sent to POST /v1/rooms/{roomId}/seen.
type UpdateLastSeenRequest struct {
	PersonID   string `json:"personId,omitempty"`
	LastSeenID string `json:"lastSeenId"`
}

// UpdateLastSeen publishes a read receipt: the person has read up to
// LastSeenID in the room. Repeating the same request is harmless.
func (c *Client) UpdateLastSeen(ctx context.Context, roomID string, req *UpdateLastSeenRequest) error {
	return c.post(ctx, "/v1/rooms/"+urlPathEscape(roomID)+"/seen", req, nil)
}
