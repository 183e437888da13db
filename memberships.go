package spacechat

import "context"

// Membership associates a person with a room.
type Membership struct {
	ID                string `json:"id"`
	RoomID            string `json:"roomId"`
	PersonID          string `json:"personId"`
	PersonEmail       string `json:"personEmail,omitempty"`
	PersonDisplayName string `json:"personDisplayName,omitempty"`
	IsModerator       bool   `json:"isModerator,omitempty"`
	LastSeenID        string `json:"lastSeenId,omitempty"`
	LastSeenDate      string `json:"lastSeenDate,omitempty"`
	Created           string `json:"created,omitempty"`
}

type ListMembershipsResponse struct {
	Items []Membership `json:"items"`
}

type ListMembershipsParams struct {
	RoomID string
	// IncludeReadStatus asks the server to embed each member's
	// lastSeenId in the listing.
	IncludeReadStatus bool
	Max               int
}

func (c *Client) ListMemberships(ctx context.Context, p ListMembershipsParams) (*ListMembershipsResponse, error) {
	path := "/v1/memberships?roomId=" + urlQueryEscape(p.RoomID)
	if p.IncludeReadStatus {
		path += "&includeReadStatus=true"
	}
	if p.Max > 0 {
		path += "&max=" + itoa(p.Max)
	}
	var out ListMembershipsResponse
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
