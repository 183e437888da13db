package spacechat

import "context"

// Person is returned by GET /v1/people/me.
type Person struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"displayName,omitempty"`
	FirstName   string   `json:"firstName,omitempty"`
	LastName    string   `json:"lastName,omitempty"`
	Emails      []string `json:"emails,omitempty"`
}

// Name returns the display name, falling back to first and last name.
func (p *Person) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}

// Me validates the client's bearer token and returns the authenticated person.
func (c *Client) Me(ctx context.Context) (*Person, error) {
	var out Person
	if err := c.get(ctx, "/v1/people/me", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
