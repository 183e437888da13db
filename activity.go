package spacechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ActivityEnvelope is a platform-internal activity frame as delivered on
// the device activity feed. Ids inside are raw platform UUIDs, not the
// public ids used by the REST API.
type ActivityEnvelope struct {
	Data      ActivityData `json:"data"`
	Timestamp int64        `json:"timestamp,omitempty"`
}

type ActivityData struct {
	EventType string    `json:"eventType,omitempty"`
	Activity  *Activity `json:"activity,omitempty"`
}

// Activity is one conversation activity: a post, delete, add, leave or
// acknowledge performed by Actor on Object inside Target.
type Activity struct {
	ID     string         `json:"id"`
	Verb   string         `json:"verb"`
	Actor  ActivityPerson `json:"actor"`
	Object ActivityObject `json:"object"`
	Target ActivityTarget `json:"target"`
}

type ActivityPerson struct {
	EntryUUID    string `json:"entryUUID,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type ActivityObject struct {
	ID           string `json:"id,omitempty"`
	ObjectType   string `json:"objectType,omitempty"`
	EntryUUID    string `json:"entryUUID,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	EmailAddress string `json:"emailAddress,omitempty"`
}

type ActivityTarget struct {
	ID         string `json:"id"`
	ObjectType string `json:"objectType,omitempty"`
}

// ActivityConn reads activity envelopes from the device websocket.
//
// ActivityConn is not safe for concurrent use by multiple goroutines.
type ActivityConn struct {
	conn *websocket.Conn
}

const activityHandshakeTimeout = 15 * time.Second

// DialActivity opens the device activity websocket.
func (c *Client) DialActivity(ctx context.Context) (*ActivityConn, error) {
	u, err := url.Parse(c.baseURL + "/v1/devices/activity")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: activityHandshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing activity feed: %w", &APIError{StatusCode: resp.StatusCode})
		}
		return nil, fmt.Errorf("dialing activity feed: %w", err)
	}
	return &ActivityConn{conn: conn}, nil
}

// Next blocks for the next activity envelope. Non-JSON frames are skipped.
func (a *ActivityConn) Next() (*ActivityEnvelope, error) {
	for {
		kind, data, err := a.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		var env ActivityEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		return &env, nil
	}
}

func (a *ActivityConn) Close() error {
	if a == nil || a.conn == nil {
		return nil
	}
	_ = a.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return a.conn.Close()
}
