package room

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	spacechat "github.com/awebai/spacechat"
)

// mockHandler dispatches requests to registered handlers by method+path.
type mockHandler struct {
	handlers map[string]http.HandlerFunc
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	if h, ok := m.handlers[key]; ok {
		h(w, r)
		return
	}
	for k, h := range m.handlers {
		if strings.HasPrefix(key, k) {
			h(w, r)
			return
		}
	}
	http.NotFound(w, r)
}

func newMockServer(handlers map[string]http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(&mockHandler{handlers: handlers})
}

func mustClient(t *testing.T, url string) *spacechat.Client {
	t.Helper()
	c, err := spacechat.NewWithToken(url, "tok_test")
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func jsonResponse(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientPlatformEmbeddedReadStatus(t *testing.T) {
	t.Parallel()

	server := newMockServer(map[string]http.HandlerFunc{
		"GET /v1/memberships": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("includeReadStatus") != "true" {
				t.Errorf("includeReadStatus=%q", r.URL.Query().Get("includeReadStatus"))
			}
			jsonResponse(w, spacechat.ListMembershipsResponse{Items: []spacechat.Membership{
				{PersonID: "p-alice", PersonDisplayName: "Alice", LastSeenID: "m2"},
				{PersonID: "p-bob", PersonDisplayName: "Bob"},
			}})
		},
		"GET /v1/rooms/": func(w http.ResponseWriter, _ *http.Request) {
			t.Error("read-status queried in embedded mode")
			w.WriteHeader(http.StatusInternalServerError)
		},
	})
	t.Cleanup(server.Close)

	p := NewClientPlatform(mustClient(t, server.URL), ReadStatusEmbedded)
	members, err := p.GetMembers(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].LastSeenMessageID != "m2" || members[1].LastSeenMessageID != "" {
		t.Fatalf("members=%+v", members)
	}
}

func TestClientPlatformSeparateReadStatus(t *testing.T) {
	t.Parallel()

	server := newMockServer(map[string]http.HandlerFunc{
		"GET /v1/memberships": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("includeReadStatus") != "" {
				t.Errorf("includeReadStatus=%q", r.URL.Query().Get("includeReadStatus"))
			}
			jsonResponse(w, spacechat.ListMembershipsResponse{Items: []spacechat.Membership{
				{PersonID: "p-alice", PersonDisplayName: "Alice"},
				{PersonID: "p-bob", PersonDisplayName: "Bob"},
			}})
		},
		"GET /v1/rooms/r1/read-status": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, spacechat.RoomReadStatusResponse{Items: []spacechat.ParticipantReadStatus{
				{PersonID: "p-bob", LastSeenID: "m7"},
			}})
		},
	})
	t.Cleanup(server.Close)

	p := NewClientPlatform(mustClient(t, server.URL), ReadStatusSeparate)
	members, err := p.GetMembers(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	got := map[ID]ID{}
	for _, m := range members {
		got[m.PersonID] = m.LastSeenMessageID
	}
	if got["p-alice"] != "" || got["p-bob"] != "m7" {
		t.Fatalf("markers=%v", got)
	}
}

func TestClientPlatformMessagesAndReceipt(t *testing.T) {
	t.Parallel()

	var seen spacechat.UpdateLastSeenRequest
	server := newMockServer(map[string]http.HandlerFunc{
		"GET /v1/messages/m9": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, spacechat.Message{ID: "m9", RoomID: "r1", PersonID: "p-bob", Text: "plain", HTML: "<b>rich</b>"})
		},
		"GET /v1/messages": func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Query().Get("max") != "5" {
				t.Errorf("max=%q", r.URL.Query().Get("max"))
			}
			jsonResponse(w, spacechat.ListMessagesResponse{Items: []spacechat.Message{
				{ID: "m2", PersonID: "p-bob", Text: "two"},
				{ID: "m1", PersonID: "p-alice", Text: "one"},
			}})
		},
		"POST /v1/rooms/r1/seen": func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&seen)
			w.WriteHeader(http.StatusNoContent)
		},
	})
	t.Cleanup(server.Close)

	p := NewClientPlatform(mustClient(t, server.URL), "")
	ctx := context.Background()

	recent, err := p.GetRecentMessages(ctx, "r1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "m2" || recent[1].AuthorPersonID != "p-alice" {
		t.Fatalf("recent=%+v", recent)
	}

	msg, err := p.GetMessage(ctx, "m9")
	if err != nil {
		t.Fatal(err)
	}
	if msg.Text != "<b>rich</b>" || msg.AuthorPersonID != "p-bob" {
		t.Fatalf("msg=%+v", msg)
	}

	if err := p.PublishReadReceipt(ctx, "p-alice", "m2", "r1"); err != nil {
		t.Fatal(err)
	}
	if seen.PersonID != "p-alice" || seen.LastSeenID != "m2" {
		t.Fatalf("seen=%+v", seen)
	}
}

func TestParseReadStatusMode(t *testing.T) {
	t.Parallel()
	if m, err := ParseReadStatusMode(""); err != nil || m != ReadStatusEmbedded {
		t.Fatalf("mode=%s err=%v", m, err)
	}
	if m, err := ParseReadStatusMode("separate"); err != nil || m != ReadStatusSeparate {
		t.Fatalf("mode=%s err=%v", m, err)
	}
	if _, err := ParseReadStatusMode("both"); err == nil {
		t.Fatal("expected error")
	}
}
