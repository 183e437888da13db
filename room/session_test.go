package room

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type sessionFixture struct {
	platform  *fakePlatform
	source    *chanSource
	publisher *recordingPublisher
	results   chan Result
	changes   atomic.Int32
	session   *Session
}

// newSessionFixture: me, bob and carol in a room holding m1 from bob,
// already read by me.
func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		platform:  newFakePlatform(),
		source:    newChanSource(),
		publisher: &recordingPublisher{},
		results:   make(chan Result, 32),
	}
	f.platform.members = []Member{
		{PersonID: me, DisplayName: "Me", LastSeenMessageID: "m1"},
		{PersonID: bob, DisplayName: "Bob", LastSeenMessageID: "m1"},
		{PersonID: carol, DisplayName: "Carol"},
	}
	f.platform.recent = []Message{{ID: "m1", RoomID: testRoom, AuthorPersonID: bob, Text: "one"}}
	f.session = NewSession(f.platform, Options{
		LocalPersonID:  me,
		Logger:         zerolog.Nop(),
		Publisher:      f.publisher,
		OnStateChanged: func(RoomState, AttentionState) { f.changes.Add(1) },
		OnResult:       func(_ Event, r Result) { f.results <- r },
	})
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *sessionFixture) enter(t *testing.T) {
	t.Helper()
	if err := f.session.EnterRoom(context.Background(), testRoom, f.source); err != nil {
		t.Fatal(err)
	}
}

func (f *sessionFixture) next(t *testing.T) Result {
	t.Helper()
	select {
	case r := <-f.results:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event result")
		return Result{}
	}
}

func (f *sessionFixture) created(id, author ID) MessageEvent {
	f.platform.addMessage(Message{ID: id, RoomID: testRoom, AuthorPersonID: author, Text: "text " + string(id)})
	return MessageEvent{Action: MessageCreated, MessageID: id, RoomID: testRoom, PersonID: author}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not end")
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSessionAppliesLiveMessage(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)

	f.source.events <- f.created("m2", carol)
	if r := f.next(t); r.Outcome != Applied {
		t.Fatalf("outcome=%s reason=%s", r.Outcome, r.Reason)
	}
	st, att := f.session.State()
	if att != Looking {
		t.Fatalf("attention=%s", att)
	}
	if len(st.Messages) != 2 || st.LastMessageID != "m2" {
		t.Fatalf("messages=%+v", st.Messages)
	}
	if st.LastReadByMember[me] != "m2" || st.LastReadByMember[carol] != "m2" {
		t.Fatalf("markers=%v", st.LastReadByMember)
	}
	if f.changes.Load() < 2 {
		t.Fatalf("state changes=%d", f.changes.Load())
	}
	if f.session.ID() == "" {
		t.Fatal("missing session id")
	}
}

func TestSessionBuffersEventsDuringSnapshot(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	gate := make(chan struct{})
	f.platform.membersGate = gate

	entered := make(chan error, 1)
	go func() { entered <- f.session.EnterRoom(context.Background(), testRoom, f.source) }()

	// The read receipt is only valid against the snapshot's lastMessageID.
	f.source.events <- MembershipEvent{Action: MembershipRead, RoomID: testRoom, PersonID: carol, MessageID: "m1"}
	f.source.events <- MembershipEvent{Action: MembershipCreated, RoomID: testRoom, PersonID: "p-dave", DisplayName: "Dave"}
	eventually(t, func() bool { return len(f.source.events) == 0 })
	close(gate)

	if err := <-entered; err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if r := f.next(t); r.Outcome != Applied {
			t.Fatalf("event %d outcome=%s reason=%s", i, r.Outcome, r.Reason)
		}
	}
	// One change for the entry snapshot, one per replayed event.
	if got := f.changes.Load(); got != 3 {
		t.Fatalf("state changes=%d", got)
	}
	st, _ := f.session.State()
	if st.LastReadByMember[carol] != "m1" {
		t.Fatalf("carol=%s", st.LastReadByMember[carol])
	}
	if st.Members["p-dave"] != "Dave" {
		t.Fatalf("members=%v", st.Members)
	}
}

func TestSessionCommitsInArrivalOrder(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)
	slow := f.platform.gate("m2")

	f.source.events <- f.created("m2", carol)
	f.source.events <- f.created("m3", carol)
	f.source.events <- MembershipEvent{Action: MembershipRead, RoomID: testRoom, PersonID: bob, MessageID: "m3"}

	// m3's fetch completes while m2 is still outstanding.
	eventually(t, func() bool { return slices.Contains(f.platform.fetchedIDs(), "m3") })
	time.Sleep(20 * time.Millisecond)
	if st, _ := f.session.State(); len(st.Messages) != 1 {
		t.Fatalf("committed out of order: %+v", st.Messages)
	}

	close(slow)
	for i := 0; i < 3; i++ {
		if r := f.next(t); r.Outcome != Applied {
			t.Fatalf("event %d outcome=%s reason=%s", i, r.Outcome, r.Reason)
		}
	}
	st, _ := f.session.State()
	var ids []ID
	for _, e := range st.Messages {
		ids = append(ids, e.MessageID)
	}
	if !slices.Equal(ids, []ID{"m1", "m2", "m3"}) {
		t.Fatalf("order=%v", ids)
	}
	if st.LastReadByMember[bob] != "m3" {
		t.Fatalf("bob=%s", st.LastReadByMember[bob])
	}
}

func TestSessionDropsFailedFetch(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)
	f.platform.mu.Lock()
	f.platform.getErr["m2"] = errors.New("gone")
	f.platform.mu.Unlock()

	f.source.events <- MessageEvent{Action: MessageCreated, MessageID: "m2", RoomID: testRoom, PersonID: carol}
	f.source.events <- f.created("m3", carol)

	if r := f.next(t); r.Outcome != Failed {
		t.Fatalf("outcome=%s", r.Outcome)
	}
	if r := f.next(t); r.Outcome != Applied {
		t.Fatalf("outcome=%s", r.Outcome)
	}
	select {
	case <-f.session.Done():
		t.Fatal("recoverable failure ended the session")
	default:
	}
	if st, _ := f.session.State(); len(st.Messages) != 2 {
		t.Fatalf("messages=%+v", st.Messages)
	}
}

func TestSessionLocalRemovalEndsSession(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)

	f.source.events <- MembershipEvent{Action: MembershipDeleted, RoomID: testRoom, PersonID: me}
	if r := f.next(t); r.Outcome != Fatal {
		t.Fatalf("outcome=%s", r.Outcome)
	}
	waitDone(t, f.session)
	if !errors.Is(f.session.Err(), ErrLocalMembershipRemoved) {
		t.Fatalf("err=%v", f.session.Err())
	}
	if !f.source.isClosed() {
		t.Fatal("source left open")
	}
	_, err := f.session.SetAttention(context.Background(), Away)
	if !errors.Is(err, ErrSessionEnded) || !errors.Is(err, ErrLocalMembershipRemoved) {
		t.Fatalf("err=%v", err)
	}
	if err := f.session.SendLocalMessage(context.Background(), "hello?"); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("send err=%v", err)
	}
	if st, _ := f.session.State(); len(st.Members) != 3 {
		t.Fatalf("members=%v", st.Members)
	}
}

func TestSessionSnapshotFailure(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.platform.membersErr = errors.New("forbidden")

	err := f.session.EnterRoom(context.Background(), testRoom, f.source)
	if !errors.Is(err, ErrSnapshotFailed) {
		t.Fatalf("err=%v", err)
	}
	waitDone(t, f.session)
	if !f.source.isClosed() {
		t.Fatal("source left open")
	}
	if st, _ := f.session.State(); st.RoomID != "" || len(st.Members) != 0 || len(st.Messages) != 0 {
		t.Fatalf("partial state=%+v", st)
	}
	if f.changes.Load() != 0 {
		t.Fatalf("state changes=%d", f.changes.Load())
	}
	if _, err := f.session.Acknowledge(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err=%v", err)
	}
}

func TestSessionCloseDuringEntry(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.platform.membersGate = make(chan struct{})

	entered := make(chan error, 1)
	go func() { entered <- f.session.EnterRoom(context.Background(), testRoom, f.source) }()
	eventually(t, func() bool { return f.platform.memberCalls() > 0 })

	if err := f.session.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-entered:
		if !errors.Is(err, ErrSessionEnded) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("EnterRoom still loading after Close")
	}
	if !f.source.isClosed() {
		t.Fatal("source left open")
	}
	if st, _ := f.session.State(); len(st.Members) != 0 {
		t.Fatalf("state published after Close: %+v", st)
	}
	if _, err := f.session.Acknowledge(context.Background()); !errors.Is(err, ErrSessionEnded) {
		t.Fatalf("err=%v", err)
	}
}

func TestSessionFeedFailureEndsSession(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)

	f.source.errs <- errors.New("stream reset")
	waitDone(t, f.session)
	if !errors.Is(f.session.Err(), ErrSessionEnded) {
		t.Fatalf("err=%v", f.session.Err())
	}
}

func TestSessionSendWhileBackAcknowledges(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)
	ctx := context.Background()

	if r, err := f.session.SetAttention(ctx, Away); err != nil || r.Outcome != Applied {
		t.Fatalf("outcome=%s err=%v", r.Outcome, err)
	}
	f.source.events <- f.created("m2", carol)
	f.next(t)
	if r, err := f.session.SetAttention(ctx, Looking); err != nil || r.Outcome != Applied {
		t.Fatalf("outcome=%s err=%v", r.Outcome, err)
	}
	st, att := f.session.State()
	if att != Back || st.BoundaryCount() != 1 {
		t.Fatalf("attention=%s boundaries=%d", att, st.BoundaryCount())
	}
	if len(f.publisher.published()) != 0 {
		t.Fatalf("published=%v", f.publisher.published())
	}

	if err := f.session.SendLocalMessage(ctx, "caught up"); err != nil {
		t.Fatal(err)
	}
	st, att = f.session.State()
	if att != Looking || st.BoundaryCount() != 0 || st.LastReadByMember[me] != "m2" {
		t.Fatalf("attention=%s boundaries=%d me=%s", att, st.BoundaryCount(), st.LastReadByMember[me])
	}
	got := f.publisher.published()
	if len(got) != 1 || got[0] != (receipt{me, "m2", testRoom}) {
		t.Fatalf("published=%v", got)
	}
	if sent := f.platform.sentTexts(); len(sent) != 1 || sent[0] != "caught up" {
		t.Fatalf("sent=%v", sent)
	}
}

func TestSessionActionsBeforeEnter(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	if _, err := f.session.SetAttention(context.Background(), Away); !errors.Is(err, ErrNotEntered) {
		t.Fatalf("err=%v", err)
	}
	if err := f.session.SendLocalMessage(context.Background(), "hi"); !errors.Is(err, ErrNotEntered) {
		t.Fatalf("err=%v", err)
	}
}

func TestSessionCloseStopsSource(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	f.enter(t)

	if err := f.session.Close(); err != nil {
		t.Fatal(err)
	}
	waitDone(t, f.session)
	if !f.source.isClosed() {
		t.Fatal("source left open")
	}
	if err := f.session.EnterRoom(context.Background(), testRoom, newChanSource()); err == nil {
		t.Fatal("expected error re-entering a closed session")
	}
}
