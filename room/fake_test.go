package room

import (
	"context"
	"errors"
	"io"
	"sync"
)

type receipt struct {
	personID, messageID, roomID ID
}

// fakePlatform is an in-memory Platform. GetMessage blocks on gates[id]
// when one is registered.
type fakePlatform struct {
	mu          sync.Mutex
	members     []Member
	recent      []Message
	messages    map[ID]Message
	membersErr  error
	messagesErr error
	getErr      map[ID]error
	gates       map[ID]chan struct{}
	membersGate chan struct{}
	receiptErr  error

	membersCalls int

	fetched  []ID
	sent     []string
	files    []File
	receipts []receipt
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		messages: map[ID]Message{},
		getErr:   map[ID]error{},
		gates:    map[ID]chan struct{}{},
	}
}

func (f *fakePlatform) addMessage(m Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[m.ID] = m
}

func (f *fakePlatform) memberCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.membersCalls
}

func (f *fakePlatform) gate(id ID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakePlatform) GetMembers(ctx context.Context, _ ID) ([]Member, error) {
	f.mu.Lock()
	gate := f.membersGate
	f.membersCalls++
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.membersErr != nil {
		return nil, f.membersErr
	}
	return append([]Member(nil), f.members...), nil
}

func (f *fakePlatform) GetRecentMessages(_ context.Context, _ ID, max int) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.messagesErr != nil {
		return nil, f.messagesErr
	}
	out := append([]Message(nil), f.recent...)
	if len(out) > max {
		out = out[:max]
	}
	return out, nil
}

func (f *fakePlatform) GetMessage(ctx context.Context, id ID) (Message, error) {
	f.mu.Lock()
	gate := f.gates[id]
	f.fetched = append(f.fetched, id)
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getErr[id]; err != nil {
		return Message{}, err
	}
	m, ok := f.messages[id]
	if !ok {
		return Message{}, errors.New("message not found")
	}
	return m, nil
}

func (f *fakePlatform) SendMessage(_ context.Context, _ ID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakePlatform) SendMessageWithAttachment(_ context.Context, _ ID, file File, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, file)
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakePlatform) PublishReadReceipt(_ context.Context, personID, messageID, roomID ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receipts = append(f.receipts, receipt{personID, messageID, roomID})
	return f.receiptErr
}

func (f *fakePlatform) fetchedIDs() []ID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ID(nil), f.fetched...)
}

func (f *fakePlatform) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakePlatform) publishedReceipts() []receipt {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]receipt(nil), f.receipts...)
}

// recordingPublisher captures Publish calls synchronously.
type recordingPublisher struct {
	mu    sync.Mutex
	calls []receipt
}

func (p *recordingPublisher) Publish(personID, messageID, roomID ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, receipt{personID, messageID, roomID})
}

func (p *recordingPublisher) published() []receipt {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]receipt(nil), p.calls...)
}

// chanSource is an EventSource fed by the test.
type chanSource struct {
	events chan Event
	errs   chan error
	closed chan struct{}
	once   sync.Once
}

func newChanSource() *chanSource {
	return &chanSource{
		events: make(chan Event, 16),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (c *chanSource) Next() (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *chanSource) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *chanSource) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
