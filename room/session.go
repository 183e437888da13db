// ABOUTME: Session: one room, one event loop goroutine owning the Store.
// ABOUTME: Buffers live events during the snapshot and commits fetched messages in arrival order.

package room

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/awebai/spacechat/logging"
)

// Options configures a Session.
type Options struct {
	LocalPersonID ID
	MaxMessages   int
	Logger        zerolog.Logger
	// Publisher defaults to a background Publisher over the session platform.
	Publisher ReceiptPublisher
	// OnStateChanged is called on the loop goroutine after room entry, after
	// every applied event and after every user action.
	OnStateChanged func(RoomState, AttentionState)
	OnNotice       func(Notice)
	// OnResult observes the outcome of every live event.
	OnResult func(Event, Result)
}

// Session drives a single room: the snapshot, the live feed and user actions.
type Session struct {
	id        string
	platform  Platform
	opts      Options
	log       zerolog.Logger
	publisher ReceiptPublisher
	sender    *Sender

	actions chan action
	done    chan struct{}

	mu      sync.Mutex
	entered bool
	roomID  ID
	source  EventSource
	cancel  context.CancelFunc
	err     error
	loaded  bool
	state   RoomState
	att     AttentionState
	wg      sync.WaitGroup
}

func NewSession(platform Platform, opts Options) *Session {
	if opts.MaxMessages <= 0 {
		opts.MaxMessages = DefaultMaxMessages
	}
	id := uuid.NewString()
	log := opts.Logger.With().
		Str(logging.FieldSession, id).
		Str(logging.FieldPerson, opts.LocalPersonID.String()).
		Logger()
	publisher := opts.Publisher
	if publisher == nil {
		publisher = NewPublisher(platform, log)
	}
	return &Session{
		id:        id,
		platform:  platform,
		opts:      opts,
		log:       log,
		publisher: publisher,
		sender:    NewSender(platform),
		actions:   make(chan action),
		done:      make(chan struct{}),
	}
}

// ID is the session correlation id attached to every log line.
func (s *Session) ID() string { return s.id }

// EnterRoom loads the room and starts processing source. Events the
// source yields while the snapshot loads are replayed afterwards in
// arrival order. A snapshot failure closes source and returns an error
// wrapping ErrSnapshotFailed.
func (s *Session) EnterRoom(ctx context.Context, roomID ID, source EventSource) error {
	s.mu.Lock()
	if s.entered {
		s.mu.Unlock()
		return fmt.Errorf("entering room %s: session already entered %s", roomID, s.roomID)
	}
	if s.isDone() {
		s.mu.Unlock()
		return ErrSessionEnded
	}
	s.entered = true
	s.roomID = roomID
	s.source = source
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	queue := newEventQueue()
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pump(loopCtx, source, queue)

	// Close during the load cancels it.
	loadCtx, loadCancel := context.WithCancel(ctx)
	defer loadCancel()
	stopLoad := context.AfterFunc(loopCtx, loadCancel)
	defer stopLoad()

	log := s.log.With().Str(logging.FieldRoom, roomID.String()).Logger()
	loader := &SnapshotLoader{
		Platform:      s.platform,
		LocalPersonID: s.opts.LocalPersonID,
		MaxMessages:   s.opts.MaxMessages,
		Publisher:     s.publisher,
		Logger:        log,
	}
	initial, err := loader.Load(loadCtx, roomID)

	s.mu.Lock()
	ended := s.isDone()
	if !ended && err == nil {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	if ended || err != nil {
		if ended {
			log.Info().Msg("session closed during room entry")
			err = ErrSessionEnded
		} else {
			log.Error().Err(err).Msg("room entry failed")
			s.finish(err)
		}
		cancel()
		_ = source.Close()
		s.wg.Wait()
		return err
	}

	store := NewStore(initial, StoreConfig{
		LocalPersonID: s.opts.LocalPersonID,
		Platform:      s.platform,
		Publisher:     s.publisher,
		Logger:        log,
		OnNotice:      s.opts.OnNotice,
	})
	s.snapshot(store)

	go s.loop(loopCtx, store, queue)
	log.Info().Int("buffered", queue.len()).Msg("room entered")
	return nil
}

// pump moves source events into queue until the source fails or ctx ends.
func (s *Session) pump(ctx context.Context, source EventSource, queue *eventQueue) {
	defer s.wg.Done()
	for {
		ev, err := source.Next()
		if ctx.Err() != nil {
			return
		}
		queue.push(queued{ev: ev, err: err})
		if err != nil {
			return
		}
	}
}

type queued struct {
	ev  Event
	err error
}

// eventQueue is an unbounded FIFO between the pump and the loop.
type eventQueue struct {
	mu     sync.Mutex
	items  []queued
	notify chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{notify: make(chan struct{}, 1)}
}

func (q *eventQueue) push(item queued) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) drain() []queued {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// pending is one live event waiting for its turn to commit.
type pending struct {
	ev    Event
	fetch bool
	ready bool
	msg   Message
	err   error
}

// action is a user operation run on the loop goroutine; done closes once
// the resulting state is visible through State.
type action struct {
	fn   func(*Store)
	done chan struct{}
}

type fetched struct {
	p   *pending
	msg Message
	err error
}

func (s *Session) loop(ctx context.Context, store *Store, queue *eventQueue) {
	defer s.wg.Done()

	var order []*pending
	results := make(chan fetched)
	var fetches sync.WaitGroup
	defer fetches.Wait()

	// commit applies every ready event at the head of the queue.
	commit := func() error {
		for len(order) > 0 && order[0].ready {
			p := order[0]
			order = order[1:]
			var r Result
			if p.fetch {
				r = store.commitCreated(p.ev.(MessageEvent), p.msg, p.err)
			} else {
				r = store.record(p.ev, store.apply(p.ev))
			}
			if r.Outcome == Applied || r.Outcome == Fatal {
				s.snapshot(store)
			}
			if s.opts.OnResult != nil {
				s.opts.OnResult(p.ev, r)
			}
			if r.Outcome == Fatal {
				return r.Err
			}
		}
		return nil
	}

	enqueue := func(ev Event) {
		p := &pending{ev: ev, ready: true}
		if me, fetch := store.needsFetch(ev); fetch {
			p.fetch, p.ready = true, false
			fetches.Add(1)
			go func() {
				defer fetches.Done()
				msg, err := store.fetch(ctx, me)
				select {
				case results <- fetched{p: p, msg: msg, err: err}:
				case <-ctx.Done():
				}
			}()
		}
		order = append(order, p)
	}

	for {
		select {
		case <-ctx.Done():
			s.finish(ErrSessionEnded)
			return

		case <-queue.notify:
			var feedErr error
			for _, item := range queue.drain() {
				if item.err != nil {
					feedErr = item.err
					break
				}
				enqueue(item.ev)
			}
			if err := commit(); err != nil {
				s.stop()
				s.finish(err)
				return
			}
			if feedErr != nil {
				s.log.Error().Err(feedErr).Int("uncommitted", len(order)).Msg("live feed ended")
				s.stop()
				s.finish(fmt.Errorf("%w: live feed: %w", ErrSessionEnded, feedErr))
				return
			}

		case f := <-results:
			f.p.msg, f.p.err, f.p.ready = f.msg, f.err, true
			if err := commit(); err != nil {
				s.stop()
				s.finish(err)
				return
			}

		case act := <-s.actions:
			act.fn(store)
			s.snapshot(store)
			close(act.done)
		}
	}
}

// snapshot publishes the store's current view to readers and observers.
func (s *Session) snapshot(store *Store) {
	state, att := store.State(), store.Attention()
	s.mu.Lock()
	s.state, s.att, s.loaded = state, att, true
	s.mu.Unlock()
	if s.opts.OnStateChanged != nil {
		s.opts.OnStateChanged(state.Clone(), att)
	}
}

// finish records the terminal error once and closes Done.
func (s *Session) finish(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isDone() {
		return
	}
	s.err = err
	close(s.done)
}

// isDone reports whether Done is closed. Callers hold s.mu.
func (s *Session) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// stop cancels the loop context from inside the loop.
func (s *Session) stop() {
	s.mu.Lock()
	cancel, source := s.cancel, s.source
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if source != nil {
		_ = source.Close()
	}
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the session ended, or nil while it runs.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// do runs fn on the loop goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func(*Store)) error {
	s.mu.Lock()
	entered := s.entered
	s.mu.Unlock()
	if !entered {
		return ErrNotEntered
	}
	act := action{fn: fn, done: make(chan struct{})}
	select {
	case s.actions <- act:
	case <-s.done:
		return s.endedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
	<-act.done
	return nil
}

func (s *Session) endedErr() error {
	err := s.Err()
	if err == nil || errors.Is(err, ErrSessionEnded) {
		return ErrSessionEnded
	}
	return fmt.Errorf("%w: %w", ErrSessionEnded, err)
}

// State returns the latest committed room state and attention. It is the
// zero RoomState until a snapshot has loaded.
func (s *Session) State() (RoomState, AttentionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return RoomState{}, s.att
	}
	return s.state.Clone(), s.att
}

// SetAttention applies a user attention change (Away or Looking).
func (s *Session) SetAttention(ctx context.Context, target AttentionState) (Result, error) {
	var r Result
	err := s.do(ctx, func(st *Store) { r = st.SetAttention(target) })
	return r, err
}

// Acknowledge clears the new-messages indicator.
func (s *Session) Acknowledge(ctx context.Context) (Result, error) {
	var r Result
	err := s.do(ctx, func(st *Store) { r = st.RemoveNewMessageIndicator() })
	return r, err
}

// SendLocalMessage sends text to the room. Sending while Back first
// acknowledges the new messages. The sent message appears in the feed
// when its created event arrives.
func (s *Session) SendLocalMessage(ctx context.Context, text string) error {
	if err := s.do(ctx, s.acknowledgeIfBack); err != nil {
		return err
	}
	if err := s.sender.SendText(ctx, s.room(), text); err != nil {
		s.log.Warn().Err(err).Msg("send failed")
		return err
	}
	return nil
}

// SendLocalFile uploads file with optional text to the room.
func (s *Session) SendLocalFile(ctx context.Context, file File, text string) error {
	if err := s.do(ctx, s.acknowledgeIfBack); err != nil {
		return err
	}
	if err := s.sender.SendFile(ctx, s.room(), file, text); err != nil {
		s.log.Warn().Err(err).Str("file", file.Name).Msg("file send failed")
		return err
	}
	return nil
}

func (s *Session) acknowledgeIfBack(st *Store) {
	if st.Attention() == Back {
		st.RemoveNewMessageIndicator()
	}
}

func (s *Session) room() ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Close ends the session, closes the live source and waits for in-flight
// read receipts.
func (s *Session) Close() error {
	s.finish(ErrSessionEnded)
	s.stop()
	s.wg.Wait()
	if p, ok := s.publisher.(interface{ Wait() }); ok {
		p.Wait()
	}
	s.log.Debug().Msg("session closed")
	return nil
}
