// ABOUTME: Live event sources: the SSE resource stream and the activity websocket.
// ABOUTME: Events the engine does not consume are skipped and logged at debug.

package room

import (
	"errors"

	"github.com/rs/zerolog"

	spacechat "github.com/awebai/spacechat"
	"github.com/awebai/spacechat/logging"
)

// EventSource yields normalized live events. Next blocks until an event
// arrives or the source fails; Close unblocks a pending Next.
type EventSource interface {
	Next() (Event, error)
	Close() error
}

// SSESource reads resource events from the platform's SSE stream.
type SSESource struct {
	stream *spacechat.SSEStream
	log    zerolog.Logger
}

func NewSSESource(stream *spacechat.SSEStream, logger zerolog.Logger) *SSESource {
	return &SSESource{stream: stream, log: logger}
}

// Next skips payloads the engine does not consume.
func (s *SSESource) Next() (Event, error) {
	for {
		raw, err := s.stream.Next()
		if err != nil {
			return nil, err
		}
		ev, err := DecodeResourceEvent(raw)
		if err != nil {
			if skippable(err) {
				s.log.Debug().Err(err).Str("sse_event", raw.Event).Msg("skipping feed event")
				continue
			}
			return nil, err
		}
		return ev, nil
	}
}

func (s *SSESource) Close() error { return s.stream.Close() }

// ActivitySource reads device activity over the websocket feed.
type ActivitySource struct {
	conn       *spacechat.ActivityConn
	normalizer ActivityNormalizer
	log        zerolog.Logger
}

func NewActivitySource(conn *spacechat.ActivityConn, codec URNCodec, logger zerolog.Logger) *ActivitySource {
	return &ActivitySource{conn: conn, normalizer: ActivityNormalizer{Codec: codec}, log: logger}
}

func (s *ActivitySource) Next() (Event, error) {
	for {
		env, err := s.conn.Next()
		if err != nil {
			return nil, err
		}
		ev, err := s.normalizer.Normalize(env)
		if err != nil {
			if skippable(err) {
				s.log.Debug().Err(err).Str(logging.FieldEvent, env.Data.EventType).Msg("skipping activity")
				continue
			}
			return nil, err
		}
		return ev, nil
	}
}

func (s *ActivitySource) Close() error { return s.conn.Close() }

// skippable reports whether a normalization error drops just one event
// rather than ending the feed.
func skippable(err error) bool {
	return errors.Is(err, ErrUnhandledEvent) || errors.Is(err, ErrMalformedEvent)
}
