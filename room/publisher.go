// ABOUTME: Read receipt publisher: fire-and-forget, logged on failure, never retried.
// ABOUTME: Skips a publish identical to the last one that succeeded.

package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/awebai/spacechat/logging"
)

// DefaultPublishTimeout bounds one read receipt request.
const DefaultPublishTimeout = 10 * time.Second

type receiptKey struct {
	personID, messageID, roomID ID
}

// Publisher sends read receipts to the platform in the background.
type Publisher struct {
	platform Platform
	log      zerolog.Logger
	timeout  time.Duration

	mu   sync.Mutex
	last receiptKey
	wg   sync.WaitGroup
}

func NewPublisher(platform Platform, logger zerolog.Logger) *Publisher {
	return &Publisher{platform: platform, log: logger, timeout: DefaultPublishTimeout}
}

// Publish sends the receipt asynchronously and returns immediately.
func (p *Publisher) Publish(personID, messageID, roomID ID) {
	key := receiptKey{personID: personID, messageID: messageID, roomID: roomID}
	p.mu.Lock()
	if p.last == key {
		p.mu.Unlock()
		p.log.Debug().Str(logging.FieldMessage, messageID.String()).Msg("read receipt already published")
		return
	}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		log := p.log.With().
			Str(logging.FieldRoom, roomID.String()).
			Str(logging.FieldMessage, messageID.String()).
			Logger()
		if err := p.platform.PublishReadReceipt(ctx, personID, messageID, roomID); err != nil {
			log.Warn().Err(err).Msg("read receipt publish failed")
			return
		}
		p.mu.Lock()
		p.last = key
		p.mu.Unlock()
		log.Debug().Msg("read receipt published")
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
