package consumer

import (
	"context"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/config"
)

// requestedHandler handles generation.requested messages.
type requestedHandler interface {
	Handle(ctx context.Context, msg kafka.Message) error
}

// Consumer represents a Kafka consumer along with its configuration
// and the handler that executes queued generation requests.
type Consumer struct {
	Client           *wbfkafka.Consumer
	requestedHandler requestedHandler
	cfg              *config.Kafka
	strategy         retry.Strategy
}

// New creates a new Consumer.
// - cfg: Kafka configuration struct
// - s: retry strategy
// - rh: handler for generation request messages
func New(
	cfg *config.Kafka,
	s retry.Strategy,
	rh requestedHandler,
) *Consumer {
	consumer := wbfkafka.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)

	return &Consumer{
		Client:           consumer,
		requestedHandler: rh,
		cfg:              cfg,
		strategy:         s,
	}
}

// Consume continuously fetches messages from Kafka, processes them using the handler,
// and commits offsets after processing. It stops gracefully on context cancellation.
//
// Requests whose handling fails are committed as well; the failure is
// recorded on the generation itself.
func (c *Consumer) Consume(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	zlog.Logger.Info().
		Str("topic", c.cfg.Topic).
		Msg("starting consumer")

	for {
		// Exit if context is canceled (graceful shutdown).
		if ctx.Err() != nil {
			zlog.Logger.Info().Msg("shutdown signal received, stopping consumer")
			return
		}

		// Fetch a message from Kafka with retries.
		var msg kafka.Message
		err := retry.Do(func() error {
			var fetchErr error
			msg, fetchErr = c.Client.Fetch(ctx)
			return fetchErr
		}, c.strategy)

		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			// Log error and retry after a short backoff.
			zlog.Logger.Err(err).Msg("failed to fetch message")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		_ = c.handle(ctx, msg)

		// Commit the message with retries.
		err = retry.Do(func() error {
			return c.Client.Commit(ctx, msg)
		}, c.strategy)
		if err != nil {
			zlog.Logger.Err(err).Msg("failed to commit message after retries")
			continue
		}

		zlog.Logger.Debug().
			Str("generation_id", string(msg.Key)).
			Int64("offset", msg.Offset).
			Msg("generation request committed")
	}
}

// handle runs one generation request and logs the outcome under its generation id.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	start := time.Now()
	log := zlog.Logger.With().
		Str("generation_id", string(msg.Key)).
		Int("partition", msg.Partition).
		Int64("offset", msg.Offset).
		Logger()

	if err := c.requestedHandler.Handle(ctx, msg); err != nil {
		log.Err(err).
			Dur("took", time.Since(start)).
			Msg("generation request failed")
		return err
	}

	log.Info().
		Dur("took", time.Since(start)).
		Msg("generation request handled")

	return nil
}
