package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	wbfkafka "github.com/wb-go/wbf/kafka"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/config"
	"github.com/aliskhannn/ai-gallery/internal/model"
)

// ErrNoGenerationID is returned for generations that were never persisted.
var ErrNoGenerationID = errors.New("generation has no id")

// Producer publishes generation.requested messages to Kafka.
type Producer struct {
	Client   *wbfkafka.Producer
	strategy retry.Strategy
	cfg      *config.Kafka
}

// New creates a new Producer.
// - cfg: Kafka configuration struct
// - s: retry strategy for sends
func New(
	cfg *config.Kafka,
	s retry.Strategy,
) *Producer {
	producer := wbfkafka.NewProducer(cfg.Brokers, cfg.Topic)

	return &Producer{
		Client:   producer,
		cfg:      cfg,
		strategy: s,
	}
}

// Produce publishes a generation.requested message for gen.
// The generation ID is the message key, so retries of one generation
// land on the same partition.
func (p *Producer) Produce(ctx context.Context, gen model.Generation) error {
	key, value, err := encode(gen)
	if err != nil {
		return err
	}

	if err = p.Client.SendWithRetry(ctx, p.strategy, key, value); err != nil {
		return fmt.Errorf("failed to send generation %s: %w", gen.ID, err)
	}

	zlog.Logger.Debug().
		Str("generation_id", gen.ID.String()).
		Str("topic", p.cfg.Topic).
		Msg("generation requested")

	return nil
}

// encode returns the message key and value for gen.
func encode(gen model.Generation) (key, value []byte, err error) {
	if gen.ID == uuid.Nil {
		return nil, nil, ErrNoGenerationID
	}

	value, err = json.Marshal(model.NewGenerationRequested(gen))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal generation %s: %w", gen.ID, err)
	}

	return []byte(gen.ID.String()), value, nil
}
