package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

// ErrUnexpectedMessage is returned for messages that are not generation requests.
var ErrUnexpectedMessage = errors.New("not a generation.requested message")

// service defines the interface for executing queued generations.
type service interface {
	Process(ctx context.Context, gen model.Generation) (model.Generation, error)
}

// RequestedHandler handles generation.requested messages.
// It relies on a service that implements the generation pipeline.
type RequestedHandler struct {
	service service
}

// NewRequestedHandler creates a new handler with the given service.
func NewRequestedHandler(s service) *RequestedHandler {
	return &RequestedHandler{service: s}
}

// Handle decodes a generation.requested message, runs the generation
// and logs the result.
func (h *RequestedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var req model.GenerationRequested
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("unmarshal generation request: %w", err)
	}
	if req.Type != model.GenerationRequestedType || req.ID == uuid.Nil {
		return fmt.Errorf("%w: type %q, id %s", ErrUnexpectedMessage, req.Type, req.ID)
	}

	if len(msg.Key) > 0 && string(msg.Key) != req.ID.String() {
		zlog.Logger.Warn().
			Str("generation_id", req.ID.String()).
			Str("key", string(msg.Key)).
			Msg("message key does not match generation id")
	}

	done, err := h.service.Process(ctx, req.Generation())
	if err != nil {
		return fmt.Errorf("process generation %s: %w", req.ID, err)
	}

	zlog.Logger.Info().
		Str("generation_id", done.ID.String()).
		Str("status", done.Status).
		Str("image_url", done.ImageURL).
		Msg("generation processed")

	return nil
}
