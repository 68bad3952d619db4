package jobs

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/api/respond"
	"github.com/aliskhannn/ai-gallery/internal/model"
	repo "github.com/aliskhannn/ai-gallery/internal/repository/generation"
	"github.com/aliskhannn/ai-gallery/internal/service/generation"
)

// service defines the interface for queued generation operations.
type service interface {
	Enqueue(ctx context.Context, prompt string) (model.Generation, error)
	Job(ctx context.Context, id uuid.UUID) (model.Generation, error)
}

// Handler provides HTTP handlers for the asynchronous generation API.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// Create queues a generation and returns its ID.
func (h *Handler) Create(c *ginext.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Logger.Err(err).Msg("failed to decode request body")
		respond.Fail(c, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	gen, err := h.service.Enqueue(c.Request.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, generation.ErrMissingPrompt) {
			respond.FailMessage(c, http.StatusBadRequest, "Missing prompt")
			return
		}

		zlog.Logger.Err(err).Msg("failed to enqueue generation")
		respond.Fail(c, http.StatusInternalServerError, errors.New("failed to enqueue generation"))
		return
	}

	respond.Accepted(c, map[string]interface{}{
		"id":     gen.ID,
		"status": gen.Status,
	})
}

// Get returns a queued generation by ID.
func (h *Handler) Get(c *ginext.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to parse id")
		respond.Fail(c, http.StatusBadRequest, errors.New("invalid id"))
		return
	}

	gen, err := h.service.Job(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repo.ErrGenerationNotFound) {
			respond.Fail(c, http.StatusNotFound, errors.New("generation not found"))
			return
		}

		zlog.Logger.Err(err).Str("id", id.String()).Msg("failed to get generation")
		respond.Fail(c, http.StatusInternalServerError, errors.New("failed to get generation"))
		return
	}

	respond.OK(c, gen)
}
