package gallery

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/api/respond"
	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/service/generation"
	"github.com/aliskhannn/ai-gallery/internal/storage"
)

// Banner is the body of the liveness endpoint.
const Banner = "AI Gallery backend is running."

// service defines the interface for gallery operations.
type service interface {
	Generate(ctx context.Context, prompt string) (model.GalleryEntry, error)
	Gallery(ctx context.Context) ([]model.GalleryEntry, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// Handler provides HTTP handlers for the generation and gallery endpoints.
type Handler struct {
	service service
}

// NewHandler creates a new Handler with the given service.
func NewHandler(s service) *Handler {
	return &Handler{service: s}
}

// GenerateResponse is returned by a successful generation.
type GenerateResponse struct {
	ImageURL string `json:"imageUrl"`
}

// Generate runs a synchronous generation for the prompt in the request body.
func (h *Handler) Generate(c *ginext.Context) {
	var req model.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("invalid generate request body")
	}

	entry, err := h.service.Generate(c.Request.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, generation.ErrMissingPrompt) {
			respond.FailMessage(c, http.StatusBadRequest, "Missing prompt")
			return
		}

		zlog.Logger.Err(err).Msg("generation failed")
		respond.FailMessage(c, http.StatusInternalServerError, "Failed to generate image.")
		return
	}

	respond.JSON(c, http.StatusOK, GenerateResponse{ImageURL: entry.ImageURL})
}

// List returns the gallery, newest first.
func (h *Handler) List(c *ginext.Context) {
	entries, err := h.service.Gallery(c.Request.Context())
	if err != nil {
		zlog.Logger.Err(err).Msg("failed to read gallery")
		respond.FailMessage(c, http.StatusInternalServerError, "Unable to load gallery.")
		return
	}

	respond.JSON(c, http.StatusOK, entries)
}

// Image serves the bytes of a stored image.
func (h *Handler) Image(c *ginext.Context) {
	name := c.Param("name")

	reader, err := h.service.Open(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			respond.Fail(c, http.StatusNotFound, errors.New("image not found"))
			return
		}

		zlog.Logger.Err(err).Str("name", name).Msg("failed to open image")
		respond.Fail(c, http.StatusInternalServerError, errors.New("failed to get image"))
		return
	}
	defer reader.Close()

	// Names are never reused.
	c.Header("Cache-Control", "public, max-age=86400, immutable")

	respond.JPEG(c, http.StatusOK, reader)
}

// Health answers the liveness probe.
func (h *Handler) Health(c *ginext.Context) {
	respond.Text(c, http.StatusOK, Banner)
}
