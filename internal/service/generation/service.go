package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

var (
	// ErrMissingPrompt is returned for an empty or blank prompt.
	ErrMissingPrompt = errors.New("missing prompt")
	// ErrJobsDisabled is returned by the queue operations when no queue is configured.
	ErrJobsDisabled = errors.New("generation jobs are disabled")
)

// generator submits prompts to a remote image generation provider.
type generator interface {
	Name() string
	Submit(ctx context.Context, prompt string, opts model.GenerateOptions) (model.Submission, error)
}

// jobPoller waits for an asynchronous provider job to resolve.
type jobPoller interface {
	Wait(ctx context.Context, jobID string) (string, error)
}

// imageProcessor downloads and post-processes generated images.
type imageProcessor interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	Transform(data []byte) ([]byte, error)
}

// galleryStore is the bounded recency store (local directory or object storage).
type galleryStore interface {
	Save(ctx context.Context, data []byte, rec model.Record) (model.StoredImage, error)
	List(ctx context.Context) ([]model.StoredImage, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// repository persists queued generations.
type repository interface {
	CreateGeneration(ctx context.Context, prompt string) (model.Generation, error)
	GetGeneration(ctx context.Context, id uuid.UUID) (model.Generation, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status, imageURL, errMsg string) error
}

// producer enqueues generations into a message broker (e.g., Kafka).
type producer interface {
	Produce(ctx context.Context, gen model.Generation) error
}

// Options configure prompt handling and public URLs.
type Options struct {
	PromptPrefix string // prepended to the user prompt before submitting
	URLPrefix    string // public path under which stored images are served
	Generate     model.GenerateOptions
}

// Service provides business logic for image generation.
// It runs the prompt -> provider -> poll -> fetch -> transform -> store chain
// and, when a queue is configured, executes the same chain for queued requests.
type Service struct {
	generator generator
	poller    jobPoller
	processor imageProcessor
	store     galleryStore
	repo      repository
	producer  producer
	opts      Options
}

// NewService creates a new Service. repo and p may be nil, which disables
// the queue-backed operations.
func NewService(g generator, jp jobPoller, ip imageProcessor, st galleryStore, repo repository, p producer, opts Options) *Service {
	if opts.URLPrefix == "" {
		opts.URLPrefix = "/gallery"
	}

	return &Service{
		generator: g,
		poller:    jp,
		processor: ip,
		store:     st,
		repo:      repo,
		producer:  p,
		opts:      opts,
	}
}

// Generate creates an image for prompt, stores it and returns its gallery entry.
func (s *Service) Generate(ctx context.Context, prompt string) (model.GalleryEntry, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return model.GalleryEntry{}, ErrMissingPrompt
	}

	full := s.opts.PromptPrefix + prompt
	zlog.Logger.Info().
		Str("provider", s.generator.Name()).
		Str("prompt", full).
		Msg("generating image")

	sub, err := s.generator.Submit(ctx, full, s.opts.Generate)
	if err != nil {
		return model.GalleryEntry{}, fmt.Errorf("generate: %w", err)
	}

	source := sub.ImageURL
	if sub.JobID != "" {
		source, err = s.poller.Wait(ctx, sub.JobID)
		if err != nil {
			return model.GalleryEntry{}, fmt.Errorf("generate: %w", err)
		}
	}

	raw := sub.ImageData
	if raw == nil {
		if source == "" {
			return model.GalleryEntry{}, errors.New("generate: provider returned neither image nor job")
		}

		raw, err = s.processor.Fetch(ctx, source)
		if err != nil {
			return model.GalleryEntry{}, fmt.Errorf("generate: %w", err)
		}
	}

	out, err := s.processor.Transform(raw)
	if err != nil {
		return model.GalleryEntry{}, fmt.Errorf("generate: %w", err)
	}

	img, err := s.store.Save(ctx, out, model.Record{
		Prompt:   prompt,
		Provider: s.generator.Name(),
		Source:   source,
	})
	if err != nil {
		return model.GalleryEntry{}, fmt.Errorf("generate: %w", err)
	}

	entry := s.entry(img)
	zlog.Logger.Info().Str("image_url", entry.ImageURL).Msg("image stored")

	return entry, nil
}

// Gallery lists the stored images, newest first.
func (s *Service) Gallery(ctx context.Context) ([]model.GalleryEntry, error) {
	images, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("gallery: %w", err)
	}

	entries := make([]model.GalleryEntry, 0, len(images))
	for _, img := range images {
		entries = append(entries, s.entry(img))
	}

	return entries, nil
}

// Open returns the bytes of a stored image.
func (s *Service) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	return s.store.Open(ctx, name)
}

// Enqueue records a generation request and publishes it for asynchronous processing.
func (s *Service) Enqueue(ctx context.Context, prompt string) (model.Generation, error) {
	if s.repo == nil || s.producer == nil {
		return model.Generation{}, ErrJobsDisabled
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return model.Generation{}, ErrMissingPrompt
	}

	gen, err := s.repo.CreateGeneration(ctx, prompt)
	if err != nil {
		return model.Generation{}, fmt.Errorf("enqueue: %w", err)
	}

	if err := s.producer.Produce(ctx, gen); err != nil {
		if uerr := s.repo.UpdateStatus(ctx, gen.ID, model.GenerationFailed, "", "enqueue failed"); uerr != nil {
			zlog.Logger.Err(uerr).Str("id", gen.ID.String()).Msg("failed to mark generation as failed")
		}
		return model.Generation{}, fmt.Errorf("enqueue: %w", err)
	}

	return gen, nil
}

// Process executes a queued generation and records its outcome.
// A failed generation is recorded and returned with its error.
func (s *Service) Process(ctx context.Context, gen model.Generation) (model.Generation, error) {
	if s.repo == nil {
		return model.Generation{}, ErrJobsDisabled
	}

	if err := s.repo.UpdateStatus(ctx, gen.ID, model.GenerationProcessing, "", ""); err != nil {
		return model.Generation{}, fmt.Errorf("process: %w", err)
	}
	gen.Status = model.GenerationProcessing

	entry, genErr := s.Generate(ctx, gen.Prompt)
	if genErr != nil {
		gen.Status = model.GenerationFailed
		gen.Error = genErr.Error()
	} else {
		gen.Status = model.GenerationSucceeded
		gen.ImageURL = entry.ImageURL
	}

	if err := s.repo.UpdateStatus(ctx, gen.ID, gen.Status, gen.ImageURL, gen.Error); err != nil {
		return gen, fmt.Errorf("process: %w", errors.Join(genErr, err))
	}
	if genErr != nil {
		return gen, fmt.Errorf("process: %w", genErr)
	}

	return gen, nil
}

// Job returns a queued generation by ID.
func (s *Service) Job(ctx context.Context, id uuid.UUID) (model.Generation, error) {
	if s.repo == nil {
		return model.Generation{}, ErrJobsDisabled
	}

	return s.repo.GetGeneration(ctx, id)
}

func (s *Service) entry(img model.StoredImage) model.GalleryEntry {
	return model.GalleryEntry{
		ImageURL: path.Join(s.opts.URLPrefix, img.Filename),
		Prompt:   img.Prompt,
	}
}
