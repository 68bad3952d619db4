package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/api/handlers/gallery"
	"github.com/aliskhannn/ai-gallery/internal/api/handlers/jobs"
	"github.com/aliskhannn/ai-gallery/internal/api/router"
	"github.com/aliskhannn/ai-gallery/internal/api/server"
	"github.com/aliskhannn/ai-gallery/internal/config"
	"github.com/aliskhannn/ai-gallery/internal/infra/kafka/consumer"
	"github.com/aliskhannn/ai-gallery/internal/infra/kafka/producer"
	generationmsg "github.com/aliskhannn/ai-gallery/internal/kafka/handlers/generation"
	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/poller"
	"github.com/aliskhannn/ai-gallery/internal/processor"
	"github.com/aliskhannn/ai-gallery/internal/provider/openai"
	"github.com/aliskhannn/ai-gallery/internal/provider/replicate"
	generationrepo "github.com/aliskhannn/ai-gallery/internal/repository/generation"
	generationsvc "github.com/aliskhannn/ai-gallery/internal/service/generation"
	"github.com/aliskhannn/ai-gallery/internal/storage/file"
	"github.com/aliskhannn/ai-gallery/internal/storage/object"
)

// imageProvider is a remote generation backend.
type imageProvider interface {
	Name() string
	Submit(ctx context.Context, prompt string, opts model.GenerateOptions) (model.Submission, error)
	Status(ctx context.Context, jobID string) (model.Job, error)
}

// galleryStore is a bounded recency store backend.
type galleryStore interface {
	Save(ctx context.Context, data []byte, rec model.Record) (model.StoredImage, error)
	List(ctx context.Context) ([]model.StoredImage, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger and load application configuration.
	zlog.Init()
	cfg := config.MustLoad("./config/config.yml")

	// Retry strategy for downloads, Kafka and other external calls.
	strategy := retry.Strategy{
		Attempts: cfg.Retry.Attempts,
		Delay:    cfg.Retry.Delay,
		Backoff:  cfg.Retry.Backoff,
	}

	prov, err := newProvider(cfg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to create provider")
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to initialize gallery store")
	}

	mode, err := processor.ParseMode(cfg.Processor.Mode)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("invalid processor mode")
	}

	imageProcessor := processor.New(processor.Options{
		Mode:        mode,
		Width:       cfg.Processor.Width,
		Height:      cfg.Processor.Height,
		CropRatio:   cfg.Processor.CropRatio,
		JPEGQuality: cfg.Processor.JPEGQuality,
		MaxBytes:    cfg.Processor.MaxDownloadBytes,
		Watermark:   cfg.Processor.Watermark,
		FontPath:    cfg.Processor.FontPath,
	}, strategy)

	jobPoller := poller.New(prov, retry.Strategy{
		Attempts: cfg.Poll.Attempts,
		Delay:    cfg.Poll.Delay,
		Backoff:  cfg.Poll.Backoff,
	}, cfg.Poll.MaxDelay, cfg.Poll.Timeout)

	opts := generationsvc.Options{
		PromptPrefix: cfg.Generation.PromptPrefix,
		URLPrefix:    cfg.Gallery.URLPrefix,
		Generate: model.GenerateOptions{
			Width:  cfg.Generation.Width,
			Height: cfg.Generation.Height,
		},
	}

	var (
		db  *dbpg.DB
		p   *producer.Producer
		c   *consumer.Consumer
		wg  sync.WaitGroup
		svc *generationsvc.Service
		jh  *jobs.Handler
	)

	if cfg.Jobs.Enabled {
		// Connect to PostgreSQL (master and slaves).
		slaveDSNs := make([]string, 0, len(cfg.Database.Slaves))
		for _, s := range cfg.Database.Slaves {
			slaveDSNs = append(slaveDSNs, s.DSN())
		}

		db, err = dbpg.New(cfg.Database.Master.DSN(), slaveDSNs, &dbpg.Options{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
		}

		p = producer.New(&cfg.Kafka, strategy)
		svc = generationsvc.NewService(prov, jobPoller, imageProcessor, store, generationrepo.NewRepository(db), p, opts)

		// Kafka consumer executing queued generations.
		c = consumer.New(&cfg.Kafka, strategy, generationmsg.NewRequestedHandler(svc))

		wg.Add(1)
		go c.Consume(ctx, &wg)

		jh = jobs.NewHandler(svc)
	} else {
		svc = generationsvc.NewService(prov, jobPoller, imageProcessor, store, nil, nil, opts)
	}

	// Start HTTP server in a separate goroutine.
	r := router.Setup(gallery.NewHandler(svc), jh)
	s := server.New(cfg.Server.Addr(), r, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
	go func() {
		zlog.Logger.Info().
			Str("addr", s.Addr).
			Str("provider", prov.Name()).
			Str("gallery", cfg.Gallery.Backend).
			Bool("jobs", cfg.Jobs.Enabled).
			Msg("AI Gallery server running")

		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Wait for Kafka consumer goroutine to finish.
	wg.Wait()

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	if !cfg.Jobs.Enabled {
		return
	}

	// Close master and slave databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, s := range db.Slaves {
		if err := s.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}

	// Close Kafka producer and consumer clients.
	if err := p.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka producer client")
	}
	if err := c.Client.Close(); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to close kafka consumer client")
	}
}

// newProvider builds the configured generation provider.
func newProvider(cfg *config.Config) (imageProvider, error) {
	switch cfg.Generation.Provider {
	case replicate.Name:
		if cfg.Replicate.APIToken == "" {
			return nil, errors.New("REPLICATE_API_TOKEN is not set")
		}
		rc, err := replicate.New(cfg.Replicate.BaseURL, cfg.Replicate.APIToken, cfg.Replicate.Model, cfg.Replicate.Version, cfg.Replicate.Timeout)
		if err != nil {
			return nil, fmt.Errorf("replicate client: %w", err)
		}
		return rc, nil
	case openai.Name:
		if cfg.OpenAI.APIKey == "" {
			return nil, errors.New("OPENAI_API_KEY is not set")
		}
		return openai.New(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.Model, cfg.OpenAI.Size, cfg.OpenAI.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Generation.Provider)
	}
}

// newStore builds the configured gallery backend.
func newStore(ctx context.Context, cfg *config.Config) (galleryStore, error) {
	switch cfg.Gallery.Backend {
	case "", "fs":
		return file.NewStorage(cfg.Gallery.Dir, cfg.Gallery.Capacity)
	case "minio":
		return object.NewStorage(
			ctx,
			cfg.Storage.Endpoint,
			cfg.Storage.AccessKey,
			cfg.Storage.SecretKey,
			cfg.Storage.BucketName,
			cfg.Storage.Prefix,
			cfg.Storage.UseSSL,
			cfg.Gallery.Capacity,
		)
	default:
		return nil, fmt.Errorf("unknown gallery backend %q", cfg.Gallery.Backend)
	}
}
