package generation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/aliskhannn/ai-gallery/internal/model"
)

var ErrGenerationNotFound = errors.New("generation not found")

// Repository stores queued generation requests in the database.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new Repository with the given DB connection.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateGeneration inserts a new queued generation and returns it with its
// generated ID and timestamps.
func (r *Repository) CreateGeneration(ctx context.Context, prompt string) (model.Generation, error) {
	query := `
		INSERT INTO generations (prompt, status)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`

	gen := model.Generation{
		Prompt: prompt,
		Status: model.GenerationQueued,
	}

	err := r.db.QueryRowContext(
		ctx, query, gen.Prompt, gen.Status,
	).Scan(&gen.ID, &gen.CreatedAt, &gen.UpdatedAt)
	if err != nil {
		return model.Generation{}, fmt.Errorf("create: failed to create generation: %w", err)
	}

	return gen, nil
}

// GetGeneration retrieves a generation by ID.
func (r *Repository) GetGeneration(ctx context.Context, id uuid.UUID) (model.Generation, error) {
	query := `
		SELECT prompt, status, COALESCE(image_url, ''), COALESCE(error, ''), created_at, updated_at
		FROM generations
		WHERE id = $1
	`

	var gen model.Generation
	err := r.db.QueryRowContext(
		ctx, query, id,
	).Scan(&gen.Prompt, &gen.Status, &gen.ImageURL, &gen.Error, &gen.CreatedAt, &gen.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Generation{}, ErrGenerationNotFound
		}

		return model.Generation{}, fmt.Errorf("get: failed to get generation: %w", err)
	}

	gen.ID = id

	return gen, nil
}

// UpdateStatus sets the status, result URL and error message of a generation.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status, imageURL, errMsg string) error {
	query := `
		UPDATE generations
		SET status = $1, image_url = NULLIF($2, ''), error = NULLIF($3, ''), updated_at = now()
		WHERE id = $4
	`

	res, err := r.db.ExecContext(ctx, query, status, imageURL, errMsg, id)
	if err != nil {
		return fmt.Errorf("update: failed to update generation: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update: failed to get number of rows affected: %w", err)
	}

	if rows == 0 {
		return ErrGenerationNotFound
	}

	return nil
}
