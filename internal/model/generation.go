package model

import (
	"time"

	"github.com/google/uuid"
)

// Generation statuses of a queued request.
const (
	GenerationQueued     = "queued"
	GenerationProcessing = "processing"
	GenerationSucceeded  = "succeeded"
	GenerationFailed     = "failed"
)

// GenerationRequest is the inbound body of a generation call.
type GenerationRequest struct {
	Prompt string `json:"prompt"`
}

// Generation represents a queued generation request that will be sent to the queue.
type Generation struct {
	ID        uuid.UUID `json:"id"`
	Prompt    string    `json:"prompt"`
	Status    string    `json:"status"` // queued / processing / succeeded / failed
	ImageURL  string    `json:"imageUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
