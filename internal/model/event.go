package model

import (
	"time"

	"github.com/google/uuid"
)

// GenerationRequestedType tags queue messages that ask for a generation.
const GenerationRequestedType = "generation.requested"

// GenerationRequested is the queue message a worker turns into a generation.
type GenerationRequested struct {
	Type        string    `json:"type"`
	ID          uuid.UUID `json:"generation_id"`
	Prompt      string    `json:"prompt"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewGenerationRequested builds the queue message for a queued generation.
func NewGenerationRequested(gen Generation) GenerationRequested {
	return GenerationRequested{
		Type:        GenerationRequestedType,
		ID:          gen.ID,
		Prompt:      gen.Prompt,
		RequestedAt: gen.CreatedAt,
	}
}

// Generation returns the queued generation the message refers to.
func (e GenerationRequested) Generation() Generation {
	return Generation{
		ID:        e.ID,
		Prompt:    e.Prompt,
		Status:    GenerationQueued,
		CreatedAt: e.RequestedAt,
		UpdatedAt: e.RequestedAt,
	}
}
