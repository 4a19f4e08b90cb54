package model

import (
	"time"

	"github.com/google/uuid"
)

// StreamChunk is one increment of a streamed response. Only the final chunk of a stream
// carries usage, and it carries no content.
type StreamChunk struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	IsFinal   bool           `json:"is_final"`
	Usage     *TokenUsage    `json:"usage,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ContentChunk builds a non-final chunk holding incremental text.
func ContentChunk(content string) StreamChunk {
	return StreamChunk{
		ID:        uuid.NewString(),
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// FinalChunk builds the terminal chunk of a stream.
func FinalChunk(usage TokenUsage) StreamChunk {
	return StreamChunk{
		ID:        uuid.NewString(),
		IsFinal:   true,
		Usage:     &usage,
		Timestamp: time.Now().UTC(),
	}
}
