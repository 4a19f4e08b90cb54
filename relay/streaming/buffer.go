package streaming

import (
	"strings"
	"sync"

	"github.com/paiml/universal-bot/relay/model"
)

// Buffer accumulates the chunks of one stream.
type Buffer struct {
	mu       sync.Mutex
	content  strings.Builder
	chunks   []model.StreamChunk
	usage    *model.TokenUsage
	complete bool
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add appends a chunk. A final chunk marks the buffer complete and stores its usage.
func (b *Buffer) Add(chunk *model.StreamChunk) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = append(b.chunks, *chunk)
	if chunk.IsFinal {
		b.complete = true
		if chunk.Usage != nil {
			usage := *chunk.Usage
			b.usage = &usage
		}
		return
	}
	b.content.WriteString(chunk.Content)
}

// Handler returns a Handler that adds every chunk to the buffer.
func (b *Buffer) Handler() Handler {
	return func(chunk *model.StreamChunk) error {
		b.Add(chunk)
		return nil
	}
}

func (b *Buffer) Content() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.content.String()
}

func (b *Buffer) Chunks() []model.StreamChunk {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.StreamChunk(nil), b.chunks...)
}

// TotalTokens is zero until the final chunk arrived.
func (b *Buffer) TotalTokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.usage == nil {
		return 0
	}
	return b.usage.TotalTokens
}

func (b *Buffer) EstimatedCost() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.usage == nil {
		return 0
	}
	return b.usage.EstimatedCost
}

func (b *Buffer) IsComplete() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.complete
}

// Clear resets the buffer for reuse.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.content.Reset()
	b.chunks = nil
	b.usage = nil
	b.complete = false
}
