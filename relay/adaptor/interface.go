// Package adaptor defines the capability the resilience layer needs from an upstream
// model service. Implementations live in sub-packages.
package adaptor

import (
	"context"

	"github.com/paiml/universal-bot/relay/model"
)

// Upstream performs a single physical call against the model service.
// Implementations must be safe for concurrent use and must return errors already
// classified as *model.Error whenever the failure cause is known.
type Upstream interface {
	// Invoke runs a non-streaming generation.
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResponse, error)
	// InvokeStream opens a streaming generation. The caller owns the returned stream
	// and must Close it.
	InvokeStream(ctx context.Context, req *InvokeRequest) (EventStream, error)
}

// InvokeRequest is the upstream-neutral form of one generation request.
type InvokeRequest struct {
	ModelID  string
	Messages []model.Message
	Config   model.GenerationConfig
}

// InvokeResponse is the result of a non-streaming call.
type InvokeResponse struct {
	Content      string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// EventStream yields the events of a streaming call.
type EventStream interface {
	// Recv blocks for the next event. It returns io.EOF once the upstream
	// finished cleanly.
	Recv() (StreamEvent, error)
	// Close releases the underlying connection. It is safe to call more than once.
	Close() error
}

// StreamEvent is one upstream stream event. Text carries a content delta, Usage is set
// on the event that reports token accounting and StopReason on the message stop event.
type StreamEvent struct {
	Text       string
	Usage      *StreamUsage
	StopReason string
}

// StreamUsage is the token accounting reported at the end of a stream.
type StreamUsage struct {
	InputTokens  int
	OutputTokens int
}

// Factory builds the upstream handle stored in pool slot index.
type Factory func(ctx context.Context, index int) (Upstream, error)
