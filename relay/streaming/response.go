// Package streaming assembles upstream stream events into application chunks.
package streaming

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/model"
)

// State of a Response.
type State int

const (
	StateActive State = iota
	StateFinished
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "finished"
}

// ResponseParams configures a Response.
type ResponseParams struct {
	// Model is recorded on the final usage.
	Model  string
	Source adaptor.EventStream
	// Cost prices the final usage; nil leaves the estimated cost at zero.
	Cost func(inputTokens, outputTokens int) float64
	// OnFinish is called exactly once when the response finishes, with the final usage
	// (nil when none arrived) and the terminal error (nil on a clean end).
	OnFinish func(usage *model.TokenUsage, err error)
	Logger   *zap.Logger
}

// Response is a finite, non-restartable sequence of chunks. It is Active until the
// upstream ends or fails, then Finished forever: every later Next returns io.EOF.
//
// Next may block in the upstream; Close never waits for it. Close closes the upstream
// stream, which unblocks the pending Next.
type Response struct {
	params ResponseParams

	// recvMu serializes readers. It is held across the upstream Recv.
	recvMu sync.Mutex

	// mu guards the fields below and is never held across upstream calls.
	mu         sync.Mutex
	state      State
	usage      *adaptor.StreamUsage
	stopReason string

	closing    atomic.Bool
	sourceOnce sync.Once
	finishOnce sync.Once
}

// NewResponse wraps an upstream event stream.
func NewResponse(params ResponseParams) *Response {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &Response{params: params}
}

// State returns the current state.
func (r *Response) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Next returns the next chunk. Each upstream text event becomes one non-final chunk;
// the end of the stream yields one final chunk carrying usage when the upstream
// reported it. After the stream finished Next returns io.EOF.
func (r *Response) Next() (*model.StreamChunk, error) {
	r.recvMu.Lock()
	defer r.recvMu.Unlock()

	for {
		if r.State() == StateFinished {
			return nil, io.EOF
		}

		ev, err := r.params.Source.Recv()
		// Close finished the response while Recv was pending
		if r.closing.Load() {
			return nil, io.EOF
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return r.finishClean()
			}
			classified := model.Classify(err)
			r.finish(nil, classified)
			return nil, classified
		}

		r.mu.Lock()
		if ev.StopReason != "" {
			r.stopReason = ev.StopReason
		}
		if ev.Usage != nil {
			usage := *ev.Usage
			r.usage = &usage
		}
		r.mu.Unlock()

		if ev.Text != "" {
			chunk := model.ContentChunk(ev.Text)
			return &chunk, nil
		}
	}
}

func (r *Response) finishClean() (*model.StreamChunk, error) {
	r.mu.Lock()
	upstreamUsage, stopReason := r.usage, r.stopReason
	r.mu.Unlock()

	if upstreamUsage == nil {
		r.params.Logger.Debug("stream ended without usage", zap.String("model", r.params.Model))
		r.finish(nil, nil)
		return nil, io.EOF
	}

	var cost float64
	if r.params.Cost != nil {
		cost = r.params.Cost(upstreamUsage.InputTokens, upstreamUsage.OutputTokens)
	}
	usage := model.NewTokenUsage(upstreamUsage.InputTokens, upstreamUsage.OutputTokens, r.params.Model, cost)
	chunk := model.FinalChunk(usage)
	if stopReason != "" {
		chunk.Metadata = map[string]any{"finish_reason": stopReason}
	}

	r.finish(&usage, nil)
	return &chunk, nil
}

// finish moves to Finished, closes the source and fires OnFinish once. The first caller
// decides the outcome reported to OnFinish.
func (r *Response) finish(usage *model.TokenUsage, err error) {
	r.mu.Lock()
	r.state = StateFinished
	r.mu.Unlock()

	r.finishOnce.Do(func() {
		r.closeSource()
		if r.params.OnFinish != nil {
			r.params.OnFinish(usage, err)
		}
	})
}

func (r *Response) closeSource() {
	r.sourceOnce.Do(func() {
		if closeErr := r.params.Source.Close(); closeErr != nil {
			r.params.Logger.Debug("close upstream stream", zap.Error(closeErr))
		}
	})
}

// Close abandons the stream. Closing an Active response reports it as failed. It is safe
// to call from another goroutine while Next is blocked.
func (r *Response) Close() error {
	if r.State() == StateFinished {
		return nil
	}
	r.closing.Store(true)
	r.finish(nil, model.NewError(model.KindRequestFailed, "stream closed before completion"))
	return nil
}

// CollectText drains the response and concatenates the content of every non-final
// chunk. The final chunk only contributes usage.
func CollectText(r *Response) (string, *model.TokenUsage, error) {
	var (
		text  []byte
		usage *model.TokenUsage
	)
	for {
		chunk, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return string(text), usage, nil
			}
			return string(text), usage, err
		}
		if chunk.IsFinal {
			usage = chunk.Usage
			continue
		}
		text = append(text, chunk.Content...)
	}
}

// CollectChunks drains the response and returns every chunk in order.
func CollectChunks(r *Response) ([]*model.StreamChunk, error) {
	var chunks []*model.StreamChunk
	for {
		chunk, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return chunks, nil
			}
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
}
