// Package mock provides a scripted, in-memory Upstream for tests and local runs.
package mock

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/model"
)

// Step scripts the outcome of one upstream call.
type Step struct {
	// Delay is waited before answering; the wait honours ctx.
	Delay time.Duration
	// Err fails the call.
	Err error
	// Response answers Invoke. Nil means an echo of the last message.
	Response *adaptor.InvokeResponse
	// Events answer InvokeStream. Nil means an echo of the last message split into words.
	Events []adaptor.StreamEvent
	// StreamErr is returned by Recv after Events are drained, instead of io.EOF.
	StreamErr error
}

// Upstream replays scripted steps in order. Once the script is exhausted every call
// uses the fallback step. It is safe for concurrent use.
type Upstream struct {
	mu       sync.Mutex
	steps    []Step
	fallback Step
	requests []adaptor.InvokeRequest

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

// New creates an upstream that replays steps.
func New(steps ...Step) *Upstream {
	return &Upstream{steps: steps}
}

// WithFallback sets the step used after the script is exhausted.
func (u *Upstream) WithFallback(step Step) *Upstream {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.fallback = step
	return u
}

// Factory returns an adaptor.Factory that hands u to every pool slot.
func (u *Upstream) Factory() adaptor.Factory {
	return func(context.Context, int) (adaptor.Upstream, error) {
		return u, nil
	}
}

// Calls is the number of calls received so far.
func (u *Upstream) Calls() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.requests)
}

// Requests returns a copy of every received request.
func (u *Upstream) Requests() []adaptor.InvokeRequest {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]adaptor.InvokeRequest(nil), u.requests...)
}

// MaxInFlight is the highest number of concurrent calls observed.
func (u *Upstream) MaxInFlight() int {
	return int(u.maxInFlight.Load())
}

func (u *Upstream) next(req *adaptor.InvokeRequest) Step {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.requests = append(u.requests, *req)
	if len(u.steps) == 0 {
		return u.fallback
	}
	step := u.steps[0]
	u.steps = u.steps[1:]
	return step
}

func (u *Upstream) enter() func() {
	n := u.inFlight.Add(1)
	for {
		peak := u.maxInFlight.Load()
		if n <= peak || u.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	return func() { u.inFlight.Add(-1) }
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return model.Classify(ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Invoke implements adaptor.Upstream.
func (u *Upstream) Invoke(ctx context.Context, req *adaptor.InvokeRequest) (*adaptor.InvokeResponse, error) {
	defer u.enter()()

	step := u.next(req)
	if err := wait(ctx, step.Delay); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response != nil {
		resp := *step.Response
		return &resp, nil
	}
	return echo(req), nil
}

// InvokeStream implements adaptor.Upstream.
func (u *Upstream) InvokeStream(ctx context.Context, req *adaptor.InvokeRequest) (adaptor.EventStream, error) {
	defer u.enter()()

	step := u.next(req)
	if err := wait(ctx, step.Delay); err != nil {
		return nil, err
	}
	if step.Err != nil {
		return nil, step.Err
	}

	events := step.Events
	if events == nil {
		events = echoEvents(req)
	}
	return &eventStream{ctx: ctx, events: events, err: step.StreamErr}, nil
}

func lastContent(req *adaptor.InvokeRequest) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}

func echo(req *adaptor.InvokeRequest) *adaptor.InvokeResponse {
	content := "echo: " + lastContent(req)
	return &adaptor.InvokeResponse{
		Content:      content,
		InputTokens:  roughTokens(lastContent(req)),
		OutputTokens: roughTokens(content),
		StopReason:   model.FinishReasonStop,
	}
}

func echoEvents(req *adaptor.InvokeRequest) []adaptor.StreamEvent {
	resp := echo(req)
	words := strings.SplitAfter(resp.Content, " ")
	events := make([]adaptor.StreamEvent, 0, len(words)+2)
	for _, w := range words {
		events = append(events, adaptor.StreamEvent{Text: w})
	}
	events = append(events,
		adaptor.StreamEvent{StopReason: resp.StopReason},
		adaptor.StreamEvent{Usage: &adaptor.StreamUsage{
			InputTokens:  resp.InputTokens,
			OutputTokens: resp.OutputTokens,
		}},
	)
	return events
}

func roughTokens(s string) int {
	if s == "" {
		return 0
	}
	return max(1, len(s)/4)
}

type eventStream struct {
	ctx    context.Context
	mu     sync.Mutex
	events []adaptor.StreamEvent
	err    error
	closed bool
}

func (s *eventStream) Recv() (adaptor.StreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return adaptor.StreamEvent{}, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		return adaptor.StreamEvent{}, model.Classify(err)
	}
	if len(s.events) == 0 {
		if s.err != nil {
			err := s.err
			s.err = nil
			return adaptor.StreamEvent{}, err
		}
		return adaptor.StreamEvent{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *eventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
