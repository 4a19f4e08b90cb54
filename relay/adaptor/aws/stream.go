package aws

import (
	"io"
	"sync"

	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/model"
)

// eventSource is the part of *bedrockruntime.ConverseStreamEventStream the adapter reads.
type eventSource interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// eventStream adapts a ConverseStream event channel to adaptor.EventStream.
// Usage is emitted once, after both the message stop and the metadata events were
// seen, or when the channel closes with metadata pending.
type eventStream struct {
	source eventSource
	logger *zap.Logger

	mu               sync.Mutex
	stopReason       string
	usage            *adaptor.StreamUsage
	stopReceived     bool
	metadataReceived bool
	finalSent        bool
	done             bool
	closeOnce        sync.Once
}

func newEventStream(source eventSource, logger *zap.Logger) *eventStream {
	return &eventStream{source: source, logger: logger}
}

func (s *eventStream) Recv() (adaptor.StreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if s.done {
			return adaptor.StreamEvent{}, io.EOF
		}

		raw, ok := <-s.source.Events()
		if !ok {
			s.done = true
			if err := s.source.Err(); err != nil {
				return adaptor.StreamEvent{}, classifyError(err)
			}
			if ev, ok := s.emitFinal(true); ok {
				return ev, nil
			}
			return adaptor.StreamEvent{}, io.EOF
		}

		switch v := raw.(type) {
		case *types.ConverseStreamOutputMemberContentBlockDelta:
			if delta, ok := v.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
				return adaptor.StreamEvent{Text: delta.Value}, nil
			}
		case *types.ConverseStreamOutputMemberMessageStop:
			s.stopReason = convertStopReason(v.Value.StopReason)
			s.stopReceived = true
			if ev, ok := s.emitFinal(false); ok {
				return ev, nil
			}
		case *types.ConverseStreamOutputMemberMetadata:
			s.usage = &adaptor.StreamUsage{}
			if u := v.Value.Usage; u != nil {
				if u.InputTokens != nil {
					s.usage.InputTokens = int(*u.InputTokens)
				}
				if u.OutputTokens != nil {
					s.usage.OutputTokens = int(*u.OutputTokens)
				}
			}
			s.metadataReceived = true
			if ev, ok := s.emitFinal(false); ok {
				return ev, nil
			}
		case *types.ConverseStreamOutputMemberMessageStart,
			*types.ConverseStreamOutputMemberContentBlockStart,
			*types.ConverseStreamOutputMemberContentBlockStop:
		default:
			s.logger.Debug("ignore unknown converse stream event")
		}
	}
}

// emitFinal builds the closing event carrying stop reason and usage. Without force it
// waits for both the stop and the metadata events.
func (s *eventStream) emitFinal(force bool) (adaptor.StreamEvent, bool) {
	if s.finalSent {
		return adaptor.StreamEvent{}, false
	}
	if !force && (!s.stopReceived || !s.metadataReceived) {
		return adaptor.StreamEvent{}, false
	}
	if !s.stopReceived && !s.metadataReceived {
		return adaptor.StreamEvent{}, false
	}

	s.finalSent = true
	ev := adaptor.StreamEvent{StopReason: s.stopReason, Usage: s.usage}
	if ev.StopReason == "" {
		ev.StopReason = model.FinishReasonUnknown
	}
	return ev, true
}

func (s *eventStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.source.Close()
	})
	return err
}
