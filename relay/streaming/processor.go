package streaming

import (
	"io"

	"github.com/Laisky/errors/v2"

	"github.com/paiml/universal-bot/relay/model"
)

// Handler receives each chunk of a stream. Returning an error aborts processing.
type Handler func(chunk *model.StreamChunk) error

// Process feeds every chunk of r to handle and returns the final usage.
// A stream that ends without a final chunk is an invalid response.
func Process(r *Response, handle Handler) (*model.TokenUsage, error) {
	var usage *model.TokenUsage
	for {
		chunk, err := r.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return nil, err
			}
			break
		}

		if err := handle(chunk); err != nil {
			_ = r.Close()
			return nil, errors.Wrap(err, "handle stream chunk")
		}
		if chunk.IsFinal {
			usage = chunk.Usage
		}
	}

	if usage == nil {
		return nil, model.NewError(model.KindInvalidResponse, "no usage information received")
	}
	return usage, nil
}
