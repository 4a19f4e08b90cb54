// Package dto holds the request bodies accepted by the HTTP surface.
package dto

import (
	"github.com/paiml/universal-bot/relay/model"
)

// GenerateRequest is the body of POST /v1/generate and POST /v1/stream.
type GenerateRequest struct {
	Model    string                  `json:"model" binding:"required"`
	Messages []model.Message         `json:"messages" binding:"required,min=1,dive"`
	Config   *model.GenerationConfig `json:"config,omitempty"`
	// MaxHistoryTokens drops the oldest messages until the history fits; 0 keeps all.
	MaxHistoryTokens int `json:"max_history_tokens,omitempty" binding:"omitempty,min=1"`
}

// History returns the messages to send, trimmed to MaxHistoryTokens with count.
func (r *GenerateRequest) History(id string, count func(model.Message) int) []model.Message {
	if r.MaxHistoryTokens <= 0 {
		return r.Messages
	}
	conv := model.NewConversationContext(id)
	for _, msg := range r.Messages {
		conv.AddMessage(msg)
	}
	conv.TrimToTokenLimit(r.MaxHistoryTokens, count)
	return conv.Messages
}
