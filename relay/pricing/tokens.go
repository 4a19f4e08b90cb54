package pricing

import (
	"sync"

	"github.com/Laisky/zap"
	"github.com/pkoukk/tiktoken-go"

	"github.com/paiml/universal-bot/common/logger"
	"github.com/paiml/universal-bot/relay/model"
)

// perMessageOverhead approximates the role and framing tokens of one message.
const perMessageOverhead = 4

var (
	encoderOnce sync.Once
	encoder     *tiktoken.Tiktoken
)

// getEncoder lazily loads the cl100k_base encoding. Claude's tokenizer is not public,
// so this is an estimate; nil means the encoding could not be loaded.
func getEncoder() *tiktoken.Tiktoken {
	encoderOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			logger.Logger.Warn("token encoder unavailable, falling back to character estimate",
				zap.Error(err))
			return
		}
		encoder = enc
	})
	return encoder
}

// EstimateTokens estimates the token count of text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := getEncoder(); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return max(1, len(text)/4)
}

// EstimateMessageTokens estimates one message including framing overhead.
func EstimateMessageTokens(msg model.Message) int {
	return EstimateTokens(msg.Content) + perMessageOverhead
}

// EstimatePromptTokens estimates the prompt size of a request.
func EstimatePromptTokens(messages []model.Message, systemPrompt string) int {
	total := EstimateTokens(systemPrompt)
	for _, msg := range messages {
		total += EstimateMessageTokens(msg)
	}
	return total
}
