package model

// TokenUsage is the token accounting attached to a generation.
// TotalTokens is always InputTokens + OutputTokens; build values with NewTokenUsage.
type TokenUsage struct {
	InputTokens   int     `json:"input_tokens"`
	OutputTokens  int     `json:"output_tokens"`
	TotalTokens   int     `json:"total_tokens"`
	EstimatedCost float64 `json:"estimated_cost"`
	Model         string  `json:"model"`
}

// NewTokenUsage derives TotalTokens from the input and output counts.
func NewTokenUsage(inputTokens, outputTokens int, model string, estimatedCost float64) TokenUsage {
	return TokenUsage{
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		TotalTokens:   inputTokens + outputTokens,
		EstimatedCost: estimatedCost,
		Model:         model,
	}
}

// APIError is the JSON body returned by the HTTP surface when a request fails.
type APIError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable"`
	// RawError preserves the original error for diagnostics.
	// Omitted from JSON to avoid leaking provider internals.
	RawError error `json:"-"`
}

type ErrorWithStatusCode struct {
	Error      APIError `json:"error"`
	StatusCode int      `json:"-"`
}

// NewErrorWithStatusCode converts any error into the HTTP error envelope.
func NewErrorWithStatusCode(err error) *ErrorWithStatusCode {
	classified := Classify(err)
	if classified == nil {
		return nil
	}
	return &ErrorWithStatusCode{
		Error: APIError{
			Message:   classified.Error(),
			Type:      classified.Category().String(),
			Code:      classified.Code(),
			Retryable: classified.IsRetryable(),
			RawError:  err,
		},
		StatusCode: classified.StatusCode(),
	}
}
