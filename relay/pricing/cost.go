package pricing

import "strings"

// Fallback prices per 1K tokens for models without a known rate.
const (
	defaultInputPer1K  = 0.001
	defaultOutputPer1K = 0.002
)

// Rates returns the input and output price per 1K tokens of modelID.
// Matching is by model family so inference-profile IDs such as
// "us.anthropic.claude-3-haiku-..." price like the base model.
func Rates(modelID string) (input, output float64) {
	switch {
	case strings.Contains(modelID, "claude-3-opus"):
		return 0.015, 0.075
	case strings.Contains(modelID, "claude-3-5-sonnet"):
		return 0.003, 0.015
	case strings.Contains(modelID, "claude-3-haiku"):
		return 0.00025, 0.00125
	default:
		return defaultInputPer1K, defaultOutputPer1K
	}
}

// CalculateCost returns the estimated USD cost of a call.
func CalculateCost(inputTokens, outputTokens int, modelID string) float64 {
	in, out := Rates(modelID)
	return float64(inputTokens)/1000*in + float64(outputTokens)/1000*out
}

// CostFunc binds CalculateCost to one model.
func CostFunc(modelID string) func(inputTokens, outputTokens int) float64 {
	return func(inputTokens, outputTokens int) float64 {
		return CalculateCost(inputTokens, outputTokens, modelID)
	}
}
