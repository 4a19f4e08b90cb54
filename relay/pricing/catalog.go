// Package pricing holds the model catalog, per-token prices and token estimation.
package pricing

// Supported model IDs.
const (
	Claude35Sonnet = "anthropic.claude-3-5-sonnet-20241022-v2:0"
	Claude3Opus    = "anthropic.claude-3-opus-20240229-v1:0"
	Claude3Haiku   = "anthropic.claude-3-haiku-20240307-v1:0"
)

// HealthCheckModel is the cheapest model, used by health probes.
const HealthCheckModel = Claude3Haiku

// Capabilities describes what a model supports and what it costs.
type Capabilities struct {
	MaxTokens               int     `json:"max_tokens"`
	ContextWindow           int     `json:"context_window"`
	SupportsVision          bool    `json:"supports_vision"`
	SupportsFunctionCalling bool    `json:"supports_function_calling"`
	InputCostPer1K          float64 `json:"input_cost_per_1k_tokens"`
	OutputCostPer1K         float64 `json:"output_cost_per_1k_tokens"`
	Description             string  `json:"description"`
}

// ModelInfo is one catalog entry.
type ModelInfo struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities Capabilities `json:"capabilities"`
	Available    bool         `json:"available"`
	Version      string       `json:"version"`
	Provider     string       `json:"provider"`
}

// Capability is a filter for Registry.WithCapability.
type Capability int

const (
	CapabilityVision Capability = iota
	CapabilityFunctionCalling
	// CapabilityLargeContext is a context window of at least 100k tokens.
	CapabilityLargeContext
	// CapabilityLowCost is below $0.001 input and $0.002 output per 1K tokens.
	CapabilityLowCost
)

const largeContextTokens = 100_000

// Supports reports whether the model has capability c.
func (m ModelInfo) Supports(c Capability) bool {
	switch c {
	case CapabilityVision:
		return m.Capabilities.SupportsVision
	case CapabilityFunctionCalling:
		return m.Capabilities.SupportsFunctionCalling
	case CapabilityLargeContext:
		return m.Capabilities.ContextWindow >= largeContextTokens
	case CapabilityLowCost:
		return m.Capabilities.InputCostPer1K < 0.001 && m.Capabilities.OutputCostPer1K < 0.002
	default:
		return false
	}
}

// TaskType is a kind of workload used for model recommendation.
type TaskType int

const (
	TaskCodeGeneration TaskType = iota
	TaskAnalysis
	TaskCreativeWriting
	TaskQuestionAnswering
	TaskSummarization
	TaskTranslation
	TaskReasoning
)

// RecommendForTask returns the model ID best suited for task.
func RecommendForTask(task TaskType) string {
	switch task {
	case TaskCreativeWriting, TaskReasoning:
		return Claude3Opus
	case TaskQuestionAnswering, TaskSummarization:
		return Claude3Haiku
	default:
		return Claude35Sonnet
	}
}

func builtinModels() []ModelInfo {
	return []ModelInfo{
		{
			ID:   Claude35Sonnet,
			Name: "Claude 3.5 Sonnet",
			Capabilities: Capabilities{
				MaxTokens:               200_000,
				ContextWindow:           200_000,
				SupportsVision:          true,
				SupportsFunctionCalling: true,
				InputCostPer1K:          0.003,
				OutputCostPer1K:         0.015,
				Description:             "Most capable model for complex reasoning and analysis",
			},
		},
		{
			ID:   Claude3Opus,
			Name: "Claude 3 Opus",
			Capabilities: Capabilities{
				MaxTokens:               200_000,
				ContextWindow:           200_000,
				SupportsVision:          true,
				SupportsFunctionCalling: true,
				InputCostPer1K:          0.015,
				OutputCostPer1K:         0.075,
				Description:             "Most powerful model for complex tasks",
			},
		},
		{
			ID:   Claude3Haiku,
			Name: "Claude 3 Haiku",
			Capabilities: Capabilities{
				MaxTokens:               200_000,
				ContextWindow:           200_000,
				SupportsVision:          true,
				SupportsFunctionCalling: false,
				InputCostPer1K:          0.00025,
				OutputCostPer1K:         0.00125,
				Description:             "Fastest and most cost-effective model",
			},
		},
	}
}
