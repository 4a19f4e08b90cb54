package model

import (
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/jinzhu/copier"
)

// Finish reasons reported on GenerationResponse.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonMaxTokens     = "max_tokens"
	FinishReasonContentFilter = "content_filter"
	FinishReasonUnknown       = "unknown"
)

// GenerationConfig carries the inference parameters of a request.
// Nil pointers mean "let the model decide".
type GenerationConfig struct {
	MaxTokens     *int     `json:"max_tokens,omitempty" binding:"omitempty,min=1"`
	Temperature   *float32 `json:"temperature,omitempty" binding:"omitempty,min=0,max=1"`
	TopP          *float32 `json:"top_p,omitempty" binding:"omitempty,min=0,max=1"`
	StopSequences []string `json:"stop_sequences,omitempty"`
	SystemPrompt  string   `json:"system_prompt,omitempty"`
}

func intPtr(v int) *int             { return &v }
func float32Ptr(v float32) *float32 { return &v }

// DefaultGenerationConfig is a balanced general-purpose preset.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:   intPtr(4096),
		Temperature: float32Ptr(0.7),
		TopP:        float32Ptr(0.9),
	}
}

// CodeGenerationConfig favors precise, long outputs.
func CodeGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:    intPtr(8192),
		Temperature:  float32Ptr(0.1),
		TopP:         float32Ptr(0.95),
		SystemPrompt: "You are an expert software engineer. Write clean, efficient, and well-documented code.",
	}
}

func CreativeWritingConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = float32Ptr(0.9)
	cfg.TopP = float32Ptr(0.9)
	return cfg
}

func AnalysisConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = float32Ptr(0.3)
	cfg.TopP = float32Ptr(0.95)
	return cfg
}

// DeterministicConfig pins sampling so repeated calls give the same answer.
func DeterministicConfig() GenerationConfig {
	cfg := DefaultGenerationConfig()
	cfg.Temperature = float32Ptr(0.0)
	cfg.TopP = float32Ptr(1.0)
	return cfg
}

// Merge overlays the non-empty fields of override on top of c and returns the result.
// Neither input is modified.
func (c GenerationConfig) Merge(override *GenerationConfig) (GenerationConfig, error) {
	merged := c.clone()
	if override == nil {
		return merged, nil
	}
	if err := copier.CopyWithOption(&merged, override, copier.Option{IgnoreEmpty: true, DeepCopy: true}); err != nil {
		return c, errors.Wrap(err, "merge generation config")
	}
	// stop sequences are replaced as a whole, never merged element-wise
	if len(override.StopSequences) > 0 {
		merged.StopSequences = append([]string(nil), override.StopSequences...)
	}
	return merged, nil
}

// clone detaches the pointer and slice fields so writes through the copy never reach c.
func (c GenerationConfig) clone() GenerationConfig {
	out := c
	if c.MaxTokens != nil {
		out.MaxTokens = intPtr(*c.MaxTokens)
	}
	if c.Temperature != nil {
		out.Temperature = float32Ptr(*c.Temperature)
	}
	if c.TopP != nil {
		out.TopP = float32Ptr(*c.TopP)
	}
	out.StopSequences = append([]string(nil), c.StopSequences...)
	return out
}

// GenerationResponse is the result of a non-streaming generation.
type GenerationResponse struct {
	ID           string         `json:"id"`
	Content      string         `json:"content"`
	Model        string         `json:"model"`
	Usage        *TokenUsage    `json:"usage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	FinishReason string         `json:"finish_reason"`
}

// IsTruncated reports whether generation stopped on the token limit.
func (r *GenerationResponse) IsTruncated() bool {
	return r.FinishReason == FinishReasonMaxTokens || r.FinishReason == FinishReasonLength
}

func (r *GenerationResponse) IsContentFiltered() bool {
	return r.FinishReason == FinishReasonContentFilter
}

func (r *GenerationResponse) TotalTokens() int {
	if r.Usage == nil {
		return 0
	}
	return r.Usage.TotalTokens
}

func (r *GenerationResponse) EstimatedCost() float64 {
	if r.Usage == nil {
		return 0
	}
	return r.Usage.EstimatedCost
}
