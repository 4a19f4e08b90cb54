package main

import (
	"strings"

	"github.com/Laisky/errors/v2"

	cfg "github.com/paiml/universal-bot/common/config"
	"github.com/paiml/universal-bot/relay/pricing"
)

// sweepConfig captures the sweep configuration derived from environment variables.
type sweepConfig struct {
	Bedrock cfg.BedrockConfig
	Models  []string
	Prompt  string
	// Mock answers every request with the in-memory echo upstream.
	Mock bool
}

func loadConfig() (sweepConfig, error) {
	bedrockCfg := cfg.FromEnv()
	if err := bedrockCfg.Validate(); err != nil {
		return sweepConfig{}, errors.Wrap(err, "bedrock config")
	}

	models := parseModels(cfg.SweepModels)
	if len(models) == 0 {
		for _, m := range pricing.NewRegistry().ListAvailable() {
			models = append(models, m.ID)
		}
	}

	prompt := strings.TrimSpace(cfg.SweepPrompt)
	if prompt == "" {
		return sweepConfig{}, errors.New("SWEEP_PROMPT must not be blank")
	}

	return sweepConfig{
		Bedrock: bedrockCfg,
		Models:  models,
		Prompt:  prompt,
		Mock:    cfg.Upstream == "mock",
	}, nil
}

// parseModels splits SWEEP_MODELS on commas, semicolons, newlines or blanks and drops
// duplicates while keeping the first occurrence order.
func parseModels(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		switch r {
		case ',', ';', '\n', '\r', ' ', '\t':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	models := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		models = append(models, f)
	}
	return models
}
