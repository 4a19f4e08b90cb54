package aws

import (
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/model"
)

// convertRequest builds the Converse input. System messages are lifted into the
// System block, after the configured system prompt.
func convertRequest(req *adaptor.InvokeRequest) (*bedrockruntime.ConverseInput, error) {
	if req.ModelID == "" {
		return nil, model.NewError(model.KindInvalidInput, "model id is required")
	}

	var system []string
	if prompt := strings.TrimSpace(req.Config.SystemPrompt); prompt != "" {
		system = append(system, prompt)
	}

	messages := make([]types.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case model.RoleSystem:
			system = append(system, msg.Content)
		case model.RoleUser, model.RoleAssistant:
			messages = append(messages, types.Message{
				Role: types.ConversationRole(msg.Role),
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: msg.Content},
				},
			})
		default:
			return nil, model.NewError(model.KindInvalidInput, "unsupported message role %q", msg.Role)
		}
	}
	if len(messages) == 0 {
		return nil, model.NewError(model.KindInvalidInput, "at least one user or assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:         aws.String(req.ModelID),
		Messages:        messages,
		InferenceConfig: convertInferenceConfig(req.Config),
	}
	if len(system) > 0 {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: strings.Join(system, "\n\n")},
		}
	}
	return input, nil
}

func convertStreamRequest(req *adaptor.InvokeRequest) (*bedrockruntime.ConverseStreamInput, error) {
	input, err := convertRequest(req)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         input.ModelId,
		Messages:        input.Messages,
		System:          input.System,
		InferenceConfig: input.InferenceConfig,
	}, nil
}

func convertInferenceConfig(cfg model.GenerationConfig) *types.InferenceConfiguration {
	inference := &types.InferenceConfiguration{}
	if cfg.MaxTokens != nil {
		inference.MaxTokens = aws.Int32(int32(*cfg.MaxTokens))
	}
	if cfg.Temperature != nil {
		inference.Temperature = aws.Float32(*cfg.Temperature)
	}
	if cfg.TopP != nil {
		inference.TopP = aws.Float32(*cfg.TopP)
	}
	if len(cfg.StopSequences) > 0 {
		inference.StopSequences = append([]string(nil), cfg.StopSequences...)
	}
	return inference
}

// convertStopReason maps a Converse stop reason to a finish reason.
func convertStopReason(reason types.StopReason) string {
	switch reason {
	case "":
		return ""
	case types.StopReasonMaxTokens:
		return model.FinishReasonLength
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return model.FinishReasonStop
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return model.FinishReasonContentFilter
	default:
		return string(reason)
	}
}

func convertResponse(out *bedrockruntime.ConverseOutput) (*adaptor.InvokeResponse, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, model.NewError(model.KindInvalidResponse, "converse output carries no message")
	}

	var content strings.Builder
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok {
			content.WriteString(text.Value)
		}
	}

	resp := &adaptor.InvokeResponse{
		Content:    content.String(),
		StopReason: convertStopReason(out.StopReason),
	}
	if out.Usage != nil {
		if out.Usage.InputTokens != nil {
			resp.InputTokens = int(*out.Usage.InputTokens)
		}
		if out.Usage.OutputTokens != nil {
			resp.OutputTokens = int(*out.Usage.OutputTokens)
		}
	}
	return resp, nil
}
