package aws

import (
	"context"

	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/paiml/universal-bot/relay/adaptor"
)

// ConverseAPI is the subset of *bedrockruntime.Client used by Upstream.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput,
		optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

var _ adaptor.Upstream = new(Upstream)

// Upstream calls Bedrock through the Converse API.
type Upstream struct {
	client ConverseAPI
	logger *zap.Logger
}

// NewUpstream wraps a Converse client.
func NewUpstream(client ConverseAPI, logger *zap.Logger) *Upstream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Upstream{client: client, logger: logger}
}

// Invoke implements adaptor.Upstream.
func (u *Upstream) Invoke(ctx context.Context, req *adaptor.InvokeRequest) (*adaptor.InvokeResponse, error) {
	input, err := convertRequest(req)
	if err != nil {
		return nil, err
	}

	out, err := u.client.Converse(ctx, input)
	if err != nil {
		classified := classifyError(err)
		u.logger.Debug("converse failed",
			zap.String("model", req.ModelID),
			zap.String("code", classified.Code()),
			zap.Error(err))
		return nil, classified
	}
	return convertResponse(out)
}

// InvokeStream implements adaptor.Upstream.
func (u *Upstream) InvokeStream(ctx context.Context, req *adaptor.InvokeRequest) (adaptor.EventStream, error) {
	input, err := convertStreamRequest(req)
	if err != nil {
		return nil, err
	}

	out, err := u.client.ConverseStream(ctx, input)
	if err != nil {
		classified := classifyError(err)
		u.logger.Debug("converse stream failed",
			zap.String("model", req.ModelID),
			zap.String("code", classified.Code()),
			zap.Error(err))
		return nil, classified
	}
	return newEventStream(out.GetStream(), u.logger.With(zap.String("model", req.ModelID))), nil
}
