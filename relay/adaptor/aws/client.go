// Package aws implements the upstream on top of the Bedrock Runtime Converse API.
package aws

import (
	"context"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/paiml/universal-bot/relay/adaptor"
)

// ClientParams configures the Bedrock Runtime client.
type ClientParams struct {
	Region string
	// Endpoint overrides the service endpoint, e.g. for a VPC endpoint or a local stub.
	Endpoint string
	// AccessKeyID and SecretAccessKey select static credentials. When empty the
	// default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	Logger          *zap.Logger
}

// NewClient loads the AWS configuration and builds a Bedrock Runtime client.
// SDK-level retries are disabled; the executor owns the retry policy.
func NewClient(ctx context.Context, params ClientParams) (*bedrockruntime.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
		config.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
	}
	if params.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKeyID, params.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if params.Endpoint != "" {
			o.BaseEndpoint = aws.String(params.Endpoint)
		}
	}), nil
}

// Factory returns an adaptor.Factory that builds one Bedrock client per pool slot.
func Factory(params ClientParams) adaptor.Factory {
	return func(ctx context.Context, index int) (adaptor.Upstream, error) {
		client, err := NewClient(ctx, params)
		if err != nil {
			return nil, errors.Wrapf(err, "create bedrock client %d", index)
		}
		return NewUpstream(client, params.Logger), nil
	}
}
