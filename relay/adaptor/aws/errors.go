package aws

import (
	"context"
	"net/http"
	"strings"

	"github.com/Laisky/errors/v2"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/smithy-go"

	"github.com/paiml/universal-bot/relay/model"
)

// classifyError maps a Bedrock SDK failure to a classified error.
func classifyError(err error) *model.Error {
	if err == nil {
		return nil
	}

	var classified *model.Error
	if errors.As(err, &classified) {
		return classified
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return classifyAPIError(err, apiErr)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return model.WrapError(model.KindTimeout, err, "")
	case errors.Is(err, context.Canceled):
		return model.WrapError(model.KindRequestFailed, err, "canceled")
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		return classifyStatus(err, respErr.HTTPStatusCode())
	}

	return model.WrapError(model.KindRequestFailed, err, "")
}

func classifyAPIError(err error, apiErr smithy.APIError) *model.Error {
	msg := apiErr.ErrorMessage()
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ServiceQuotaExceededException", "TooManyRequestsException":
		return model.WrapError(model.KindRateLimited, err, msg)
	case "ValidationException":
		if isTokenLimitMessage(msg) {
			return model.WrapError(model.KindTokenLimitExceeded, err, msg)
		}
		return model.WrapError(model.KindInvalidInput, err, msg)
	case "AccessDeniedException":
		return model.WrapError(model.KindAuthorization, err, msg)
	case "UnrecognizedClientException", "ExpiredTokenException", "InvalidSignatureException",
		"IncompleteSignature", "MissingAuthenticationToken":
		return model.WrapError(model.KindAuthentication, err, msg)
	case "ModelNotReadyException", "ServiceUnavailableException", "ResourceNotFoundException":
		return model.WrapError(model.KindModelUnavailable, err, msg)
	case "ModelTimeoutException":
		return model.WrapError(model.KindTimeout, err, msg)
	case "InternalServerException", "ModelErrorException", "ModelStreamErrorException":
		return model.WrapError(model.KindServiceError, err, msg)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		if status := respErr.HTTPStatusCode(); status == http.StatusTooManyRequests || status >= 500 {
			return classifyStatus(err, status)
		}
	}

	if apiErr.ErrorFault() == smithy.FaultServer {
		return model.WrapError(model.KindServiceError, err, msg)
	}
	return model.WrapError(model.KindInvalidInput, err, msg)
}

func classifyStatus(err error, status int) *model.Error {
	switch {
	case status == http.StatusTooManyRequests:
		return model.WrapError(model.KindRateLimited, err, "")
	case status == http.StatusUnauthorized:
		return model.WrapError(model.KindAuthentication, err, "")
	case status == http.StatusForbidden:
		return model.WrapError(model.KindAuthorization, err, "")
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return model.WrapError(model.KindTimeout, err, "")
	case status >= 500:
		return model.WrapError(model.KindServiceError, err, "")
	case status >= 400:
		return model.WrapError(model.KindInvalidInput, err, "")
	default:
		return model.WrapError(model.KindRequestFailed, err, "")
	}
}

func isTokenLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	if strings.Contains(msg, "input is too long") || strings.Contains(msg, "too many input tokens") {
		return true
	}
	return strings.Contains(msg, "token") &&
		(strings.Contains(msg, "exceed") || strings.Contains(msg, "limit") || strings.Contains(msg, "too many"))
}
