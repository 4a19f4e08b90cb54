package ctxkey

// Keys stored on the gin context by the middleware chain and the relay handlers.
const (
	// RequestId is the per-request identifier.
	// Set in: middleware.RequestId. Read in: middleware (abort and panic logs) and the relay
	// handlers, which use it as the conversation id of the request history.
	RequestId = "request_id"

	// RequestModel is the model id named by a /v1 request body.
	// Set in: controller.bindGenerateRequest. Read in: middleware.AbortWithError.
	RequestModel = "request_model"
)
