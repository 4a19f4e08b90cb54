package helper

import (
	"github.com/google/uuid"
)

// RequestIdKey is the request and response header carrying the request ID.
const RequestIdKey = "X-Request-Id"

// GenRequestID returns a new request ID.
func GenRequestID() string {
	return uuid.NewString()
}
