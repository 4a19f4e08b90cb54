package common

import (
	"encoding/json"
	"fmt"

	"github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
)

// Done terminates an SSE stream.
const Done = "[DONE]"

// SetEventStreamHeaders prepares the response for server-sent events.
func SetEventStreamHeaders(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
}

// StringData writes one SSE data line and flushes it.
func StringData(c *gin.Context, str string) error {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", str); err != nil {
		return errors.Wrap(err, "write sse data")
	}
	c.Writer.Flush()
	return nil
}

// ObjectData writes object as a JSON SSE data line.
func ObjectData(c *gin.Context, object any) error {
	payload, err := json.Marshal(object)
	if err != nil {
		return errors.Wrap(err, "marshal sse object")
	}
	return StringData(c, string(payload))
}

// DoneData writes the stream terminator.
func DoneData(c *gin.Context) error {
	return StringData(c, Done)
}
