package graceful

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDrain(t *testing.T) {
	done := BeginRequest()
	require.Equal(t, int64(1), InFlight())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, Drain(ctx), context.DeadlineExceeded)

	go func() {
		time.Sleep(50 * time.Millisecond)
		done()
	}()
	require.NoError(t, Drain(context.Background()))
	require.Zero(t, InFlight())
}
