package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistry_OneBreakerPerTarget(t *testing.T) {
	t.Parallel()

	r := NewRegistry(RegistryParams{
		Settings: Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
	})

	a := r.Get("model-a")
	require.Same(t, a, r.Get("model-a"))
	require.NotSame(t, a, r.Get("model-b"))

	a.RecordFailure()
	require.Equal(t, StateOpen, r.Get("model-a").State())
	require.Equal(t, StateClosed, r.Get("model-b").State())

	require.Equal(t, []string{"model-a", "model-b"}, r.Targets())
	require.Equal(t, map[string]string{"model-a": "open", "model-b": "closed"}, r.States())
}

func TestRegistry_IdleEviction(t *testing.T) {
	t.Parallel()

	r := NewRegistry(RegistryParams{
		Settings: Settings{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute},
		IdleTTL:  20 * time.Millisecond,
	})
	first := r.Get("model-a")
	first.RecordFailure()

	require.Eventually(t, func() bool {
		return len(r.Targets()) == 0
	}, time.Second, 10*time.Millisecond)

	fresh := r.Get("model-a")
	require.NotSame(t, first, fresh)
	require.Equal(t, StateClosed, fresh.State())
}

func TestRegistry_UserHookStillCalled(t *testing.T) {
	t.Parallel()

	called := 0
	r := NewRegistry(RegistryParams{
		Settings: Settings{
			FailureThreshold: 1,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
			OnStateChange:    func(_, _ State) { called++ },
		},
	})
	r.Get("m").RecordFailure()
	require.Equal(t, 1, called)
}
