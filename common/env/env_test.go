package env

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaders(t *testing.T) {
	t.Setenv("ENV_TEST_BOOL", " true ")
	t.Setenv("ENV_TEST_BAD_BOOL", "maybe")
	t.Setenv("ENV_TEST_INT", "42")
	t.Setenv("ENV_TEST_BAD_INT", "4x")
	t.Setenv("ENV_TEST_FLOAT", "1.5")
	t.Setenv("ENV_TEST_STRING", "value")

	require.True(t, Bool("ENV_TEST_BOOL", false))
	require.True(t, Bool("ENV_TEST_BAD_BOOL", true))
	require.False(t, Bool("ENV_TEST_UNSET", false))

	require.Equal(t, 42, Int("ENV_TEST_INT", 1))
	require.Equal(t, 1, Int("ENV_TEST_BAD_INT", 1))
	require.Equal(t, 7, Int("ENV_TEST_UNSET", 7))

	require.InDelta(t, 1.5, Float64("ENV_TEST_FLOAT", 0), 1e-9)
	require.InDelta(t, 2.0, Float64("ENV_TEST_UNSET", 2.0), 1e-9)

	require.Equal(t, "value", String("ENV_TEST_STRING", "x"))
	require.Equal(t, "x", String("ENV_TEST_UNSET", "x"))
}
