package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	t.Parallel()

	require.Equal(t, RoleUser, UserMessage("a").Role)
	require.Equal(t, RoleAssistant, AssistantMessage("b").Role)
	require.Equal(t, RoleSystem, SystemMessage("c").Role)

	base := UserMessage("hello").WithMetadata("k", 1)
	derived := base.WithMetadata("j", 2)
	require.Len(t, base.Metadata, 1)
	require.Len(t, derived.Metadata, 2)
	require.Equal(t, 1, derived.Metadata["k"])
}

func TestConversationContext(t *testing.T) {
	t.Parallel()

	conv := NewConversationContext("conv-1")
	require.Equal(t, "conv-1", conv.ID)
	require.Empty(t, conv.Messages)
	require.Nil(t, conv.LastMessages(3))

	conv.AddUserMessage("one")
	conv.AddAssistantMessage("two", 7)
	conv.AddAssistantMessage("three", 0)
	conv.AddUserMessage("four")
	require.Len(t, conv.Messages, 4)
	require.Equal(t, 7, conv.TotalTokens)
	require.False(t, conv.UpdatedAt.Before(conv.CreatedAt))

	last := conv.LastMessages(2)
	require.Equal(t, []string{"three", "four"}, []string{last[0].Content, last[1].Content})
	require.Len(t, conv.LastMessages(10), 4)
	require.Nil(t, conv.LastMessages(0))
}

func TestConversationContext_TrimToTokenLimit(t *testing.T) {
	t.Parallel()

	byLength := func(m Message) int { return len(m.Content) }

	cases := []struct {
		name     string
		limit    int
		want     []string
		wantToks int
	}{
		{"fits", 100, []string{"aaaa", "bb", "cccccc"}, 12},
		{"drops oldest", 8, []string{"bb", "cccccc"}, 8},
		{"keeps dropping", 7, []string{"cccccc"}, 6},
		{"drops everything", 0, nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			conv := NewConversationContext("c")
			for _, s := range []string{"aaaa", "bb", "cccccc"} {
				conv.AddUserMessage(s)
			}
			conv.TrimToTokenLimit(tc.limit, byLength)

			var got []string
			for _, m := range conv.Messages {
				got = append(got, m.Content)
			}
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.wantToks, conv.TotalTokens)
		})
	}
}
