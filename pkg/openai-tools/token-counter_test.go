package openai_tools

import (
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestCountToken(t *testing.T) {
	short := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: "hi"},
	}
	long := append(short, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleAssistant,
		Content: "Hello! How can I assist you today?",
	})

	shortCount, err := CountToken(short, "gpt-4o-mini")
	if err != nil {
		// the encoding is fetched on first use
		t.Skipf("encoding unavailable: %v", err)
	}
	longCount, err := Counter{}.CountTokens(long, "gpt-4o-mini")
	require.NoError(t, err)
	assert.Greater(t, shortCount, tokensPerReply)
	assert.Greater(t, longCount, shortCount)

	unknown, err := CountToken(short, "claude-3-5-haiku-latest")
	require.NoError(t, err)
	assert.Positive(t, unknown)
}
