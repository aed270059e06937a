package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cactus "github.com/blacktop/go-cactus"
)

func TestParseThinking(t *testing.T) {
	thinking, response := ParseThinking("<think>\nThe user greets me.\n</think>\n\nHello there!<|im_end|>")
	assert.Equal(t, "The user greets me.", thinking)
	assert.Equal(t, "Hello there!", response)

	thinking, response = ParseThinking("Plain answer</s>")
	assert.Empty(t, thinking)
	assert.Equal(t, "Plain answer", response)
}

func TestIsThinking(t *testing.T) {
	assert.True(t, IsThinking("<think>Let me see"))
	assert.False(t, IsThinking("<think>done</think> answer"))
	assert.False(t, IsThinking("answer"))
}

func TestCleanSpoken(t *testing.T) {
	got := CleanSpoken("<think>hmm</think>The **Tower** is *lovely*.<|im_end|>")
	assert.Equal(t, "The Tower is lovely.", got)
}

func TestConversationHistory(t *testing.T) {
	var c Conversation
	c.append(RoleUser, "hi")
	c.append(RoleTyping, "")
	assert.Equal(t, []cactus.ChatMessage{{Role: cactus.RoleUser, Content: "hi"}}, c.history())

	c.dropTyping()
	c.setAssistant("Hel", nil)
	c.setAssistant("Hello", nil)
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "Hello", c.Messages[1].Content)
	assert.NotEqual(t, c.Messages[0].ID, c.Messages[1].ID)

	res := &cactus.CompletionResult{Success: true}
	c.attachResult(res)
	assert.Same(t, res, c.Messages[1].Result)
}

func TestChatScreen(t *testing.T) {
	env := newEnv(t, "Hello", ", ", "friend")
	s := NewChatScreen(env.lm(t), nil)
	defer s.Dispose()

	assert.True(t, s.View().Loading)
	s.Start()
	s.Wait()
	assert.False(t, s.View().Loading)

	// warm-up prefills the system prompt only
	msgs, params := env.engine.lastRequest()
	require.Len(t, msgs, 1)
	assert.Equal(t, SystemPrompt, msgs[0].Content)
	assert.Equal(t, 0, *params.MaxTokens)

	s.Send("   ")
	s.Send("Hi")
	s.Wait()

	v := s.View()
	require.Len(t, v.Messages, 2)
	assert.Equal(t, RoleUser, v.Messages[0].Role)
	assert.Equal(t, "Hi", v.Messages[0].Content)
	assert.Equal(t, RoleAssistant, v.Messages[1].Role)
	assert.Equal(t, "Hello, friend", v.Messages[1].Content)
	require.NotNil(t, v.Messages[1].Result)
	assert.InDelta(t, 42.5, v.Messages[1].Result.TokensPerSecond, 0.001)
	assert.False(t, v.Generating)

	s.Send("And you?")
	s.Wait()
	msgs, _ = env.engine.lastRequest()
	require.Len(t, msgs, 3)
	assert.Equal(t, "And you?", msgs[2].Content)

	s.Clear()
	s.Wait()
	assert.Empty(t, s.View().Messages)
}

func TestChatSendWhileGenerating(t *testing.T) {
	env := newEnv(t, "thinking")
	env.engine.block = true
	s := NewChatScreen(env.lm(t), nil)

	s.Start()
	s.Wait()
	s.Send("first")
	<-env.engine.started // warm-up
	<-env.engine.started // first message
	s.Send("second")

	v := s.View()
	assert.True(t, v.Generating)
	for _, m := range v.Messages {
		assert.NotEqual(t, "second", m.Content)
	}
	s.Dispose()
}

func TestChatGenerationError(t *testing.T) {
	env := newEnv(t, "x")
	s := NewChatScreen(env.lm(t), nil)
	defer s.Dispose()

	// not initialized: the reply fails and the placeholder goes away
	s.Send("Hi")
	s.Wait()
	v := s.View()
	require.Len(t, v.Messages, 1)
	assert.Equal(t, RoleUser, v.Messages[0].Role)
	assert.False(t, v.Generating)
}

func TestChatUsesConfiguredModel(t *testing.T) {
	env := newEnv(t, "Hi")
	lm := env.lm(t, cactus.WithDefaultModel("gemma3-270m"))
	s := NewChatScreen(lm, nil)
	defer s.Dispose()

	s.Start()
	s.Wait()
	assert.True(t, lm.IsLoaded())
	assert.Equal(t, "gemma3-270m", lm.CurrentModel())
}
