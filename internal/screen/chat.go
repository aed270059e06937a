package screen

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/apex/log"
	"github.com/google/uuid"

	cactus "github.com/blacktop/go-cactus"
)

// ChatContextSize is the context window of the chat screens.
const ChatContextSize = 4096

// MessageRole is the author of a chat bubble.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	// RoleTyping is the placeholder shown until the first token arrives.
	RoleTyping MessageRole = "typing"
)

// Message is one chat bubble.
type Message struct {
	ID      string
	Content string
	Role    MessageRole
	Result  *cactus.CompletionResult // set on the assistant message once generation ends
}

// Conversation is the message list of a chat screen.
type Conversation struct {
	Messages   []Message
	Loading    bool // model setup in progress
	Generating bool
}

func (c *Conversation) append(role MessageRole, content string) {
	c.Messages = append(slices.Clip(c.Messages), Message{ID: uuid.NewString(), Role: role, Content: content})
}

func (c *Conversation) dropTyping() {
	c.Messages = slices.DeleteFunc(slices.Clone(c.Messages), func(m Message) bool { return m.Role == RoleTyping })
}

// setAssistant replaces the trailing assistant message, or appends one.
func (c *Conversation) setAssistant(content string, res *cactus.CompletionResult) {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Role == RoleAssistant {
		msgs := slices.Clone(c.Messages)
		msgs[n-1].Content = content
		msgs[n-1].Result = res
		c.Messages = msgs
		return
	}
	c.append(RoleAssistant, content)
	c.Messages[len(c.Messages)-1].Result = res
}

func (c *Conversation) attachResult(res *cactus.CompletionResult) {
	if n := len(c.Messages); n > 0 && c.Messages[n-1].Role == RoleAssistant {
		msgs := slices.Clone(c.Messages)
		msgs[n-1].Result = res
		c.Messages = msgs
	}
}

// history converts the conversation into completion messages.
func (c *Conversation) history() []cactus.ChatMessage {
	out := make([]cactus.ChatMessage, 0, len(c.Messages))
	for _, m := range c.Messages {
		if m.Role == RoleTyping {
			continue
		}
		out = append(out, cactus.ChatMessage{Role: cactus.Role(m.Role), Content: m.Content})
	}
	return out
}

var (
	thinkRe  = regexp.MustCompile(`(?s)<think>(.*?)</think>`)
	cleanRe  = regexp.MustCompile(`<\|im_end\|>|</s>`)
	boldRe   = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe = regexp.MustCompile(`\*([^*]+)\*`)
)

// ParseThinking splits a reply into its <think> section and the visible answer.
func ParseThinking(content string) (thinking, response string) {
	m := thinkRe.FindStringSubmatch(content)
	if m == nil {
		return "", CleanContent(content)
	}
	return strings.TrimSpace(m[1]), CleanContent(thinkRe.ReplaceAllString(content, ""))
}

// IsThinking reports whether a streaming reply is inside an open <think> section.
func IsThinking(content string) bool {
	return strings.Contains(content, "<think>") && !strings.Contains(content, "</think>")
}

// CleanContent strips end of turn markers.
func CleanContent(content string) string {
	return strings.TrimSpace(cleanRe.ReplaceAllString(content, ""))
}

// CleanSpoken strips thinking, end of turn markers and markdown emphasis.
func CleanSpoken(content string) string {
	s := thinkRe.ReplaceAllString(content, "")
	s = cleanRe.ReplaceAllString(s, "")
	s = boldRe.ReplaceAllString(s, "$1")
	s = italicRe.ReplaceAllString(s, "$1")
	return strings.TrimSpace(s)
}

// chat is the conversation logic shared by ChatScreen and VoiceChatScreen.
type chat[V any] struct {
	*base[V]
	lm   *cactus.LM
	conv func(v *V) *Conversation
}

// prepare downloads, loads and warms up the handle's default model.
func (c *chat[V]) prepare(ctx context.Context) error {
	defer c.update(func(v *V) { c.conv(v).Loading = false })

	if err := c.lm.DownloadModel(ctx, ""); err != nil {
		return err
	}
	if err := c.lm.InitializeModel(ctx, cactus.InitParams{ContextSize: ChatContextSize}); err != nil {
		return err
	}
	_, err := c.lm.GenerateCompletion(ctx,
		[]cactus.ChatMessage{{Role: cactus.RoleSystem, Content: SystemPrompt}},
		cactus.WithMaxTokens(0), nil)
	return err
}

// send appends the user message and a typing placeholder. When reply is nil
// the model answers; otherwise reply produces the answer.
func (c *chat[V]) send(text string, reply func(ctx context.Context)) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	c.ui.Post(func() {
		v := &c.view
		conv := c.conv(v)
		if conv.Generating {
			return
		}
		conv.append(RoleUser, text)
		conv.append(RoleTyping, "")
		conv.Generating = true
		history := conv.history()
		if c.onChange != nil {
			c.onChange(*v)
		}
		if reply != nil {
			c.launch(reply)
			return
		}
		c.launch(func(ctx context.Context) { c.generate(ctx, history) })
	})
}

func (c *chat[V]) generate(ctx context.Context, history []cactus.ChatMessage) {
	var sb strings.Builder
	res, err := c.lm.GenerateCompletion(ctx, history, nil, func(tok string) {
		sb.WriteString(tok)
		content := sb.String()
		c.update(func(v *V) {
			conv := c.conv(v)
			conv.dropTyping()
			conv.setAssistant(content, nil)
		})
	})
	c.update(func(v *V) {
		conv := c.conv(v)
		conv.dropTyping()
		conv.Generating = false
		if err != nil {
			log.WithError(err).Error("chat completion failed")
			return
		}
		if sb.Len() == 0 && res != nil && res.Response != "" {
			conv.setAssistant(res.Response, res)
			return
		}
		conv.attachResult(res)
	})
}

// clear empties the conversation.
func (c *chat[V]) clear() {
	c.update(func(v *V) { c.conv(v).Messages = nil })
}

// ChatView is the state of a ChatScreen.
type ChatView struct {
	Conversation
}

// ChatScreen is a streaming multi turn chat.
type ChatScreen struct {
	chat[ChatView]
}

// NewChatScreen creates a chat screen around lm.
func NewChatScreen(lm *cactus.LM, onChange func(ChatView)) *ChatScreen {
	return &ChatScreen{chat[ChatView]{
		base: newBase(ChatView{Conversation: Conversation{Loading: true}}, onChange),
		lm:   lm,
		conv: func(v *ChatView) *Conversation { return &v.Conversation },
	}}
}

// Start prepares the default chat model in the background.
func (s *ChatScreen) Start() {
	s.launch(func(ctx context.Context) {
		if err := s.prepare(ctx); err != nil {
			log.WithError(err).Error("error setting up chat model")
		}
	})
}

// Send posts a user message and streams the reply.
func (s *ChatScreen) Send(text string) {
	s.send(text, nil)
}

// Clear empties the conversation.
func (s *ChatScreen) Clear() {
	s.clear()
}

// Dispose implements Screen.
func (s *ChatScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
