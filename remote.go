package cactus

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// RemoteConfig configures the cloud inference endpoint.
type RemoteConfig struct {
	URL            string // OpenAI compatible base URL
	Token          string // default token when a request carries none
	Model          string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// RemoteEngine serves completions and embeddings from an OpenAI compatible endpoint.
type RemoteEngine struct {
	conf RemoteConfig

	mu      sync.Mutex
	cancels map[*context.CancelFunc]struct{}
}

// NewRemoteEngine creates a RemoteEngine.
func NewRemoteEngine(conf RemoteConfig) *RemoteEngine {
	return &RemoteEngine{conf: conf, cancels: make(map[*context.CancelFunc]struct{})}
}

func (r *RemoteEngine) client(token string) (*openai.LLM, error) {
	if token == "" {
		token = r.conf.Token
	}
	if token == "" {
		return nil, ErrRemoteToken
	}
	opts := []openai.Option{openai.WithToken(token)}
	if r.conf.URL != "" {
		opts = append(opts, openai.WithBaseURL(r.conf.URL))
	}
	if r.conf.Model != "" {
		opts = append(opts, openai.WithModel(r.conf.Model))
	}
	if r.conf.EmbeddingModel != "" {
		opts = append(opts, openai.WithEmbeddingModel(r.conf.EmbeddingModel))
	}
	if r.conf.HTTPClient != nil {
		opts = append(opts, openai.WithHTTPClient(r.conf.HTTPClient))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote client: %w", err)
	}
	return llm, nil
}

// track registers a cancel func so Stop can abort the request.
func (r *RemoteEngine) track(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancels[&cancel] = struct{}{}
	r.mu.Unlock()
	return ctx, func() {
		r.mu.Lock()
		delete(r.cancels, &cancel)
		r.mu.Unlock()
		cancel()
	}
}

// Complete implements Engine.
func (r *RemoteEngine) Complete(ctx context.Context, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	var token string
	if params != nil {
		token = params.CactusToken
	}
	llm, err := r.client(token)
	if err != nil {
		return nil, err
	}
	if params.maxTokens() <= 0 {
		return &CompletionResult{Success: true, Remote: true}, nil
	}

	content, err := toMessageContent(msgs)
	if err != nil {
		return nil, err
	}

	ctx, done := r.track(ctx)
	defer done()

	start := time.Now()
	var (
		firstToken time.Time
		chunks     int
	)
	// tool call deltas arrive as JSON chunks and are not forwarded as text
	forward := onToken != nil && len(params.tools()) == 0
	opts := []llms.CallOption{
		llms.WithMaxTokens(params.maxTokens()),
		llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			if len(chunk) == 0 {
				return nil
			}
			if chunks == 0 {
				firstToken = time.Now()
			}
			chunks++
			if forward {
				onToken(string(chunk))
			}
			return nil
		}),
	}
	if params != nil {
		if params.Temperature != nil {
			opts = append(opts, llms.WithTemperature(float64(*params.Temperature)))
		}
		if params.TopP != nil {
			opts = append(opts, llms.WithTopP(float64(*params.TopP)))
		}
		if params.TopK != nil {
			opts = append(opts, llms.WithTopK(*params.TopK))
		}
		if len(params.StopSequences) > 0 {
			opts = append(opts, llms.WithStopWords(params.StopSequences))
		}
	}
	if tools := params.tools(); len(tools) > 0 {
		opts = append(opts, llms.WithTools(toLLMTools(tools)))
	}

	log.WithFields(log.Fields{"messages": len(msgs), "model": r.conf.Model}).Debug("remote completion")
	resp, err := llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("remote completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return &CompletionResult{Remote: true}, fmt.Errorf("%w: empty remote response", ErrGenerationFailed)
	}

	choice := resp.Choices[0]
	total := time.Since(start)
	res := &CompletionResult{
		Success:     true,
		Response:    choice.Content,
		TotalTimeMs: float64(total.Milliseconds()),
		Remote:      true,
	}
	if !firstToken.IsZero() {
		res.TimeToFirstTokenMs = float64(firstToken.Sub(start).Milliseconds())
	}
	res.PrefillTokens = infoInt(choice.GenerationInfo, "PromptTokens")
	res.DecodeTokens = infoInt(choice.GenerationInfo, "CompletionTokens")
	res.TotalTokens = infoInt(choice.GenerationInfo, "TotalTokens")
	if res.DecodeTokens == 0 {
		res.DecodeTokens = chunks
	}
	if res.TotalTokens == 0 {
		res.TotalTokens = res.PrefillTokens + res.DecodeTokens
	}
	if decode := total - firstToken.Sub(start); !firstToken.IsZero() && decode > 0 {
		res.TokensPerSecond = float64(res.DecodeTokens) / decode.Seconds()
	}

	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		calls, err := parseToolCalls([]rawToolCall{{
			Name:      tc.FunctionCall.Name,
			Arguments: []byte(tc.FunctionCall.Arguments),
		}})
		if err != nil {
			return nil, err
		}
		res.ToolCalls = append(res.ToolCalls, calls...)
	}
	return res, nil
}

// Embed implements Engine.
func (r *RemoteEngine) Embed(ctx context.Context, text string) (*EmbeddingResult, error) {
	llm, err := r.client("")
	if err != nil {
		return nil, err
	}
	ctx, done := r.track(ctx)
	defer done()

	vecs, err := llm.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("remote embedding failed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return &EmbeddingResult{}, fmt.Errorf("%w: empty remote embedding", ErrGenerationFailed)
	}
	return &EmbeddingResult{Success: true, Embeddings: vecs[0], Dimension: len(vecs[0])}, nil
}

// Stop cancels every request in flight.
func (r *RemoteEngine) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for cancel := range r.cancels {
		(*cancel)()
	}
}

// Close implements Engine.
func (r *RemoteEngine) Close() error {
	r.Stop()
	return nil
}

func toMessageContent(msgs []ChatMessage) ([]llms.MessageContent, error) {
	content := make([]llms.MessageContent, 0, len(msgs))
	for _, m := range msgs {
		var typ llms.ChatMessageType
		text := m.Content
		switch m.Role {
		case RoleSystem:
			typ = llms.ChatMessageTypeSystem
		case RoleAssistant:
			typ = llms.ChatMessageTypeAI
		case RoleTool:
			typ = llms.ChatMessageTypeHuman
			text = "Tool result: " + text
		default:
			typ = llms.ChatMessageTypeHuman
		}
		mc := llms.TextParts(typ, text)
		for _, img := range m.Images {
			data, err := os.ReadFile(img)
			if err != nil {
				return nil, fmt.Errorf("failed to read image %s: %w", img, err)
			}
			mc.Parts = append(mc.Parts, llms.BinaryPart(http.DetectContentType(data), data))
		}
		content = append(content, mc)
	}
	return content, nil
}

func toLLMTools(tools []Tool) []llms.Tool {
	out := make([]llms.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Schema(),
			},
		})
	}
	return out
}

func infoInt(info map[string]any, key string) int {
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
