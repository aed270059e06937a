package screen

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
)

// CompletionKind selects one of the completion demos.
type CompletionKind int

const (
	// Basic generates a short reply without streaming.
	Basic CompletionKind = iota
	// Streaming shows the reply token by token.
	Streaming
	// Cloud runs the completion on the remote endpoint and needs no local model.
	Cloud
)

func (k CompletionKind) String() string {
	switch k {
	case Streaming:
		return "Streaming Completion"
	case Cloud:
		return "Hybrid Completion"
	default:
		return "Basic Completion"
	}
}

// Prompts of the completion demos.
const (
	BasicPrompt     = "Hi, how are you?"
	StreamingPrompt = "Tell me a short story about a robot learning to paint."
	CloudSystem     = "You are Cactus, a helpful AI assistant."
	CloudPrompt     = "Explain quantum computing in simple terms."
)

// CompletionView is the state of a CompletionScreen.
type CompletionView struct {
	Status     string
	Response   string
	TPS        float64
	TTFT       float64
	Generating bool
}

// CompletionScreen runs the basic, streaming and cloud completion demos.
type CompletionScreen struct {
	*base[CompletionView]

	kind  CompletionKind
	lm    *cactus.LM
	setup setup

	token string // cloud token, UI goroutine only
}

// NewCompletionScreen creates a completion screen around lm.
func NewCompletionScreen(kind CompletionKind, lm *cactus.LM, onChange func(CompletionView)) *CompletionScreen {
	status := StatusStart
	if kind == Cloud {
		status = "Enter your Cactus token and test cloud-based completion."
	}
	s := &CompletionScreen{
		base: newBase(CompletionView{Status: status}, onChange),
		kind: kind,
		lm:   lm,
	}
	s.setup = setup{lm: lm, status: s.setStatus}
	return s
}

func (s *CompletionScreen) setStatus(msg string) {
	s.update(func(v *CompletionView) { v.Status = msg })
}

// Kind returns the demo this screen runs.
func (s *CompletionScreen) Kind() CompletionKind { return s.kind }

// Controls reports the enabled buttons.
func (s *CompletionScreen) Controls() Controls {
	c := ControlsFor(s.lm.State())
	if s.kind == Cloud {
		c.Download, c.Initialize = false, false
		c.Generate = s.lm.State() != cactus.StateGenerating
	}
	return c
}

// SetToken sets the cloud token.
func (s *CompletionScreen) SetToken(token string) {
	s.ui.Post(func() { s.token = strings.TrimSpace(token) })
}

// Download fetches the default model.
func (s *CompletionScreen) Download() {
	s.launch(func(ctx context.Context) { s.setup.download(ctx, "") })
}

// Initialize loads the downloaded model.
func (s *CompletionScreen) Initialize() {
	s.launch(func(ctx context.Context) {
		s.setup.initialize(ctx, cactus.InitParams{}, StatusInitialized)
	})
}

// Generate runs the demo completion.
func (s *CompletionScreen) Generate() {
	s.ui.Post(func() {
		if s.view.Generating {
			return
		}
		switch {
		case s.kind == Cloud && s.token == "":
			s.view.Status = "Please enter your Cactus token first."
		case s.kind != Cloud && s.lm.State() != cactus.StateReady:
			s.view.Status = StatusNotReady
		default:
			s.view.Generating = true
			s.view.Response = ""
			s.view.Status = s.pending()
			token := s.token
			s.launch(func(ctx context.Context) { s.generate(ctx, token) })
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

func (s *CompletionScreen) pending() string {
	switch s.kind {
	case Streaming:
		return "Generating streaming response..."
	case Cloud:
		return "Generating cloud-based response..."
	default:
		return "Generating response..."
	}
}

func (s *CompletionScreen) messages() []cactus.ChatMessage {
	switch s.kind {
	case Streaming:
		return []cactus.ChatMessage{
			{Role: cactus.RoleSystem, Content: SystemPrompt},
			{Role: cactus.RoleUser, Content: StreamingPrompt},
		}
	case Cloud:
		return []cactus.ChatMessage{
			{Role: cactus.RoleSystem, Content: CloudSystem},
			{Role: cactus.RoleUser, Content: CloudPrompt},
		}
	default:
		return []cactus.ChatMessage{
			{Role: cactus.RoleSystem, Content: SystemPrompt},
			{Role: cactus.RoleUser, Content: BasicPrompt},
		}
	}
}

func (s *CompletionScreen) generate(ctx context.Context, token string) {
	var (
		res *cactus.CompletionResult
		err error
	)
	switch s.kind {
	case Streaming:
		res, err = s.stream(ctx)
	case Cloud:
		res, err = s.lm.GenerateCompletion(ctx, s.messages(), cactus.WithRemote(token, 200), nil)
	default:
		res, err = s.lm.GenerateCompletion(ctx, s.messages(), cactus.WithMaxTokens(150), nil)
	}

	s.update(func(v *CompletionView) {
		v.Generating = false
		if err != nil {
			log.WithError(err).WithField("demo", s.kind.String()).Error("completion failed")
			v.Status = s.failure(err)
			v.Response, v.TPS, v.TTFT = "", 0, 0
			return
		}
		if res == nil || !res.Success {
			v.Status = s.failure(nil)
			v.Response, v.TPS, v.TTFT = "", 0, 0
			return
		}
		v.TPS = res.TokensPerSecond
		v.TTFT = res.TimeToFirstTokenMs
		if s.kind != Streaming {
			v.Response = res.Response
		}
		v.Status = s.success()
	})
}

// stream forwards tokens to the view as they arrive.
func (s *CompletionScreen) stream(ctx context.Context) (*cactus.CompletionResult, error) {
	stream := s.lm.GenerateCompletionStream(ctx, s.messages(), cactus.WithMaxTokens(200))
	defer stream.Close()
	for tok := range stream.Tokens() {
		s.update(func(v *CompletionView) { v.Response += tok })
	}
	return stream.Result()
}

func (s *CompletionScreen) success() string {
	switch s.kind {
	case Streaming:
		return "Streaming completion generated successfully!"
	case Cloud:
		return "Cloud completion generated successfully!"
	default:
		return "Basic completion generated successfully!"
	}
}

func (s *CompletionScreen) failure(err error) string {
	if err != nil {
		switch s.kind {
		case Streaming:
			return fmt.Sprintf("Error generating streaming response: %v", err)
		case Cloud:
			return fmt.Sprintf("Error generating cloud response: %v", err)
		default:
			return fmt.Sprintf("Error generating response: %v", err)
		}
	}
	switch s.kind {
	case Streaming:
		return "Failed to generate streaming response."
	case Cloud:
		return "Failed to generate cloud response. Check your token and connection."
	default:
		return "Failed to generate response."
	}
}

// Dispose implements Screen.
func (s *CompletionScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
