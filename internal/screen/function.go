package screen

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
)

// Prompts of the function calling demo.
const (
	WeatherSystemPrompt = "You are a helpful AI assistant with access to weather information."
	WeatherPrompt       = "What's the weather like in New York City?"
)

// WeatherTool is the get_weather definition offered to the model.
func WeatherTool() cactus.Tool {
	return cactus.CreateTool("get_weather", "Get current weather information for a specific location",
		map[string]cactus.ToolParameter{
			"location": {Type: "string", Description: "The city name to get weather for", Required: true},
			"units":    {Type: "string", Description: "Temperature units (celsius or fahrenheit)"},
		})
}

// ToolOutput is a tool call together with its execution result.
type ToolOutput struct {
	Call   cactus.ToolCall
	Result *cactus.ToolResult // nil when the call was not executed
}

// FunctionView is the state of a FunctionCallingScreen.
type FunctionView struct {
	Status     string
	Result     *cactus.CompletionResult
	Calls      []ToolOutput
	TPS        float64
	TTFT       float64
	Generating bool
}

// FormatToolCall renders the first tool call of res.
func FormatToolCall(res *cactus.CompletionResult) string {
	if res == nil || len(res.ToolCalls) == 0 {
		return ""
	}
	call := res.ToolCalls[0]
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		args = []byte(fmt.Sprint(call.Arguments))
	}
	return fmt.Sprintf("Tool Call: %s \nArguments: %s", call.Name, args)
}

// FunctionCallingScreen asks the model about the weather with get_weather
// available. When a toolbox is set, the calls the model makes are executed.
type FunctionCallingScreen struct {
	*base[FunctionView]

	lm    *cactus.LM
	setup setup
	tools *cactus.Toolbox
}

// NewFunctionCallingScreen creates the screen. tools may be nil, in which
// case tool calls are only shown.
func NewFunctionCallingScreen(lm *cactus.LM, tools *cactus.Toolbox, onChange func(FunctionView)) *FunctionCallingScreen {
	s := &FunctionCallingScreen{
		base:  newBase(FunctionView{Status: StatusStart}, onChange),
		lm:    lm,
		tools: tools,
	}
	s.setup = setup{lm: lm, status: func(msg string) {
		s.update(func(v *FunctionView) { v.Status = msg })
	}}
	return s
}

// Controls reports the enabled buttons.
func (s *FunctionCallingScreen) Controls() Controls {
	return ControlsFor(s.lm.State())
}

// Download fetches the default model.
func (s *FunctionCallingScreen) Download() {
	s.launch(func(ctx context.Context) { s.setup.download(ctx, "") })
}

// Initialize loads the downloaded model.
func (s *FunctionCallingScreen) Initialize() {
	s.launch(func(ctx context.Context) {
		s.setup.initialize(ctx, cactus.InitParams{}, StatusInitialized)
	})
}

// Generate runs the weather question.
func (s *FunctionCallingScreen) Generate() {
	s.ui.Post(func() {
		if s.view.Generating {
			return
		}
		if s.lm.State() != cactus.StateReady {
			s.view.Status = StatusNotReady
		} else {
			s.view.Generating = true
			s.view.Status = "Generating response with function calling..."
			s.launch(s.generate)
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

func (s *FunctionCallingScreen) generate(ctx context.Context) {
	msgs := []cactus.ChatMessage{
		{Role: cactus.RoleSystem, Content: WeatherSystemPrompt},
		{Role: cactus.RoleUser, Content: WeatherPrompt},
	}
	res, err := s.lm.GenerateCompletion(ctx, msgs, cactus.WithMaxTokens(200).WithTools(WeatherTool()), nil)

	var calls []ToolOutput
	if err == nil && res != nil && res.Success {
		calls = s.execute(ctx, res.ToolCalls)
	}

	s.update(func(v *FunctionView) {
		v.Generating = false
		switch {
		case err != nil:
			log.WithError(err).Error("function calling failed")
			v.Status = fmt.Sprintf("Error generating response: %v", err)
			v.Result, v.Calls, v.TPS, v.TTFT = nil, nil, 0, 0
		case res == nil || !res.Success:
			v.Status = "Failed to generate response with function calling."
			v.Result, v.Calls, v.TPS, v.TTFT = nil, nil, 0, 0
		default:
			v.Result = res
			v.Calls = calls
			v.TPS = res.TokensPerSecond
			v.TTFT = res.TimeToFirstTokenMs
			v.Status = "Function calling demonstration completed successfully!"
		}
	})
}

func (s *FunctionCallingScreen) execute(ctx context.Context, calls []cactus.ToolCall) []ToolOutput {
	out := make([]ToolOutput, 0, len(calls))
	for _, call := range calls {
		o := ToolOutput{Call: call}
		if s.tools != nil {
			r := s.tools.Execute(ctx, call)
			o.Result = &r
			log.WithFields(log.Fields{
				"tool":   call.Name,
				"failed": r.Error != "",
			}).Debug("executed tool call")
		}
		out = append(out, o)
	}
	return out
}

// Summary renders the answer, or the tool calls with their results.
func (v FunctionView) Summary() string {
	if v.Result == nil {
		return ""
	}
	if len(v.Calls) == 0 {
		return v.Result.Response
	}
	var sb strings.Builder
	sb.WriteString(FormatToolCall(v.Result))
	for _, c := range v.Calls {
		if c.Result == nil {
			continue
		}
		if c.Result.Error != "" {
			fmt.Fprintf(&sb, "\n%s failed: %s", c.Call.Name, c.Result.Error)
		} else {
			fmt.Fprintf(&sb, "\n%s: %s", c.Call.Name, c.Result.Content)
		}
	}
	return sb.String()
}

// Dispose implements Screen.
func (s *FunctionCallingScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
