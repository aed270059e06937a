package cactus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"sync"
)

// ToolParameter describes one argument of a tool.
type ToolParameter struct {
	Type        string   `json:"type"` // "string", "number", "integer", "boolean", "array", "object"
	Description string   `json:"description"`
	Required    bool     `json:"-"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Pattern     *string  `json:"pattern,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
}

// Tool is a function the model may ask the caller to run.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]ToolParameter
}

// CreateTool builds a Tool definition.
func CreateTool(name, description string, params map[string]ToolParameter) Tool {
	return Tool{Name: name, Description: description, Parameters: params}
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult represents the result of a tool execution
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// required returns the names of the required parameters in a stable order.
func (t Tool) required() []string {
	var names []string
	for name, p := range t.Parameters {
		if p.Required {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Schema renders the tool's parameters as a JSON schema object.
func (t Tool) Schema() map[string]any {
	props := make(map[string]any, len(t.Parameters))
	for name, p := range t.Parameters {
		props[name] = p
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if req := t.required(); len(req) > 0 {
		schema["required"] = req
	}
	return schema
}

// MarshalJSON encodes the tool in the OpenAI function format understood by libcactus.
func (t Tool) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Schema(),
		},
	})
}

// ToolHandler executes a tool call.
type ToolHandler interface {
	Execute(ctx context.Context, arguments map[string]any) (ToolResult, error)
}

// ToolHandlerFunc adapts a function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, arguments map[string]any) (ToolResult, error)

func (f ToolHandlerFunc) Execute(ctx context.Context, arguments map[string]any) (ToolResult, error) {
	return f(ctx, arguments)
}

// Toolbox pairs tool definitions with their handlers.
type Toolbox struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	handlers map[string]ToolHandler
}

// NewToolbox creates an empty Toolbox.
func NewToolbox() *Toolbox {
	return &Toolbox{
		tools:    make(map[string]Tool),
		handlers: make(map[string]ToolHandler),
	}
}

// Register adds a tool. A nil handler registers the definition only.
func (b *Toolbox) Register(tool Tool, handler ToolHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tools[tool.Name] = tool
	if handler != nil {
		b.handlers[tool.Name] = handler
	}
}

// Tools returns the registered definitions sorted by name.
func (b *Toolbox) Tools() []Tool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	tools := make([]Tool, 0, len(b.tools))
	for _, t := range b.tools {
		tools = append(tools, t)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Execute validates and runs a tool call. Failures are reported in the result.
func (b *Toolbox) Execute(ctx context.Context, call ToolCall) ToolResult {
	b.mu.RLock()
	tool, exists := b.tools[call.Name]
	handler := b.handlers[call.Name]
	b.mu.RUnlock()

	if !exists {
		return ToolResult{Error: fmt.Sprintf("tool '%s' not found", call.Name)}
	}
	if handler == nil {
		return ToolResult{Error: fmt.Sprintf("tool '%s' has no handler", call.Name)}
	}
	if err := ValidateToolCall(call, tool); err != nil {
		return ToolResult{Error: fmt.Sprintf("validation failed: %v", err)}
	}

	result, err := handler.Execute(ctx, call.Arguments)
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// ValidateToolCall validates the arguments of call against tool's parameters.
func ValidateToolCall(call ToolCall, tool Tool) error {
	if call.Name != tool.Name {
		return fmt.Errorf("call for %q does not match tool %q", call.Name, tool.Name)
	}
	// Check required arguments
	for _, name := range tool.required() {
		if _, exists := call.Arguments[name]; !exists {
			return fmt.Errorf("missing required argument: %s", name)
		}
	}
	// Validate each provided argument
	for name, value := range call.Arguments {
		param, known := tool.Parameters[name]
		if !known {
			return fmt.Errorf("unknown argument: %s", name)
		}
		if err := validateArgumentValue(value, param); err != nil {
			return fmt.Errorf("invalid argument %s: %v", name, err)
		}
	}
	return nil
}

func validateArgumentValue(value any, p ToolParameter) error {
	switch p.Type {
	case "string":
		return validateString(value, p)
	case "number":
		return validateNumber(value, p)
	case "integer":
		return validateInteger(value, p)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean, got %T", value)
		}
	case "array":
		if _, ok := value.([]any); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	case "object":
		if _, ok := value.(map[string]any); !ok {
			return fmt.Errorf("expected object, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported argument type: %s", p.Type)
	}
	return nil
}

func validateString(value any, p ToolParameter) error {
	str, ok := value.(string)
	if !ok {
		return fmt.Errorf("expected string, got %T", value)
	}
	if p.MinLength != nil && len(str) < *p.MinLength {
		return fmt.Errorf("string too short: %d < %d", len(str), *p.MinLength)
	}
	if p.MaxLength != nil && len(str) > *p.MaxLength {
		return fmt.Errorf("string too long: %d > %d", len(str), *p.MaxLength)
	}
	if p.Pattern != nil {
		matched, err := regexp.MatchString(*p.Pattern, str)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %v", err)
		}
		if !matched {
			return fmt.Errorf("string does not match pattern: %s", *p.Pattern)
		}
	}
	if len(p.Enum) > 0 {
		for _, v := range p.Enum {
			if str == v {
				return nil
			}
		}
		return fmt.Errorf("value %q not in allowed enum values", str)
	}
	return nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func validateNumber(value any, p ToolParameter) error {
	num, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("expected number, got %T", value)
	}
	return checkRange(num, p)
}

func validateInteger(value any, p ToolParameter) error {
	num, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("expected integer, got %T", value)
	}
	if num != float64(int64(num)) {
		return fmt.Errorf("expected integer, got float with decimal part")
	}
	return checkRange(num, p)
}

func checkRange(num float64, p ToolParameter) error {
	if p.Minimum != nil && num < *p.Minimum {
		return fmt.Errorf("number too small: %g < %g", num, *p.Minimum)
	}
	if p.Maximum != nil && num > *p.Maximum {
		return fmt.Errorf("number too large: %g > %g", num, *p.Maximum)
	}
	return nil
}

// parseToolCalls decodes tool calls whose arguments may be an object or a JSON string.
func parseToolCalls(raw []rawToolCall) ([]ToolCall, error) {
	calls := make([]ToolCall, 0, len(raw))
	for _, rc := range raw {
		call := ToolCall{Name: rc.Name, Arguments: map[string]any{}}
		args := rc.Arguments
		var s string
		if len(args) > 0 && json.Unmarshal(args, &s) == nil {
			args = json.RawMessage(s)
		}
		if len(args) > 0 && string(args) != "null" {
			if err := json.Unmarshal(args, &call.Arguments); err != nil {
				return nil, fmt.Errorf("failed to parse arguments of %s: %w", rc.Name, err)
			}
		}
		calls = append(calls, call)
	}
	return calls, nil
}

type rawToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}
