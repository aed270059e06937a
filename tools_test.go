package cactus

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weatherTool() Tool {
	return CreateTool("get_weather", "Get current weather for a location",
		map[string]ToolParameter{
			"location": {Type: "string", Description: "City name, e.g. San Francisco", Required: true},
			"units":    {Type: "string", Description: "Temperature units", Enum: []any{"celsius", "fahrenheit"}},
		})
}

func TestToolMarshalJSON(t *testing.T) {
	data, err := json.Marshal([]Tool{weatherTool()})
	require.NoError(t, err)

	var out []struct {
		Type     string `json:"type"`
		Function struct {
			Name       string `json:"name"`
			Parameters struct {
				Type       string                    `json:"type"`
				Properties map[string]map[string]any `json:"properties"`
				Required   []string                  `json:"required"`
			} `json:"parameters"`
		} `json:"function"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Len(t, out, 1)
	assert.Equal(t, "function", out[0].Type)
	assert.Equal(t, "get_weather", out[0].Function.Name)
	assert.Equal(t, "object", out[0].Function.Parameters.Type)
	assert.Equal(t, []string{"location"}, out[0].Function.Parameters.Required)
	assert.Equal(t, "string", out[0].Function.Parameters.Properties["units"]["type"])
}

func TestValidateToolCall(t *testing.T) {
	minLen, maxTemp := 2, 60.0
	tool := CreateTool("thermostat", "Set a temperature", map[string]ToolParameter{
		"room":   {Type: "string", Required: true, MinLength: &minLen},
		"target": {Type: "number", Required: true, Maximum: &maxTemp},
		"steps":  {Type: "integer"},
		"eco":    {Type: "boolean"},
	})

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "valid", args: map[string]any{"room": "kitchen", "target": 21.5, "steps": float64(2), "eco": true}},
		{name: "missing required", args: map[string]any{"room": "kitchen"}, want: "missing required argument: target"},
		{name: "too short", args: map[string]any{"room": "k", "target": 20}, want: "string too short"},
		{name: "too hot", args: map[string]any{"room": "kitchen", "target": 90}, want: "number too large"},
		{name: "fractional integer", args: map[string]any{"room": "kitchen", "target": 20, "steps": 1.5}, want: "decimal part"},
		{name: "wrong type", args: map[string]any{"room": "kitchen", "target": "warm"}, want: "expected number"},
		{name: "unknown", args: map[string]any{"room": "kitchen", "target": 20, "fan": 1}, want: "unknown argument: fan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateToolCall(ToolCall{Name: "thermostat", Arguments: tt.args}, tool)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestToolboxExecute(t *testing.T) {
	box := NewToolbox()
	box.Register(weatherTool(), ToolHandlerFunc(func(_ context.Context, args map[string]any) (ToolResult, error) {
		return ToolResult{Content: "Sunny in " + args["location"].(string)}, nil
	}))
	box.Register(CreateTool("noop", "definition only", nil), nil)

	res := box.Execute(context.Background(), ToolCall{Name: "get_weather", Arguments: map[string]any{"location": "New York City"}})
	assert.Equal(t, "Sunny in New York City", res.Content)
	assert.Empty(t, res.Error)

	res = box.Execute(context.Background(), ToolCall{Name: "get_weather", Arguments: map[string]any{"units": "kelvin"}})
	assert.True(t, strings.HasPrefix(res.Error, "validation failed"))

	res = box.Execute(context.Background(), ToolCall{Name: "missing"})
	assert.Equal(t, "tool 'missing' not found", res.Error)

	res = box.Execute(context.Background(), ToolCall{Name: "noop"})
	assert.Contains(t, res.Error, "no handler")

	names := []string{}
	for _, tool := range box.Tools() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"get_weather", "noop"}, names)
}

func TestParseToolCalls(t *testing.T) {
	calls, err := parseToolCalls([]rawToolCall{
		{Name: "a", Arguments: json.RawMessage(`{"location":"Paris"}`)},
		{Name: "b", Arguments: json.RawMessage(`"{\"units\":\"celsius\"}"`)},
		{Name: "c"},
	})
	require.NoError(t, err)
	require.Len(t, calls, 3)
	assert.Equal(t, "Paris", calls[0].Arguments["location"])
	assert.Equal(t, "celsius", calls[1].Arguments["units"])
	assert.Empty(t, calls[2].Arguments)

	_, err = parseToolCalls([]rawToolCall{{Name: "bad", Arguments: json.RawMessage(`"not json"`)}})
	assert.Error(t, err)
}
