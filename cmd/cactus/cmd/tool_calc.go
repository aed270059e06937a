package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
)

var calculatorTool = cactus.CreateTool("calculator", "Performs mathematical calculations", map[string]cactus.ToolParameter{
	"a": {
		Type:        "number",
		Description: "First number",
		Required:    true,
	},
	"b": {
		Type:        "number",
		Description: "Second number",
		Required:    true,
	},
	"operation": {
		Type:        "string",
		Description: "Mathematical operation",
		Required:    true,
		Enum:        []any{"add", "subtract", "multiply", "divide", "+", "-", "*", "/"},
	},
})

// calculate runs a validated calculator call.
func calculate(_ context.Context, args map[string]any) (cactus.ToolResult, error) {
	a, err := toNumber(args["a"])
	if err != nil {
		return cactus.ToolResult{Error: fmt.Sprintf("invalid argument 'a': %v", err)}, nil
	}
	b, err := toNumber(args["b"])
	if err != nil {
		return cactus.ToolResult{Error: fmt.Sprintf("invalid argument 'b': %v", err)}, nil
	}
	op, _ := args["operation"].(string)

	var result float64
	switch strings.ToLower(op) {
	case "add", "+":
		result = a + b
	case "subtract", "-":
		result = a - b
	case "multiply", "*":
		result = a * b
	case "divide", "/":
		if b == 0 {
			return cactus.ToolResult{Error: "division by zero"}, nil
		}
		result = a / b
	default:
		return cactus.ToolResult{Error: fmt.Sprintf("unknown operation: %s (use add, subtract, multiply, divide)", op)}, nil
	}
	return cactus.ToolResult{Content: strconv.FormatFloat(result, 'f', 2, 64)}, nil
}

func toNumber(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		return strconv.ParseFloat(v, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to a number", val)
	}
}

const calculatorSystem = `You are a helpful assistant with access to a calculator function.
ALWAYS use the calculator function for arithmetic and never calculate numbers yourself.
Only give the result after the calculator returned it.`

var calcCmd = &cobra.Command{
	Use:   "calc [question]",
	Short: "Answer math questions with the calculator tool",
	Example: `  cactus tool calc "What is 15 + 27?"
  cactus tool calc "What's 144 divided by 12?"
  cactus tool calc "If I have 5 apples and buy 3 more, how many do I have?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("🧮 Calculator Tool Ready")
		fmt.Printf("Question: %s\n", args[0])
		return answerWithTools(cmd.Context(), calculatorSystem, args[0], 200)
	},
}

func init() {
	toolCmd.AddCommand(calcCmd)
}
