package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
)

// maxToolRounds bounds how often the model may call tools before answering.
const maxToolRounds = 3

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Let the model call local tools",
}

func init() {
	rootCmd.AddCommand(toolCmd)
}

// defaultToolbox registers the calculator and the weather tool.
func defaultToolbox() *cactus.Toolbox {
	tools := cactus.NewToolbox()
	tools.Register(calculatorTool, cactus.ToolHandlerFunc(calculate))
	tools.Register(weatherTool, &weatherHandler{client: httpClient()})
	return tools
}

// runTools offers the tools to the model until it stops calling them, and
// returns msgs extended with the calls and their results.
func runTools(ctx context.Context, ui *ChatUI, lm *cactus.LM, tools *cactus.Toolbox, msgs []cactus.ChatMessage, budget int) ([]cactus.ChatMessage, error) {
	for range maxToolRounds {
		ui.ShowTypingIndicator("deciding on tools...")
		res, err := lm.GenerateCompletion(ctx, msgs, cactus.WithMaxTokens(budget).WithTools(tools.Tools()...), nil)
		ui.HideTypingIndicator()
		if err != nil {
			return nil, err
		}
		if len(res.ToolCalls) == 0 {
			return msgs, nil
		}
		msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleAssistant, Content: res.Response})
		for _, call := range res.ToolCalls {
			log.WithFields(log.Fields{"tool": call.Name, "args": call.Arguments}).Debug("tool call")
			out := tools.Execute(ctx, call)
			content := out.Content
			if out.Error != "" {
				content = "error: " + out.Error
				ui.PrintStatus(fmt.Sprintf("🔧 %s failed: %s", call.Name, out.Error))
			} else {
				ui.PrintStatus(fmt.Sprintf("🔧 %s → %s", call.Name, firstLine(content)))
			}
			msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleTool, Content: fmt.Sprintf("%s: %s", call.Name, content)})
		}
	}
	return msgs, nil
}

// answerWithTools runs the tool loop and prints the final answer in a box.
func answerWithTools(ctx context.Context, system, prompt string, budget int) error {
	lm := newLM()
	defer lm.Unload()

	ui := NewChatUI()
	if err := prepareLM(ctx, ui, lm, conf.LM.Model); err != nil {
		return err
	}
	msgs := []cactus.ChatMessage{
		{Role: cactus.RoleSystem, Content: system},
		{Role: cactus.RoleUser, Content: prompt},
	}
	msgs, err := runTools(ctx, ui, lm, defaultToolbox(), msgs, budget)
	if err != nil {
		return err
	}

	ui.ShowTypingIndicator()
	res, err := lm.GenerateCompletion(ctx, msgs, cactus.WithMaxTokens(budget), nil)
	ui.HideTypingIndicator()
	if err != nil {
		return err
	}
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println(strings.TrimSpace(res.Response))
	fmt.Println(strings.Repeat("=", 50))
	ui.PrintContextUsage(lm)
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
