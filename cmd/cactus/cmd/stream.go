package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
)

var streamCmd = &cobra.Command{
	Use:   "stream [prompt]",
	Short: "Stream a reply token by token",
	Long: `Generate a reply and print the tokens as the model produces them.
With --tools the calculator and weather tools are offered to the model and
their results are fed back before the final answer is streamed.`,
	Example: `  # Basic streaming response
  cactus stream "Tell me a short story about a robot learning to paint."

  # With a system prompt
  cactus stream --system "You are a poet" "Write a haiku about mountains"

  # With tools (calculator and weather)
  cactus stream --tools "What's the weather in Tokyo and what is 25 * 8?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prompt := args[0]

		system, _ := cmd.Flags().GetString("system")
		useTools, _ := cmd.Flags().GetBool("tools")
		budget, _ := cmd.Flags().GetInt("max-tokens")

		lm := newLM()
		defer lm.Unload()

		ui := NewChatUI()
		if err := prepareLM(ctx, ui, lm, conf.LM.Model); err != nil {
			return err
		}

		var msgs []cactus.ChatMessage
		if system != "" {
			msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleSystem, Content: system})
		}
		msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleUser, Content: prompt})
		ui.PrintUserMessage(prompt)

		if useTools {
			tools := defaultToolbox()
			fmt.Println("🔧 Registered tools: calculator, weather")
			var err error
			if msgs, err = runTools(ctx, ui, lm, tools, msgs, budget); err != nil {
				return err
			}
		}

		fmt.Println("🚀 Streaming Response")
		ui.ShowTypingIndicator()

		start := time.Now()
		stream := lm.GenerateCompletionStream(ctx, msgs, cactus.WithMaxTokens(budget))
		defer stream.Close()

		var full strings.Builder
		for tok := range stream.Tokens() {
			if full.Len() == 0 {
				ui.HideTypingIndicator()
			}
			fmt.Print(tok)
			full.WriteString(tok)
		}
		ui.HideTypingIndicator()
		fmt.Println()

		res, err := stream.Result()
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		fmt.Printf("⏱️  Generated in %v\n", elapsed.Round(time.Millisecond))
		ui.PrintStats(res)
		if n := full.Len(); n > 0 {
			fmt.Printf("📈 Response: %d characters (%.1f chars/sec)\n", n, float64(n)/elapsed.Seconds())
		}
		ui.PrintContextUsage(lm)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().StringP("system", "s", "", "System prompt for the model")
	streamCmd.Flags().BoolP("tools", "t", false, "Enable calculator and weather tools")
	streamCmd.Flags().IntP("max-tokens", "n", 400, "Maximum tokens to generate")
}
