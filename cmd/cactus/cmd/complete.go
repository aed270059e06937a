package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
)

var (
	systemPrompt string
	temperature  float32
	maxTokens    int
	inferMode    string
	modelSlug    string
)

var completeCmd = &cobra.Command{
	Use:     "complete [prompt]",
	Aliases: []string{"ask"},
	Short:   "Ask the model a question",
	Long: `Download and initialize a model, then generate a single reply.
The completion runs on device unless --mode routes it to the remote endpoint.`,
	Example: `  # Basic completion
  cactus complete "Hi, how are you?"

  # With a system prompt and a smaller budget
  cactus complete --system "You are a concise assistant" --max-tokens 50 "What is Docker?"

  # Deterministic output
  cactus complete --temp 0 "What is 2+2?"

  # Fall back to the cloud when the local model fails
  cactus complete --mode local-first "Explain quantum computing in simple terms."`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		prompt := args[0]

		mode, ok := cactus.ParseInferenceMode(inferMode)
		if !ok {
			return fmt.Errorf("invalid --mode %q: use local, remote, local-first or remote-first", inferMode)
		}
		model := modelSlug
		if model == "" {
			model = conf.LM.Model
		}

		lm := newLM()
		defer lm.Unload()

		ui := NewChatUI()
		if mode != cactus.ModeRemote {
			if err := prepareLM(ctx, ui, lm, model); err != nil {
				if mode == cactus.ModeLocal {
					return err
				}
				ui.PrintStatus(fmt.Sprintf("local model unavailable: %v", err))
			}
		}

		var msgs []cactus.ChatMessage
		if systemPrompt != "" {
			fmt.Printf("System Prompt: %s\n", systemPrompt)
			msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleSystem, Content: systemPrompt})
		}
		msgs = append(msgs, cactus.ChatMessage{Role: cactus.RoleUser, Content: prompt})

		params := cactus.WithMaxTokens(maxTokens)
		params.Mode = mode
		if cmd.Flags().Changed("temp") {
			params.Temperature = &temperature
		}

		ui.PrintUserMessage(prompt)
		ui.ShowTypingIndicator()
		res, err := lm.GenerateCompletion(ctx, msgs, params, nil)
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}
		ui.PrintAssistantMessage(res.Response)
		ui.PrintStats(res)
		ui.PrintContextUsage(lm)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(completeCmd)

	completeCmd.Flags().StringVarP(&systemPrompt, "system", "s", "", "System prompt for the model")
	completeCmd.Flags().Float32VarP(&temperature, "temp", "t", 0, "Temperature for generation (0.0=deterministic, 1.0=creative)")
	completeCmd.Flags().IntVarP(&maxTokens, "max-tokens", "n", cactus.DefaultMaxTokens, "Maximum tokens to generate")
	completeCmd.Flags().StringVarP(&inferMode, "mode", "m", "local", "Inference mode (local, remote, local-first, remote-first)")
	completeCmd.Flags().StringVar(&modelSlug, "model", "", "Model slug (default from config)")
}
