package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

var embedCmd = &cobra.Command{
	Use:   "embed [text]",
	Short: "Embed text and rank candidates by similarity",
	Example: `  cactus embed
  cactus embed "What's the weather in New York?" \
    --candidate "Is it raining in New York today?" \
    --candidate "How do I bake bread?"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		candidates, _ := cmd.Flags().GetStringArray("candidate")

		ui := NewChatUI()
		s := screen.NewEmbeddingScreen(newLM(), func(v screen.EmbeddingView) {
			ui.UpdateTypingIndicator(v.Status)
		})
		defer s.Dispose()

		steps := []func(){s.Download, s.Initialize}
		if len(args) == 1 {
			steps = append([]func(){func() { s.SetText(args[0]) }}, steps...)
		}
		steps = append(steps, s.Generate)
		if len(candidates) > 0 {
			steps = append(steps, func() { s.Rank(candidates) })
		}

		ui.ShowTypingIndicator(s.View().Status)
		err := runSteps(ctx, s, steps...)
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}

		v := s.View()
		ui.PrintStatus(v.Status)
		if v.Result != "" {
			fmt.Println(v.Result)
		}
		if len(v.Matches) > 0 {
			fmt.Printf("\n🔍 Closest to %q:\n", v.Text)
			for i, m := range v.Matches {
				fmt.Printf("%2d. %s  %s\n", i+1, screen.Fixed(float64(m.Similarity), 4), m.Text)
			}
		}
		if v.Dimension == 0 {
			return fmt.Errorf("embedding failed: %s", v.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(embedCmd)
	embedCmd.Flags().StringArray("candidate", nil, "Text to rank against the input (repeatable)")
}
