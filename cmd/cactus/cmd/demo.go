package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

var demos = map[string]screen.CompletionKind{
	"basic":     screen.Basic,
	"streaming": screen.Streaming,
	"cloud":     screen.Cloud,
}

var demoCmd = &cobra.Command{
	Use:       "demo [basic|streaming|cloud]",
	Short:     "Run one of the completion demos",
	Long:      `Run the basic, streaming or cloud completion demo with its built in prompt.`,
	ValidArgs: []string{"basic", "streaming", "cloud"},
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	Example: `  cactus demo basic
  cactus demo streaming
  cactus demo cloud --token $CACTUS_TOKEN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := demos[args[0]]
		ui := NewChatUI()

		var printed int
		s := screen.NewCompletionScreen(kind, newLM(), func(v screen.CompletionView) {
			if kind == screen.Streaming && len(v.Response) > printed {
				if printed == 0 {
					ui.HideTypingIndicator()
				}
				fmt.Print(v.Response[printed:])
				printed = len(v.Response)
				return
			}
			ui.UpdateTypingIndicator(v.Status)
		})
		defer s.Dispose()

		steps := []func(){s.Download, s.Initialize, s.Generate}
		if kind == screen.Cloud {
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = conf.Remote.Token
			}
			steps = []func(){func() { s.SetToken(token) }, s.Generate}
		}

		ui.ShowTypingIndicator(s.View().Status)
		err := runSteps(cmd.Context(), s, steps...)
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}

		v := s.View()
		if printed > 0 {
			fmt.Println()
		} else if v.Response != "" {
			ui.PrintAssistantMessage(v.Response)
		}
		ui.PrintStatus(v.Status)
		if v.Response == "" {
			return errors.New("no response generated")
		}
		if v.TPS > 0 {
			ui.PrintStatus(fmt.Sprintf("⏱️  TTFT %sms • %s tok/s", screen.Fixed(v.TTFT, 2), screen.Fixed(v.TPS, 2)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().String("token", "", "Cactus token for the cloud demo (default remote.token)")
}
