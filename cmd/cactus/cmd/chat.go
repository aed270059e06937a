package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the model in the terminal",
	Long: `Start a multi turn conversation with the default model.
Type /clear to start over and /exit (or Ctrl-D) to quit.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ui := NewChatUI()

		lm := newLM()
		s := screen.NewChatScreen(lm, nil)
		defer s.Dispose()
		defer disposeOnCancel(ctx, s)()

		ui.ShowTypingIndicator("setting up chat model...")
		s.Start()
		s.Wait()
		ui.HideTypingIndicator()
		if err := ctx.Err(); err != nil {
			return err
		}
		if !lm.IsLoaded() {
			return errors.New("failed to set up the chat model (run with -V for details)")
		}
		ui.PrintStatus(fmt.Sprintf("💬 chatting with %s, /clear to start over, /exit to quit", lm.CurrentModel()))

		for {
			fmt.Print("\n> ")
			line, err := readLine(ctx)
			if err == io.EOF {
				fmt.Println()
				return nil
			}
			if err != nil {
				return err
			}
			switch text := strings.TrimSpace(line); text {
			case "":
			case "/exit", "/quit":
				return nil
			case "/clear":
				s.Clear()
				s.Wait()
				ui.PrintStatus("conversation cleared")
			default:
				ui.PrintUserMessage(text)
				ui.ShowTypingIndicator()
				s.Send(text)
				s.Wait()
				ui.HideTypingIndicator()
				if err := ctx.Err(); err != nil {
					return err
				}
				printReply(ui, s.View().Conversation)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
