package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

var samanthaCmd = &cobra.Command{
	Use:   "samantha",
	Short: "Voice chat that ends with a walk across London",
	Long: `Chat by text or voice. Lines starting with @ are audio files that are
transcribed and sent; a lone @ records from the configured audio source.
The first message is answered with a route to the Tower of London.`,
	Example: `  cactus samantha
  > @~/Recordings/directions.wav
  > How long is the walk?`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		ui := NewChatUI()

		navigate := make(chan struct{}, 1)
		s := screen.NewVoiceChatScreen(newLM(), newSTT(), nil)
		s.OnNavigate = func() {
			select {
			case navigate <- struct{}{}:
			default:
			}
		}
		defer s.Dispose()
		defer disposeOnCancel(ctx, s)()

		ui.ShowTypingIndicator("setting up chat and voice models...")
		s.Start()
		v, err := poll(ctx, s.View, func(v screen.VoiceChatView) bool {
			ui.UpdateTypingIndicator(v.STTStatus)
			return !v.Loading && (v.STTReady || strings.HasPrefix(v.STTStatus, "Failed"))
		})
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}
		ui.PrintStatus(fmt.Sprintf("🕰️  %s  🎙️  %s", v.DateTime, v.STTStatus))

		navigated := false
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
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if text == "/exit" || text == "/quit" {
				return nil
			}

			before := len(s.View().Messages)
			path, voice := strings.CutPrefix(text, "@")
			if voice {
				ui.ShowTypingIndicator(screen.STTListening)
				s.TranscribeAndSend(strings.TrimSpace(path))
			} else {
				ui.PrintUserMessage(text)
				ui.ShowTypingIndicator()
				s.Send(text)
			}
			v, err := poll(ctx, s.View, func(v screen.VoiceChatView) bool {
				switch {
				case !voice:
					return len(v.Messages) > before && !v.Generating
				case v.Transcribing, v.STTStatus == screen.STTListening:
					return false
				case v.STTStatus == screen.STTVoiceReady:
					return len(v.Messages) > before && !v.Generating
				default:
					return true
				}
			})
			ui.HideTypingIndicator()
			if err != nil {
				return err
			}
			if len(v.Messages) <= before {
				ui.PrintStatus("🎙️  " + v.STTStatus)
				continue
			}
			if voice && v.Messages[before].Role == screen.RoleUser {
				ui.PrintUserMessage(v.Messages[before].Content)
			}
			printReply(ui, v.Conversation)

			if v.SentFirst && !navigated {
				select {
				case <-navigate:
				case <-ctx.Done():
					return ctx.Err()
				}
				navigated = true
				if err := showMap(cmd.OutOrStdout(), false); err != nil {
					return err
				}
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(samanthaCmd)
}
