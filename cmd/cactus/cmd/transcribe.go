package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/screen"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [audio file]",
	Short: "Transcribe an audio file with a speech-to-text model",
	Long: `Download and initialize a voice model, then transcribe an audio file.
Without an argument the file path is read from stdin.`,
	Example: `  cactus transcribe ~/Recordings/memo.wav
  cactus transcribe --model whisper-tiny memo.m4a`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		model, _ := cmd.Flags().GetString("model")
		if model == "" {
			model = conf.STT.Model
		}
		var path string
		if len(args) == 1 {
			path = args[0]
		}

		ui := NewChatUI()
		factory := func(_ screen.Provider, progress cactus.ProgressFunc) *cactus.STT {
			return newSTT(cactus.WithProgress(progress))
		}
		s := screen.NewTranscriptionScreen(factory, pathSelector(path), func(v screen.TranscriptionView) {
			if v.Progress != "" {
				ui.UpdateTypingIndicator(v.Progress)
			} else {
				ui.UpdateTypingIndicator(v.Status)
			}
		})
		defer s.Dispose()

		dir, err := os.MkdirTemp("", "cactus-audio")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		s.AudioDir = dir

		ui.ShowTypingIndicator(s.View().Status)
		err = runSteps(ctx, s, s.LoadModels, func() { s.Select(model) }, s.Prepare)
		if err == nil && !s.View().Loaded {
			err = errors.New(s.View().Status)
		}
		if err != nil {
			ui.HideTypingIndicator()
			return err
		}
		if path == "" {
			ui.HideTypingIndicator()
		}
		err = runSteps(ctx, s, s.TranscribeFile)
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}

		v := s.View()
		if v.Result == nil {
			return errors.New(v.Status)
		}
		ui.PrintAssistantMessage(v.Result.Text)
		ui.PrintStatus(fmt.Sprintf("%s (%s, %.0fms)", v.Status, v.Selected, v.Result.ProcessingTimeMs))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transcribeCmd)
	transcribeCmd.Flags().StringP("model", "m", "", "Voice model slug (default from config)")
}
