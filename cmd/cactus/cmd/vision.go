package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

var visionCmd = &cobra.Command{
	Use:   "vision [image]",
	Short: "Describe an image with a vision model",
	Long: `Pick an image, normalize it to at most 512px and ask a vision model to
describe it. Without an argument the image path is read from stdin.
With --quick the default vision model is loaded as soon as the image is picked.`,
	Example: `  cactus vision ~/Pictures/cat.png
  cactus vision --quick ~/Pictures/cat.png
  cactus vision --model lfm2-vl-450m`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		quick, _ := cmd.Flags().GetBool("quick")
		model, _ := cmd.Flags().GetString("model")
		var path string
		if len(args) == 1 {
			path = args[0]
		}

		ui := NewChatUI()
		onChange := func(v screen.VisionView) { ui.UpdateTypingIndicator(v.Status) }
		lm := newLM()
		var s *screen.VisionScreen
		if quick {
			s = screen.NewQuickVisionScreen(lm, pathSelector(path), onChange)
		} else {
			s = screen.NewVisionScreen(lm, pathSelector(path), onChange)
		}
		defer s.Dispose()

		dir, err := os.MkdirTemp("", "cactus-vision")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		s.ImageDir = dir

		ui.ShowTypingIndicator(s.View().Status)
		fail := func(err error) error {
			ui.HideTypingIndicator()
			return err
		}
		if !quick {
			if model == "" {
				model = conf.Vision.Model
			}
			if err := runSteps(ctx, s, s.LoadModels, func() { s.Select(model) }, s.Download, s.Initialize); err != nil {
				return fail(err)
			}
			if !lm.IsLoaded() {
				return fail(errors.New(s.View().Status))
			}
		}
		if path == "" {
			ui.HideTypingIndicator()
		}
		if err := runSteps(ctx, s, s.PickImage); err != nil {
			return fail(err)
		}
		if v := s.View(); v.Image == "" || (quick && !lm.IsLoaded()) {
			return fail(errors.New(v.Status))
		}
		ui.ShowTypingIndicator("Analyzing image...")
		err = runSteps(ctx, s, s.Analyze)
		ui.HideTypingIndicator()
		if err != nil {
			return err
		}

		v := s.View()
		if v.Response == "" {
			return errors.New(v.Status)
		}
		ui.PrintStatus(fmt.Sprintf("🖼️  %s (%s)", v.Image, v.Selected))
		ui.PrintAssistantMessage(v.Response)
		ui.PrintStatus(v.Status)
		if v.TPS > 0 {
			ui.PrintStatus(fmt.Sprintf("⏱️  TTFT %sms • %s tok/s", screen.Fixed(v.TTFT, 2), screen.Fixed(v.TPS, 2)))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(visionCmd)
	visionCmd.Flags().BoolP("quick", "q", false, "Load the default vision model on first pick")
	visionCmd.Flags().StringP("model", "m", "", "Vision model slug (default from config)")
}
