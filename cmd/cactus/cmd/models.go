package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/screen"
)

var modelsCmd = &cobra.Command{
	Use:     "models",
	Aliases: []string{"ls"},
	Short:   "List the models available for download",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		voice, _ := cmd.Flags().GetBool("voice")

		var models []cactus.Model
		if voice {
			stt := newSTT()
			defer stt.Unload()
			var err error
			if models, err = stt.GetVoiceModels(cmd.Context()); err != nil {
				return fmt.Errorf("error fetching voice models: %w", err)
			}
		} else {
			var status string
			var err error
			if models, status, err = fetchModels(cmd.Context(), newLM()); err != nil {
				return err
			}
			color.New(color.Faint).Println(status)
		}
		return printModels(os.Stdout, models)
	},
}

// fetchModels lists the catalog through the models screen.
func fetchModels(ctx context.Context, lm *cactus.LM) ([]cactus.Model, string, error) {
	s := screen.NewModelsScreen(lm, nil)
	defer s.Dispose()
	if err := runSteps(ctx, s, s.Fetch); err != nil {
		return nil, "", err
	}
	v := s.View()
	if v.Err != nil {
		return nil, v.Status, errors.New(v.Status)
	}
	return v.Models, v.Status, nil
}

func printModels(out io.Writer, models []cactus.Model) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLUG\tNAME\tSIZE\tFEATURES\tDOWNLOADED")
	for _, m := range models {
		downloaded := ""
		if m.IsDownloaded {
			downloaded = "✅"
		}
		fmt.Fprintf(w, "%s\t%s\t%d MB\t%s\t%s\n", m.Slug, m.Name, m.SizeMB, screen.Features(m), downloaded)
	}
	return w.Flush()
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsRmCmd)
	modelsCmd.Flags().Bool("voice", false, "List speech-to-text models")
}

var modelsRmCmd = &cobra.Command{
	Use:   "rm [slug...]",
	Short: "Remove downloaded models from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cache := cactus.Cache{Dir: conf.CacheDir}
		for _, slug := range args {
			if !cache.Has(slug) {
				fmt.Printf("%s is not downloaded\n", slug)
				continue
			}
			if err := cache.Remove(slug); err != nil {
				return fmt.Errorf("failed to remove %s: %w", slug, err)
			}
			fmt.Printf("removed %s\n", slug)
		}
		return nil
	},
}
