package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/blacktop/go-cactus/internal/screen"
)

// showMap prints the walking route, or its GeoJSON when asGeoJSON is set.
func showMap(w io.Writer, asGeoJSON bool) error {
	r, err := screen.LondonRoute()
	if err != nil {
		return err
	}
	if asGeoJSON {
		data, err := r.GeoJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	b := r.Bounds()
	title := color.New(color.FgHiCyan, color.Bold)
	title.Fprintf(w, "\n🗺️  %s\n", r.Name)
	fmt.Fprintf(w, "   Start:    %s\n", r.Start)
	fmt.Fprintf(w, "   End:      %s\n", r.End)
	if r.Via != "" {
		fmt.Fprintf(w, "   Via:      %s\n", r.Via)
	}
	fmt.Fprintf(w, "   Walk:     %.2f km (%.2f km direct)\n", r.Distance()/1000, screen.Haversine(r.Start, r.End)/1000)
	fmt.Fprintf(w, "   Centre:   %s\n", b.Center())
	fmt.Fprintf(w, "   Points:   %d\n", len(r.Path))
	return nil
}

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Show the walking route to the Tower of London",
	Example: `  cactus map
  cactus map --geojson > route.geojson
  cactus map --live`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asGeoJSON, _ := cmd.Flags().GetBool("geojson")
		live, _ := cmd.Flags().GetBool("live")
		if err := showMap(cmd.OutOrStdout(), asGeoJSON); err != nil || asGeoJSON || !live {
			return err
		}

		ctx := cmd.Context()
		s, err := screen.NewMapScreen(func(v screen.MapView) {
			fmt.Printf("\r\033[K🕰️  %s", v.DateTime)
		})
		if err != nil {
			return err
		}
		defer s.Dispose()
		s.Start()
		<-ctx.Done()
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	mapCmd.Flags().Bool("geojson", false, "Print the route as GeoJSON")
	mapCmd.Flags().Bool("live", false, "Keep showing the clock until interrupted")
}
