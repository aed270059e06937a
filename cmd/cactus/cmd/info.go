package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	cactus "github.com/blacktop/go-cactus"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display runtime, configuration and cache information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("=== Runtime ===")
		fmt.Printf("Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		path, err := cactus.NewNativeLoader(conf.Native.Library).Check()
		if err != nil {
			fmt.Printf("libcactus: ❌ %v\n", err)
		} else {
			fmt.Printf("libcactus: ✅ %s\n", path)
		}

		fmt.Println("\n=== Configuration ===")
		fmt.Printf("Cache:          %s\n", conf.CacheDir)
		fmt.Printf("Language model: %s (context %d)\n", conf.LM.Model, conf.LM.ContextSize)
		fmt.Printf("Vision model:   %s\n", conf.Vision.Model)
		fmt.Printf("Voice model:    %s\n", conf.STT.Model)
		catalog := conf.Catalog.URL
		if catalog == "" {
			catalog = "built in"
		}
		fmt.Printf("Catalog:        %s\n", catalog)
		downloads := conf.Catalog.DownloadURL
		if downloads == "" {
			downloads = "not set"
		}
		fmt.Printf("Downloads:      %s\n", downloads)
		remote := "disabled"
		if conf.Remote.URL != "" {
			remote = fmt.Sprintf("%s (%s)", conf.Remote.URL, conf.Remote.Model)
			if conf.Remote.Token == "" {
				remote += " no token"
			}
		}
		fmt.Printf("Remote:         %s\n", remote)

		fmt.Println("\n=== Cached Models ===")
		cache := cactus.Cache{Dir: conf.CacheDir}
		n := 0
		for _, m := range cactus.DefaultModels() {
			if cache.Has(m.Slug) {
				fmt.Printf("• %s  %s\n", m.Slug, cache.ModelPath(m.Slug))
				n++
			}
		}
		if n == 0 {
			fmt.Println("none")
		}
		if err != nil {
			fmt.Println("\n⚠️  Local inference is unavailable. Set native.library (or CACTUS_LIB) to the libcactus path.")
		}
		if conf.Catalog.DownloadURL == "" {
			fmt.Println("\n⚠️  catalog.download_url is not set: only models whose catalog entry carries a download url can be fetched.")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}
