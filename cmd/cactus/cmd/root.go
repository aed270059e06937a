/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/config"
)

// conf is loaded before any subcommand runs.
var conf *config.Config

func init() {
	log.SetHandler(clihander.Default)

	// Add global flags that all subcommands can inherit
	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Show debug logs")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default is $XDG_CONFIG_HOME/cactus/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "Model cache directory")
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Settings
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cactus",
	Short: "Run small language and speech models on device",
	Long: `Run small language and speech models on device.

Models are fetched into the cache on first use. The built in model list has no
download locations, so set catalog.download_url (or CACTUS_CATALOG_DOWNLOAD_URL)
to the base URL serving <slug>.zip archives, or point catalog.url at a catalog
whose entries carry a download url.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			log.SetLevel(log.DebugLevel)
		}

		v := viper.New()
		if err := v.BindPFlag("cache_dir", cmd.Flags().Lookup("cache-dir")); err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadWith(v, path)
		if err != nil {
			return err
		}
		conf = c
		log.WithField("cache", conf.CacheDir).Debug("config loaded")

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			serveMetrics(cmd.Context(), addr)
		}
		return nil
	},
}

// serveMetrics exposes the Prometheus registry until ctx is done.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
}

// httpClient is shared by the catalog, the downloader and the remote engine.
func httpClient() *http.Client {
	return &http.Client{Timeout: conf.HTTP.Timeout}
}

// options turns the loaded config into handle options.
func options(extra ...cactus.Option) []cactus.Option {
	client := httpClient()
	opts := []cactus.Option{
		cactus.WithCacheDir(conf.CacheDir),
		cactus.WithLoader(cactus.NewNativeLoader(conf.Native.Library)),
		cactus.WithDownloader(&cactus.HTTPDownloader{BaseURL: conf.Catalog.DownloadURL, Client: client}),
	}
	if conf.Catalog.URL != "" {
		opts = append(opts, cactus.WithCatalogURL(conf.Catalog.URL, client))
	}
	if conf.Remote.URL != "" {
		opts = append(opts, cactus.WithRemoteEngine(cactus.NewRemoteEngine(cactus.RemoteConfig{
			URL:            conf.Remote.URL,
			Token:          conf.Remote.Token,
			Model:          conf.Remote.Model,
			EmbeddingModel: conf.Remote.EmbeddingModel,
			HTTPClient:     client,
		})))
	}
	return append(opts, extra...)
}

func newLM(extra ...cactus.Option) *cactus.LM {
	return cactus.NewLM(options(append([]cactus.Option{cactus.WithDefaultModel(conf.LM.Model)}, extra...)...)...)
}

func newSTT(extra ...cactus.Option) *cactus.STT {
	return cactus.NewSTT(options(append([]cactus.Option{cactus.WithDefaultModel(conf.STT.Model)}, extra...)...)...)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error(err.Error())
		stop()
		os.Exit(1)
	}
}
