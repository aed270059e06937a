package cactus

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
)

type config struct {
	cache      Cache
	catalog    Catalog
	loader     Loader
	downloader Downloader
	remote     Engine
	audio      AudioSource
	progress   ProgressFunc
	model      string
}

// Option configures an LM or STT handle.
type Option func(*config)

// WithCacheDir sets the model cache directory. A leading ~ is expanded.
func WithCacheDir(dir string) Option {
	return func(c *config) {
		if strings.HasPrefix(dir, "~") {
			if home, err := os.UserHomeDir(); err == nil {
				dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
			}
		}
		c.cache = Cache{Dir: dir}
	}
}

// WithCatalog sets the model catalog.
func WithCatalog(cat Catalog) Option {
	return func(c *config) { c.catalog = cat }
}

// WithCatalogURL fetches the model catalog from url.
func WithCatalogURL(url string, client *http.Client) Option {
	return WithCatalog(&HTTPCatalog{URL: url, Client: client})
}

// WithLoader sets how cached models are turned into engines.
func WithLoader(l Loader) Option {
	return func(c *config) { c.loader = l }
}

// WithDownloader sets how models are fetched into the cache.
func WithDownloader(d Downloader) Option {
	return func(c *config) { c.downloader = d }
}

// WithRemoteEngine enables remote and hybrid inference modes.
func WithRemoteEngine(e Engine) Option {
	return func(c *config) { c.remote = e }
}

// WithAudioSource sets the recorder used by Transcribe when no file is given.
func WithAudioSource(a AudioSource) Option {
	return func(c *config) { c.audio = a }
}

// WithProgress reports download progress.
func WithProgress(fn ProgressFunc) Option {
	return func(c *config) { c.progress = fn }
}

// WithDefaultModel sets the model used when a call names none.
func WithDefaultModel(slug string) Option {
	return func(c *config) { c.model = slug }
}

func newConfig(model string, opts []Option) config {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	c := config{
		cache:      Cache{Dir: filepath.Join(dir, "cactus")},
		catalog:    StaticCatalog(DefaultModels()),
		loader:     NewNativeLoader(""),
		downloader: &HTTPDownloader{},
		model:      model,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// releaser is a loaded engine or transcriber.
type releaser interface {
	Stop()
	Close() error
}

// handle is the lifecycle shared by LM and STT.
type handle struct {
	kind string
	conf config

	state machine

	mu     sync.Mutex
	loaded releaser
	model  string
	gate   *tokenGate
	cancel context.CancelFunc
}

// State returns the current lifecycle state.
func (h *handle) State() State {
	return h.state.State()
}

// IsLoaded reports whether a model is initialized.
func (h *handle) IsLoaded() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loaded != nil
}

// CurrentModel returns the slug of the loaded model, or of the last download.
func (h *handle) CurrentModel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model
}

// run executes fn as op. It fails fast with ErrBusy when another op is running.
func (h *handle) run(ctx context.Context, op Op, fn func(ctx context.Context, t *ticket) error) error {
	start := time.Now()
	t, err := h.state.begin(op)
	if err != nil {
		observeOp(h.kind, op, start, err)
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	if !h.state.current(t) {
		cancel()
	}

	err = fn(ctx, t)

	h.mu.Lock()
	h.cancel = nil
	h.mu.Unlock()
	cancel()

	if !h.state.current(t) {
		err = fmt.Errorf("%s %w", op, ErrUnloaded)
	}
	h.state.end(t, err)
	observeOp(h.kind, op, start, err)
	return err
}

func (h *handle) download(ctx context.Context, slug string) error {
	if slug == "" {
		slug = h.conf.model
	}
	return h.run(ctx, OpDownload, func(ctx context.Context, _ *ticket) error {
		if !h.conf.cache.Has(slug) {
			model := Model{Slug: slug}
			if models, err := h.conf.catalog.Models(ctx); err == nil {
				if m, ok := findModel(models, slug); ok {
					model = m
				}
			} else {
				log.WithError(err).Debug("catalog unavailable, downloading by slug")
			}

			log.WithFields(log.Fields{"handle": h.kind, "model": slug}).Info("downloading model")
			if err := h.conf.downloader.Download(ctx, model, h.conf.cache.ModelPath(slug), h.conf.progress); err != nil {
				return fmt.Errorf("failed to download %s: %w", slug, err)
			}
		}

		h.mu.Lock()
		if h.loaded == nil {
			h.model = slug
		}
		h.mu.Unlock()
		return nil
	})
}

// initialize loads slug with load and installs the result unless the handle
// was unloaded meanwhile.
func (h *handle) initialize(ctx context.Context, slug string, load func(path string) (releaser, error)) error {
	if slug == "" {
		slug = h.CurrentModel()
	}
	if slug == "" {
		slug = h.conf.model
	}
	return h.run(ctx, OpInitialize, func(ctx context.Context, t *ticket) error {
		if !h.conf.cache.Has(slug) {
			return fmt.Errorf("%w: %s", ErrNotDownloaded, slug)
		}
		h.release()

		log.WithFields(log.Fields{"handle": h.kind, "model": slug}).Info("initializing model")
		r, err := load(h.conf.cache.ModelPath(slug))
		if err != nil {
			return fmt.Errorf("failed to initialize %s: %w", slug, err)
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		if !h.state.current(t) {
			r.Close()
			return ErrUnloaded
		}
		h.loaded = r
		h.model = slug
		loadedModels.WithLabelValues(h.kind).Inc()
		return nil
	})
}

// openGate installs a token gate for one request. The returned close func
// must run before the request's result is handed to the caller.
func (h *handle) openGate(t *ticket, fn TokenFunc) (TokenFunc, func()) {
	if fn == nil {
		return nil, func() {}
	}
	g := newTokenGate(fn)
	h.mu.Lock()
	if !h.state.current(t) {
		g.open = false
	}
	h.gate = g
	h.mu.Unlock()
	return g.deliver, func() {
		g.close()
		h.mu.Lock()
		if h.gate == g {
			h.gate = nil
		}
		h.mu.Unlock()
	}
}

// stop interrupts the in-flight request, keeping the model loaded.
func (h *handle) stop() {
	h.mu.Lock()
	loaded, cancel := h.loaded, h.cancel
	h.mu.Unlock()
	if loaded != nil {
		loaded.Stop()
	}
	if cancel != nil {
		cancel()
	}
}

// release closes the loaded engine. The caller must own the in-flight slot.
func (h *handle) release() {
	h.mu.Lock()
	loaded := h.loaded
	h.loaded = nil
	h.mu.Unlock()
	if loaded != nil {
		if err := loaded.Close(); err != nil {
			log.WithError(err).Warn("failed to release model")
		}
		loadedModels.WithLabelValues(h.kind).Dec()
	}
}

// unload tears the handle down from any state. Safe to call repeatedly.
func (h *handle) unload() {
	done := h.state.reset()

	h.mu.Lock()
	gate := h.gate
	h.mu.Unlock()
	if gate != nil {
		gate.close()
	}

	h.stop()
	if done != nil {
		<-done
	}
	h.release()
	log.WithField("handle", h.kind).Debug("unloaded")
}
