// Package screen holds the demo screen controllers. Each screen owns its own
// model handle and a Dispatcher; blocking calls run on background goroutines
// and every state change is marshalled back onto the dispatcher.
package screen

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
)

// System prompts shared by several screens.
const (
	SystemPrompt       = "You are Cactus, a very capable AI assistant running offline on a smartphone"
	VisionSystemPrompt = "You are a helpful AI assistant that can analyze images."
	VisionPrompt       = "Describe this image in detail."
)

// Status lines of the download and initialize controls.
const (
	StatusStart        = `Ready to start. Click "Download Model" to begin.`
	StatusDownloading  = "Downloading model..."
	StatusDownloaded   = `Model downloaded successfully! Click "Initialize Model" to load it.`
	StatusInitializing = "Initializing model..."
	StatusInitialized  = "Model initialized successfully! Ready to generate completions."
	StatusNotReady     = "Please download and initialize model first."
)

// Screen is implemented by every controller.
type Screen interface {
	// Dispose stops in-flight work, unloads the models and stops the dispatcher.
	// No state change happens after Dispose returns.
	Dispose()
}

// Controls reports which lifecycle buttons are enabled.
type Controls struct {
	Download   bool
	Initialize bool
	Generate   bool
}

// ControlsFor derives the enabled controls from a handle state.
func ControlsFor(s cactus.State) Controls {
	switch s {
	case cactus.StateUnloaded:
		return Controls{Download: true}
	case cactus.StateDownloaded:
		return Controls{Download: true, Initialize: true}
	case cactus.StateReady:
		return Controls{Download: true, Initialize: true, Generate: true}
	default:
		return Controls{}
	}
}

// base is the state shared by every screen: a view of type V owned by the
// dispatcher, and the goroutines working on its behalf.
type base[V any] struct {
	ui       *Dispatcher
	ctx      context.Context
	cancel   context.CancelFunc
	onChange func(V)

	view V

	mu       sync.Mutex
	idle     *sync.Cond
	closed   bool
	active   int
	launched int64
	wg       sync.WaitGroup
}

func newBase[V any](view V, onChange func(V)) *base[V] {
	ctx, cancel := context.WithCancel(context.Background())
	b := &base[V]{
		ui:       NewDispatcher(),
		ctx:      ctx,
		cancel:   cancel,
		onChange: onChange,
		view:     view,
	}
	b.idle = sync.NewCond(&b.mu)
	return b
}

// update queues a mutation of the view. It is dropped after dispose.
func (b *base[V]) update(fn func(v *V)) {
	b.ui.Post(func() {
		fn(&b.view)
		if b.onChange != nil {
			b.onChange(b.view)
		}
	})
}

// launch runs fn on a background goroutine tracked by dispose.
func (b *base[V]) launch(fn func(ctx context.Context)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.wg.Add(1)
	b.active++
	b.launched++
	go func() {
		defer b.wg.Done()
		defer b.finished()
		fn(b.ctx)
	}()
}

func (b *base[V]) finished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.active--
	if b.active == 0 {
		b.idle.Broadcast()
	}
}

// settle blocks until no launched goroutine is running and returns how many
// were launched so far.
func (b *base[V]) settle() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.active > 0 {
		b.idle.Wait()
	}
	return b.launched
}

// View returns a copy of the current view.
func (b *base[V]) View() V {
	var v V
	if b.ui.Invoke(func() { v = b.view }) {
		return v
	}
	<-b.ui.Done()
	return b.view
}

// Wait blocks until the screen is idle: queued updates are applied and every
// launched goroutine, including those launched by the updates, has returned.
// It never returns while a clock is running.
func (b *base[V]) Wait() {
	for {
		if !b.ui.Invoke(func() {}) {
			b.settle()
			return
		}
		n := b.settle()
		if !b.ui.Invoke(func() {}) || b.settle() == n {
			return
		}
	}
}

// dispose closes the dispatcher first so no update lands afterwards, then
// releases the handles and waits for the workers.
func (b *base[V]) dispose(release ...func()) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.ui.Close()
	b.cancel()
	for _, fn := range release {
		fn()
	}
	b.wg.Wait()
	<-b.ui.Done()
}

// setup drives the download and initialize controls of a language model.
type setup struct {
	lm     *cactus.LM
	status func(string)
}

func (s setup) download(ctx context.Context, slug string) bool {
	s.status(StatusDownloading)
	if err := s.lm.DownloadModel(ctx, slug); err != nil {
		log.WithError(err).WithField("model", slug).Error("download failed")
		s.status(fmt.Sprintf("Error downloading model: %v", err))
		return false
	}
	s.status(StatusDownloaded)
	return true
}

func (s setup) initialize(ctx context.Context, params cactus.InitParams, done string) bool {
	s.status(StatusInitializing)
	if err := s.lm.InitializeModel(ctx, params); err != nil {
		log.WithError(err).WithField("model", params.Model).Error("initialize failed")
		s.status(fmt.Sprintf("Error initializing model: %v", err))
		return false
	}
	s.status(done)
	return true
}

// Fixed formats v with exactly digits decimals, truncating.
func Fixed(v float64, digits int) string {
	whole, frac, _ := strings.Cut(strconv.FormatFloat(v, 'f', -1, 64), ".")
	if len(frac) > digits {
		frac = frac[:digits]
	} else {
		frac += strings.Repeat("0", digits-len(frac))
	}
	return whole + "." + frac
}
