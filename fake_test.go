package cactus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var errNetwork = errors.New("network unreachable")

// fakeEngine streams its tokens, optionally blocking until released or stopped.
type fakeEngine struct {
	tokens []string
	fail   bool
	late   []string // emitted after Stop, before returning

	started chan struct{}
	release chan struct{}

	mu        sync.Mutex
	stopCh    chan struct{}
	closed    bool
	completes int
	lastMsgs  []ChatMessage
	resets    int
}

func newFakeEngine(tokens ...string) *fakeEngine {
	return &fakeEngine{
		tokens:  tokens,
		started: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (e *fakeEngine) Complete(ctx context.Context, msgs []ChatMessage, _ *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	e.mu.Lock()
	e.completes++
	e.lastMsgs = msgs
	stopCh := e.stopCh
	e.mu.Unlock()

	select {
	case e.started <- struct{}{}:
	default:
	}

	var sb strings.Builder
	for _, tok := range e.tokens {
		if onToken != nil {
			onToken(tok)
		}
		sb.WriteString(tok)
	}

	if e.release != nil {
		select {
		case <-e.release:
		case <-stopCh:
			for _, tok := range e.late {
				if onToken != nil {
					onToken(tok)
				}
			}
			return nil, errors.New("stopped")
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if e.fail {
		return &CompletionResult{Success: false}, fmt.Errorf("%w: out of memory", ErrGenerationFailed)
	}
	return &CompletionResult{
		Success:            true,
		Response:           sb.String(),
		TotalTokens:        len(e.tokens),
		DecodeTokens:       len(e.tokens),
		TokensPerSecond:    42,
		TimeToFirstTokenMs: 12,
	}, nil
}

func (e *fakeEngine) Embed(ctx context.Context, text string) (*EmbeddingResult, error) {
	vec := make([]float32, 8)
	for i, r := range text {
		vec[i%len(vec)] += float32(r) / 1000
	}
	return &EmbeddingResult{Success: true, Embeddings: vec, Dimension: len(vec)}, nil
}

func (e *fakeEngine) Transcribe(ctx context.Context, path string, _ TranscriptionParams, onToken TokenFunc) (*TranscriptionResult, error) {
	res, err := e.Complete(ctx, []ChatMessage{{Role: RoleUser, Content: path}}, nil, onToken)
	if err != nil {
		return nil, err
	}
	return &TranscriptionResult{Success: true, Text: res.Response, ProcessingTimeMs: 3}, nil
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.stopCh:
	default:
		close(e.stopCh)
	}
}

func (e *fakeEngine) Reset() {
	e.mu.Lock()
	e.resets++
	e.mu.Unlock()
}

func (e *fakeEngine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

func (e *fakeEngine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// fakeLoader hands out one engine and records what it loaded.
type fakeLoader struct {
	engine *fakeEngine
	err    error

	mu     sync.Mutex
	loaded []string
}

func (l *fakeLoader) LoadModel(path string, _ int) (Engine, error) {
	l.mu.Lock()
	l.loaded = append(l.loaded, filepath.Base(path))
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.engine, nil
}

func (l *fakeLoader) LoadTranscriber(path string) (Transcriber, error) {
	l.mu.Lock()
	l.loaded = append(l.loaded, filepath.Base(path))
	l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return l.engine, nil
}

// fakeDownloader writes a weights file, or fails with err.
type fakeDownloader struct {
	err   error
	block chan struct{}

	mu    sync.Mutex
	count int
}

func (d *fakeDownloader) Download(ctx context.Context, m Model, dest string, progress ProgressFunc) error {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
	if d.block != nil {
		select {
		case <-d.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if d.err != nil {
		return d.err
	}
	if progress != nil {
		progress(10, 10)
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dest, "weights.bin"), []byte(m.Slug), 0o644)
}

func (d *fakeDownloader) downloads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

// fakeRemote is a remote engine answering with a fixed text.
type fakeRemote struct {
	*fakeEngine
	err error
}

func (r *fakeRemote) Complete(ctx context.Context, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	res, err := r.fakeEngine.Complete(ctx, msgs, params, onToken)
	if res != nil {
		res.Remote = true
	}
	return res, err
}

type testEnv struct {
	lm         *LM
	engine     *fakeEngine
	loader     *fakeLoader
	downloader *fakeDownloader
}

func newTestLM(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		engine:     newFakeEngine("Hello", ", ", "world", "!"),
		downloader: &fakeDownloader{},
	}
	env.loader = &fakeLoader{engine: env.engine}
	base := []Option{
		WithCacheDir(t.TempDir()),
		WithLoader(env.loader),
		WithDownloader(env.downloader),
	}
	env.lm = NewLM(append(base, opts...)...)
	t.Cleanup(env.lm.Unload)
	return env
}

func (env *testEnv) ready(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := env.lm.DownloadModel(ctx, ""); err != nil {
		t.Fatalf("download: %v", err)
	}
	if err := env.lm.InitializeModel(ctx, InitParams{}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}
