package cactus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
)

// LM is a language model handle. Each LM owns at most one loaded engine and
// runs at most one download, initialize or generate at a time.
type LM struct {
	handle

	contextSize int // tokens, set by InitializeModel
	contextUsed int // estimated tokens of the last exchange
}

// NewLM creates an unloaded language model handle.
func NewLM(opts ...Option) *LM {
	return &LM{handle: handle{kind: "lm", conf: newConfig(DefaultModel, opts)}}
}

// DownloadModel fetches slug into the cache, or the default model if slug is empty.
// A model already in the cache completes immediately.
func (lm *LM) DownloadModel(ctx context.Context, slug string) error {
	return lm.download(ctx, slug)
}

// InitializeModel loads a downloaded model. Initializing a Ready handle replaces its model.
func (lm *LM) InitializeModel(ctx context.Context, params InitParams) error {
	params = params.withDefaults()
	err := lm.initialize(ctx, params.Model, func(path string) (releaser, error) {
		return lm.conf.loader.LoadModel(path, params.ContextSize)
	})
	if err == nil {
		lm.mu.Lock()
		lm.contextSize = params.ContextSize
		lm.contextUsed = 0
		lm.mu.Unlock()
	}
	return err
}

func (lm *LM) engine() Engine {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if e, ok := lm.loaded.(Engine); ok {
		return e
	}
	return nil
}

// GenerateCompletion runs one completion. onToken, if set, receives tokens in
// order and is never called after GenerateCompletion returns.
//
// When the engine reports failure, the result is returned together with an
// error wrapping ErrGenerationFailed.
func (lm *LM) GenerateCompletion(ctx context.Context, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	if len(msgs) == 0 {
		observeOp(lm.kind, OpGenerate, time.Now(), ErrNoMessages)
		return nil, ErrNoMessages
	}

	mode := params.mode()
	if mode != ModeLocal && lm.conf.remote == nil {
		if mode == ModeRemote {
			return nil, ErrRemoteUnavailable
		}
		mode = ModeLocal
	}
	op := OpGenerate
	switch mode {
	case ModeRemote:
		op = OpRemote
	case ModeLocalFirst, ModeRemoteFirst:
		if lm.state.Stable() != StateReady {
			op = OpRemote
		}
	}

	var res *CompletionResult
	err := lm.run(ctx, op, func(ctx context.Context, t *ticket) error {
		deliver, closeGate := lm.openGate(t, onToken)
		defer closeGate()

		var err error
		res, err = lm.complete(ctx, op, mode, msgs, params, deliver)
		return err
	})
	if errors.Is(err, ErrUnloaded) {
		return nil, err
	}
	if res != nil && !res.Remote && res.Success {
		lm.track(msgs, res)
	}
	observeCompletion(res)
	return res, err
}

func (lm *LM) complete(ctx context.Context, op Op, mode InferenceMode, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	remote := lm.conf.remote
	if op == OpRemote {
		return remote.Complete(ctx, msgs, params, onToken)
	}
	local := lm.engine()
	if local == nil {
		return nil, ErrNotInitialized
	}

	switch mode {
	case ModeRemoteFirst:
		res, err := remote.Complete(ctx, msgs, params, onToken)
		if err == nil || ctx.Err() != nil {
			return res, err
		}
		log.WithError(err).Warn("remote completion failed, falling back to local model")
	case ModeLocalFirst:
		res, err := local.Complete(ctx, msgs, params, onToken)
		if err == nil || ctx.Err() != nil {
			return res, err
		}
		log.WithError(err).Warn("local completion failed, falling back to remote")
		return remote.Complete(ctx, msgs, params, onToken)
	}
	return local.Complete(ctx, msgs, params, onToken)
}

// GenerateEmbedding embeds text with the loaded model.
func (lm *LM) GenerateEmbedding(ctx context.Context, text string) (*EmbeddingResult, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	var res *EmbeddingResult
	err := lm.run(ctx, OpGenerate, func(ctx context.Context, _ *ticket) error {
		eng := lm.engine()
		if eng == nil {
			return ErrNotInitialized
		}
		var err error
		res, err = eng.Embed(ctx, text)
		return err
	})
	if errors.Is(err, ErrUnloaded) {
		return nil, err
	}
	return res, err
}

// GetModels lists the language models of the catalog, marking cached ones.
func (lm *LM) GetModels(ctx context.Context) ([]Model, error) {
	models, err := lm.conf.catalog.Models(ctx)
	if err != nil {
		return nil, err
	}
	models = FilterModels(models, func(m Model) bool { return m.Kind != KindVoice })
	return lm.conf.cache.mark(models), nil
}

// Stop interrupts the running completion without unloading the model.
func (lm *LM) Stop() {
	lm.stop()
}

// Unload stops any running operation, waits for it to return and releases the model.
func (lm *LM) Unload() {
	lm.unload()
	lm.mu.Lock()
	lm.contextUsed = 0
	lm.mu.Unlock()
}

// ResetContext clears the engine's KV cache and the context usage estimate.
func (lm *LM) ResetContext(ctx context.Context) error {
	return lm.run(ctx, OpGenerate, func(context.Context, *ticket) error {
		if r, ok := lm.engine().(interface{ Reset() }); ok {
			r.Reset()
		}
		lm.mu.Lock()
		lm.contextUsed = 0
		lm.mu.Unlock()
		return nil
	})
}

// estimateTokens provides a rough estimate of token count for text
// This is a simple approximation: ~4 characters per token on average
func estimateTokens(text string) int {
	return len(text) / 4
}

func (lm *LM) track(msgs []ChatMessage, res *CompletionResult) {
	used := res.TotalTokens
	if used == 0 {
		for _, m := range msgs {
			used += estimateTokens(m.Content)
		}
		used += estimateTokens(res.Response)
	}
	lm.mu.Lock()
	lm.contextUsed = used
	lm.mu.Unlock()
}

// ContextUsage returns the tokens used by the last exchange and the context size.
func (lm *LM) ContextUsage() (used, size int) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.contextUsed, lm.contextSize
}

// ContextUsagePercent returns the percentage of context used
func (lm *LM) ContextUsagePercent() float64 {
	used, size := lm.ContextUsage()
	if size == 0 {
		return 0
	}
	return float64(used) / float64(size) * 100
}

// IsContextNearLimit returns true if context usage is above 80%
func (lm *LM) IsContextNearLimit() bool {
	return lm.ContextUsagePercent() > 80
}

func (lm *LM) String() string {
	return fmt.Sprintf("LM(%s, %s)", lm.CurrentModel(), lm.State())
}
