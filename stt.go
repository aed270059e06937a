package cactus

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
)

// STT is a speech-to-text handle with the same lifecycle as LM.
type STT struct {
	handle
	recording atomic.Bool
}

// NewSTT creates an unloaded speech-to-text handle.
func NewSTT(opts ...Option) *STT {
	return &STT{handle: handle{kind: "stt", conf: newConfig(DefaultVoiceModel, opts)}}
}

// GetVoiceModels lists the speech-to-text models of the catalog.
func (s *STT) GetVoiceModels(ctx context.Context) ([]Model, error) {
	models, err := s.conf.catalog.Models(ctx)
	if err != nil {
		return nil, err
	}
	models = FilterModels(models, func(m Model) bool { return m.Kind == KindVoice })
	return s.conf.cache.mark(models), nil
}

// Download fetches model into the cache, or the default voice model if empty.
func (s *STT) Download(ctx context.Context, model string) error {
	return s.download(ctx, model)
}

// Init loads a downloaded voice model.
func (s *STT) Init(ctx context.Context, model string) error {
	return s.initialize(ctx, model, func(path string) (releaser, error) {
		return s.conf.loader.LoadTranscriber(path)
	})
}

func (s *STT) transcriber() Transcriber {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.loaded.(Transcriber); ok {
		return t
	}
	return nil
}

// Transcribe converts filePath to text. With an empty path the configured
// AudioSource records the input first.
func (s *STT) Transcribe(ctx context.Context, params TranscriptionParams, filePath string, onToken TokenFunc) (*TranscriptionResult, error) {
	if filePath != "" {
		if _, err := os.Stat(filePath); err != nil {
			return nil, fmt.Errorf("audio file: %w", err)
		}
	} else if s.conf.audio == nil {
		return nil, ErrNoAudioSource
	}

	var res *TranscriptionResult
	err := s.run(ctx, OpGenerate, func(ctx context.Context, t *ticket) error {
		tr := s.transcriber()
		if tr == nil {
			return ErrNotInitialized
		}
		path := filePath
		if path == "" {
			s.recording.Store(true)
			var err error
			path, err = s.conf.audio.Record(ctx, params)
			s.recording.Store(false)
			if err != nil {
				return fmt.Errorf("failed to record audio: %w", err)
			}
		}

		deliver, closeGate := s.openGate(t, onToken)
		defer closeGate()

		var err error
		res, err = tr.Transcribe(ctx, path, params, deliver)
		return err
	})
	if errors.Is(err, ErrUnloaded) {
		return nil, err
	}
	return res, err
}

// Stop ends a running recording so the captured audio is transcribed, or asks
// a running transcription to finish with what it has decoded. The model stays
// loaded. A recording whose source cannot be stopped is cancelled instead.
func (s *STT) Stop() {
	if s.recording.Load() {
		if src, ok := s.conf.audio.(interface{ Stop() }); ok {
			src.Stop()
			return
		}
		s.stop()
		return
	}
	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if loaded != nil {
		loaded.Stop()
	}
}

// Unload stops any running operation and releases the model.
func (s *STT) Unload() {
	s.unload()
}
