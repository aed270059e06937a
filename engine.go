package cactus

import "context"

// Engine is a loaded language model.
//
// Complete calls onToken from the goroutine running the request. Stop asks a
// running Complete or Embed to return early and may be called concurrently.
type Engine interface {
	Complete(ctx context.Context, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error)
	Embed(ctx context.Context, text string) (*EmbeddingResult, error)
	Stop()
	Close() error
}

// Transcriber is a loaded speech-to-text model.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string, params TranscriptionParams, onToken TokenFunc) (*TranscriptionResult, error)
	Stop()
	Close() error
}

// Loader turns a model directory from the cache into a running engine.
type Loader interface {
	LoadModel(modelPath string, contextSize int) (Engine, error)
	LoadTranscriber(modelPath string) (Transcriber, error)
}

// AudioSource records audio into a file when Transcribe is called without one.
//
// A source that also implements Stop ends the recording early when the STT
// handle is stopped; Record then returns the audio captured so far.
type AudioSource interface {
	Record(ctx context.Context, params TranscriptionParams) (path string, err error)
}
