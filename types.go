package cactus

import "time"

const (
	// DefaultModel is the language model used when none is specified.
	DefaultModel = "qwen3-0.6"
	// DefaultVisionModel is the vision-language model used by the quick vision demo.
	DefaultVisionModel = "lfm2-vl-450m"
	// DefaultVoiceModel is the speech-to-text model used when none is specified.
	DefaultVoiceModel = "whisper-tiny"
	// DefaultContextSize is the context window used when InitParams leaves it unset.
	DefaultContextSize = 2048
	// DefaultMaxTokens is the completion budget used when CompletionParams leaves it unset.
	DefaultMaxTokens = 200
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ChatMessage is one entry of a completion request.
type ChatMessage struct {
	Content string   `json:"content"`
	Role    Role     `json:"role"`
	Images  []string `json:"images,omitempty"` // local image paths, vision models only
}

// InferenceMode selects where a completion runs.
type InferenceMode int

const (
	ModeLocal InferenceMode = iota
	ModeRemote
	ModeLocalFirst
	ModeRemoteFirst
)

func (m InferenceMode) String() string {
	switch m {
	case ModeLocal:
		return "local"
	case ModeRemote:
		return "remote"
	case ModeLocalFirst:
		return "local-first"
	case ModeRemoteFirst:
		return "remote-first"
	default:
		return "unknown"
	}
}

// ParseInferenceMode parses the String form of an InferenceMode.
func ParseInferenceMode(s string) (InferenceMode, bool) {
	for _, m := range []InferenceMode{ModeLocal, ModeRemote, ModeLocalFirst, ModeRemoteFirst} {
		if m.String() == s {
			return m, true
		}
	}
	return ModeLocal, false
}

// CompletionResult is the outcome of one completion request.
type CompletionResult struct {
	Success            bool       `json:"success"`
	Response           string     `json:"response"`
	TimeToFirstTokenMs float64    `json:"time_to_first_token_ms"`
	TotalTimeMs        float64    `json:"total_time_ms"`
	TokensPerSecond    float64    `json:"tokens_per_second"`
	PrefillTokens      int        `json:"prefill_tokens"`
	DecodeTokens       int        `json:"decode_tokens"`
	TotalTokens        int        `json:"total_tokens"`
	ToolCalls          []ToolCall `json:"function_calls,omitempty"`
	Remote             bool       `json:"-"`
}

// EmbeddingResult is the outcome of one embedding request.
type EmbeddingResult struct {
	Success    bool      `json:"success"`
	Embeddings []float32 `json:"embeddings"`
	Dimension  int       `json:"dimension"`
}

// ModelKind separates language models from speech-to-text models in the catalog.
type ModelKind string

const (
	KindLanguage ModelKind = "lm"
	KindVoice    ModelKind = "voice"
)

// Model describes a catalog entry.
type Model struct {
	Slug                string    `json:"slug"`
	Name                string    `json:"name"`
	SizeMB              int       `json:"size_mb"`
	DownloadURL         string    `json:"download_url,omitempty"`
	Kind                ModelKind `json:"type,omitempty"`
	SupportsToolCalling bool      `json:"supports_tool_calling"`
	SupportsVision      bool      `json:"supports_vision"`
	IsDownloaded        bool      `json:"-"`
}

// InitParams configures InitializeModel.
type InitParams struct {
	Model       string
	ContextSize int
}

func (p InitParams) withDefaults() InitParams {
	if p.ContextSize <= 0 {
		p.ContextSize = DefaultContextSize
	}
	return p
}

// TranscriptionParams configures a transcription.
type TranscriptionParams struct {
	Prompt             string
	Language           string
	SampleRate         int
	MaxDuration        time.Duration
	MaxSilenceDuration time.Duration
}

// DefaultTranscriptionParams returns 16 kHz capture limited to 30s with a 3s silence cut off.
func DefaultTranscriptionParams() TranscriptionParams {
	return TranscriptionParams{
		SampleRate:         16000,
		MaxDuration:        30 * time.Second,
		MaxSilenceDuration: 3 * time.Second,
	}
}

// TranscriptionResult is the outcome of one transcription.
type TranscriptionResult struct {
	Success          bool    `json:"success"`
	Text             string  `json:"response"`
	ProcessingTimeMs float64 `json:"total_time_ms"`
}

// TokenFunc receives generated text incrementally.
type TokenFunc func(token string)
