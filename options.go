package cactus

// CompletionParams controls one completion request. Nil fields use engine defaults.
type CompletionParams struct {
	// MaxTokens is the decode budget (default: 200). Zero only prefills the prompt.
	MaxTokens *int `json:"max_tokens,omitempty"`

	// Temperature controls randomness (0.0 = deterministic, 1.0 = very random)
	Temperature *float32 `json:"temperature,omitempty"`

	// TopP controls nucleus sampling probability threshold (0.0-1.0)
	TopP *float32 `json:"top_p,omitempty"`

	// TopK controls top-K sampling limit (positive integer)
	TopK *int `json:"top_k,omitempty"`

	// StopSequences is an array of sequences that will stop generation
	StopSequences []string `json:"stop_sequences,omitempty"`

	// Tools the model may call instead of answering.
	Tools []Tool `json:"-"`

	// Mode selects local or remote inference.
	Mode InferenceMode `json:"-"`

	// CactusToken authenticates remote inference. Falls back to the configured token.
	CactusToken string `json:"-"`
}

func (p *CompletionParams) maxTokens() int {
	if p == nil || p.MaxTokens == nil {
		return DefaultMaxTokens
	}
	return *p.MaxTokens
}

func (p *CompletionParams) mode() InferenceMode {
	if p == nil {
		return ModeLocal
	}
	return p.Mode
}

func (p *CompletionParams) tools() []Tool {
	if p == nil {
		return nil
	}
	return p.Tools
}

// WithMaxTokens creates CompletionParams with specified max tokens
func WithMaxTokens(maxTokens int) *CompletionParams {
	return &CompletionParams{
		MaxTokens: &maxTokens,
	}
}

// WithTemperature creates CompletionParams with specified temperature
func WithTemperature(temp float32) *CompletionParams {
	return &CompletionParams{
		Temperature: &temp,
	}
}

// WithDeterministic creates CompletionParams for deterministic output
func WithDeterministic() *CompletionParams {
	return WithTemperature(0.0)
}

// WithCreative creates CompletionParams for creative output
func WithCreative() *CompletionParams {
	return WithTemperature(0.9)
}

// WithRemote creates CompletionParams that run on the cloud endpoint.
func WithRemote(token string, maxTokens int) *CompletionParams {
	p := WithMaxTokens(maxTokens)
	p.Mode = ModeRemote
	p.CactusToken = token
	return p
}

// WithTools returns a copy of p with tools attached.
func (p *CompletionParams) WithTools(tools ...Tool) *CompletionParams {
	var cp CompletionParams
	if p != nil {
		cp = *p
	}
	cp.Tools = append(append([]Tool(nil), cp.Tools...), tools...)
	return &cp
}
