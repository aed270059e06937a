//go:build darwin || linux

package cactus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/apex/log"
	"github.com/ebitengine/purego"
)

const (
	responseBufferSize  = 64 * 1024
	embeddingBufferSize = 8192 // floats
)

// library holds the libcactus handle and its function pointers.
type library struct {
	handle     uintptr
	init       uintptr
	complete   uintptr
	transcribe uintptr
	embed      uintptr
	stop       uintptr
	reset      uintptr
	destroy    uintptr
}

var (
	libMu     sync.Mutex
	libLoaded = map[string]*library{}

	callbackOnce  sync.Once
	tokenCallback uintptr

	callbacksMu    sync.Mutex
	callbacks      = map[uintptr]TokenFunc{}
	nextCallbackID uintptr
)

// openLibrary loads libcactus once per path and resolves its symbols.
func openLibrary(path string) (*library, error) {
	libMu.Lock()
	defer libMu.Unlock()

	if path == "" {
		path = findLibrary()
	}
	if lib, ok := libLoaded[path]; ok {
		return lib, nil
	}

	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %v", path, err)
	}

	lib := &library{handle: handle}
	for name, dst := range map[string]*uintptr{
		"cactus_init":       &lib.init,
		"cactus_complete":   &lib.complete,
		"cactus_transcribe": &lib.transcribe,
		"cactus_embed":      &lib.embed,
		"cactus_stop":       &lib.stop,
		"cactus_reset":      &lib.reset,
		"cactus_destroy":    &lib.destroy,
	} {
		if *dst, err = purego.Dlsym(handle, name); err != nil {
			return nil, fmt.Errorf("failed to load %s: %v", name, err)
		}
	}

	callbackOnce.Do(func() {
		tokenCallback = purego.NewCallback(dispatchToken)
	})

	log.WithField("path", path).Debug("loaded libcactus")
	libLoaded[path] = lib
	return lib, nil
}

// findLibrary returns the first libcactus found, or the bare name for the dynamic loader.
func findLibrary() string {
	name := "libcactus.so"
	if runtime.GOOS == "darwin" {
		name = "libcactus.dylib"
	}
	if env := os.Getenv("CACTUS_LIB"); env != "" {
		return env
	}

	searchPaths := []string{
		name,
		filepath.Join("lib", name),
		filepath.Join("build", name),
	}
	if exe, err := os.Executable(); err == nil {
		searchPaths = append(searchPaths, filepath.Join(filepath.Dir(exe), name))
	}
	searchPaths = append(searchPaths,
		filepath.Join("/usr/local/lib", name),
		filepath.Join("/opt/homebrew/lib", name),
	)

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return name
}

// dispatchToken is the single native token callback; user_data selects the receiver.
func dispatchToken(token unsafe.Pointer, _ uint32, userData uintptr) {
	callbacksMu.Lock()
	fn := callbacks[userData]
	callbacksMu.Unlock()
	if fn != nil {
		fn(goString(token))
	}
}

func registerTokenFunc(fn TokenFunc) (uintptr, func()) {
	if fn == nil {
		return 0, func() {}
	}
	callbacksMu.Lock()
	nextCallbackID++
	id := nextCallbackID
	callbacks[id] = fn
	callbacksMu.Unlock()
	return id, func() {
		callbacksMu.Lock()
		delete(callbacks, id)
		callbacksMu.Unlock()
	}
}

// NativeLoader loads models into libcactus.
type NativeLoader struct {
	LibraryPath string
}

// NewNativeLoader returns a loader for the library at path, or a searched one if empty.
func NewNativeLoader(path string) *NativeLoader {
	return &NativeLoader{LibraryPath: path}
}

// Check loads libcactus and returns the path it was loaded from.
func (l *NativeLoader) Check() (string, error) {
	path := l.LibraryPath
	if path == "" {
		path = findLibrary()
	}
	_, err := openLibrary(path)
	return path, err
}

func (l *NativeLoader) open(modelPath string, contextSize int) (*nativeModel, error) {
	lib, err := openLibrary(l.LibraryPath)
	if err != nil {
		return nil, err
	}
	ptr, _, _ := purego.SyscallN(lib.init, uintptr(cString(modelPath)), uintptr(contextSize), 0)
	if ptr == 0 {
		return nil, fmt.Errorf("cactus_init failed for %s", modelPath)
	}
	m := &nativeModel{lib: lib}
	m.ptr.Store(ptr)
	return m, nil
}

// LoadModel implements Loader.
func (l *NativeLoader) LoadModel(modelPath string, contextSize int) (Engine, error) {
	return l.open(modelPath, contextSize)
}

// LoadTranscriber implements Loader.
func (l *NativeLoader) LoadTranscriber(modelPath string) (Transcriber, error) {
	return l.open(modelPath, DefaultContextSize)
}

// nativeModel is a model pointer owned by libcactus.
// Requests hold mu for reading; Close takes it for writing before destroying.
type nativeModel struct {
	lib *library

	mu  sync.RWMutex
	ptr atomic.Uintptr
}

type nativeOptions struct {
	MaxTokens     int      `json:"max_tokens"`
	Temperature   *float32 `json:"temperature,omitempty"`
	TopP          *float32 `json:"top_p,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

type nativeResponse struct {
	Success            bool          `json:"success"`
	Error              string        `json:"error,omitempty"`
	Response           string        `json:"response"`
	FunctionCalls      []rawToolCall `json:"function_calls,omitempty"`
	TimeToFirstTokenMs float64       `json:"time_to_first_token_ms"`
	TotalTimeMs        float64       `json:"total_time_ms"`
	TokensPerSecond    float64       `json:"tokens_per_second"`
	PrefillTokens      int           `json:"prefill_tokens"`
	DecodeTokens       int           `json:"decode_tokens"`
	TotalTokens        int           `json:"total_tokens"`
}

func (m *nativeModel) Complete(ctx context.Context, msgs []ChatMessage, params *CompletionParams, onToken TokenFunc) (*CompletionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptr := m.ptr.Load()
	if ptr == 0 {
		return nil, ErrUnloaded
	}

	msgJSON, err := json.Marshal(msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal messages: %v", err)
	}
	opts := nativeOptions{MaxTokens: params.maxTokens()}
	if params != nil {
		opts.Temperature = params.Temperature
		opts.TopP = params.TopP
		opts.TopK = params.TopK
		opts.StopSequences = params.StopSequences
	}
	optJSON, err := json.Marshal(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %v", err)
	}
	var cTools unsafe.Pointer
	if tools := params.tools(); len(tools) > 0 {
		toolJSON, err := json.Marshal(tools)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tools: %v", err)
		}
		cTools = cString(string(toolJSON))
	}

	id, release := registerTokenFunc(onToken)
	defer release()
	var cb uintptr
	if id != 0 {
		cb = tokenCallback
	}

	stopOnCancel := context.AfterFunc(ctx, m.Stop)
	defer stopOnCancel()

	buf := make([]byte, responseBufferSize)
	cMsgs, cOpts := cString(string(msgJSON)), cString(string(optJSON))
	ret, _, _ := purego.SyscallN(m.lib.complete,
		ptr,
		uintptr(cMsgs),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(cOpts),
		uintptr(cTools),
		cb,
		id,
	)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(cMsgs)
	runtime.KeepAlive(cOpts)
	runtime.KeepAlive(cTools)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res, err := decodeResponse(buf)
	if err != nil {
		return nil, err
	}
	if int32(ret) < 0 && res.Error == "" {
		res.Error = fmt.Sprintf("cactus_complete returned %d", int32(ret))
	}
	return res.completion()
}

func (m *nativeModel) Embed(ctx context.Context, text string) (*EmbeddingResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptr := m.ptr.Load()
	if ptr == 0 {
		return nil, ErrUnloaded
	}

	buf := make([]float32, embeddingBufferSize)
	var dim uintptr
	cText := cString(text)
	ret, _, _ := purego.SyscallN(m.lib.embed,
		ptr,
		uintptr(cText),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)*4),
		uintptr(unsafe.Pointer(&dim)),
	)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(cText)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if int32(ret) < 0 || dim == 0 {
		return &EmbeddingResult{}, fmt.Errorf("%w: cactus_embed returned %d", ErrGenerationFailed, int32(ret))
	}
	n := min(int(dim), len(buf))
	return &EmbeddingResult{
		Success:    true,
		Embeddings: append([]float32(nil), buf[:n]...),
		Dimension:  n,
	}, nil
}

func (m *nativeModel) Transcribe(ctx context.Context, audioPath string, params TranscriptionParams, onToken TokenFunc) (*TranscriptionResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptr := m.ptr.Load()
	if ptr == 0 {
		return nil, ErrUnloaded
	}

	optJSON, err := json.Marshal(map[string]any{
		"max_tokens":           DefaultMaxTokens,
		"sample_rate":          params.SampleRate,
		"max_duration_ms":      params.MaxDuration.Milliseconds(),
		"max_silence_duration": params.MaxSilenceDuration.Milliseconds(),
		"language":             params.Language,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal options: %v", err)
	}

	id, release := registerTokenFunc(onToken)
	defer release()
	var cb uintptr
	if id != 0 {
		cb = tokenCallback
	}

	stopOnCancel := context.AfterFunc(ctx, m.Stop)
	defer stopOnCancel()

	buf := make([]byte, responseBufferSize)
	cPath, cPrompt, cOpts := cString(audioPath), cString(params.Prompt), cString(string(optJSON))
	purego.SyscallN(m.lib.transcribe,
		ptr,
		uintptr(cPath),
		uintptr(cPrompt),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(len(buf)),
		uintptr(cOpts),
		cb,
		id,
	)
	runtime.KeepAlive(buf)
	runtime.KeepAlive(cPath)
	runtime.KeepAlive(cPrompt)
	runtime.KeepAlive(cOpts)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	res, err := decodeResponse(buf)
	if err != nil {
		return nil, err
	}
	out := &TranscriptionResult{Success: res.Success, Text: res.Response, ProcessingTimeMs: res.TotalTimeMs}
	if !res.Success {
		return out, fmt.Errorf("%w: %s", ErrGenerationFailed, res.Error)
	}
	return out, nil
}

// Stop interrupts a running request. It does not take the model lock.
func (m *nativeModel) Stop() {
	if ptr := m.ptr.Load(); ptr != 0 {
		purego.SyscallN(m.lib.stop, ptr)
	}
}

// Reset clears the KV cache so the next request starts from an empty context.
func (m *nativeModel) Reset() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ptr := m.ptr.Load(); ptr != 0 {
		purego.SyscallN(m.lib.reset, ptr)
	}
}

func (m *nativeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ptr := m.ptr.Swap(0); ptr != 0 {
		purego.SyscallN(m.lib.destroy, ptr)
	}
	return nil
}

func decodeResponse(buf []byte) (*nativeResponse, error) {
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	var res nativeResponse
	if err := json.Unmarshal(buf[:n], &res); err != nil {
		return nil, fmt.Errorf("failed to parse cactus response: %v", err)
	}
	return &res, nil
}

func (r *nativeResponse) completion() (*CompletionResult, error) {
	calls, err := parseToolCalls(r.FunctionCalls)
	if err != nil {
		return nil, err
	}
	res := &CompletionResult{
		Success:            r.Success,
		Response:           r.Response,
		TimeToFirstTokenMs: r.TimeToFirstTokenMs,
		TotalTimeMs:        r.TotalTimeMs,
		TokensPerSecond:    r.TokensPerSecond,
		PrefillTokens:      r.PrefillTokens,
		DecodeTokens:       r.DecodeTokens,
		TotalTokens:        r.TotalTokens,
		ToolCalls:          calls,
	}
	if !r.Success {
		return res, fmt.Errorf("%w: %s", ErrGenerationFailed, r.Error)
	}
	return res, nil
}

// cString creates a null-terminated C string from a Go string
func cString(str string) unsafe.Pointer {
	strBytes := append([]byte(str), 0)
	return unsafe.Pointer(&strBytes[0])
}

// goString converts a C string to a Go string
func goString(cstr unsafe.Pointer) string {
	if cstr == nil {
		return ""
	}
	length := 0
	for *(*byte)(unsafe.Add(cstr, length)) != 0 {
		length++
	}
	return string(unsafe.Slice((*byte)(cstr), length))
}
