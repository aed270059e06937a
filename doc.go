/*
Package cactus provides a Go client for the cactus on-device inference runtime.

The runtime (libcactus) is loaded at run time with purego, so no cgo toolchain is
needed. Models are fetched from a catalog into a local cache, loaded into a native
engine and then used for text completion, embeddings, vision and speech-to-text.
An OpenAI compatible cloud endpoint can serve completions when no local model is
loaded, or as a fallback.

# Features

• Explicit model lifecycle with one operation in flight per handle
• Streaming completions through a callback or a channel based Stream
• Function calling with tool definitions and argument validation
• Embeddings and vision (images attached to chat messages)
• Speech-to-text with CactusSTT compatible semantics
• Local, remote, local-first and remote-first inference modes
• Prometheus instrumentation of every lifecycle operation

# Lifecycle

Every handle walks the same state machine:

	Unloaded -> Downloading -> Downloaded -> Initializing -> Ready -> Generating -> Ready
	                  |                            |
	                  +-> Unloaded (failure)       +-> Downloaded (failure)

Unload is valid from any state. It stops in-flight work, waits for it to return and
releases the native engine. A second operation started while one is running fails
with ErrBusy instead of queuing.

# Basic Usage

	lm := cactus.NewLM(cactus.WithCacheDir("~/.cache/cactus"))
	defer lm.Unload()

	if err := lm.DownloadModel(ctx, "qwen3-0.6"); err != nil {
		log.Fatal(err)
	}
	if err := lm.InitializeModel(ctx, cactus.InitParams{Model: "qwen3-0.6", ContextSize: 2048}); err != nil {
		log.Fatal(err)
	}

	res, err := lm.GenerateCompletion(ctx, []cactus.ChatMessage{
		{Role: cactus.RoleUser, Content: "Hi, how are you?"},
	}, cactus.WithMaxTokens(150), nil)

# Streaming

Pass a TokenFunc to receive tokens as they are produced. Tokens arrive in order and
never after GenerateCompletion has returned or the handle has been unloaded:

	res, err := lm.GenerateCompletion(ctx, msgs, nil, func(token string) {
		fmt.Print(token)
	})

Or range over a Stream, cancelling the context to stop generation:

	stream := lm.GenerateCompletionStream(ctx, msgs, nil)
	for tok := range stream.Tokens() {
		fmt.Print(tok)
	}
	res, err := stream.Result()

# Tools

	weather := cactus.CreateTool("get_weather", "Get current weather for a location",
		map[string]cactus.ToolParameter{
			"location": {Type: "string", Description: "City name", Required: true},
			"units":    {Type: "string", Description: "celsius or fahrenheit"},
		})

	params := cactus.WithMaxTokens(200)
	params.Tools = []cactus.Tool{weather}
	res, err := lm.GenerateCompletion(ctx, msgs, params, nil)
	for _, call := range res.ToolCalls {
		fmt.Println(call.Name, call.Arguments)
	}

# Speech to text

	stt := cactus.NewSTT()
	defer stt.Unload()

	_ = stt.Download(ctx, "whisper-tiny")
	_ = stt.Init(ctx, "whisper-tiny")
	res, err := stt.Transcribe(ctx, cactus.DefaultTranscriptionParams(), "/tmp/audio.wav")

# Native library

The runtime is looked up in CACTUS_LIB, then next to the executable and in the
usual system library directories. Use WithLoader to inject another Loader.
*/
package cactus
