package cactus

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTokensThenResult(t *testing.T) {
	env := newTestLM(t)
	env.ready(t)

	stream := env.lm.GenerateCompletionStream(context.Background(), userMsg("Tell me a short story about a robot learning to paint."), WithMaxTokens(200))

	var sb strings.Builder
	for tok := range stream.Tokens() {
		sb.WriteString(tok)
	}
	res, err := stream.Result()
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", sb.String())
	assert.Equal(t, res.Response, sb.String())
}

func TestStreamCancel(t *testing.T) {
	env := newTestLM(t)
	env.ready(t)
	env.engine.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	stream := env.lm.GenerateCompletionStream(ctx, userMsg("long"), nil)
	<-env.engine.started
	cancel()

	res, err := stream.Result()
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, StateReady, env.lm.State())

	for range stream.Tokens() {
	}
}

func TestStreamCloseWithoutDraining(t *testing.T) {
	env := newTestLM(t)
	env.ready(t)

	stream := env.lm.GenerateCompletionStream(context.Background(), userMsg("q"), nil)
	stream.Close()
	_, _ = stream.Result()

	for range stream.Tokens() {
	}
}
