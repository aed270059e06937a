package screen

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cactus "github.com/blacktop/go-cactus"
)

func TestDispatcherOrder(t *testing.T) {
	d := NewDispatcher()
	defer func() {
		d.Close()
		<-d.Done()
	}()

	var got []int
	for i := range 100 {
		require.True(t, d.Post(func() { got = append(got, i) }))
	}
	var n int
	require.True(t, d.Invoke(func() { n = len(got) }))
	assert.Equal(t, 100, n)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherClose(t *testing.T) {
	d := NewDispatcher()
	block := make(chan struct{})
	ran := make(chan struct{})
	d.Post(func() {
		close(ran)
		<-block
	})
	<-ran

	var dropped bool
	d.Post(func() { dropped = true })
	d.Close()
	close(block)
	<-d.Done()

	assert.False(t, dropped, "queued work runs after Close")
	assert.False(t, d.Post(func() {}))
	assert.False(t, d.Invoke(func() {}))
}

func TestControlsFor(t *testing.T) {
	tests := []struct {
		state cactus.State
		want  Controls
	}{
		{cactus.StateUnloaded, Controls{Download: true}},
		{cactus.StateDownloading, Controls{}},
		{cactus.StateDownloaded, Controls{Download: true, Initialize: true}},
		{cactus.StateInitializing, Controls{}},
		{cactus.StateReady, Controls{Download: true, Initialize: true, Generate: true}},
		{cactus.StateGenerating, Controls{}},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, ControlsFor(tt.state))
		})
	}
}

func TestFixed(t *testing.T) {
	assert.Equal(t, "42.50", Fixed(42.5, 2))
	assert.Equal(t, "12.00", Fixed(12, 2))
	assert.Equal(t, "0.123", Fixed(0.12345, 3))
	assert.Equal(t, "-0.987", Fixed(-0.9876, 3))
}

func TestCompletionBasic(t *testing.T) {
	env := newEnv(t, "I'm", " fine")
	rec := &recorder[CompletionView]{}
	s := NewCompletionScreen(Basic, env.lm(t), rec.onChange)
	defer s.Dispose()

	s.Generate()
	s.Wait()
	assert.Equal(t, StatusNotReady, s.View().Status)
	assert.Equal(t, Controls{Download: true}, s.Controls())

	s.Download()
	s.Wait()
	assert.Equal(t, StatusDownloaded, s.View().Status)

	s.Initialize()
	s.Wait()
	assert.Equal(t, StatusInitialized, s.View().Status)
	assert.True(t, s.Controls().Generate)

	s.Generate()
	s.Wait()
	v := s.View()
	assert.Equal(t, "Basic completion generated successfully!", v.Status)
	assert.Equal(t, "I'm fine", v.Response)
	assert.InDelta(t, 42.5, v.TPS, 0.001)
	assert.InDelta(t, 12.25, v.TTFT, 0.001)
	assert.False(t, v.Generating)

	msgs, params := env.engine.lastRequest()
	require.Len(t, msgs, 2)
	assert.Equal(t, BasicPrompt, msgs[1].Content)
	assert.Equal(t, 150, *params.MaxTokens)
	assert.Positive(t, rec.count())
}

func TestCompletionStreaming(t *testing.T) {
	env := newEnv(t, "Once", " upon", " a", " time")
	s := NewCompletionScreen(Streaming, env.lm(t), nil)
	defer s.Dispose()

	s.Download()
	s.Wait()
	s.Initialize()
	s.Wait()
	s.Generate()
	s.Wait()

	v := s.View()
	assert.Equal(t, "Streaming completion generated successfully!", v.Status)
	assert.Equal(t, "Once upon a time", v.Response)
	_, params := env.engine.lastRequest()
	assert.Equal(t, 200, *params.MaxTokens)
}

func TestCompletionDownloadError(t *testing.T) {
	env := newEnv(t)
	env.downloader.err = errOffline
	s := NewCompletionScreen(Basic, env.lm(t), nil)
	defer s.Dispose()

	s.Download()
	s.Wait()
	assert.Equal(t, "Error downloading model: failed to download qwen3-0.6: network unreachable", s.View().Status)
	assert.Equal(t, Controls{Download: true}, s.Controls())
}

func TestCompletionCloudNeedsToken(t *testing.T) {
	env := newEnv(t, "Qubits", "!")
	remote := newFakeEngine("Qubits", "!")
	s := NewCompletionScreen(Cloud, env.lm(t, cactus.WithRemoteEngine(remote)), nil)
	defer s.Dispose()

	assert.Equal(t, "Enter your Cactus token and test cloud-based completion.", s.View().Status)
	s.Generate()
	s.Wait()
	assert.Equal(t, "Please enter your Cactus token first.", s.View().Status)

	s.SetToken("  secret ")
	s.Generate()
	s.Wait()
	v := s.View()
	assert.Equal(t, "Cloud completion generated successfully!", v.Status)
	assert.Equal(t, "Qubits!", v.Response)

	msgs, params := remote.lastRequest()
	require.Len(t, msgs, 2)
	assert.Equal(t, CloudPrompt, msgs[1].Content)
	assert.Equal(t, "secret", params.CactusToken)
	assert.Equal(t, cactus.ModeRemote, params.Mode)
}

// Disposing a screen while a completion streams must leave the view frozen:
// no onChange call once Dispose has returned, and the engine is released.
func TestDisposeDuringGeneration(t *testing.T) {
	env := newEnv(t, "partial")
	env.engine.block = true
	env.engine.late = []string{" late", " tokens"}

	rec := &recorder[CompletionView]{}
	s := NewCompletionScreen(Streaming, env.lm(t), rec.onChange)

	s.Download()
	s.Wait()
	s.Initialize()
	s.Wait()
	s.Generate()
	select {
	case <-env.engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not start")
	}

	s.Dispose()
	after := rec.count()
	s.update(func(v *CompletionView) { v.Status = "mutated" })
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, after, rec.count(), "view changed after Dispose")
	assert.NotEqual(t, "mutated", s.View().Status)
	assert.True(t, env.engine.isClosed())

	s.Dispose() // idempotent
}

func TestLaunchAfterDispose(t *testing.T) {
	s := newBase(struct{}{}, nil)
	s.dispose()

	var ran bool
	s.launch(func(context.Context) { ran = true })
	s.Wait()
	assert.False(t, ran)
}

func TestViewIsSnapshot(t *testing.T) {
	s := newBase(ChatView{}, nil)
	defer s.dispose()

	s.update(func(v *ChatView) { v.append(RoleUser, "one") })
	snap := s.View()
	s.update(func(v *ChatView) { v.append(RoleUser, "two") })
	s.Wait()

	require.Len(t, snap.Messages, 1)
	assert.Len(t, s.View().Messages, 2)
}

func TestConcurrentPosts(t *testing.T) {
	s := newBase(0, nil)
	defer s.dispose()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.update(func(v *int) { *v++ })
			}
		}()
	}
	wg.Wait()
	s.Wait()
	assert.Equal(t, 800, s.View())
}

func TestWaitFollowsChainedLaunches(t *testing.T) {
	b := newBase(0, nil)
	defer b.dispose()

	for range 200 {
		b.launch(func(context.Context) {
			b.update(func(v *int) {
				*v++
				b.launch(func(context.Context) {
					b.update(func(v *int) { *v++ })
				})
			})
		})
		b.Wait()
	}
	assert.Equal(t, 400, b.View())
}
