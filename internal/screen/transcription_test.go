package screen

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cactus "github.com/blacktop/go-cactus"
)

type sttFactory struct {
	env   *env
	extra []cactus.Option

	mu      sync.Mutex
	created []Provider
}

func (f *sttFactory) new(p Provider, progress cactus.ProgressFunc) *cactus.STT {
	f.mu.Lock()
	f.created = append(f.created, p)
	f.mu.Unlock()
	opts := append(f.env.options(f.extra...), cactus.WithProgress(progress))
	return cactus.NewSTT(opts...)
}

func (f *sttFactory) providers() []Provider {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Provider(nil), f.created...)
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF....WAVEfmt "), 0o644))
	return path
}

func TestTranscriptionFile(t *testing.T) {
	env := newEnv(t)
	env.engine.text = "hello from a file"
	f := &sttFactory{env: env}
	s := NewTranscriptionScreen(f.new, selectPath(writeAudio(t)), nil)
	s.AudioDir = t.TempDir()
	defer s.Dispose()

	assert.Equal(t, "Ready to start. Select a model and initialize to begin.", s.View().Status)

	s.TranscribeFile()
	s.Wait()
	assert.Equal(t, "Please initialize the model first.", s.View().Status)

	s.LoadModels()
	s.Wait()
	v := s.View()
	assert.Equal(t, "Models loaded. Select model and click 'Download & Initialize Model' to begin.", v.Status)
	assert.Equal(t, cactus.DefaultVoiceModel, v.Selected)

	s.Prepare()
	s.Wait()
	v = s.View()
	assert.Equal(t, "Model downloaded and initialized successfully! Ready to transcribe audio.", v.Status)
	assert.True(t, v.Loaded)
	assert.False(t, v.Preparing)
	assert.Empty(t, v.Progress)

	s.TranscribeFile()
	s.Wait()
	v = s.View()
	assert.Equal(t, "File transcription completed successfully!", v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, "hello from a file", v.Result.Text)
	assert.False(t, v.Transcribing)
}

func TestTranscriptionFileCancelled(t *testing.T) {
	env := newEnv(t)
	f := &sttFactory{env: env}
	s := NewTranscriptionScreen(f.new, selectPath(""), nil)
	defer s.Dispose()

	s.Prepare()
	s.Wait()
	s.TranscribeFile()
	s.Wait()
	assert.Equal(t, "File selection cancelled.", s.View().Status)
}

func TestTranscriptionCatalogFallback(t *testing.T) {
	env := newEnv(t)
	f := &sttFactory{env: env, extra: []cactus.Option{cactus.WithCatalog(failingCatalog{})}}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.LoadModels()
	s.Wait()
	v := s.View()
	assert.Equal(t, "Network error loading models. Using default model", v.Status)
	assert.Equal(t, cactus.DefaultVoiceModel, v.Selected)
	assert.True(t, v.UsingDefault)
}

func TestTranscriptionDownloadFails(t *testing.T) {
	env := newEnv(t)
	env.downloader.err = errOffline
	f := &sttFactory{env: env}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.Select(cactus.DefaultVoiceModel)
	s.Prepare()
	s.Wait()
	v := s.View()
	assert.Equal(t, "Failed to download model.", v.Status)
	assert.False(t, v.Loaded)
}

func TestTranscriptionMicrophone(t *testing.T) {
	env := newEnv(t)
	env.engine.text = "spoken words"
	env.engine.block = true
	f := &sttFactory{env: env, extra: []cactus.Option{cactus.WithAudioSource(recordTo(writeAudio(t)))}}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.Select(cactus.DefaultVoiceModel)
	s.Prepare()
	s.Wait()

	s.TranscribeMicrophone()
	<-env.engine.started
	s.Stop()
	s.Wait()

	v := s.View()
	assert.Equal(t, "Transcription completed successfully!", v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, "spoken words", v.Result.Text)
}

func TestTranscriptionStopEndsRecording(t *testing.T) {
	env := newEnv(t)
	env.engine.text = "captured so far"
	mic := newMicrophone(writeAudio(t))
	f := &sttFactory{env: env, extra: []cactus.Option{cactus.WithAudioSource(mic)}}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.Select(cactus.DefaultVoiceModel)
	s.Prepare()
	s.Wait()

	s.TranscribeMicrophone()
	<-mic.started
	s.Stop()
	s.Wait()

	v := s.View()
	assert.Equal(t, "Transcription completed successfully!", v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, "captured so far", v.Result.Text)
	assert.True(t, v.Loaded)
}

func TestTranscriptionProviderSwitch(t *testing.T) {
	env := newEnv(t)
	f := &sttFactory{env: env}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.SetProvider(ProviderWhisper)
	s.Wait()
	assert.Equal(t, []Provider{ProviderWhisper}, f.providers())

	s.Select("other")
	s.SetProvider("moonshine")
	s.Wait()
	v := s.View()
	assert.Equal(t, Provider("moonshine"), v.Provider)
	assert.Equal(t, cactus.DefaultVoiceModel, v.Selected)
	assert.Equal(t, []Provider{ProviderWhisper, "moonshine"}, f.providers())
}

func TestTranscriptionProviderSwitchWhilePreparing(t *testing.T) {
	env := newEnv(t)
	env.downloader.hold = make(chan struct{})
	f := &sttFactory{env: env}
	s := NewTranscriptionScreen(f.new, nil, nil)
	defer s.Dispose()

	s.Select(cactus.DefaultVoiceModel)
	s.Prepare()
	require.Eventually(t, func() bool { return s.View().Preparing }, waitFor, pollEvery)

	s.SetProvider("moonshine")
	v := s.View()
	assert.Equal(t, ProviderWhisper, v.Provider)
	assert.True(t, v.Preparing)
	assert.Equal(t, []Provider{ProviderWhisper}, f.providers())

	close(env.downloader.hold)
	s.Wait()
	v = s.View()
	assert.Equal(t, "Model downloaded and initialized successfully! Ready to transcribe audio.", v.Status)
	assert.True(t, v.Loaded)
	assert.Equal(t, ProviderWhisper, v.Provider)
}
