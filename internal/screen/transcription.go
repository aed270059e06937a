package screen

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/picker"
)

// Provider is a speech-to-text backend.
type Provider string

// ProviderWhisper is the only backend shipped today.
const ProviderWhisper Provider = "whisper"

// STTFactory creates a speech-to-text handle for a provider. progress receives
// the download progress of that handle.
type STTFactory func(p Provider, progress cactus.ProgressFunc) *cactus.STT

const transcriptionStart = "Ready to start. Select a model and initialize to begin."

// TranscriptionView is the state of a TranscriptionScreen.
type TranscriptionView struct {
	Status       string
	Progress     string
	Provider     Provider
	Models       []cactus.Model
	Selected     string
	UsingDefault bool // the catalog was unreachable
	Loaded       bool
	Preparing    bool // download and initialize running
	Transcribing bool
	Result       *cactus.TranscriptionResult
}

// TranscriptionScreen transcribes the microphone or an audio file.
type TranscriptionScreen struct {
	*base[TranscriptionView]

	newSTT   STTFactory
	stt      atomic.Pointer[cactus.STT]
	selAudio picker.Selector

	// AudioDir receives the copied audio files, os.TempDir() by default.
	AudioDir string
}

// NewTranscriptionScreen creates the screen with a whisper handle.
func NewTranscriptionScreen(newSTT STTFactory, sel picker.Selector, onChange func(TranscriptionView)) *TranscriptionScreen {
	s := &TranscriptionScreen{
		base: newBase(TranscriptionView{
			Status:   transcriptionStart,
			Provider: ProviderWhisper,
			Selected: "tiny",
		}, onChange),
		newSTT:   newSTT,
		selAudio: sel,
	}
	s.stt.Store(newSTT(ProviderWhisper, s.progress))
	return s
}

func (s *TranscriptionScreen) setStatus(msg string) {
	s.update(func(v *TranscriptionView) { v.Status = msg })
}

func (s *TranscriptionScreen) progress(done, total int64) {
	var text string
	if total > 0 {
		text = fmt.Sprintf("Downloading: %d%%", done*100/total)
	} else {
		text = fmt.Sprintf("Downloading: %.1f MB", float64(done)/(1<<20))
	}
	s.update(func(v *TranscriptionView) {
		if v.Preparing {
			v.Progress = text
		}
	})
}

// SetProvider switches the backend. The old handle is unloaded and the screen
// starts over. It is ignored while a model is loaded or being prepared.
func (s *TranscriptionScreen) SetProvider(p Provider) {
	s.ui.Post(func() {
		if s.view.Loaded || s.view.Preparing || s.view.Provider == p {
			return
		}
		old := s.stt.Swap(s.newSTT(p, s.progress))
		old.Unload()
		s.view = TranscriptionView{Status: transcriptionStart, Provider: p, Selected: "tiny"}
		if s.onChange != nil {
			s.onChange(s.view)
		}
		s.launch(s.loadModels)
	})
}

// LoadModels lists the voice models. On failure the default model is used.
func (s *TranscriptionScreen) LoadModels() {
	s.launch(s.loadModels)
}

func (s *TranscriptionScreen) loadModels(ctx context.Context) {
	models, err := s.stt.Load().GetVoiceModels(ctx)
	s.update(func(v *TranscriptionView) {
		if err != nil {
			log.WithError(err).Warn("failed to fetch voice models")
			v.Models = nil
			v.Selected = cactus.DefaultVoiceModel
			v.UsingDefault = true
			v.Status = "Network error loading models. Using default model"
			return
		}
		v.Models = models
		v.UsingDefault = false
		if len(models) == 0 {
			v.Status = "No models available."
			return
		}
		if !hasModel(models, v.Selected) {
			v.Selected = models[0].Slug
		}
		v.Status = "Models loaded. Select model and click 'Download & Initialize Model' to begin."
	})
}

func hasModel(models []cactus.Model, slug string) bool {
	for _, m := range models {
		if m.Slug == slug {
			return true
		}
	}
	return false
}

// Select chooses the voice model.
func (s *TranscriptionScreen) Select(slug string) {
	s.update(func(v *TranscriptionView) { v.Selected = slug })
}

// Prepare downloads and initializes the selected model.
func (s *TranscriptionScreen) Prepare() {
	s.ui.Post(func() {
		if s.view.Preparing {
			return
		}
		s.view.Preparing = true
		s.view.Status = "Downloading and initializing model..."
		s.view.Progress = "Starting download..."
		if s.onChange != nil {
			s.onChange(s.view)
		}
		model := s.view.Selected
		s.launch(func(ctx context.Context) { s.prepare(ctx, model) })
	})
}

func (s *TranscriptionScreen) prepare(ctx context.Context, model string) {
	stt := s.stt.Load()
	defer s.update(func(v *TranscriptionView) {
		v.Preparing = false
		v.Progress = ""
	})

	if err := stt.Download(ctx, model); err != nil {
		log.WithError(err).WithField("model", model).Error("voice model download failed")
		s.setStatus("Failed to download model.")
		return
	}
	s.setStatus("Model downloaded successfully! Initializing...")
	if err := stt.Init(ctx, model); err != nil {
		log.WithError(err).WithField("model", model).Error("voice model init failed")
		s.setStatus("Failed to initialize model.")
		return
	}
	s.update(func(v *TranscriptionView) {
		v.Loaded = true
		v.Status = "Model downloaded and initialized successfully! Ready to transcribe audio."
	})
}

// startTranscription flags the view and runs fn, unless no model is loaded.
func (s *TranscriptionScreen) startTranscription(status string, fn func(ctx context.Context)) {
	s.ui.Post(func() {
		if s.view.Transcribing {
			return
		}
		if !s.view.Loaded {
			s.view.Status = "Please initialize the model first."
		} else {
			s.view.Transcribing = true
			s.view.Status = status
			s.launch(fn)
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

// TranscribeMicrophone records from the audio source and transcribes it.
func (s *TranscriptionScreen) TranscribeMicrophone() {
	s.startTranscription("Listening for audio... Speak now!", func(ctx context.Context) {
		s.transcribe(ctx, "", "Transcription completed successfully!",
			"Failed to transcribe audio.", "Error during transcription: %v")
	})
}

// TranscribeFile asks the selector for an audio file and transcribes a copy.
func (s *TranscriptionScreen) TranscribeFile() {
	s.ui.Post(func() {
		if !s.view.Loaded {
			s.view.Status = "Please initialize the model first."
			if s.onChange != nil {
				s.onChange(s.view)
			}
			return
		}
		s.launch(func(ctx context.Context) {
			l := &picker.Launcher{
				MIMEType:   "audio/*",
				Dir:        s.AudioDir,
				Select:     s.selAudio,
				OnSelected: s.picked,
			}
			l.Launch(ctx)
			l.Wait()
		})
	})
}

func (s *TranscriptionScreen) picked(path string, err error) {
	if err != nil || path == "" {
		s.setStatus("File selection cancelled.")
		return
	}
	s.startTranscription("Transcribing audio file: "+filepath.Base(path), func(ctx context.Context) {
		s.transcribe(ctx, path, "File transcription completed successfully!",
			"Failed to transcribe audio file.", "Error during file transcription: %v")
	})
}

func (s *TranscriptionScreen) transcribe(ctx context.Context, path, done, failed, errFormat string) {
	params := cactus.DefaultTranscriptionParams()
	if path != "" {
		params.MaxDuration, params.MaxSilenceDuration = 0, 0
	}
	res, err := s.stt.Load().Transcribe(ctx, params, path, nil)
	s.update(func(v *TranscriptionView) {
		v.Transcribing = false
		switch {
		case err != nil:
			log.WithError(err).WithField("file", path).Error("transcription failed")
			v.Status = fmt.Sprintf(errFormat, err)
			v.Result = nil
		case res == nil || !res.Success:
			v.Status = failed
			if res != nil && res.Text != "" {
				v.Status = res.Text
			}
			v.Result = nil
		default:
			v.Result = res
			v.Status = done
		}
	})
}

// Stop ends the recording so it gets processed.
func (s *TranscriptionScreen) Stop() {
	s.whileTranscribing("Transcribing...")
	s.stt.Load().Stop()
	s.whileTranscribing("Processing recorded audio...")
}

func (s *TranscriptionScreen) whileTranscribing(msg string) {
	s.update(func(v *TranscriptionView) {
		if v.Transcribing {
			v.Status = msg
		}
	})
}

// Dispose implements Screen.
func (s *TranscriptionScreen) Dispose() {
	s.dispose(func() { s.stt.Load().Unload() })
}
