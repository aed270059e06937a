package screen

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/sync/errgroup"

	cactus "github.com/blacktop/go-cactus"
)

// ScriptedReply is the answer to the first message of a voice chat.
const ScriptedReply = "Sure! I'll find the best route to the Tower of London for you. Opening the map now..."

// Voice statuses of a VoiceChatScreen.
const (
	STTListening  = "Listening... Speak now!"
	STTVoiceReady = "Voice ready - tap mic to speak"
)

// VoiceChatView is the state of a VoiceChatScreen.
type VoiceChatView struct {
	Conversation
	STTStatus    string
	STTReady     bool
	Transcribing bool
	DateTime     string
	SentFirst    bool
}

// VoiceChatScreen ("Samantha") is a chat that also accepts spoken input.
// The first message gets a scripted reply and opens the map.
type VoiceChatScreen struct {
	chat[VoiceChatView]

	stt *cactus.STT

	// OnNavigate is called on the dispatcher once the scripted reply was shown.
	OnNavigate func()
	// TypingDelay and ReadDelay pace the scripted reply.
	TypingDelay time.Duration
	ReadDelay   time.Duration
	// Now is the clock source, time.Now by default.
	Now func() time.Time
}

// NewVoiceChatScreen creates the voice chat around lm and stt.
func NewVoiceChatScreen(lm *cactus.LM, stt *cactus.STT, onChange func(VoiceChatView)) *VoiceChatScreen {
	return &VoiceChatScreen{
		chat: chat[VoiceChatView]{
			base: newBase(VoiceChatView{
				Conversation: Conversation{Loading: true},
				STTStatus:    "Loading voice model...",
			}, onChange),
			lm:   lm,
			conv: func(v *VoiceChatView) *Conversation { return &v.Conversation },
		},
		stt:         stt,
		TypingDelay: 1500 * time.Millisecond,
		ReadDelay:   2 * time.Second,
		Now:         time.Now,
	}
}

func (s *VoiceChatScreen) sttStatus(msg string) {
	s.update(func(v *VoiceChatView) { v.STTStatus = msg })
}

// Start prepares the chat and voice models in parallel and starts the clock.
func (s *VoiceChatScreen) Start() {
	s.launch(func(ctx context.Context) {
		tick(ctx, time.Second, s.Now, func(now string) {
			s.update(func(v *VoiceChatView) { v.DateTime = now })
		})
	})
	s.launch(func(ctx context.Context) {
		var g errgroup.Group
		g.Go(func() error {
			if err := s.prepare(ctx); err != nil {
				return fmt.Errorf("error setting up chat model: %w", err)
			}
			return nil
		})
		g.Go(func() error { return s.prepareVoice(ctx) })
		if err := g.Wait(); err != nil {
			log.WithError(err).Error("voice chat setup failed")
		}
	})
}

func (s *VoiceChatScreen) prepareVoice(ctx context.Context) error {
	s.sttStatus("Downloading voice model...")
	if err := s.stt.Download(ctx, ""); err != nil {
		s.sttStatus("Failed to download model")
		return err
	}
	s.sttStatus("Initializing voice...")
	if err := s.stt.Init(ctx, ""); err != nil {
		s.sttStatus("Failed to initialize model")
		return err
	}
	s.update(func(v *VoiceChatView) {
		v.STTReady = true
		v.STTStatus = "Tap mic to speak"
	})
	return nil
}

// Send posts a typed message. The first one gets the scripted reply.
func (s *VoiceChatScreen) Send(text string) {
	s.ui.Post(func() {
		if s.view.SentFirst {
			s.send(text, nil)
			return
		}
		if strings.TrimSpace(text) == "" || s.view.Generating {
			return
		}
		s.view.SentFirst = true
		s.send(text, s.scripted)
	})
}

func (s *VoiceChatScreen) scripted(ctx context.Context) {
	if !sleep(ctx, s.TypingDelay) {
		return
	}
	s.update(func(v *VoiceChatView) {
		v.dropTyping()
		v.append(RoleAssistant, ScriptedReply)
		v.Generating = false
	})
	if !sleep(ctx, s.ReadDelay) {
		return
	}
	s.ui.Post(func() {
		if s.OnNavigate != nil {
			s.OnNavigate()
		}
	})
}

// TranscribeAndSend transcribes path, or records from the audio source when
// path is empty, and sends the text as a message.
func (s *VoiceChatScreen) TranscribeAndSend(path string) {
	s.ui.Post(func() {
		if !s.view.STTReady {
			s.view.STTStatus = "Please initialize voice model first"
			if s.onChange != nil {
				s.onChange(s.view)
			}
			return
		}
		s.view.Transcribing = true
		s.view.STTStatus = STTListening
		if s.onChange != nil {
			s.onChange(s.view)
		}
		s.launch(func(ctx context.Context) { s.transcribe(ctx, path) })
	})
}

func (s *VoiceChatScreen) transcribe(ctx context.Context, path string) {
	res, err := s.stt.Transcribe(ctx, cactus.DefaultTranscriptionParams(), path, nil)
	s.update(func(v *VoiceChatView) { v.Transcribing = false })
	switch {
	case err != nil:
		s.sttStatus(fmt.Sprintf("Error: %v", err))
	case res != nil && res.Success && strings.TrimSpace(res.Text) != "":
		s.sttStatus(STTVoiceReady)
		s.Send(res.Text)
	default:
		s.sttStatus("Could not understand audio. Try again.")
	}
}

// StopTranscription ends the recording so it gets processed.
func (s *VoiceChatScreen) StopTranscription() {
	s.sttStatus("Processing...")
	s.stt.Stop()
}

// Dispose implements Screen.
func (s *VoiceChatScreen) Dispose() {
	s.dispose(s.lm.Unload, s.stt.Unload)
}

// sleep waits for d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
