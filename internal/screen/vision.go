package screen

import (
	"context"
	"fmt"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
	"github.com/blacktop/go-cactus/internal/picker"
)

// VisionMaxTokens is the decode budget of an image description.
const VisionMaxTokens = 300

// VisionView is the state of a VisionScreen.
type VisionView struct {
	Status    string
	Models    []cactus.Model
	Selected  string // slug of the chosen vision model
	Image     string // normalized path of the picked image
	Response  string
	TPS       float64
	TTFT      float64
	Loading   bool
	Analyzing bool
}

// VisionScreen describes a picked image with a vision-language model.
//
// The quick variant has no model list: it loads DefaultVisionModel as soon as
// the first image is picked.
type VisionScreen struct {
	*base[VisionView]

	lm     *cactus.LM
	setup  setup
	quick  bool
	selImg picker.Selector

	// ImageDir receives the normalized images, os.TempDir() by default.
	ImageDir string
}

// NewVisionScreen creates the vision screen. sel supplies the image chosen by
// the user.
func NewVisionScreen(lm *cactus.LM, sel picker.Selector, onChange func(VisionView)) *VisionScreen {
	return newVisionScreen(lm, sel, false,
		VisionView{Status: "Ready to start. Select a vision model and pick an image."}, onChange)
}

// NewQuickVisionScreen creates the variant bound to DefaultVisionModel.
func NewQuickVisionScreen(lm *cactus.LM, sel picker.Selector, onChange func(VisionView)) *VisionScreen {
	return newVisionScreen(lm, sel, true,
		VisionView{Status: "Pick an image to get started.", Selected: cactus.DefaultVisionModel}, onChange)
}

func newVisionScreen(lm *cactus.LM, sel picker.Selector, quick bool, view VisionView, onChange func(VisionView)) *VisionScreen {
	s := &VisionScreen{
		base:   newBase(view, onChange),
		lm:     lm,
		quick:  quick,
		selImg: sel,
	}
	s.setup = setup{lm: lm, status: s.setStatus}
	return s
}

func (s *VisionScreen) setStatus(msg string) {
	s.update(func(v *VisionView) { v.Status = msg })
}

// Controls reports the enabled buttons.
func (s *VisionScreen) Controls() Controls {
	return ControlsFor(s.lm.State())
}

// LoadModels fetches the catalog and keeps the vision models. The first one
// is selected.
func (s *VisionScreen) LoadModels() {
	s.launch(func(ctx context.Context) {
		models, err := s.lm.GetModels(ctx)
		if err != nil {
			log.WithError(err).Error("failed to fetch vision models")
			s.setStatus(fmt.Sprintf("Error fetching models: %v", err))
			return
		}
		vision := cactus.FilterModels(models, func(m cactus.Model) bool { return m.SupportsVision })
		s.update(func(v *VisionView) {
			v.Models = vision
			if len(vision) > 0 {
				v.Selected = vision[0].Slug
			}
		})
	})
}

// Select chooses the vision model to download and initialize.
func (s *VisionScreen) Select(slug string) {
	s.update(func(v *VisionView) { v.Selected = slug })
}

// withSelected runs fn in the background with the selected model.
func (s *VisionScreen) withSelected(fn func(ctx context.Context, slug string)) {
	s.ui.Post(func() {
		slug := s.view.Selected
		if slug == "" {
			s.view.Status = "Please select a vision model first."
			if s.onChange != nil {
				s.onChange(s.view)
			}
			return
		}
		s.launch(func(ctx context.Context) { fn(ctx, slug) })
	})
}

// Download fetches the selected model.
func (s *VisionScreen) Download() {
	s.withSelected(func(ctx context.Context, slug string) { s.setup.download(ctx, slug) })
}

// Initialize loads the selected model.
func (s *VisionScreen) Initialize() {
	s.withSelected(func(ctx context.Context, slug string) {
		s.setup.initialize(ctx, cactus.InitParams{Model: slug},
			"Model initialized successfully! Pick an image to analyze.")
	})
}

// PickImage asks the selector for an image and normalizes it.
func (s *VisionScreen) PickImage() {
	s.launch(func(ctx context.Context) {
		l := &picker.Launcher{
			MIMEType:   "image/*",
			Dir:        s.ImageDir,
			Select:     s.selImg,
			OnSelected: s.picked,
		}
		l.Launch(ctx)
		l.Wait()
	})
}

func (s *VisionScreen) picked(path string, err error) {
	s.ui.Post(func() {
		switch {
		case err != nil || path == "":
			s.view.Status = "No image selected or an error occurred."
		case s.quick && s.lm.State() != cactus.StateReady:
			s.view.Image = path
			if !s.view.Loading {
				s.view.Loading = true
				s.view.Status = "Loading vision model..."
				s.launch(s.loadQuick)
			}
		default:
			s.view.Image = path
			s.view.Status = `Image selected! Click "Analyze Image" to process.`
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

func (s *VisionScreen) loadQuick(ctx context.Context) {
	model := cactus.DefaultVisionModel
	err := s.lm.DownloadModel(ctx, model)
	if err == nil {
		s.setStatus(StatusInitializing)
		err = s.lm.InitializeModel(ctx, cactus.InitParams{Model: model})
	}
	s.update(func(v *VisionView) {
		v.Loading = false
		if err != nil {
			log.WithError(err).WithField("model", model).Error("failed to load vision model")
			v.Status = fmt.Sprintf("Error loading model: %v", err)
			return
		}
		v.Status = `Ready! Click "Analyze Image" to process.`
	})
}

// Analyze streams a description of the picked image.
func (s *VisionScreen) Analyze() {
	s.ui.Post(func() {
		if s.view.Analyzing {
			return
		}
		switch {
		case s.lm.State() != cactus.StateReady && s.quick:
			s.view.Status = "Please wait for model to load."
		case s.lm.State() != cactus.StateReady:
			s.view.Status = StatusNotReady
		case s.view.Image == "":
			s.view.Status = "Please pick an image first."
		default:
			s.view.Analyzing = true
			s.view.Response = ""
			s.view.Status = "Analyzing image..."
			image := s.view.Image
			s.launch(func(ctx context.Context) { s.analyze(ctx, image) })
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

func (s *VisionScreen) analyze(ctx context.Context, image string) {
	msgs := []cactus.ChatMessage{
		{Role: cactus.RoleSystem, Content: VisionSystemPrompt},
		{Role: cactus.RoleUser, Content: VisionPrompt, Images: []string{image}},
	}
	res, err := s.lm.GenerateCompletion(ctx, msgs, cactus.WithMaxTokens(VisionMaxTokens), func(tok string) {
		s.update(func(v *VisionView) { v.Response += tok })
	})
	s.update(func(v *VisionView) {
		v.Analyzing = false
		switch {
		case err != nil:
			log.WithError(err).WithField("image", image).Error("image analysis failed")
			v.Status = fmt.Sprintf("Error analyzing image: %v", err)
			v.TPS, v.TTFT = 0, 0
		case res == nil || !res.Success:
			v.Status = "Failed to analyze image."
			v.TPS, v.TTFT = 0, 0
		default:
			v.TPS = res.TokensPerSecond
			v.TTFT = res.TimeToFirstTokenMs
			if v.Response == "" {
				v.Response = res.Response
			}
			if s.quick {
				v.Status = "Image analysis completed!"
			} else {
				v.Status = "Image analysis completed successfully!"
			}
		}
	})
}

// Dispose implements Screen.
func (s *VisionScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
