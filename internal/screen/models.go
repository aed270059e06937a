package screen

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"

	cactus "github.com/blacktop/go-cactus"
)

// ModelsView is the state of a ModelsScreen.
type ModelsView struct {
	Status  string
	Models  []cactus.Model
	Err     error // last fetch failure
	Loading bool
}

// ModelsScreen lists the catalog.
type ModelsScreen struct {
	*base[ModelsView]
	lm *cactus.LM
}

// NewModelsScreen creates the catalog browser.
func NewModelsScreen(lm *cactus.LM, onChange func(ModelsView)) *ModelsScreen {
	return &ModelsScreen{
		base: newBase(ModelsView{Status: `Click "Fetch Models" to load available models.`}, onChange),
		lm:   lm,
	}
}

// Fetch loads the catalog.
func (s *ModelsScreen) Fetch() {
	s.ui.Post(func() {
		if s.view.Loading {
			return
		}
		s.view.Loading = true
		s.view.Status = "Fetching available models..."
		if s.onChange != nil {
			s.onChange(s.view)
		}
		s.launch(s.fetch)
	})
}

func (s *ModelsScreen) fetch(ctx context.Context) {
	models, err := s.lm.GetModels(ctx)
	s.update(func(v *ModelsView) {
		v.Loading = false
		v.Err = err
		if err != nil {
			log.WithError(err).Error("failed to fetch models")
			v.Status = fmt.Sprintf("Error fetching models: %v", err)
			return
		}
		v.Models = models
		v.Status = fmt.Sprintf("Found %d available models. Browse the list below.", len(models))
	})
}

// Features lists the capabilities of m, e.g. "Tool Calling, Vision".
func Features(m cactus.Model) string {
	var f []string
	if m.SupportsToolCalling {
		f = append(f, "Tool Calling")
	}
	if m.SupportsVision {
		f = append(f, "Vision")
	}
	return strings.Join(f, ", ")
}

// Dispose implements Screen.
func (s *ModelsScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
