package screen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/apex/log"
	chromem "github.com/philippgille/chromem-go"

	cactus "github.com/blacktop/go-cactus"
)

// DefaultEmbeddingText is the preset input of the embedding demo.
const DefaultEmbeddingText = "What's the weather in New York?"

// Match is one ranked candidate of a similarity search.
type Match struct {
	Text       string
	Similarity float32
}

// EmbeddingView is the state of an EmbeddingScreen.
type EmbeddingView struct {
	Status     string
	Text       string
	Result     string // formatted summary of the last embedding
	Dimension  int
	Preview    []float32
	Matches    []Match
	Generating bool
}

// EmbeddingScreen embeds text and ranks candidates by similarity.
type EmbeddingScreen struct {
	*base[EmbeddingView]

	lm    *cactus.LM
	setup setup
}

// NewEmbeddingScreen creates an embedding screen around lm.
func NewEmbeddingScreen(lm *cactus.LM, onChange func(EmbeddingView)) *EmbeddingScreen {
	s := &EmbeddingScreen{
		base: newBase(EmbeddingView{Status: StatusStart, Text: DefaultEmbeddingText}, onChange),
		lm:   lm,
	}
	s.setup = setup{lm: lm, status: func(msg string) {
		s.update(func(v *EmbeddingView) { v.Status = msg })
	}}
	return s
}

// Controls reports the enabled buttons.
func (s *EmbeddingScreen) Controls() Controls {
	return ControlsFor(s.lm.State())
}

// SetText sets the text to embed.
func (s *EmbeddingScreen) SetText(text string) {
	s.update(func(v *EmbeddingView) { v.Text = text })
}

// Download fetches the default model.
func (s *EmbeddingScreen) Download() {
	s.launch(func(ctx context.Context) { s.setup.download(ctx, "") })
}

// Initialize loads the downloaded model.
func (s *EmbeddingScreen) Initialize() {
	s.launch(func(ctx context.Context) {
		s.setup.initialize(ctx, cactus.InitParams{}, StatusInitialized)
	})
}

// start marks the view busy and runs fn with the current text, unless the
// model is not ready or another request is running.
func (s *EmbeddingScreen) start(status string, fn func(ctx context.Context, text string)) {
	s.ui.Post(func() {
		if s.view.Generating {
			return
		}
		if s.lm.State() != cactus.StateReady {
			s.view.Status = StatusNotReady
		} else {
			s.view.Generating = true
			s.view.Status = status
			text := s.view.Text
			s.launch(func(ctx context.Context) { fn(ctx, text) })
		}
		if s.onChange != nil {
			s.onChange(s.view)
		}
	})
}

// Generate embeds the current text.
func (s *EmbeddingScreen) Generate() {
	s.start("Generating embedding...", s.generate)
}

func (s *EmbeddingScreen) generate(ctx context.Context, text string) {
	res, err := s.lm.GenerateEmbedding(ctx, text)
	s.update(func(v *EmbeddingView) {
		v.Generating = false
		switch {
		case err != nil:
			log.WithError(err).Error("embedding failed")
			v.Status = fmt.Sprintf("Error generating embedding: %v", err)
		case res == nil || !res.Success:
			v.Status = "Failed to generate embedding."
		default:
			v.Dimension = res.Dimension
			v.Preview = res.Embeddings[:min(10, len(res.Embeddings))]
			v.Result = summarize(text, res)
			v.Status = "Embedding generation completed successfully!"
		}
	})
}

func summarize(text string, res *cactus.EmbeddingResult) string {
	preview := make([]string, 0, 10)
	for _, f := range res.Embeddings[:min(10, len(res.Embeddings))] {
		preview = append(preview, Fixed(float64(f), 3))
	}
	var sb strings.Builder
	sb.WriteString("✅ Embedding Generated Successfully!\n\n")
	fmt.Fprintf(&sb, "📊 Dimensions: %d\n", res.Dimension)
	fmt.Fprintf(&sb, "📏 Vector Length: %d\n", len(res.Embeddings))
	fmt.Fprintf(&sb, "🔍 First 10 values: [%s...]\n\n", strings.Join(preview, ", "))
	sb.WriteString("📝 Input Text:\n")
	sb.WriteString(strconv.Quote(text))
	return sb.String()
}

// Rank embeds candidates and orders them by similarity to the current text.
func (s *EmbeddingScreen) Rank(candidates []string) {
	if len(candidates) == 0 {
		return
	}
	s.start(fmt.Sprintf("Ranking %d texts...", len(candidates)), func(ctx context.Context, text string) {
		matches, err := s.rank(ctx, text, candidates)
		s.update(func(v *EmbeddingView) {
			v.Generating = false
			if err != nil {
				log.WithError(err).Error("similarity ranking failed")
				v.Status = fmt.Sprintf("Error ranking texts: %v", err)
				return
			}
			v.Matches = matches
			v.Status = "Similarity ranking completed successfully!"
		})
	})
}

// rank stores the candidate embeddings in an in-memory chromem collection and
// queries it with the embedding of text. Embeddings are computed one at a
// time because the handle runs a single operation at once.
func (s *EmbeddingScreen) rank(ctx context.Context, text string, candidates []string) ([]Match, error) {
	embed := func(ctx context.Context, t string) ([]float32, error) {
		res, err := s.lm.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		return res.Embeddings, nil
	}

	db := chromem.NewDB()
	col, err := db.CreateCollection("candidates", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	docs := make([]chromem.Document, 0, len(candidates))
	for i, c := range candidates {
		vec, err := embed(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("failed to embed %q: %w", c, err)
		}
		docs = append(docs, chromem.Document{ID: strconv.Itoa(i), Content: c, Embedding: vec})
	}
	if err := col.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("failed to add documents: %w", err)
	}

	query, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}
	results, err := col.QueryEmbedding(ctx, query, col.Count(), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{Text: r.Content, Similarity: r.Similarity})
	}
	return matches, nil
}

// Dispose implements Screen.
func (s *EmbeddingScreen) Dispose() {
	s.dispose(s.lm.Unload)
}
