package screen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyEmbedding(t *testing.T) *EmbeddingScreen {
	t.Helper()
	env := newEnv(t)
	s := NewEmbeddingScreen(env.lm(t), nil)
	s.Download()
	s.Wait()
	s.Initialize()
	s.Wait()
	require.Equal(t, StatusInitialized, s.View().Status)
	return s
}

func TestEmbeddingGenerate(t *testing.T) {
	s := readyEmbedding(t)
	defer s.Dispose()

	assert.Equal(t, DefaultEmbeddingText, s.View().Text)
	s.Generate()
	s.Wait()

	v := s.View()
	assert.Equal(t, "Embedding generation completed successfully!", v.Status)
	assert.Equal(t, 12, v.Dimension)
	assert.Len(t, v.Preview, 10)

	lines := strings.Split(v.Result, "\n")
	assert.Equal(t, "✅ Embedding Generated Successfully!", lines[0])
	assert.Contains(t, v.Result, "📊 Dimensions: 12\n")
	assert.Contains(t, v.Result, "📏 Vector Length: 12\n")
	assert.Contains(t, v.Result, "🔍 First 10 values: [")
	assert.True(t, strings.HasSuffix(v.Result, "📝 Input Text:\n\"What's the weather in New York?\""))
}

func TestEmbeddingNotReady(t *testing.T) {
	env := newEnv(t)
	s := NewEmbeddingScreen(env.lm(t), nil)
	defer s.Dispose()

	s.Generate()
	s.Wait()
	assert.Equal(t, StatusNotReady, s.View().Status)
}

func TestEmbeddingEmptyText(t *testing.T) {
	s := readyEmbedding(t)
	defer s.Dispose()

	s.SetText("")
	s.Generate()
	s.Wait()
	assert.True(t, strings.HasPrefix(s.View().Status, "Error generating embedding: "))
}

func TestEmbeddingRank(t *testing.T) {
	s := readyEmbedding(t)
	defer s.Dispose()

	candidates := []string{
		"Cactus grows in the desert",
		"What's the weather in New York today?",
		"Stock prices fell sharply",
	}
	s.Rank(candidates)
	s.Wait()

	v := s.View()
	assert.Equal(t, "Similarity ranking completed successfully!", v.Status)
	require.Len(t, v.Matches, len(candidates))
	assert.Equal(t, candidates[1], v.Matches[0].Text)
	for i := 1; i < len(v.Matches); i++ {
		assert.GreaterOrEqual(t, v.Matches[i-1].Similarity, v.Matches[i].Similarity)
	}
}
