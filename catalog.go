package cactus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
)

// Catalog lists the models that can be downloaded.
type Catalog interface {
	Models(ctx context.Context) ([]Model, error)
}

// Cache is the on-disk model store shared by every handle using the same directory.
type Cache struct {
	Dir string
}

// ModelPath returns the directory a model is extracted to.
func (c Cache) ModelPath(slug string) string {
	return filepath.Join(c.Dir, "models", slug)
}

// Has reports whether the model directory exists and is not empty.
func (c Cache) Has(slug string) bool {
	entries, err := os.ReadDir(c.ModelPath(slug))
	return err == nil && len(entries) > 0
}

// Remove deletes a cached model.
func (c Cache) Remove(slug string) error {
	return os.RemoveAll(c.ModelPath(slug))
}

// mark fills IsDownloaded from the cache.
func (c Cache) mark(models []Model) []Model {
	for i := range models {
		models[i].IsDownloaded = c.Has(models[i].Slug)
	}
	return models
}

// HTTPCatalog fetches the model list as JSON.
type HTTPCatalog struct {
	URL    string
	Client *http.Client
}

// Models implements Catalog.
func (c *HTTPCatalog) Models(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model catalog returned status %d", resp.StatusCode)
	}

	var models []Model
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, fmt.Errorf("failed to decode models: %v", err)
	}
	for i := range models {
		if models[i].Kind == "" {
			models[i].Kind = KindLanguage
		}
	}
	return models, nil
}

// StaticCatalog serves a fixed model list.
type StaticCatalog []Model

// Models implements Catalog.
func (s StaticCatalog) Models(context.Context) ([]Model, error) {
	return append([]Model(nil), s...), nil
}

// DefaultModels is the list used when no catalog is reachable.
func DefaultModels() []Model {
	return []Model{
		{Slug: "qwen3-0.6", Name: "Qwen3 0.6B", SizeMB: 394, Kind: KindLanguage, SupportsToolCalling: true},
		{Slug: "gemma3-270m", Name: "Gemma3 270M", SizeMB: 172, Kind: KindLanguage},
		{Slug: "lfm2-vl-450m", Name: "LFM2 VL 450M", SizeMB: 420, Kind: KindLanguage, SupportsVision: true},
		{Slug: "whisper-tiny", Name: "Whisper Tiny", SizeMB: 75, Kind: KindVoice},
	}
}

// FilterModels returns the models for which keep is true, sorted by size.
func FilterModels(models []Model, keep func(Model) bool) []Model {
	var out []Model
	for _, m := range models {
		if keep(m) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SizeMB < out[j].SizeMB })
	return out
}

func findModel(models []Model, slug string) (Model, bool) {
	for _, m := range models {
		if m.Slug == slug {
			return m, true
		}
	}
	return Model{}, false
}
