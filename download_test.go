package cactus

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func zipArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestHTTPCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]Model{
			{Slug: "qwen3-0.6", Name: "Qwen3", SizeMB: 394, SupportsToolCalling: true},
			{Slug: "whisper-tiny", Name: "Whisper", SizeMB: 75, Kind: KindVoice},
		})
	}))
	defer srv.Close()

	cat := &HTTPCatalog{URL: srv.URL}
	models, err := cat.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, KindLanguage, models[0].Kind, "kind defaults to lm")
	assert.True(t, models[0].SupportsToolCalling)
	assert.Equal(t, KindVoice, models[1].Kind)
}

func TestHTTPCatalogError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := (&HTTPCatalog{URL: srv.URL}).Models(context.Background())
	assert.ErrorContains(t, err, "status 503")
}

func TestHTTPDownloaderZip(t *testing.T) {
	archive := zipArchive(t, map[string]string{
		"config.json":       `{"layers":2}`,
		"weights/model.bin": "weights",
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/qwen3-0.6.zip", r.URL.Path)
		w.Write(archive)
	}))
	defer srv.Close()

	cache := Cache{Dir: t.TempDir()}
	d := &HTTPDownloader{BaseURL: srv.URL + "/models"}

	var last int64
	err := d.Download(context.Background(), Model{Slug: "qwen3-0.6"}, cache.ModelPath("qwen3-0.6"), func(done, _ int64) {
		last = done
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(archive)), last)
	assert.True(t, cache.Has("qwen3-0.6"))

	data, err := os.ReadFile(filepath.Join(cache.ModelPath("qwen3-0.6"), "weights", "model.bin"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))

	entries, err := os.ReadDir(filepath.Join(cache.Dir, "models"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no staging files left behind")
}

func TestHTTPDownloaderRejectsTraversal(t *testing.T) {
	archive := zipArchive(t, map[string]string{"../evil.txt": "x"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	cache := Cache{Dir: t.TempDir()}
	d := &HTTPDownloader{}
	err := d.Download(context.Background(), Model{Slug: "evil", DownloadURL: srv.URL + "/evil.zip"}, cache.ModelPath("evil"), nil)
	assert.Error(t, err)
	assert.False(t, cache.Has("evil"))
}

func TestHTTPDownloaderFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	cache := Cache{Dir: t.TempDir()}
	d := &HTTPDownloader{BaseURL: srv.URL}
	err := d.Download(context.Background(), Model{Slug: "nope"}, cache.ModelPath("nope"), nil)
	assert.ErrorContains(t, err, "status 404")
	assert.False(t, cache.Has("nope"))

	err = (&HTTPDownloader{}).Download(context.Background(), Model{Slug: "nope"}, cache.ModelPath("nope"), nil)
	assert.ErrorIs(t, err, ErrNoDownloadURL)
	assert.EqualError(t, err, "no download url for model nope")
}

func TestLMDownloadOverHTTP(t *testing.T) {
	archive := zipArchive(t, map[string]string{"model.bin": "w"})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog":
			json.NewEncoder(w).Encode([]Model{{Slug: "tiny", SizeMB: 1, DownloadURL: "http://" + r.Host + "/files/tiny.zip"}})
		case "/files/tiny.zip":
			w.Write(archive)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	lm := NewLM(
		WithCacheDir(t.TempDir()),
		WithCatalogURL(srv.URL+"/catalog", srv.Client()),
		WithDownloader(&HTTPDownloader{Client: srv.Client()}),
		WithLoader(&fakeLoader{engine: newFakeEngine("ok")}),
	)
	defer lm.Unload()

	require.NoError(t, lm.DownloadModel(context.Background(), "tiny"))
	models, err := lm.GetModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	assert.True(t, models[0].IsDownloaded)
}
