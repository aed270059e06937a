package picker

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func decodedSize(t *testing.T, path string) (int, int) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := jpeg.DecodeConfig(f)
	require.NoError(t, err)
	return cfg.Width, cfg.Height
}

func TestFit(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		want image.Point
	}{
		{"landscape", 2048, 1024, image.Pt(512, 256)},
		{"portrait", 600, 1200, image.Pt(256, 512)},
		{"square", 1000, 1000, image.Pt(512, 512)},
		{"within bound", 300, 200, image.Pt(300, 200)},
		{"sliver", 4000, 2, image.Pt(512, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Fit(image.NewRGBA(image.Rect(0, 0, tt.w, tt.h)), MaxDimension)
			assert.Equal(t, tt.want, out.Bounds().Size())
		})
	}
}

func TestCopyImage(t *testing.T) {
	dir := t.TempDir()
	path, err := Copy(writePNG(t, 1024, 768), dir, KindImage)
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "picked_image_"))
	assert.Equal(t, ".jpg", filepath.Ext(path))
	w, h := decodedSize(t, path)
	assert.Equal(t, 512, w)
	assert.Equal(t, 384, h)
}

func TestCopyImageRejectsGarbage(t *testing.T) {
	src := filepath.Join(t.TempDir(), "broken.png")
	require.NoError(t, os.WriteFile(src, []byte("not an image"), 0o644))

	dir := t.TempDir()
	_, err := Copy(src, dir, KindImage)
	assert.ErrorContains(t, err, "decode")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCopyAudio(t *testing.T) {
	src := filepath.Join(t.TempDir(), "voice.m4a")
	payload := []byte(strings.Repeat("audio", 10_000))
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	path, err := Copy(src, t.TempDir(), KindAudio)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "temp_audio_"))
	assert.Equal(t, ".m4a", filepath.Ext(path))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestDetect(t *testing.T) {
	kind, err := Detect(writePNG(t, 4, 4))
	require.NoError(t, err)
	assert.Equal(t, KindImage, kind)

	raw := filepath.Join(t.TempDir(), "clip")
	require.NoError(t, os.WriteFile(raw, []byte("RIFF\x00\x00\x00\x00WAVEfmt "), 0o644))
	kind, err = Detect(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAudio, kind)
}

func TestLauncher(t *testing.T) {
	src := writePNG(t, 64, 64)

	type result struct {
		path string
		err  error
	}
	results := make(chan result, 1)
	l := &Launcher{
		MIMEType: "image/*",
		Dir:      t.TempDir(),
		Select: func(_ context.Context, mimeType string) (string, error) {
			assert.Equal(t, "image/*", mimeType)
			return src, nil
		},
		OnSelected: func(path string, err error) { results <- result{path, err} },
	}
	l.Launch(context.Background())
	l.Wait()

	got := <-results
	require.NoError(t, got.err)
	w, h := decodedSize(t, got.path)
	assert.Equal(t, 64, w, "images within the bound keep their size")
	assert.Equal(t, 64, h)
}

func TestLauncherCancelled(t *testing.T) {
	var gotErr error
	l := &Launcher{
		MIMEType:   "audio/*",
		Select:     func(context.Context, string) (string, error) { return "", nil },
		OnSelected: func(_ string, err error) { gotErr = err },
	}
	l.Launch(context.Background())
	l.Wait()
	assert.ErrorIs(t, gotErr, ErrCancelled)

	boom := errors.New("permission denied")
	l.Select = func(context.Context, string) (string, error) { return "", boom }
	l.Launch(context.Background())
	l.Wait()
	assert.ErrorIs(t, gotErr, boom)
}
