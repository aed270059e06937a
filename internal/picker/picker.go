// Package picker normalizes user selected files into temporary paths the
// runtime can consume: images are downscaled and re-encoded as JPEG, audio is
// copied unchanged.
package picker

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
)

const (
	// MaxDimension bounds both sides of a picked image.
	MaxDimension = 512
	// JPEGQuality is the re-encode quality of picked images.
	JPEGQuality = 85

	copyBufferSize = 16 * 1024
)

// ErrCancelled is delivered when the selection yields no file.
var ErrCancelled = errors.New("file selection cancelled")

// Kind is the category of a picked file.
type Kind int

const (
	KindAudio Kind = iota
	KindImage
)

func (k Kind) String() string {
	if k == KindImage {
		return "image"
	}
	return "audio"
}

// KindOf derives the kind from a MIME type such as "image/*" or "audio/wav".
func KindOf(mimeType string) Kind {
	if strings.HasPrefix(mimeType, "image") {
		return KindImage
	}
	return KindAudio
}

// Detect guesses the kind of the file at path from its extension, falling
// back to sniffing the first bytes.
func Detect(path string) (Kind, error) {
	if typ := mime.TypeByExtension(filepath.Ext(path)); typ != "" {
		return KindOf(typ), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return KindAudio, err
	}
	defer f.Close()
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return KindAudio, err
	}
	return KindOf(http.DetectContentType(head[:n])), nil
}

// Selector yields the source path chosen by the user. An empty path means the
// user cancelled.
type Selector func(ctx context.Context, mimeType string) (string, error)

// Launcher runs a selection and delivers the normalized path asynchronously.
type Launcher struct {
	MIMEType   string
	Dir        string // defaults to os.TempDir()
	Select     Selector
	OnSelected func(path string, err error)

	wg sync.WaitGroup
}

// Launch starts a selection. The result is delivered to OnSelected from a
// background goroutine; callers marshal it onto their own UI context.
func (l *Launcher) Launch(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		path, err := l.run(ctx)
		if err != nil {
			log.WithError(err).WithField("mime", l.MIMEType).Debug("file selection failed")
		}
		if l.OnSelected != nil {
			l.OnSelected(path, err)
		}
	}()
}

// Wait blocks until every launched selection has delivered its result.
func (l *Launcher) Wait() {
	l.wg.Wait()
}

func (l *Launcher) run(ctx context.Context) (string, error) {
	if l.Select == nil {
		return "", ErrCancelled
	}
	src, err := l.Select(ctx, l.MIMEType)
	if err != nil {
		return "", err
	}
	if src == "" {
		return "", ErrCancelled
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	kind := KindOf(l.MIMEType)
	if l.MIMEType == "" || l.MIMEType == "*/*" {
		if kind, err = Detect(src); err != nil {
			return "", err
		}
	}
	return Copy(src, l.Dir, kind)
}

// Copy normalizes src into a new temporary file in dir and returns its path.
func Copy(src, dir string, kind Kind) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if kind == KindImage {
		return copyImage(src, dir)
	}
	return copyAudio(src, dir)
}

func copyImage(src, dir string) (string, error) {
	f, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	out := Fit(img, MaxDimension)

	dst := filepath.Join(dir, "picked_image_"+uuid.NewString()+".jpg")
	w, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if err := jpeg.Encode(w, out, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		w.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	if err := w.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	log.WithFields(log.Fields{
		"src":    src,
		"format": format,
		"size":   fmt.Sprintf("%dx%d", out.Bounds().Dx(), out.Bounds().Dy()),
	}).Debug("normalized image")
	return dst, nil
}

// Fit scales img down so that neither side exceeds bound, preserving the aspect
// ratio. Images already within the bound are returned as is.
func Fit(img image.Image, bound int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= bound && h <= bound {
		return img
	}
	if w > h {
		h = int(float64(h) * float64(bound) / float64(w))
		w = bound
	} else {
		w = int(float64(w) * float64(bound) / float64(h))
		h = bound
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

func copyAudio(src, dir string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer in.Close()

	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".wav"
	}
	dst := filepath.Join(dir, "temp_audio_"+uuid.NewString()+ext)
	out, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.CopyBuffer(out, in, make([]byte, copyBufferSize)); err != nil {
		out.Close()
		os.Remove(dst)
		return "", fmt.Errorf("failed to copy audio: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return "", err
	}
	return dst, nil
}
