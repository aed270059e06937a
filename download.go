package cactus

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/apex/log"
)

// ProgressFunc reports downloaded bytes. total is -1 when unknown.
type ProgressFunc func(done, total int64)

// Downloader fetches a model into dest, a directory that must not exist yet.
type Downloader interface {
	Download(ctx context.Context, m Model, dest string, progress ProgressFunc) error
}

// HTTPDownloader downloads models over HTTP and unpacks zip archives.
type HTTPDownloader struct {
	// BaseURL is used as <BaseURL>/<slug>.zip for models without a DownloadURL.
	BaseURL string
	Client  *http.Client
}

func (d *HTTPDownloader) url(m Model) (string, error) {
	if m.DownloadURL != "" {
		return m.DownloadURL, nil
	}
	if d.BaseURL == "" {
		return "", fmt.Errorf("%w for model %s", ErrNoDownloadURL, m.Slug)
	}
	return strings.TrimSuffix(d.BaseURL, "/") + "/" + m.Slug + ".zip", nil
}

// Download implements Downloader.
func (d *HTTPDownloader) Download(ctx context.Context, m Model, dest string, progress ProgressFunc) error {
	url, err := d.url(m)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	client := d.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", m.Slug, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s returned status %d", m.Slug, resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create cache dir: %v", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+m.Slug+"-*.part")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %v", err)
	}
	defer os.Remove(tmp.Name())

	pw := &progressWriter{total: resp.ContentLength, fn: progress}
	if _, err := io.Copy(io.MultiWriter(tmp, pw), resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to download %s: %w", m.Slug, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	staging, err := os.MkdirTemp(filepath.Dir(dest), "."+m.Slug+"-*")
	if err != nil {
		return fmt.Errorf("failed to create staging dir: %v", err)
	}
	defer os.RemoveAll(staging)

	name := path.Base(req.URL.Path)
	if strings.HasSuffix(name, ".zip") {
		if err := unzip(tmp.Name(), staging); err != nil {
			return fmt.Errorf("failed to extract %s: %w", m.Slug, err)
		}
	} else if err := os.Rename(tmp.Name(), filepath.Join(staging, name)); err != nil {
		return err
	}

	if err := os.RemoveAll(dest); err != nil {
		return err
	}
	if err := os.Rename(staging, dest); err != nil {
		return fmt.Errorf("failed to move %s into cache: %v", m.Slug, err)
	}
	log.WithFields(log.Fields{"model": m.Slug, "bytes": pw.done, "path": dest}).Debug("model downloaded")
	return nil
}

type progressWriter struct {
	done, total int64
	fn          ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.done += int64(len(b))
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
	return len(b), nil
}

// unzip extracts src into dir, rejecting entries that escape it.
func unzip(src, dir string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	root := filepath.Clean(dir) + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dir, f.Name)
		if !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
