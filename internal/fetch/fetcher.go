// Package fetch acquires the raw case document into per-request scratch space.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"casetrace/internal/common"
)

// Source identifies where the document comes from: a remote URL or a file
// already on local disk. Exactly one field must be set.
type Source struct {
	URL       string
	LocalPath string
}

func (s Source) Validate() error {
	if (s.URL == "") == (s.LocalPath == "") {
		return common.NewValidationError("source must set exactly one of url or local path", nil)
	}
	return nil
}

// Fetcher obtains the document bytes and returns the scratch path holding
// them. The caller owns deletion of the returned path.
type Fetcher interface {
	Fetch(ctx context.Context, source Source) (string, error)
}

// Config for the HTTP fetcher.
type Config struct {
	Timeout   time.Duration
	MaxSizeMB int
	TmpDir    string
}

type HTTPFetcher struct {
	client   *http.Client
	tmpDir   string
	maxBytes int64
	logger   *slog.Logger
}

func NewHTTPFetcher(cfg Config, logger *slog.Logger) *HTTPFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 14
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: cfg.Timeout},
		tmpDir:   cfg.TmpDir,
		maxBytes: int64(cfg.MaxSizeMB) * 1024 * 1024,
		logger:   logger,
	}
}

// Fetch downloads a URL source or copies a local source into scratch space.
// Local sources are copied, not referenced, so cleanup is uniform for every
// pipeline run.
func (f *HTTPFetcher) Fetch(ctx context.Context, source Source) (string, error) {
	if err := source.Validate(); err != nil {
		return "", err
	}
	if source.LocalPath != "" {
		return f.copyLocal(source.LocalPath)
	}
	return f.download(ctx, source.URL)
}

func (f *HTTPFetcher) download(ctx context.Context, url string) (string, error) {
	f.logger.Info("fetch.download.start", "url", url)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", common.NewAcquisitionError("invalid document url", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", common.NewAcquisitionError("document download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", common.NewAcquisitionError(fmt.Sprintf("document download returned status %d", resp.StatusCode), nil)
	}

	path, err := f.writeScratch(filepath.Base(url), resp.Body)
	if err != nil {
		return "", err
	}
	f.logger.Info("fetch.download.ok", "url", url, "path", path)
	return path, nil
}

func (f *HTTPFetcher) copyLocal(localPath string) (string, error) {
	src, err := os.Open(localPath)
	if err != nil {
		return "", common.NewAcquisitionError("local document unreadable", err)
	}
	defer src.Close()

	path, err := f.writeScratch(filepath.Base(localPath), src)
	if err != nil {
		return "", err
	}
	f.logger.Info("fetch.local.ok", "source", localPath, "path", path)
	return path, nil
}

// writeScratch streams body into a fresh scratch file, enforcing the size cap.
// A partial file is removed before the error is returned.
func (f *HTTPFetcher) writeScratch(filename string, body io.Reader) (string, error) {
	if filename == "" || filename == "." || filename == "/" {
		filename = "document.pdf"
	}
	path, err := common.ScratchPath(f.tmpDir, filename)
	if err != nil {
		return "", common.NewAcquisitionError("cannot build scratch path", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", common.NewAcquisitionError("cannot create scratch dir", err)
	}

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", common.NewAcquisitionError("cannot create scratch file", err)
	}

	written, err := io.Copy(out, io.LimitReader(body, f.maxBytes+1))
	closeErr := out.Close()
	switch {
	case err != nil:
		os.Remove(path)
		return "", common.NewAcquisitionError("writing document failed", err)
	case closeErr != nil:
		os.Remove(path)
		return "", common.NewAcquisitionError("writing document failed", closeErr)
	case written > f.maxBytes:
		os.Remove(path)
		return "", common.NewAcquisitionError(fmt.Sprintf("document exceeds size limit (%d bytes)", f.maxBytes), nil)
	}

	// Magic-byte sniff is advisory only: a non-PDF payload is logged, the
	// extraction service does its own content handling.
	head := make([]byte, len("%PDF-"))
	if fh, err := os.Open(path); err == nil {
		n, _ := io.ReadFull(fh, head)
		fh.Close()
		if !common.LooksLikePDF(head[:n]) {
			f.logger.Warn("fetch.not_pdf", "path", path, "bytes", written)
		}
	}
	return path, nil
}
