package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"pinarch/internal/archive"
)

// fallbackURLTemplate points at the resized jpg renditions the source CDN
// keeps for every media file. The three path segments repeat the first hex
// pairs of the file id.
const fallbackURLTemplate = "https://i.pinimg.com/%s/%s/%s/%s/%s.jpg"

// fallbackSizes is tried in order, largest first.
var fallbackSizes = []string{"736x", "564x", "474x", "236x"}

// MediaFetcher downloads media blobs into the content-addressed media
// directory.
type MediaFetcher struct {
	client   *http.Client
	mediaDir string
	logger   archive.Logger
}

func NewMediaFetcher(mediaDir string, logger archive.Logger) *MediaFetcher {
	return &MediaFetcher{
		client:   &http.Client{Timeout: 30 * time.Second},
		mediaDir: mediaDir,
		logger:   logger,
	}
}

// statusError reports a non-200 response from the media host.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.url, e.code)
}

// Fetch ensures the blob for fileID is on disk and returns the extension
// of the stored file. The full-resolution URL is tried first; when it is
// gone (403/404), or the original is HEIC which browsers cannot render,
// the resized jpg renditions are tried largest first and the stored
// extension becomes jpg.
func (f *MediaFetcher) Fetch(fileID, ext, mediaURL string) (string, error) {
	if _, err := os.Stat(filepath.Join(f.mediaDir, fileID+"."+ext)); err == nil {
		return ext, nil
	}

	if !strings.EqualFold(ext, "heic") {
		err := f.download(mediaURL, filepath.Join(f.mediaDir, fileID+"."+ext))
		if err == nil {
			return ext, nil
		}
		var se *statusError
		if !errors.As(err, &se) || (se.code != http.StatusForbidden && se.code != http.StatusNotFound) {
			return "", err
		}
		f.logger.Warn("original rendition unavailable", "file_id", fileID, "status", se.code)
	}

	jpgPath := filepath.Join(f.mediaDir, fileID+".jpg")
	for _, size := range fallbackSizes {
		url := fmt.Sprintf(fallbackURLTemplate, size, fileID[0:2], fileID[2:4], fileID[4:6], fileID)
		if err := f.download(url, jpgPath); err == nil {
			f.logger.Info("stored resized rendition", "file_id", fileID, "size", size)
			return "jpg", nil
		}
	}
	return "", fmt.Errorf("no downloadable rendition for %s", fileID)
}

// download fetches url into destPath via a temp file so a failed transfer
// never leaves a partial blob behind.
func (f *MediaFetcher) download(url, destPath string) error {
	if err := os.MkdirAll(f.mediaDir, 0755); err != nil {
		return fmt.Errorf("creating media directory: %w", err)
	}

	resp, err := f.client.Get(url)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{url: url, code: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(f.mediaDir, ".download-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", destPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("moving blob into place: %w", err)
	}
	return nil
}
