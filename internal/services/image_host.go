package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidImage = errors.New("invalid image file")

// HostedImage is what an image host hands back after a successful upload.
type HostedImage struct {
	URL          string
	ThumbnailURL string
	DeleteURL    *string
}

// ImageHost stores a base64-encoded image and returns its public URLs.
type ImageHost interface {
	Upload(ctx context.Context, base64Image string) (*HostedImage, error)
}

// UploadError carries the host's message for a rejected upload.
type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

func decodeImage(base64Image string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(base64Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if len(raw) == 0 {
		return nil, ErrInvalidImage
	}
	return raw, nil
}

var extByType = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalHost writes images under dir and serves them from /uploads/.
type LocalHost struct {
	dir string
}

func NewLocalHost(dir string) (*LocalHost, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalHost{dir: dir}, nil
}

func (h *LocalHost) Upload(ctx context.Context, base64Image string) (*HostedImage, error) {
	raw, err := decodeImage(base64Image)
	if err != nil {
		return nil, &UploadError{Message: "Invalid image data", Err: err}
	}

	ext, ok := extByType[http.DetectContentType(raw)]
	if !ok {
		ext = ".jpg"
	}
	name := uuid.New().String() + ext
	path := filepath.Join(h.dir, name)

	if err := os.WriteFile(path, raw, 0o644); err != nil {
		os.Remove(path)
		return nil, &UploadError{Message: "Failed to save image", Err: err}
	}

	url := "/uploads/" + name
	return &HostedImage{URL: url, ThumbnailURL: url}, nil
}

// isDataURI reports whether s already carries a data: prefix.
func isDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}
