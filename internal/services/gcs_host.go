package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

// GCSHost stores images in the Firebase Storage bucket and hands out
// token-authorised download URLs.
type GCSHost struct {
	client *storage.Client
	bucket string
}

func NewGCSHost(ctx context.Context, bucket string) (*GCSHost, error) {
	if bucket == "" {
		return nil, fmt.Errorf("gcs host: bucket is not configured")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("gcs host: storage client: %w", err)
	}
	return &GCSHost{client: client, bucket: bucket}, nil
}

func (h *GCSHost) Close() error {
	return h.client.Close()
}

func (h *GCSHost) Upload(ctx context.Context, base64Image string) (*HostedImage, error) {
	raw, err := decodeImage(base64Image)
	if err != nil {
		return nil, &UploadError{Message: "Invalid image data", Err: err}
	}

	name := "uploads/" + uuid.New().String()
	token := uuid.New().String()

	w := h.client.Bucket(h.bucket).Object(name).NewWriter(ctx)
	w.ContentType = http.DetectContentType(raw)
	w.Metadata = map[string]string{"firebaseStorageDownloadTokens": token}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}

	link := firebaseDownloadURL(h.bucket, name, token)
	return &HostedImage{URL: link, ThumbnailURL: link}, nil
}

func firebaseDownloadURL(bucket, objectName, token string) string {
	return fmt.Sprintf(
		"https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media&token=%s",
		bucket,
		url.PathEscape(objectName),
		url.QueryEscape(token),
	)
}
