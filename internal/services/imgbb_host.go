package services

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultImgBBEndpoint = "https://api.imgbb.com/1/upload"
	imgbbFailure         = "Failed to upload image to ImgBB"
)

type ImgBBHost struct {
	APIKey     string
	Endpoint   string
	HTTPClient *http.Client
}

type imgbbResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL   string `json:"url"`
		Thumb struct {
			URL string `json:"url"`
		} `json:"thumb"`
		DeleteURL string `json:"delete_url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewImgBBHost(apiKey, endpoint string) *ImgBBHost {
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultImgBBEndpoint
	}
	return &ImgBBHost{
		APIKey:   apiKey,
		Endpoint: endpoint,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Upload posts the image as multipart form fields key and image.
func (h *ImgBBHost) Upload(ctx context.Context, base64Image string) (*HostedImage, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("key", h.APIKey); err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	if err := mw.WriteField("image", base64Image); err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.Endpoint, &body)
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	client := h.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UploadError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	// ImgBB reports failures in the body, so decode regardless of status.
	var out imgbbResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UploadError{Message: imgbbFailure, Err: err}
	}
	if !out.Success {
		msg := strings.TrimSpace(out.Error.Message)
		if msg == "" {
			msg = imgbbFailure
		}
		return nil, &UploadError{Message: msg}
	}

	img := &HostedImage{
		URL:          out.Data.URL,
		ThumbnailURL: out.Data.Thumb.URL,
	}
	if out.Data.DeleteURL != "" {
		del := out.Data.DeleteURL
		img.DeleteURL = &del
	}
	return img, nil
}
