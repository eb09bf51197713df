package services

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type imgbbForm struct {
	key   string
	image string
}

func imgbbServer(t *testing.T, status int, body string) (*httptest.Server, *imgbbForm) {
	t.Helper()
	seen := &imgbbForm{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, r.ParseMultipartForm(1<<20))
		seen.key = r.FormValue("key")
		seen.image = r.FormValue("image")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestImgBBHost_Success(t *testing.T) {
	srv, seen := imgbbServer(t, http.StatusOK, `{
		"success": true,
		"data": {
			"url": "https://i.ibb.co/abc/full.png",
			"thumb": {"url": "https://i.ibb.co/abc/thumb.png"},
			"delete_url": "https://ibb.co/abc/del"
		}
	}`)
	host := NewImgBBHost("k-123", srv.URL)

	img, err := host.Upload(context.Background(), "aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, "https://i.ibb.co/abc/full.png", img.URL)
	assert.Equal(t, "https://i.ibb.co/abc/thumb.png", img.ThumbnailURL)
	require.NotNil(t, img.DeleteURL)
	assert.Equal(t, "https://ibb.co/abc/del", *img.DeleteURL)

	assert.Equal(t, "k-123", seen.key)
	assert.Equal(t, "aGVsbG8=", seen.image)
}

func TestImgBBHost_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"host message", http.StatusBadRequest, `{"success":false,"error":{"message":"Invalid API v1 key."}}`, "Invalid API v1 key."},
		{"no message", http.StatusOK, `{"success":false}`, "Failed to upload image to ImgBB"},
		{"not json", http.StatusBadGateway, `<html>`, "Failed to upload image to ImgBB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := imgbbServer(t, tt.status, tt.body)
			_, err := NewImgBBHost("k", srv.URL).Upload(context.Background(), "aGVsbG8=")

			var uerr *UploadError
			require.ErrorAs(t, err, &uerr)
			assert.Equal(t, tt.want, uerr.Message)
		})
	}
}

func TestImgBBHost_NetworkError(t *testing.T) {
	host := NewImgBBHost("k", "http://127.0.0.1:1/upload")
	_, err := host.Upload(context.Background(), "aGVsbG8=")

	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.NotEmpty(t, uerr.Message)
}

func TestNewImgBBHost_DefaultEndpoint(t *testing.T) {
	assert.Equal(t, DefaultImgBBEndpoint, NewImgBBHost("k", " ").Endpoint)
}

func TestLocalHost_WritesFile(t *testing.T) {
	dir := t.TempDir()
	host, err := NewLocalHost(dir)
	require.NoError(t, err)

	png := []byte("\x89PNG\r\n\x1a\n0000")
	img, err := host.Upload(context.Background(), base64.StdEncoding.EncodeToString(png))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(img.URL, "/uploads/"))
	assert.True(t, strings.HasSuffix(img.URL, ".png"))
	assert.Equal(t, img.URL, img.ThumbnailURL)
	assert.Nil(t, img.DeleteURL)

	got, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(img.URL, "/uploads/")))
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestLocalHost_RejectsBadPayload(t *testing.T) {
	host, err := NewLocalHost(t.TempDir())
	require.NoError(t, err)

	_, err = host.Upload(context.Background(), "%%%")
	var uerr *UploadError
	require.ErrorAs(t, err, &uerr)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestFirebaseDownloadURL(t *testing.T) {
	got := firebaseDownloadURL("app.appspot.com", "uploads/a b", "t&1")
	assert.Equal(t, "https://firebasestorage.googleapis.com/v0/b/app.appspot.com/o/uploads%2Fa%20b?alt=media&token=t%261", got)
}
