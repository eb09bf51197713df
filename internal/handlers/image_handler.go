package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/services"
	"github.com/uniapp/backend/internal/session"
)

type ImageHandler struct {
	pipeline  *services.UploadPipeline
	maxSizeMB int64
	log       logger.Logger
}

func NewImageHandler(pipeline *services.UploadPipeline, maxSizeMB int64, log logger.Logger) *ImageHandler {
	return &ImageHandler{
		pipeline:  pipeline,
		maxSizeMB: maxSizeMB,
		log:       log.With(zap.String("handler", "image")),
	}
}

// UploadProfilePicture hosts the image and makes it the caller's picture.
func (h *ImageHandler) UploadProfilePicture(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, services.VariantProfile)
}

// UploadStandalone hosts the image and logs it with the optional caption.
func (h *ImageHandler) UploadStandalone(w http.ResponseWriter, r *http.Request) {
	h.upload(w, r, services.VariantStandalone)
}

func (h *ImageHandler) upload(w http.ResponseWriter, r *http.Request, variant services.Variant) {
	sess := session.FromContext(r.Context())

	// Limit request body size; the extra megabyte leaves room for the form envelope.
	r.Body = http.MaxBytesReader(w, r.Body, (h.maxSizeMB+1)*1024*1024)

	if err := r.ParseMultipartForm(h.maxSizeMB * 1024 * 1024); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if bodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, services.UploadFailureMessage(services.ErrFileTooLarge))
			return
		}
		writeError(w, http.StatusBadRequest, "File too large or invalid form data")
		return
	}

	in := services.UploadInput{Variant: variant, Caption: r.FormValue("caption")}

	file, header, err := r.FormFile("image")
	if err == nil {
		defer file.Close()
		if !isValidImageType(contentTypeOf(file, header)) {
			writeError(w, http.StatusBadRequest, "Invalid image type. Allowed: JPEG, PNG, GIF, WebP")
			return
		}
		in.File = file
	}

	ctx, cancel := requestContext(r, uploadTimeout)
	defer cancel()

	res, err := h.pipeline.Run(ctx, sess, in)
	if err != nil {
		h.log.Error("upload failed", err, zap.String("user", sess.UserID()), zap.String("variant", string(variant)))
		writeError(w, uploadStatus(err), services.UploadFailureMessage(err))
		return
	}

	writeJSON(w, http.StatusCreated, models.NewMessageResponse(res.Message, res.Record))
}

// bodyTooLarge reports whether err came from the MaxBytesReader limit. Some
// multipart errors carry it only as text.
func bodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large")
}

func uploadStatus(err error) int {
	var uerr *services.UploadError
	switch {
	case errors.Is(err, services.ErrNoFile), errors.Is(err, services.ErrReadFile):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrProfileNotLoaded):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &uerr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// contentTypeOf trusts the part header unless it is missing or generic, in
// which case the first bytes are sniffed.
func contentTypeOf(file multipart.File, header *multipart.FileHeader) string {
	ct := header.Header.Get("Content-Type")
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	buf := make([]byte, 512)
	n, _ := io.ReadFull(file, buf)
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return ""
	}
	return http.DetectContentType(buf[:n])
}

func isValidImageType(contentType string) bool {
	validTypes := map[string]bool{
		"image/jpeg": true,
		"image/jpg":  true,
		"image/png":  true,
		"image/gif":  true,
		"image/webp": true,
	}
	return validTypes[contentType]
}
