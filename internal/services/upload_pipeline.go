package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/session"
)

const UploadsCollection = "user_uploads"

type Variant string

const (
	VariantProfile    Variant = "profile"
	VariantStandalone Variant = "standalone"
)

var (
	ErrNoFile           = errors.New("no image file selected")
	ErrProfileNotLoaded = errors.New("profile not loaded")
	ErrReadFile         = errors.New("read image file")
	ErrFileTooLarge     = errors.New("image file too large")
)

var uploadMessages = []struct {
	err error
	msg string
}{
	{ErrNoFile, "Please select an image file"},
	{ErrProfileNotLoaded, "User data not found. Please log in again."},
	{ErrReadFile, "Failed to read image file. Please try again."},
	{ErrFileTooLarge, "Image file is too large"},
}

// UploadEventPublisher announces finished uploads to downstream consumers.
type UploadEventPublisher interface {
	PublishUpload(ctx context.Context, ev models.UploadEvent) error
}

type UploadInput struct {
	File    io.Reader
	Caption string
	Variant Variant
}

type UploadResult struct {
	Record  *models.UploadRecord
	Message string
}

// UploadPipeline reads an image, hands it to the image host, points the
// profile at it (profile variant) and logs the upload.
type UploadPipeline struct {
	host     ImageHost
	profiles *ProfileService
	store    docstore.Store
	events   UploadEventPublisher
	maxBytes int64
	log      logger.Logger
	now      func() time.Time
}

// NewUploadPipeline builds a pipeline. events may be nil; maxBytes <= 0 means
// unbounded.
func NewUploadPipeline(host ImageHost, profiles *ProfileService, store docstore.Store, events UploadEventPublisher, maxBytes int64, log logger.Logger) *UploadPipeline {
	return &UploadPipeline{
		host:     host,
		profiles: profiles,
		store:    store,
		events:   events,
		maxBytes: maxBytes,
		log:      log,
		now:      time.Now,
	}
}

// Run executes the steps in order. Any failure stops the remaining steps. A
// failed record append after the profile write leaves the new picture in place.
func (p *UploadPipeline) Run(ctx context.Context, sess *session.Session, in UploadInput) (res *UploadResult, err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		uploadsTotal.WithLabelValues(string(in.Variant), outcome).Inc()
	}()

	if in.File == nil {
		return nil, ErrNoFile
	}
	if sess == nil || sess.Profile == nil || sess.UserID() == "" ||
		sess.Profile.FirstName == "" || sess.Profile.Email == "" {
		return nil, ErrProfileNotLoaded
	}

	encoded, err := p.readBase64(in.File)
	if err != nil {
		return nil, err
	}

	hosted, err := p.host.Upload(ctx, encoded)
	if err != nil {
		return nil, err
	}
	if hosted == nil || hosted.URL == "" {
		return nil, &UploadError{Message: "image host returned no URL"}
	}
	thumb := hosted.ThumbnailURL
	if thumb == "" {
		thumb = hosted.URL
	}

	uid := sess.UserID()
	if in.Variant == VariantProfile {
		pic := hosted.URL
		if err := p.profiles.UpdateProfile(ctx, uid, models.ProfileUpdate{ProfilePicture: &pic}); err != nil {
			return nil, err
		}
		sess.Profile.ProfilePicture = pic
	}

	rec := &models.UploadRecord{
		OwnerID:        uid,
		OwnerFirstName: sess.Profile.FirstName,
		OwnerEmail:     sess.Profile.Email,
		ImageURL:       hosted.URL,
		ThumbnailURL:   thumb,
		DeleteURL:      hosted.DeleteURL,
		CreatedAt:      p.now(),
	}
	if in.Variant == VariantStandalone {
		rec.SocialUsername = strings.TrimSpace(in.Caption)
		if rec.SocialUsername == "" {
			rec.SocialUsername = models.NoSocialUsername
		}
	}

	id, err := p.store.Append(ctx, UploadsCollection, rec.Fields(docstore.ServerTimestamp))
	if err != nil {
		if in.Variant == VariantProfile {
			p.log.Warn("profile picture saved but upload record missing",
				zap.String("user", uid), zap.String("image", hosted.URL), zap.Error(err))
		}
		return nil, fmt.Errorf("append upload record: %w", err)
	}
	rec.ID = id

	p.publish(ctx, rec, in.Variant)

	msg := "Image uploaded successfully!"
	if in.Variant == VariantProfile {
		msg = "Profile picture updated successfully!"
	}
	return &UploadResult{Record: rec, Message: msg}, nil
}

func (p *UploadPipeline) readBase64(r io.Reader) (string, error) {
	src := r
	if p.maxBytes > 0 {
		src = io.LimitReader(r, p.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReadFile, err)
	}
	if len(raw) == 0 {
		return "", ErrNoFile
	}
	if p.maxBytes > 0 && int64(len(raw)) > p.maxBytes {
		return "", ErrFileTooLarge
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (p *UploadPipeline) publish(ctx context.Context, rec *models.UploadRecord, v Variant) {
	if p.events == nil {
		return
	}
	ev := models.UploadEvent{
		RecordID:  rec.ID,
		UserID:    rec.OwnerID,
		ImageURL:  rec.ImageURL,
		Variant:   string(v),
		CreatedAt: rec.CreatedAt,
	}
	if err := p.events.PublishUpload(ctx, ev); err != nil {
		p.log.Warn("publish upload event failed", zap.String("record", rec.ID), zap.Error(err))
	}
}

// UploadFailureMessage renders an upload error the way the pages show it.
func UploadFailureMessage(err error) string {
	for _, m := range uploadMessages {
		if errors.Is(err, m.err) {
			return m.msg
		}
	}
	var uerr *UploadError
	if errors.As(err, &uerr) {
		return "Failed to upload image: " + uerr.Message
	}
	return "Failed to upload image: " + err.Error()
}
