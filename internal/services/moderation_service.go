package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
)

// ErrImageRejected is returned when SafeSearch flags an image as unsafe.
var ErrImageRejected = errors.New("image rejected: violates community guidelines")

// ModerationService reviews uploaded images after the fact. It records
// strikes only; profiles and upload records are left as they are.
type ModerationService struct {
	detector SafeSearchDetector
	flags    *UserFlagService
	log      logger.Logger
}

func NewModerationService(detector SafeSearchDetector, flags *UserFlagService, log logger.Logger) *ModerationService {
	return &ModerationService{detector: detector, flags: flags, log: log}
}

// Review classifies the event's image. An unsafe image adds a strike for the
// uploader and returns ErrImageRejected.
func (m *ModerationService) Review(ctx context.Context, ev models.UploadEvent) error {
	if ev.ImageURL == "" {
		return fmt.Errorf("moderation: event %s has no image", ev.RecordID)
	}

	ss, err := m.detector.Detect(ctx, ev.ImageURL)
	if err != nil {
		return fmt.Errorf("moderation: safesearch: %w", err)
	}

	log := m.log.With(zap.String("record", ev.RecordID), zap.String("user", ev.UserID))
	log.Info("safesearch result",
		zap.String("adult", ss.Adult),
		zap.String("violence", ss.Violence),
		zap.String("racy", ss.Racy),
		zap.Bool("unsafe", ss.IsUnsafe()))

	if !ss.IsUnsafe() {
		return nil
	}

	if ev.UserID != "" {
		flag, err := m.flags.AddStrike(ctx, ev.UserID)
		if err != nil {
			log.Error("strike failed", err)
		} else {
			moderationStrikesTotal.Inc()
			log.Warn("strike recorded", zap.Int("strikes", flag.Strikes))
		}
	}
	return ErrImageRejected
}
