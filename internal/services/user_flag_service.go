package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/models"
)

const UserFlagsCollection = "user_flags"

// UserFlagService counts moderation strikes in user_flags/{uid}.
type UserFlagService struct {
	store docstore.Store
	now   func() time.Time

	// serialises read-modify-write within one worker process
	mu sync.Mutex
}

func NewUserFlagService(store docstore.Store) *UserFlagService {
	return &UserFlagService{store: store, now: time.Now}
}

// AddStrike increments the strike counter for the user and returns the updated record.
func (s *UserFlagService) AddStrike(ctx context.Context, userID string) (*models.UserFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	flag, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	flag.Strikes++
	flag.LastStrikeAt = now
	flag.UpdatedAt = now

	if err := s.store.Set(ctx, UserFlagsCollection, userID, flag.Fields()); err != nil {
		return nil, err
	}
	return flag, nil
}

// Get returns the user's flag record, or a zero record when none exists.
func (s *UserFlagService) Get(ctx context.Context, userID string) (*models.UserFlag, error) {
	doc, err := s.store.Get(ctx, UserFlagsCollection, userID)
	if errors.Is(err, docstore.ErrNotFound) {
		return &models.UserFlag{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	var flag models.UserFlag
	if err := doc.DataTo(&flag); err != nil {
		return nil, err
	}
	flag.UserID = userID
	return &flag, nil
}
