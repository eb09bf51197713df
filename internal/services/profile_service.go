package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/models"
)

const UsersCollection = "users"

var ErrProfileNotFound = errors.New("profile not found")

// ProfileService reads and writes users/{uid}.
type ProfileService struct {
	store docstore.Store
}

func NewProfileService(store docstore.Store) *ProfileService {
	return &ProfileService{store: store}
}

// GetProfile returns the full record or ErrProfileNotFound.
func (s *ProfileService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrProfileNotFound
	}
	doc, err := s.store.Get(ctx, UsersCollection, userID)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return decodeProfile(doc)
}

// CreateProfile writes the signup fields. aboutMe and profilePicture start absent.
func (s *ProfileService) CreateProfile(ctx context.Context, p *models.Profile) error {
	return s.store.Set(ctx, UsersCollection, p.ID, map[string]interface{}{
		"email":     p.Email,
		"firstName": p.FirstName,
		"lastName":  p.LastName,
	})
}

// UpdateProfile merges the non-nil fields of u into the stored record. Last
// write wins.
func (s *ProfileService) UpdateProfile(ctx context.Context, userID string, u models.ProfileUpdate) error {
	fields := u.Fields()
	if len(fields) == 0 {
		return nil
	}
	err := s.store.Update(ctx, UsersCollection, userID, fields)
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrProfileNotFound
	}
	if err != nil {
		return fmt.Errorf("update profile %s: %w", userID, err)
	}
	return nil
}

// UpdateAboutMe trims and saves the about-me text, returning what was stored.
func (s *ProfileService) UpdateAboutMe(ctx context.Context, userID, aboutMe string) (string, error) {
	text := strings.TrimSpace(aboutMe)
	if err := s.UpdateProfile(ctx, userID, models.ProfileUpdate{AboutMe: &text}); err != nil {
		return "", err
	}
	return text, nil
}

func decodeProfile(doc docstore.Document) (*models.Profile, error) {
	var p models.Profile
	if err := doc.DataTo(&p); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", doc.ID(), err)
	}
	p.ID = doc.ID()
	return &p, nil
}
