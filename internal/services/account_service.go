package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/session"
)

var ErrCreateAccount = errors.New("unable to create user")

// AccountService runs signup, sign-in and sign-out against the auth provider
// and keeps the profile store and session state in step.
type AccountService struct {
	provider AuthProvider
	profiles *ProfileService
	tokens   *session.TokenManager
	revoker  session.Revoker
	broker   *session.Broker
	log      logger.Logger
}

func NewAccountService(
	provider AuthProvider,
	profiles *ProfileService,
	tokens *session.TokenManager,
	revoker session.Revoker,
	broker *session.Broker,
	log logger.Logger,
) *AccountService {
	return &AccountService{
		provider: provider,
		profiles: profiles,
		tokens:   tokens,
		revoker:  revoker,
		broker:   broker,
		log:      log,
	}
}

// Register creates the account and its profile record. It does not sign in.
func (s *AccountService) Register(ctx context.Context, req *models.RegisterRequest) (*models.Profile, error) {
	uid, err := s.provider.CreateAccount(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("%w: %v", ErrCreateAccount, err)
	}

	prof := &models.Profile{
		ID:        uid,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	}
	if err := s.profiles.CreateProfile(ctx, prof); err != nil {
		// The account exists without a profile; the gate will treat it as
		// signed out until a profile is written.
		s.log.Error("profile write after signup failed", err, zap.String("user", uid))
		return nil, fmt.Errorf("%w: %v", ErrCreateAccount, err)
	}
	return prof, nil
}

// Login verifies credentials and issues a session token.
func (s *AccountService) Login(ctx context.Context, req *models.LoginRequest) (*models.AuthResponse, error) {
	uid, err := s.provider.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return nil, err
		}
		if errors.Is(err, ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrAccountNotFound, err)
	}

	token, claims, err := s.tokens.Issue(session.Identity{UserID: uid, Email: req.Email})
	if err != nil {
		return nil, err
	}

	if err := s.broker.Publish(ctx, session.SignedIn(uid)); err != nil {
		s.log.Warn("publish signed-in state failed", zap.String("user", uid), zap.Error(err))
	}

	return &models.AuthResponse{
		Token:     token,
		UserID:    uid,
		Email:     req.Email,
		ExpiresAt: claims.Expiry(),
	}, nil
}

// Logout revokes the session token and tells every open page of the user.
func (s *AccountService) Logout(ctx context.Context, sess *session.Session) error {
	if sess == nil {
		return nil
	}
	if err := s.revoker.Revoke(ctx, sess.TokenID, sess.ExpiresAt); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	if err := s.provider.SignOut(ctx, sess.UserID()); err != nil {
		s.log.Warn("provider sign-out failed", zap.String("user", sess.UserID()), zap.Error(err))
	}
	if err := s.broker.Publish(ctx, session.SignedOut(sess.UserID())); err != nil {
		s.log.Warn("publish signed-out state failed", zap.String("user", sess.UserID()), zap.Error(err))
	}
	return nil
}
