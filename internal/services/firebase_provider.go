package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// FirebaseProvider creates accounts through the Admin SDK and verifies
// passwords through the Identity Toolkit REST API with the web API key.
type FirebaseProvider struct {
	client   *auth.Client
	identity *identitytoolkit.Service
}

func NewFirebaseProvider(ctx context.Context, app *firebase.App, apiKey string) (*FirebaseProvider, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	svc, err := identitytoolkit.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("identity toolkit: %w", err)
	}
	return &FirebaseProvider{client: client, identity: svc}, nil
}

// NewFirebaseApp initialises the Admin SDK. Empty credentials fall back to
// Application Default Credentials.
func NewFirebaseApp(ctx context.Context, projectID, credentialsJSON, storageBucket string) (*firebase.App, error) {
	cfg := &firebase.Config{ProjectID: projectID, StorageBucket: storageBucket}
	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	app, err := firebase.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}

func (p *FirebaseProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	params := (&auth.UserToCreate{}).Email(email).Password(password)
	u, err := p.client.CreateUser(ctx, params)
	if err != nil {
		if auth.IsEmailAlreadyExists(err) {
			return "", ErrEmailExists
		}
		return "", err
	}
	return u.UID, nil
}

func (p *FirebaseProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	resp, err := p.identity.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return "", classifySignInError(err)
	}
	return resp.LocalId, nil
}

// SignOut revokes the user's refresh tokens so other Firebase clients are
// signed out too.
func (p *FirebaseProvider) SignOut(ctx context.Context, userID string) error {
	return p.client.RevokeRefreshTokens(ctx, userID)
}

func classifySignInError(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	msg := gerr.Message
	for _, item := range gerr.Errors {
		msg += " " + item.Message
	}
	switch {
	case strings.Contains(msg, "INVALID_PASSWORD"),
		strings.Contains(msg, "INVALID_LOGIN_CREDENTIALS"),
		strings.Contains(msg, "INVALID_CREDENTIAL"):
		return fmt.Errorf("%w: %s", ErrInvalidCredentials, gerr.Message)
	case strings.Contains(msg, "EMAIL_NOT_FOUND"),
		strings.Contains(msg, "USER_DISABLED"):
		return fmt.Errorf("%w: %s", ErrAccountNotFound, gerr.Message)
	}
	return err
}
