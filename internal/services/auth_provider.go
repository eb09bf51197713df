package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/uniapp/backend/internal/models"
)

var (
	ErrEmailExists        = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountNotFound    = errors.New("account does not exist")
)

// AuthProvider is the external identity service.
type AuthProvider interface {
	CreateAccount(ctx context.Context, email, password string) (string, error)
	SignIn(ctx context.Context, email, password string) (string, error)
	SignOut(ctx context.Context, userID string) error
}

// LocalProvider keeps accounts in memory with bcrypt hashes. Used for local
// development and tests.
type LocalProvider struct {
	mu       sync.RWMutex
	accounts map[string]*models.Account
	byEmail  map[string]string
}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{
		accounts: make(map[string]*models.Account),
		byEmail:  make(map[string]string),
	}
}

func (p *LocalProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byEmail[key]; exists {
		return "", ErrEmailExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	acct := &models.Account{
		ID:           uuid.New().String(),
		Email:        key,
		PasswordHash: string(hashed),
		CreatedAt:    time.Now(),
	}
	p.accounts[acct.ID] = acct
	p.byEmail[key] = acct.ID

	return acct.ID, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(email))

	p.mu.RLock()
	defer p.mu.RUnlock()

	id, exists := p.byEmail[key]
	if !exists {
		return "", ErrAccountNotFound
	}
	acct := p.accounts[id]
	if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return acct.ID, nil
}

func (p *LocalProvider) SignOut(ctx context.Context, userID string) error {
	return nil
}
