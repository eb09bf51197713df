package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/logger"
	"github.com/uniapp/backend/internal/models"
	"github.com/uniapp/backend/internal/session"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	args := m.Called(ctx, email, password)
	return args.String(0), args.Error(1)
}

func (m *mockProvider) SignOut(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type accountFixture struct {
	svc      *AccountService
	store    *docstore.MemoryStore
	provider *mockProvider
	profiles *ProfileService
	tokens   *session.TokenManager
	revoker  *session.MemoryRevoker
	broker   *session.Broker
}

func newAccountFixture(t *testing.T) *accountFixture {
	store := newMemStore(t)
	f := &accountFixture{
		store:    store,
		provider: &mockProvider{},
		profiles: NewProfileService(store),
		tokens:   session.NewTokenManager("test-secret", time.Hour),
		revoker:  session.NewMemoryRevoker(),
		broker:   session.NewBroker(nil, logger.Nop()),
	}
	f.svc = NewAccountService(f.provider, f.profiles, f.tokens, f.revoker, f.broker, logger.Nop())
	return f
}

func waitState(t *testing.T, ch <-chan session.State) session.State {
	t.Helper()
	select {
	case st := <-ch:
		return st
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for auth state")
		return session.State{}
	}
}

func TestAccountService_RegisterWritesProfile(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	f.provider.On("CreateAccount", mock.Anything, "ana@x.io", "secret1").Return("u1", nil)

	prof, err := f.svc.Register(ctx, &models.RegisterRequest{
		Email: "ana@x.io", Password: "secret1", FirstName: "Ana", LastName: "Lopez",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", prof.ID)

	stored, err := f.profiles.GetProfile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", stored.ID)
	assert.Equal(t, "Ana", stored.FirstName)
	assert.Equal(t, "Lopez", stored.LastName)
	assert.Equal(t, "ana@x.io", stored.Email)

	doc, err := f.store.Get(ctx, UsersCollection, "u1")
	require.NoError(t, err)
	var fields map[string]interface{}
	require.NoError(t, doc.DataTo(&fields))
	assert.NotContains(t, fields, "aboutMe")
	assert.NotContains(t, fields, "profilePicture")
	f.provider.AssertExpectations(t)
}

func TestAccountService_RegisterErrors(t *testing.T) {
	f := newAccountFixture(t)
	f.provider.On("CreateAccount", mock.Anything, "dup@x.io", mock.Anything).Return("", ErrEmailExists)
	f.provider.On("CreateAccount", mock.Anything, "bad@x.io", mock.Anything).Return("", errors.New("quota"))

	_, err := f.svc.Register(context.Background(), &models.RegisterRequest{Email: "dup@x.io", Password: "secret1", FirstName: "A"})
	assert.ErrorIs(t, err, ErrEmailExists)

	_, err = f.svc.Register(context.Background(), &models.RegisterRequest{Email: "bad@x.io", Password: "secret1", FirstName: "A"})
	assert.ErrorIs(t, err, ErrCreateAccount)
	assert.NotErrorIs(t, err, ErrEmailExists)
}

func TestAccountService_LoginIssuesTokenAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	f.provider.On("SignIn", mock.Anything, "ana@x.io", "secret1").Return("u1", nil)

	states := make(chan session.State, 4)
	sub := f.broker.Subscribe(ctx, "u1", session.SignedOut("u1"), func(st session.State) { states <- st })
	defer sub.Close()
	assert.False(t, waitState(t, states).SignedIn)

	resp, err := f.svc.Login(ctx, &models.LoginRequest{Email: "ana@x.io", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UserID)

	claims, err := f.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	st := waitState(t, states)
	assert.True(t, st.SignedIn)
	assert.Equal(t, models.PageServices, st.Redirect)
}

func TestAccountService_LoginErrors(t *testing.T) {
	f := newAccountFixture(t)
	f.provider.On("SignIn", mock.Anything, "ana@x.io", "nope").Return("", ErrInvalidCredentials)
	f.provider.On("SignIn", mock.Anything, "who@x.io", mock.Anything).Return("", errors.New("network"))

	_, err := f.svc.Login(context.Background(), &models.LoginRequest{Email: "ana@x.io", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.Login(context.Background(), &models.LoginRequest{Email: "who@x.io", Password: "secret1"})
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestAccountService_LogoutRevokesAndPublishes(t *testing.T) {
	ctx := context.Background()
	f := newAccountFixture(t)
	f.provider.On("SignOut", mock.Anything, "u1").Return(nil)

	states := make(chan session.State, 4)
	sub := f.broker.Subscribe(ctx, "u1", session.SignedIn("u1"), func(st session.State) { states <- st })
	defer sub.Close()
	assert.True(t, waitState(t, states).SignedIn)

	sess := &session.Session{
		Identity:  session.Identity{UserID: "u1"},
		TokenID:   "jti-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, f.svc.Logout(ctx, sess))

	revoked, err := f.revoker.IsRevoked(ctx, "jti-1")
	require.NoError(t, err)
	assert.True(t, revoked)

	st := waitState(t, states)
	assert.False(t, st.SignedIn)
	assert.Equal(t, models.PageIndex, st.Redirect)
	f.provider.AssertExpectations(t)
}
