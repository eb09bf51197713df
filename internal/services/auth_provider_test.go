package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider()

	uid, err := p.CreateAccount(ctx, "Ana@X.io", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, uid)

	_, err = p.CreateAccount(ctx, "ana@x.io ", "other12")
	assert.ErrorIs(t, err, ErrEmailExists)

	got, err := p.SignIn(ctx, "ana@x.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, uid, got)

	_, err = p.SignIn(ctx, "ana@x.io", "wrong!")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = p.SignIn(ctx, "bob@x.io", "secret1")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestClassifySignInError(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want error
	}{
		{"wrong password", "INVALID_PASSWORD", ErrInvalidCredentials},
		{"new style", "INVALID_LOGIN_CREDENTIALS", ErrInvalidCredentials},
		{"unknown email", "EMAIL_NOT_FOUND", ErrAccountNotFound},
		{"disabled", "USER_DISABLED", ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifySignInError(&googleapi.Error{Code: 400, Message: tt.msg})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	other := &googleapi.Error{Code: 500, Message: "INTERNAL"}
	assert.Same(t, other, classifySignInError(other).(*googleapi.Error))
}
