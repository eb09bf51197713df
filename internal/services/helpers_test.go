package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniapp/backend/internal/docstore"
	"github.com/uniapp/backend/internal/models"
)

func newMemStore(t *testing.T) *docstore.MemoryStore {
	t.Helper()
	store, err := docstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func seedProfile(t *testing.T, store docstore.Store, p models.Profile) {
	t.Helper()
	fields := map[string]interface{}{
		"firstName": p.FirstName,
		"lastName":  p.LastName,
		"email":     p.Email,
	}
	if p.AboutMe != "" {
		fields["aboutMe"] = p.AboutMe
	}
	if p.ProfilePicture != "" {
		fields["profilePicture"] = p.ProfilePicture
	}
	require.NoError(t, store.Set(context.Background(), UsersCollection, p.ID, fields))
}
