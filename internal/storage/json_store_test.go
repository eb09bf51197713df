package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONStore_LoadMissing(t *testing.T) {
	s, err := NewJSONStore(t.TempDir(), "snapshot.json")
	require.NoError(t, err)

	var v map[string]string
	found, err := s.Load(&v)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, v)
}

func TestJSONStore_SaveThenLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s, err := NewJSONStore(dir, "snapshot.json")
	require.NoError(t, err)

	require.NoError(t, s.Save(map[string]string{"firstName": "Ana"}))
	require.NoError(t, s.Save(map[string]string{"firstName": "Bob"}))

	var v map[string]string
	found, err := s.Load(&v)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "Bob", v["firstName"])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestJSONStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir, "snapshot.json")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.Path(), []byte("{not json"), 0o644))

	var v map[string]string
	found, err := s.Load(&v)
	assert.True(t, found)
	assert.Error(t, err)
}
