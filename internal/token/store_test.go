package token

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	store := newTestStore(t)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
	cred := Credential{Token: "jwt-token-abc", Expires: expires}
	require.NoError(t, store.Save(cred))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "jwt-token-abc", loaded.Token)
	assert.True(t, loaded.Expires.Equal(expires))
}

func TestSave_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "config")
	store, err := NewStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(Credential{Token: "t", Expires: time.Now().Add(time.Hour)}))

	info, err := os.Stat(filepath.Join(dir, "token.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestSave_OverwritesWholesale(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Credential{Token: "first", Expires: time.Now().Add(time.Hour)}))
	require.NoError(t, store.Save(Credential{Token: "second", Expires: time.Now().Add(2 * time.Hour)}))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, "second", loaded.Token)
}

func TestLoad_MissingFile(t *testing.T) {
	store := newTestStore(t)
	assert.Nil(t, store.Load())
}

func TestLoad_EmptyFile(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "token.json"), nil, 0600))
	assert.Nil(t, store.Load())
}

func TestLoad_MalformedJSON(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "token.json"), []byte("{not json"), 0600))
	assert.Nil(t, store.Load())
}

func TestLoad_MissingKeys(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "token.json"), []byte(`{"token":"abc"}`), 0600))
	assert.Nil(t, store.Load())
}

func TestLoad_UnparseableExpiry(t *testing.T) {
	store := newTestStore(t)
	data := []byte(`{"token":"abc","expires":"not-a-timestamp"}`)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "token.json"), data, 0600))
	assert.Nil(t, store.Load())
}

func TestLoad_ParsesNPMTimestampFormat(t *testing.T) {
	store := newTestStore(t)
	data := []byte(`{"token":"abc","expires":"2026-01-05T10:32:00.000Z"}`)
	require.NoError(t, os.WriteFile(filepath.Join(store.dir, "token.json"), data, 0600))

	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.Equal(t, time.Date(2026, 1, 5, 10, 32, 0, 0, time.UTC), loaded.Expires.UTC())
}

func TestCredential_Valid(t *testing.T) {
	now := time.Now().UTC()

	assert.True(t, Credential{Expires: now.Add(time.Hour)}.Valid(now))
	assert.False(t, Credential{Expires: now.Add(-time.Hour)}.Valid(now))
	// Exact expiry instant is not valid; the comparison is strict.
	assert.False(t, Credential{Expires: now}.Valid(now))
}

func TestLoadThenValid_FutureAndPast(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.Save(Credential{Token: "fresh", Expires: time.Now().Add(time.Hour)}))
	loaded := store.Load()
	require.NotNil(t, loaded)
	assert.True(t, loaded.Valid(time.Now()))

	require.NoError(t, store.Save(Credential{Token: "stale", Expires: time.Now().Add(-time.Minute)}))
	loaded = store.Load()
	require.NotNil(t, loaded)
	assert.False(t, loaded.Valid(time.Now()))
}
