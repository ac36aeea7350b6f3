package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

func TestFile_PersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.yaml")

	f, err := OpenFile(path)
	require.NoError(t, err)
	_, ok := f.Get(KeyMobile)
	assert.False(t, ok)

	require.NoError(t, f.Put(KeyMobile, "0712345678"))
	require.NoError(t, f.Put(KeyAccessToken, "a1"))
	require.NoError(t, f.Delete(KeyAccessToken, "never-set"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a save")

	again, err := OpenFile(path)
	require.NoError(t, err)
	v, ok := again.Get(KeyMobile)
	assert.True(t, ok)
	assert.Equal(t, "0712345678", v)
	_, ok = again.Get(KeyAccessToken)
	assert.False(t, ok)
}

func TestFile_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("[not: a map"), 0600))

	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestRepository(t *testing.T) {
	backends := map[string]func(t *testing.T) KV{
		"memory": func(t *testing.T) KV { return NewMemory() },
		"file": func(t *testing.T) KV {
			f, err := OpenFile(filepath.Join(t.TempDir(), "prefs.yaml"))
			require.NoError(t, err)
			return f
		},
	}

	for name, newKV := range backends {
		t.Run(name, func(t *testing.T) {
			repo := NewRepository(newKV(t))

			_, ok := repo.Tokens()
			assert.False(t, ok)
			_, ok = repo.UserInfo()
			assert.False(t, ok)
			assert.Equal(t, types.SpeedNormal, repo.PlaybackSpeed())

			require.NoError(t, repo.SetTokens(types.Tokens{AccessToken: "a", RefreshToken: "r"}))
			require.NoError(t, repo.SaveUserInfo(types.UserInfo{Mobile: "07", Password: "pw"}))
			require.NoError(t, repo.SetPlaybackSpeed(types.SpeedFast))

			tok, ok := repo.Tokens()
			require.True(t, ok)
			assert.Equal(t, "r", tok.RefreshToken)
			assert.Equal(t, types.SpeedFast, repo.PlaybackSpeed())

			require.NoError(t, repo.ClearTokens())
			_, ok = repo.Tokens()
			assert.False(t, ok)

			u, ok := repo.UserInfo()
			require.True(t, ok, "clearing tokens keeps credentials")
			assert.Equal(t, "pw", u.Password)
		})
	}
}

func TestRepository_BadSpeedFallsBack(t *testing.T) {
	kv := NewMemory()
	require.NoError(t, kv.Put(KeyPlaybackSpeed, "fast"))
	assert.Equal(t, types.SpeedNormal, NewRepository(kv).PlaybackSpeed())
}

// countingKV records each write that reaches the backend.
type countingKV struct {
	*Memory
	writes []map[string]string
}

func (c *countingKV) Put(key, value string) error {
	c.writes = append(c.writes, map[string]string{key: value})
	return c.Memory.Put(key, value)
}

func (c *countingKV) PutAll(values map[string]string) error {
	c.writes = append(c.writes, values)
	return c.Memory.PutAll(values)
}

func TestRepository_PairsWrittenTogether(t *testing.T) {
	kv := &countingKV{Memory: NewMemory()}
	repo := NewRepository(kv)

	require.NoError(t, repo.SetTokens(types.Tokens{AccessToken: "a", RefreshToken: "r"}))
	require.Len(t, kv.writes, 1)
	assert.Equal(t, map[string]string{KeyAccessToken: "a", KeyRefreshToken: "r"}, kv.writes[0])

	require.NoError(t, repo.SaveUserInfo(types.UserInfo{Mobile: "07", Password: "pw"}))
	require.Len(t, kv.writes, 2)
	assert.Equal(t, map[string]string{KeyMobile: "07", KeyPassword: "pw"}, kv.writes[1])
}

func TestFile_PutAllFailureKeepsOldPair(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	f, err := OpenFile(path)
	require.NoError(t, err)
	repo := NewRepository(f)
	require.NoError(t, repo.SetTokens(types.Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	// A non-empty directory at the path makes the rename fail.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.MkdirAll(filepath.Join(path, "blocker"), 0700))

	err = repo.SetTokens(types.Tokens{AccessToken: "a2", RefreshToken: "r2"})
	require.Error(t, err)

	tok, ok := repo.Tokens()
	require.True(t, ok)
	assert.Equal(t, types.Tokens{AccessToken: "a1", RefreshToken: "r1"}, tok)
	_, ok = f.Get(KeyMobile)
	assert.False(t, ok)
}
