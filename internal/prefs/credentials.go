package prefs

import (
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Repository exposes typed accessors over a KV. It satisfies the token and
// credential interfaces of the remote client.
type Repository struct {
	kv KV
}

// NewRepository wraps kv.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// Tokens returns the cached bearer pair. ok is false when no access token is
// stored.
func (r *Repository) Tokens() (types.Tokens, bool) {
	access, ok := r.kv.Get(KeyAccessToken)
	if !ok || access == "" {
		return types.Tokens{}, false
	}
	refresh, _ := r.kv.Get(KeyRefreshToken)
	return types.Tokens{AccessToken: access, RefreshToken: refresh}, true
}

// SetTokens replaces the cached bearer pair.
func (r *Repository) SetTokens(t types.Tokens) error {
	return r.kv.PutAll(map[string]string{
		KeyAccessToken:  t.AccessToken,
		KeyRefreshToken: t.RefreshToken,
	})
}

// ClearTokens forgets the bearer pair but keeps the credentials.
func (r *Repository) ClearTokens() error {
	return r.kv.Delete(KeyAccessToken, KeyRefreshToken)
}

// UserInfo returns the cached login credentials.
func (r *Repository) UserInfo() (types.UserInfo, bool) {
	mobile, ok := r.kv.Get(KeyMobile)
	if !ok || mobile == "" {
		return types.UserInfo{}, false
	}
	password, _ := r.kv.Get(KeyPassword)
	return types.UserInfo{Mobile: mobile, Password: password}, true
}

// SaveUserInfo caches the login credentials.
func (r *Repository) SaveUserInfo(u types.UserInfo) error {
	return r.kv.PutAll(map[string]string{
		KeyMobile:   u.Mobile,
		KeyPassword: u.Password,
	})
}

// PlaybackSpeed returns the preferred speed, or normal speed when unset or
// unreadable.
func (r *Repository) PlaybackSpeed() types.PlaybackSpeed {
	v, ok := r.kv.Get(KeyPlaybackSpeed)
	if !ok {
		return types.SpeedNormal
	}
	sp, err := types.ParsePlaybackSpeed(v)
	if err != nil {
		return types.SpeedNormal
	}
	return sp
}

// SetPlaybackSpeed stores the preferred speed.
func (r *Repository) SetPlaybackSpeed(sp types.PlaybackSpeed) error {
	return r.kv.Put(KeyPlaybackSpeed, sp.String())
}
