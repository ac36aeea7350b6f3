package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

type authResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt"`
}

// Login exchanges credentials for a token pair and caches it.
func (c *Client) Login(ctx context.Context, user types.UserInfo) (types.Tokens, error) {
	const op = "remote.Login"

	resp, err := c.sendJSON(ctx, op, "/login", user)
	if err != nil {
		return types.Tokens{}, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return types.Tokens{}, types.E(types.KindUnauthorized, op, nil)
	}
	if err := expectStatus(op, resp); err != nil {
		return types.Tokens{}, err
	}
	return c.storeAuth(op, resp)
}

// LoginCached logs in again with the cached credentials.
func (c *Client) LoginCached(ctx context.Context) (types.Tokens, error) {
	user, ok := c.credentials.UserInfo()
	if !ok {
		return types.Tokens{}, types.E(types.KindUnauthorized, "remote.LoginCached", errors.New("no saved credentials"))
	}
	return c.Login(ctx, user)
}

// Register creates an account. On success the credentials are cached and a
// login populates the token pair.
func (c *Client) Register(ctx context.Context, reg types.RegistrationRequest) (types.UserInfo, error) {
	const op = "remote.Register"

	resp, err := c.sendJSON(ctx, op, "/register", reg)
	if err != nil {
		return types.UserInfo{}, err
	}
	switch resp.StatusCode {
	case http.StatusCreated:
		drain(resp)
	case http.StatusConflict:
		drain(resp)
		return types.UserInfo{}, types.E(types.KindDuplicateUser, op, fmt.Errorf("mobile %s is already registered", reg.Mobile))
	default:
		return types.UserInfo{}, expectStatus(op, resp, http.StatusCreated)
	}

	user := types.UserInfo{Mobile: reg.Mobile, Password: reg.Password}
	if err := c.credentials.SaveUserInfo(user); err != nil {
		return types.UserInfo{}, types.E(types.KindIO, op, err)
	}
	if _, err := c.Login(ctx, user); err != nil {
		return types.UserInfo{}, err
	}
	return user, nil
}

// refresh replaces the token pair. Concurrent callers share one request, and
// a caller whose stale token was already replaced gets the new pair without
// another round trip.
func (c *Client) refresh(ctx context.Context, stale types.Tokens) (types.Tokens, error) {
	const op = "remote.refresh"

	v, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		current, ok := c.tokens.Tokens()
		if ok && current.AccessToken != stale.AccessToken {
			return current, nil
		}
		if !ok || current.RefreshToken == "" {
			return nil, types.E(types.KindUnauthorized, op, errors.New("no refresh token"))
		}

		c.logger.Printf("refreshing access token")
		resp, err := c.send(ctx, op, jsonRequest(http.MethodPost, c.baseURL+"/refresh", current.RefreshToken), "")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			return nil, types.E(types.KindUnauthorized, op, errors.New("refresh token rejected"))
		}
		if err := expectStatus(op, resp); err != nil {
			return nil, err
		}
		return c.storeAuth(op, resp)
	})
	if err != nil {
		return types.Tokens{}, err
	}
	return v.(types.Tokens), nil
}

// storeAuth decodes an auth response, caches the tokens and closes resp. A
// body that does not decode is the server's fault.
func (c *Client) storeAuth(op string, resp *http.Response) (types.Tokens, error) {
	defer drain(resp)

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return types.Tokens{}, types.E(types.KindServer, op, fmt.Errorf("failed to decode auth response: %w", err))
	}
	if auth.AccessToken == "" {
		return types.Tokens{}, types.E(types.KindServer, op, errors.New("auth response has no access token"))
	}

	tokens := types.Tokens{AccessToken: auth.AccessToken, RefreshToken: auth.RefreshToken}
	if err := c.tokens.SetTokens(tokens); err != nil {
		return types.Tokens{}, types.E(types.KindIO, op, err)
	}
	return tokens, nil
}
