// Package remote is the authenticated HTTP client for the transcription
// server.
//
// Every authenticated call sends the cached access token. On 401 the client
// refreshes the token pair exactly once (coalesced across concurrent callers)
// and retries the original request once; a second 401 surfaces as
// types.ErrUnauthorized and the cached tokens are left for the caller to
// clear.
//
// Failures are classified into the types.Kind taxonomy: transport failures
// are KindNetwork, non-success statuses KindServer, undecodable bodies
// KindParsing.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// TokenRepository holds the bearer token pair.
type TokenRepository interface {
	Tokens() (types.Tokens, bool)
	SetTokens(types.Tokens) error
	ClearTokens() error
}

// CredentialStore holds the login credentials used to log in again.
type CredentialStore interface {
	UserInfo() (types.UserInfo, bool)
	SaveUserInfo(types.UserInfo) error
}

// Config configures a Client.
type Config struct {
	// BaseURL is the server root, e.g. "https://transcribe.example.org".
	BaseURL string
	// HTTPClient defaults to a client with a 60s timeout.
	HTTPClient *http.Client

	Tokens      TokenRepository
	Credentials CredentialStore

	// SubmitMaxAttempts bounds SubmitTask attempts on network failure.
	SubmitMaxAttempts int
	// SubmitBackoff is the first retry delay; later delays double.
	SubmitBackoff time.Duration

	// SubmissionKey derives the Idempotency-Key of a submission. Defaults
	// to ClipKey.
	SubmissionKey func(audioPath, displayName string, lengthMs int64) (string, error)

	Logger *log.Logger
}

// DefaultConfig returns the client defaults for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		SubmitMaxAttempts: 5,
		SubmitBackoff:     500 * time.Millisecond,
	}
}

// Client talks to the transcription server.
type Client struct {
	baseURL     string
	http        *http.Client
	tokens      TokenRepository
	credentials CredentialStore
	maxAttempts int
	backoff     time.Duration
	clipKey     func(audioPath, displayName string, lengthMs int64) (string, error)
	logger      *log.Logger

	refreshGroup singleflight.Group
}

// New validates cfg and returns a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("server URL is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if cfg.Credentials == nil {
		return nil, fmt.Errorf("credential store is required")
	}

	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        cfg.HTTPClient,
		tokens:      cfg.Tokens,
		credentials: cfg.Credentials,
		maxAttempts: cfg.SubmitMaxAttempts,
		backoff:     cfg.SubmitBackoff,
		clipKey:     cfg.SubmissionKey,
		logger:      cfg.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 60 * time.Second}
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 1
	}
	if c.backoff <= 0 {
		c.backoff = 500 * time.Millisecond
	}
	if c.clipKey == nil {
		c.clipKey = ClipKey
	}
	if c.logger == nil {
		c.logger = log.New(os.Stderr, "[remote] ", log.LstdFlags)
	}
	return c, nil
}

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// TaskFileURL is the download URL of a task's audio.
func (c *Client) TaskFileURL(id types.RemoteID) string {
	return fmt.Sprintf("%s/tasks/%d/file", c.baseURL, id)
}

// requestFunc builds a fresh request for each attempt so bodies can be
// resent after a token refresh.
type requestFunc func(ctx context.Context) (*http.Request, error)

// doAuthorized sends the request with the cached access token, refreshing
// once on 401. The caller owns the returned response body.
func (c *Client) doAuthorized(ctx context.Context, op string, build requestFunc) (*http.Response, error) {
	tokens, _ := c.tokens.Tokens()

	resp, err := c.send(ctx, op, build, tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	drain(resp)

	fresh, err := c.refresh(ctx, tokens)
	if err != nil {
		return nil, err
	}

	resp, err = c.send(ctx, op, build, fresh.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		return nil, types.E(types.KindUnauthorized, op, errors.New("rejected after token refresh"))
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, op string, build requestFunc, accessToken string) (*http.Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, types.E(types.KindIO, op, err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, types.E(types.KindNetwork, op, err)
	}
	return resp, nil
}

// sendJSON sends an unauthenticated JSON request.
func (c *Client) sendJSON(ctx context.Context, op, path string, body any) (*http.Response, error) {
	return c.send(ctx, op, jsonRequest(http.MethodPost, c.baseURL+path, body), "")
}

func jsonRequest(method, url string, body any) requestFunc {
	return func(ctx context.Context) (*http.Request, error) {
		var r io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			r = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}
}

// expectStatus closes resp and returns a KindServer error unless the status
// is one of want (any 2xx when want is empty).
func expectStatus(op string, resp *http.Response, want ...int) error {
	ok := len(want) == 0 && resp.StatusCode >= 200 && resp.StatusCode < 300
	for _, w := range want {
		if resp.StatusCode == w {
			ok = true
		}
	}
	if ok {
		return nil
	}
	msg := snippet(resp)
	return types.E(types.KindServer, op, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, msg))
}

// snippet reads a short prefix of the body for error messages and closes it.
func snippet(resp *http.Response) string {
	defer drain(resp)
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
	return strings.TrimSpace(string(data))
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
