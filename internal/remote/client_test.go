package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldscribe/fieldscribe/internal/prefs"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// fakeServer is a minimal transcription server. Access tokens listed in
// valid are accepted; everything else gets 401.
type fakeServer struct {
	mu         sync.Mutex
	valid      map[string]bool
	refreshTo  types.Tokens
	refreshErr int
	hits       map[string]int
	bodies     map[string][]string
	headers    map[string][]http.Header

	handlers map[string]http.HandlerFunc
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{
		valid:    map[string]bool{},
		hits:     map[string]int{},
		bodies:   map[string][]string{},
		headers:  map[string][]http.Header{},
		handlers: map[string]http.HandlerFunc{},
	}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) allow(token string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.valid[token] = true
}

func (fs *fakeServer) refreshWith(next types.Tokens, status int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.refreshTo = next
	fs.refreshErr = status
}

func (fs *fakeServer) handle(route string, h http.HandlerFunc) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.handlers[route] = h
}

func (fs *fakeServer) count(route string) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.hits[route]
}

func (fs *fakeServer) lastBody(route string) string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	b := fs.bodies[route]
	if len(b) == 0 {
		return ""
	}
	return b[len(b)-1]
}

func (fs *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)

	fs.mu.Lock()
	fs.hits[route]++
	fs.bodies[route] = append(fs.bodies[route], string(body))
	fs.headers[route] = append(fs.headers[route], r.Header.Clone())
	h := fs.handlers[route]
	fs.mu.Unlock()

	switch route {
	case "POST /refresh":
		var rt string
		_ = json.Unmarshal(body, &rt)
		fs.mu.Lock()
		status := fs.refreshErr
		next := fs.refreshTo
		if status == 0 {
			fs.valid[next.AccessToken] = true
		}
		fs.mu.Unlock()
		if status != 0 {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, http.StatusOK, authResponse{AccessToken: next.AccessToken, RefreshToken: next.RefreshToken})
		return
	case "POST /login", "POST /register", "POST /error":
		if h != nil {
			r.Body = io.NopCloser(strings.NewReader(string(body)))
			h(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	fs.mu.Lock()
	ok := fs.valid[token]
	fs.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if h == nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	h(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, baseURL string, tokens types.Tokens, opts ...func(*Config)) (*Client, *prefs.Repository) {
	t.Helper()
	repo := prefs.NewRepository(prefs.NewMemory())
	if tokens.AccessToken != "" {
		require.NoError(t, repo.SetTokens(tokens))
	}
	cfg := DefaultConfig(baseURL)
	cfg.Tokens = repo
	cfg.Credentials = repo
	cfg.SubmitBackoff = time.Millisecond
	cfg.Logger = log.New(io.Discard, "", 0)
	for _, o := range opts {
		o(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	return c, repo
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	repo := prefs.NewRepository(prefs.NewMemory())
	_, err = New(Config{BaseURL: "http://x", Credentials: repo})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "http://x/", Tokens: repo, Credentials: repo})
	require.NoError(t, err)
	assert.Equal(t, "http://x/tasks/7/file", c.TaskFileURL(7))
}

func TestTokenRefresh_OneRefreshOneRetry(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.refreshWith(types.Tokens{AccessToken: "new", RefreshToken: "r2"}, 0)
	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []TaskDTO{{ID: 1, DisplayName: "a", LengthMs: 1000, Provenance: "REMOTE"}})
	})

	c, repo := newTestClient(t, srv.URL, types.Tokens{AccessToken: "old", RefreshToken: "r1"})

	tasks, err := c.RefreshTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	assert.Equal(t, 1, fs.count("POST /refresh"))
	assert.Equal(t, 2, fs.count("GET /tasks"))
	assert.Equal(t, `"r1"`, fs.lastBody("POST /refresh"))

	tok, _ := repo.Tokens()
	assert.Equal(t, "new", tok.AccessToken)
	assert.Equal(t, "r2", tok.RefreshToken)
}

func TestTokenRefresh_SecondUnauthorized(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.refreshWith(types.Tokens{AccessToken: "new", RefreshToken: "r2"}, 0)
	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "old", RefreshToken: "r1"})

	_, err := c.RefreshTasks(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrUnauthorized), "got %v", err)
	assert.Equal(t, 1, fs.count("POST /refresh"))
	assert.Equal(t, 2, fs.count("GET /tasks"))
}

func TestTokenRefresh_RefreshRejectedKeepsTokens(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.refreshWith(types.Tokens{}, http.StatusUnauthorized)

	c, repo := newTestClient(t, srv.URL, types.Tokens{AccessToken: "old", RefreshToken: "r1"})

	_, err := c.RefreshTasks(context.Background())
	assert.Equal(t, types.KindUnauthorized, types.KindOf(err))
	assert.Equal(t, 1, fs.count("GET /tasks"))

	tok, ok := repo.Tokens()
	require.True(t, ok, "tokens are left for the caller to clear")
	assert.Equal(t, "old", tok.AccessToken)
}

func TestTokenRefresh_CoalescedAcrossCallers(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.refreshWith(types.Tokens{AccessToken: "new", RefreshToken: "r2"}, 0)
	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []TaskDTO{})
	})

	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "old", RefreshToken: "r1"})

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.RefreshTasks(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, fs.count("POST /refresh"))
}

func TestLogin(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var u types.UserInfo
		_ = json.NewDecoder(r.Body).Decode(&u)
		if u.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, authResponse{AccessToken: "a", RefreshToken: "r", ExpiresAt: 1})
	})

	c, repo := newTestClient(t, srv.URL, types.Tokens{})

	_, err := c.Login(context.Background(), types.UserInfo{Mobile: "07", Password: "bad"})
	assert.True(t, errors.Is(err, types.ErrUnauthorized))

	tok, err := c.Login(context.Background(), types.UserInfo{Mobile: "07", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "a", tok.AccessToken)
	stored, _ := repo.Tokens()
	assert.Equal(t, tok, stored)

	_, err = c.LoginCached(context.Background())
	assert.Equal(t, types.KindUnauthorized, types.KindOf(err), "no credentials cached yet")
}

func TestLogin_GarbageBodyIsServerError(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	})
	c, _ := newTestClient(t, srv.URL, types.Tokens{})

	_, err := c.Login(context.Background(), types.UserInfo{Mobile: "07", Password: "pw"})
	assert.Equal(t, types.KindServer, types.KindOf(err))
}

func TestRegister(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.handle("POST /register", func(w http.ResponseWriter, r *http.Request) {
		var req types.RegistrationRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Mobile == "taken" {
			w.WriteHeader(http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})
	fs.handle("POST /login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, authResponse{AccessToken: "a", RefreshToken: "r"})
	})

	c, repo := newTestClient(t, srv.URL, types.Tokens{})
	ctx := context.Background()

	_, err := c.Register(ctx, types.RegistrationRequest{Mobile: "taken", Password: "pw"})
	assert.True(t, errors.Is(err, types.ErrDuplicateUser))
	assert.Equal(t, 0, fs.count("POST /login"))

	user, err := c.Register(ctx, types.RegistrationRequest{Mobile: "0711", Operator: "op", Name: "N", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "0711", user.Mobile)
	assert.Equal(t, 1, fs.count("POST /login"))

	saved, ok := repo.UserInfo()
	require.True(t, ok)
	assert.Equal(t, user, saved)
	_, ok = repo.Tokens()
	assert.True(t, ok)
}

// flakyTransport fails the first n POST /tasks round trips at the transport
// level and records every Idempotency-Key it sees.
type flakyTransport struct {
	base     http.RoundTripper
	failures int32
	mu       sync.Mutex
	keys     []string
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodPost && req.URL.Path == "/tasks" {
		f.mu.Lock()
		f.keys = append(f.keys, req.Header.Get("Idempotency-Key"))
		f.mu.Unlock()
		if atomic.AddInt32(&f.failures, -1) >= 0 {
			return nil, errors.New("connection reset by peer")
		}
	}
	return f.base.RoundTrip(req)
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "1.ogg")
	require.NoError(t, os.WriteFile(path, []byte("OggS-fake-audio"), 0644))
	return path
}

func TestSubmitTask_RetriesNetworkFailures(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	fs.handle("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "12000", r.FormValue("length"))
		file, hdr, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		assert.Equal(t, "clip.ogg", hdr.Filename)
		data, _ := io.ReadAll(file)
		assert.Equal(t, "OggS-fake-audio", string(data))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("77"))
	})

	flaky := &flakyTransport{base: http.DefaultTransport, failures: 2}
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok", RefreshToken: "r"}, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Transport: flaky}
		cfg.SubmissionKey = func(string, string, int64) (string, error) { return "key-1", nil }
	})

	rt, err := c.SubmitTask(context.Background(), writeAudio(t), "clip.ogg", 12000)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteID(77), rt.RemoteID)
	assert.Equal(t, srv.URL+"/tasks/77/file", rt.URL)

	assert.Equal(t, 3, fs.count("POST /ping"), "each attempt pings first")
	assert.Equal(t, 1, fs.count("POST /tasks"))
	assert.Equal(t, []string{"key-1", "key-1", "key-1"}, flaky.keys)
}

func TestSubmitTask_StableKeyAcrossAttempts(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	fs.handle("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("5"))
	})

	flaky := &flakyTransport{base: http.DefaultTransport, failures: 1}
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"}, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Transport: flaky}
	})

	_, err := c.SubmitTask(context.Background(), writeAudio(t), "a.ogg", 1000)
	require.NoError(t, err)
	require.Len(t, flaky.keys, 2)
	assert.NotEmpty(t, flaky.keys[0])
	assert.Equal(t, flaky.keys[0], flaky.keys[1])

	// A different clip gets a different key.
	atomic.StoreInt32(&flaky.failures, 0)
	_, err = c.SubmitTask(context.Background(), writeAudio(t), "b.ogg", 1000)
	require.NoError(t, err)
	require.Len(t, flaky.keys, 3)
	assert.NotEqual(t, flaky.keys[0], flaky.keys[2])
}

func TestSubmitTask_SameClipSameKeyAcrossCalls(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")

	flaky := &flakyTransport{base: http.DefaultTransport, failures: 100}
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"}, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Transport: flaky}
		cfg.SubmitMaxAttempts = 2
	})

	// Each ingest of the same manifest copies the audio to a fresh path.
	for i := 0; i < 2; i++ {
		_, err := c.SubmitTask(context.Background(), writeAudio(t), "interview", 1000)
		require.ErrorIs(t, err, types.ErrNetwork)
	}

	require.Len(t, flaky.keys, 4)
	for _, k := range flaky.keys {
		assert.Equal(t, flaky.keys[0], k)
	}
	assert.Equal(t, 0, fs.count("POST /tasks"))
}

func TestClipKey(t *testing.T) {
	a := writeAudio(t)
	b := writeAudio(t)

	ka, err := ClipKey(a, "interview", 1000)
	require.NoError(t, err)
	kb, err := ClipKey(b, "interview", 1000)
	require.NoError(t, err)
	assert.Equal(t, ka, kb, "the key depends on content, not on the path")

	other, err := ClipKey(a, "interview", 2000)
	require.NoError(t, err)
	assert.NotEqual(t, ka, other)
	other, err = ClipKey(a, "memo", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, ka, other)

	different := filepath.Join(t.TempDir(), "2.ogg")
	require.NoError(t, os.WriteFile(different, []byte("OggS-other-audio"), 0644))
	other, err = ClipKey(different, "interview", 1000)
	require.NoError(t, err)
	assert.NotEqual(t, ka, other)

	_, err = ClipKey(filepath.Join(t.TempDir(), "gone.ogg"), "x", 1)
	assert.Error(t, err)
}

func TestSubmitTask_PingStatusIgnored(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	fs.handle("POST /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	fs.handle("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("12"))
	})
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	rt, err := c.SubmitTask(context.Background(), writeAudio(t), "a.ogg", 1000)
	require.NoError(t, err)
	assert.Equal(t, types.RemoteID(12), rt.RemoteID)
	assert.Equal(t, 1, fs.count("POST /ping"))
	assert.Equal(t, 1, fs.count("POST /tasks"))
}

func TestSubmitTask_PingUnauthorizedStops(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.refreshWith(types.Tokens{}, http.StatusUnauthorized)
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "stale", RefreshToken: "r"})

	_, err := c.SubmitTask(context.Background(), writeAudio(t), "a.ogg", 1000)
	assert.ErrorIs(t, err, types.ErrUnauthorized)
	assert.Equal(t, 0, fs.count("POST /tasks"))
}

func TestSubmitTask_GivesUpAfterMaxAttempts(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")

	flaky := &flakyTransport{base: http.DefaultTransport, failures: 100}
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"}, func(cfg *Config) {
		cfg.HTTPClient = &http.Client{Transport: flaky}
		cfg.SubmitMaxAttempts = 3
	})

	_, err := c.SubmitTask(context.Background(), writeAudio(t), "a.ogg", 1000)
	assert.True(t, errors.Is(err, types.ErrNetwork), "got %v", err)
	assert.Len(t, flaky.keys, 3)
}

func TestSubmitTask_NoRetryOnSemanticFailure(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   types.Kind
	}{
		{"malformed id", http.StatusCreated, "not-a-number", types.KindParsing},
		{"server error", http.StatusInternalServerError, "boom", types.KindServer},
		{"conflict", http.StatusConflict, "exists", types.KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs, srv := newFakeServer(t)
			fs.allow("tok")
			fs.handle("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

			_, err := c.SubmitTask(context.Background(), writeAudio(t), "a.ogg", 1000)
			assert.Equal(t, tt.kind, types.KindOf(err), "got %v", err)
			assert.Equal(t, 1, fs.count("POST /tasks"))
		})
	}
}

func TestSubmitTask_MissingAudio(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	_, err := c.SubmitTask(context.Background(), filepath.Join(t.TempDir(), "gone.ogg"), "a", 1000)
	assert.Equal(t, types.KindIO, types.KindOf(err))
	assert.Equal(t, 0, fs.count("POST /tasks"))
}

func TestRefreshTasks_Errors(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not":"a list"}`))
	})
	_, err := c.RefreshTasks(context.Background())
	assert.Equal(t, types.KindParsing, types.KindOf(err))

	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err = c.RefreshTasks(context.Background())
	assert.Equal(t, types.KindServer, types.KindOf(err))

	srv.Close()
	_, err = c.RefreshTasks(context.Background())
	assert.Equal(t, types.KindNetwork, types.KindOf(err))
}

func TestRefreshTasks_DecodesTimestamps(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	fs.handle("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id":3,"displayName":"x.mp3","lengthMs":9000,"provenance":"REMOTE",
			"transcript":"","rejectReason":null,"created_at":1700000000000,"updated_at":1700000001000,"completed_at":null}]`))
	})
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	tasks, err := c.RefreshTasks(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].IsRemoteOrigin())
	assert.Equal(t, int64(1700000001000), tasks[0].UpdatedAt)
	assert.Nil(t, tasks[0].CompletedAt)
}

func TestUploadTranscripts(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	base := time.UnixMilli(1_700_000_000_000)
	got, err := c.UploadTranscripts(context.Background(), 9, []types.TranscriptUpload{
		{RegionStart: 0, RegionEnd: 3999, UpdatedAt: base, Transcript: "older"},
		{RegionStart: 3250, RegionEnd: 7999, UpdatedAt: base.Add(time.Second), Transcript: "newest"},
	})
	require.NoError(t, err)
	assert.Equal(t, "newest", got)

	var sent []map[string]any
	require.NoError(t, json.Unmarshal([]byte(fs.lastBody("POST /tasks/9/transcripts")), &sent))
	require.Len(t, sent, 2)
	assert.Equal(t, float64(1_700_000_000_000), sent[0]["updatedAt"])
	assert.Equal(t, float64(3999), sent[0]["regionEnd"])

	_, err = c.UploadTranscripts(context.Background(), 9, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, fs.count("POST /tasks/9/transcripts"))
}

func TestCompleteAndReject(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})
	ctx := context.Background()

	done := time.UnixMilli(1_700_000_123_000)
	require.NoError(t, c.CompleteTask(ctx, 4, types.DifficultyHard, done))
	assert.JSONEq(t, `{"difficulty":"HARD","completedAt":1700000123000}`, fs.lastBody("POST /tasks/4/complete"))

	require.NoError(t, c.RejectTask(ctx, 4, types.RejectBlank))
	assert.JSONEq(t, `"BLANK"`, fs.lastBody("POST /tasks/4/reject"))

	fs.handle("POST /tasks/5/reject", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	err := c.RejectTask(ctx, 5, types.RejectBlank)
	assert.True(t, errors.Is(err, types.ErrServer))
}

func TestDownloadToFile(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.allow("tok")
	fs.handle("GET /tasks/3/file", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio-bytes"))
	})
	fs.handle("GET /tasks/404/file", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	f, err := os.Create(filepath.Join(t.TempDir(), "3.mp3"))
	require.NoError(t, err)
	defer f.Close()

	path, err := c.DownloadToFile(context.Background(), c.TaskFileURL(3), f)
	require.NoError(t, err)
	data, _ := os.ReadFile(path)
	assert.Equal(t, "audio-bytes", string(data))

	_, err = c.DownloadToFile(context.Background(), c.TaskFileURL(404), f)
	assert.Equal(t, types.KindServer, types.KindOf(err))
}

func TestLogError_Unauthenticated(t *testing.T) {
	fs, srv := newFakeServer(t)
	c, _ := newTestClient(t, srv.URL, types.Tokens{AccessToken: "tok"})

	require.NoError(t, c.LogError(context.Background(), "boom"))
	assert.Equal(t, "boom", fs.lastBody("POST /error"))

	fs.mu.Lock()
	hdr := fs.headers["POST /error"][0]
	fs.mu.Unlock()
	assert.Empty(t, hdr.Get("Authorization"))
}

func ExampleClient_TaskFileURL() {
	repo := prefs.NewRepository(prefs.NewMemory())
	c, _ := New(Config{BaseURL: "https://transcribe.example.org/", Tokens: repo, Credentials: repo})
	fmt.Println(c.TaskFileURL(42))
	// Output: https://transcribe.example.org/tasks/42/file
}
