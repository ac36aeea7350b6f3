package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// RemoteTask is the server's acceptance of a submitted task.
type RemoteTask struct {
	RemoteID types.RemoteID
	URL      string
}

// TaskDTO is one entry of GET /tasks. Timestamps are ms since the epoch.
type TaskDTO struct {
	ID           types.RemoteID `json:"id"`
	DisplayName  string         `json:"displayName"`
	LengthMs     int64          `json:"lengthMs"`
	Provenance   string         `json:"provenance"`
	Transcript   string         `json:"transcript"`
	RejectReason *string        `json:"rejectReason"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
	CompletedAt  *int64         `json:"completed_at"`
}

// IsRemoteOrigin reports whether the task was created on the server rather
// than uploaded from a device.
func (d TaskDTO) IsRemoteOrigin() bool {
	return strings.EqualFold(d.Provenance, string(types.ProvenanceRemote))
}

type transcriptDTO struct {
	Transcript  string `json:"transcript"`
	RegionStart int64  `json:"regionStart"`
	RegionEnd   int64  `json:"regionEnd"`
	UpdatedAt   int64  `json:"updatedAt"`
}

type completeRequest struct {
	Difficulty  types.Difficulty `json:"difficulty"`
	CompletedAt int64            `json:"completedAt"`
}

// Ping is a cheap authenticated round trip. It refreshes a stale access
// token before an expensive request.
func (c *Client) Ping(ctx context.Context) error {
	const op = "remote.Ping"
	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodPost, c.baseURL+"/ping", nil))
	if err != nil {
		return err
	}
	if err := expectStatus(op, resp); err != nil {
		return err
	}
	drain(resp)
	return nil
}

// clipNamespace scopes the name-based UUIDs returned by ClipKey.
var clipNamespace = uuid.MustParse("6f1c2a9e-4b7d-5e38-9a61-2c0d8f3b7e45")

// ClipKey derives a submission's Idempotency-Key from the audio bytes, the
// display name and the length. Submitting the same clip again, from another
// copy or after a restart, sends the same key.
func ClipKey(audioPath, displayName string, lengthMs int64) (string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to read audio: %w", err)
	}
	fmt.Fprintf(h, "\x00%s\x00%d", displayName, lengthMs)
	return uuid.NewSHA1(clipNamespace, h.Sum(nil)).String(), nil
}

// SubmitTask uploads the audio at audioPath as a new task. Network failures
// are retried with exponential backoff. Every attempt carries the clip's
// Idempotency-Key so the server can drop duplicates, including those from
// an earlier SubmitTask call for the same clip. Any other failure ends the
// retries.
func (c *Client) SubmitTask(ctx context.Context, audioPath, displayName string, lengthMs int64) (RemoteTask, error) {
	const op = "remote.SubmitTask"

	key, err := c.clipKey(audioPath, displayName, lengthMs)
	if err != nil {
		return RemoteTask{}, types.E(types.KindIO, op, err)
	}
	backoff := retry.WithMaxRetries(uint64(c.maxAttempts-1), retry.NewExponential(c.backoff))
	backoff = retry.WithCappedDuration(30*time.Second, backoff)

	attempt := 0
	var resp *http.Response
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		// The ping only refreshes a stale token; its status does not matter.
		if err := c.Ping(ctx); err != nil {
			switch types.KindOf(err) {
			case types.KindNetwork, types.KindUnauthorized:
				return retryable(err)
			}
			c.logger.Printf("WARNING: ping before submitting %s failed: %v", displayName, err)
		}

		r, err := c.doAuthorized(ctx, op, func(ctx context.Context) (*http.Request, error) {
			return multipartRequest(ctx, c.baseURL+"/tasks", audioPath, displayName, lengthMs, key)
		})
		if err != nil {
			if types.IsRetryable(err) {
				c.logger.Printf("WARNING: submit attempt %d for %s failed: %v", attempt, displayName, err)
			}
			return retryable(err)
		}
		resp = r
		return nil
	})
	if err != nil {
		if types.KindOf(err) == types.KindUnknown {
			// retry.Do reports cancellation as the bare context error.
			err = types.E(types.KindNetwork, op, err)
		}
		return RemoteTask{}, err
	}

	if resp.StatusCode != http.StatusCreated {
		return RemoteTask{}, expectStatus(op, resp, http.StatusCreated)
	}
	defer drain(resp)

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return RemoteTask{}, types.E(types.KindNetwork, op, err)
	}
	id, err := strconv.ParseInt(strings.Trim(strings.TrimSpace(string(body)), `"`), 10, 64)
	if err != nil {
		return RemoteTask{}, types.E(types.KindParsing, op, fmt.Errorf("task id %q: %w", body, err))
	}
	return RemoteTask{RemoteID: types.RemoteID(id), URL: c.TaskFileURL(types.RemoteID(id))}, nil
}

// retryable marks network failures for retry.Do.
func retryable(err error) error {
	if types.IsRetryable(err) {
		return retry.RetryableError(err)
	}
	return err
}

func multipartRequest(ctx context.Context, url, audioPath, displayName string, lengthMs int64, key string) (*http.Request, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("length", strconv.FormatInt(lengthMs, 10)); err != nil {
		return nil, err
	}
	name := displayName
	if name == "" {
		name = filepath.Base(audioPath)
	}
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to read audio: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Idempotency-Key", key)
	return req, nil
}

// RefreshTasks pulls the full task list.
func (c *Client) RefreshTasks(ctx context.Context) ([]TaskDTO, error) {
	const op = "remote.RefreshTasks"

	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodGet, c.baseURL+"/tasks", nil))
	if err != nil {
		return nil, err
	}
	if err := expectStatus(op, resp, http.StatusOK); err != nil {
		return nil, err
	}
	defer drain(resp)

	var tasks []TaskDTO
	if err := json.NewDecoder(resp.Body).Decode(&tasks); err != nil {
		return nil, types.E(types.KindParsing, op, err)
	}
	return tasks, nil
}

// UploadTranscripts sends every snapshot of a task and returns the text the
// server now holds: the most recently updated snapshot.
func (c *Client) UploadTranscripts(ctx context.Context, id types.RemoteID, uploads []types.TranscriptUpload) (string, error) {
	const op = "remote.UploadTranscripts"

	if len(uploads) == 0 {
		return "", types.E(types.KindStore, op, errors.New("no transcript snapshots to upload"))
	}
	body := make([]transcriptDTO, len(uploads))
	latest := uploads[0]
	for i, u := range uploads {
		body[i] = transcriptDTO{
			Transcript:  u.Transcript,
			RegionStart: u.RegionStart,
			RegionEnd:   u.RegionEnd,
			UpdatedAt:   u.UpdatedAt.UnixMilli(),
		}
		if u.UpdatedAt.After(latest.UpdatedAt) {
			latest = u
		}
	}

	url := fmt.Sprintf("%s/tasks/%d/transcripts", c.baseURL, id)
	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodPost, url, body))
	if err != nil {
		return "", err
	}
	if err := expectStatus(op, resp); err != nil {
		return "", err
	}
	drain(resp)
	return latest.Transcript, nil
}

// CompleteTask announces a completion. Resending is harmless.
func (c *Client) CompleteTask(ctx context.Context, id types.RemoteID, difficulty types.Difficulty, completedAt time.Time) error {
	const op = "remote.CompleteTask"
	url := fmt.Sprintf("%s/tasks/%d/complete", c.baseURL, id)
	req := completeRequest{Difficulty: difficulty, CompletedAt: completedAt.UnixMilli()}

	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodPost, url, req))
	if err != nil {
		return err
	}
	if err := expectStatus(op, resp); err != nil {
		return err
	}
	drain(resp)
	return nil
}

// RejectTask sends the reject reason.
func (c *Client) RejectTask(ctx context.Context, id types.RemoteID, reason types.RejectReason) error {
	const op = "remote.RejectTask"
	url := fmt.Sprintf("%s/tasks/%d/reject", c.baseURL, id)

	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodPost, url, reason))
	if err != nil {
		return err
	}
	if err := expectStatus(op, resp); err != nil {
		return err
	}
	drain(resp)
	return nil
}

// DownloadToFile streams url into f and returns f's path. On failure f may
// hold a partial download; the caller removes it.
func (c *Client) DownloadToFile(ctx context.Context, url string, f *os.File) (string, error) {
	const op = "remote.DownloadToFile"

	resp, err := c.doAuthorized(ctx, op, jsonRequest(http.MethodGet, url, nil))
	if err != nil {
		return "", err
	}
	if err := expectStatus(op, resp); err != nil {
		return "", err
	}
	defer drain(resp)

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return "", types.E(types.KindNetwork, op, fmt.Errorf("download interrupted after %d bytes: %w", n, err))
	}
	if err := f.Sync(); err != nil {
		return "", types.E(types.KindIO, op, err)
	}
	return f.Name(), nil
}

// LogError uploads a diagnostic message. It needs no login.
func (c *Client) LogError(ctx context.Context, message string) error {
	const op = "remote.LogError"

	resp, err := c.send(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/error", strings.NewReader(message))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		return req, nil
	}, "")
	if err != nil {
		return err
	}
	if err := expectStatus(op, resp); err != nil {
		return err
	}
	drain(resp)
	return nil
}
