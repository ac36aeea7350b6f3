package sync

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/remote"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Engine reconciles local tasks with the transcription server.
//
// All operations are safe to retry. Pull and push are eventually
// consistent: a failed cycle leaves every task either untouched or fully
// updated, and the next cycle picks up where this one stopped.
type Engine interface {
	// RefreshTasks pulls the server's task list, inserts REMOTE-origin tasks
	// that are not known locally and then pushes local changes.
	//
	// Known tasks are never merged with the server's copy. The first failed
	// insert aborts the pull and RefreshTasks returns its error without
	// pushing; tasks inserted before the failure stay.
	//
	// Example:
	//   report, err := engine.RefreshTasks(ctx)
	RefreshTasks(ctx context.Context) (SyncReport, error)

	// UploadChanges pushes every unsynced task: reject reasons, transcript
	// snapshots and completion notices.
	//
	// Per-task failures do not fail the call; they are logged, counted in
	// the report and retried on the next cycle. The returned error is only
	// non-nil when the task list cannot be loaded or ctx is cancelled.
	UploadChanges(ctx context.Context) (PushReport, error)

	// GetFullTranscriptTask returns everything needed to transcribe a task.
	//
	// A task without a local audio file is hydrated first: the audio is
	// downloaded into the files directory and linked to the task. Active
	// regions are regenerated when their count no longer matches the task
	// length. Download failures surface as types.ErrLoading.
	GetFullTranscriptTask(ctx context.Context, id types.TaskID) (*types.FullTask, error)

	// CreateProvisionalTask copies shared audio into managed storage and
	// returns a descriptor for CreateTranscriptTask. Copy failures surface as
	// types.ErrIO and leave no file metadata behind.
	CreateProvisionalTask(ctx context.Context, content IncomingContent) (*types.ProvisionalTask, error)

	// DiscardProvisionalTask removes the copied audio and its file metadata
	// of a provisional task that will not be submitted.
	DiscardProvisionalTask(ctx context.Context, p types.ProvisionalTask) error

	// CreateTranscriptTask submits a provisional task to the server and, once
	// accepted, records it locally. Nothing is written locally when the
	// submission fails.
	CreateTranscriptTask(ctx context.Context, p types.ProvisionalTask, lengthMs int64) (*types.Task, error)

	// SaveTranscript stores the text typed for a region. Consecutive saves
	// for the same region update one snapshot; moving to another region
	// starts a new one.
	SaveTranscript(ctx context.Context, regionID types.RegionID, text string) (*types.PartialTranscript, error)

	// CompleteTask records a completion locally and returns the full view.
	CompleteTask(ctx context.Context, id types.TaskID, difficulty types.Difficulty) (*types.FullTask, error)

	// RejectTask records a rejection locally and returns the full view.
	RejectTask(ctx context.Context, id types.TaskID, reason types.RejectReason) (*types.FullTask, error)

	// Register creates an account and logs in with it.
	Register(ctx context.Context, reg types.RegistrationRequest) (types.UserInfo, error)

	// Login logs in again with the cached credentials.
	Login(ctx context.Context) error

	// LogError uploads a diagnostic message. Failures are logged and
	// returned, but callers usually ignore them.
	LogError(ctx context.Context, message string) error
}

// Remote is the subset of *remote.Client the engine drives.
type Remote interface {
	RefreshTasks(ctx context.Context) ([]remote.TaskDTO, error)
	UploadTranscripts(ctx context.Context, id types.RemoteID, uploads []types.TranscriptUpload) (string, error)
	CompleteTask(ctx context.Context, id types.RemoteID, difficulty types.Difficulty, completedAt time.Time) error
	RejectTask(ctx context.Context, id types.RemoteID, reason types.RejectReason) error
	SubmitTask(ctx context.Context, audioPath, displayName string, lengthMs int64) (remote.RemoteTask, error)
	DownloadToFile(ctx context.Context, url string, f *os.File) (string, error)
	TaskFileURL(id types.RemoteID) string
	Register(ctx context.Context, reg types.RegistrationRequest) (types.UserInfo, error)
	LoginCached(ctx context.Context) (types.Tokens, error)
	LogError(ctx context.Context, message string) error
}

var _ Remote = (*remote.Client)(nil)

// IncomingContent is audio shared into the app.
type IncomingContent struct {
	// URI locates the bytes; FileResolver accepts plain paths and file:// URIs.
	URI string
	// DisplayName defaults to the URI's base name without extension.
	DisplayName string
	// MimeType selects the stored file extension.
	MimeType string
}

// ContentResolver opens shared content for reading.
type ContentResolver interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// SyncReport summarizes one refresh cycle.
type SyncReport struct {
	// Inserted counts remote tasks that were new locally.
	Inserted int
	Push     PushReport
}

// PushReport counts the outcome of one push pass per category.
type PushReport struct {
	Rejected         int
	RejectFailed     int
	Transcripts      int
	TranscriptFailed int
	Completions      int
	CompletionFailed int
	// Skipped counts completions held back because the transcript upload
	// for the same task failed in this pass.
	Skipped int
}

// Failed is the number of failed remote calls.
func (r PushReport) Failed() int {
	return r.RejectFailed + r.TranscriptFailed + r.CompletionFailed
}

// Calls is the number of remote calls attempted.
func (r PushReport) Calls() int {
	return r.Rejected + r.Transcripts + r.Completions + r.Failed()
}
