package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// audioExtensions maps the audio MIME types that devices commonly share.
// The platform MIME table is consulted for anything else.
var audioExtensions = map[string]string{
	"audio/aac":    "aac",
	"audio/amr":    "amr",
	"audio/3gpp":   "3gp",
	"audio/flac":   "flac",
	"audio/mp4":    "m4a",
	"audio/mpeg":   "mp3",
	"audio/ogg":    "ogg",
	"audio/opus":   "opus",
	"audio/wav":    "wav",
	"audio/x-wav":  "wav",
	"audio/webm":   "webm",
	"audio/x-m4a":  "m4a",
	"audio/x-flac": "flac",
}

// FileResolver opens local paths and file:// URIs.
type FileResolver struct{}

// Open implements ContentResolver.
func (FileResolver) Open(_ context.Context, uri string) (io.ReadCloser, error) {
	return os.Open(strings.TrimPrefix(uri, "file://"))
}

// CreateProvisionalTask copies shared content into the files directory.
func (e *engine) CreateProvisionalTask(ctx context.Context, content IncomingContent) (*types.ProvisionalTask, error) {
	const op = "sync.CreateProvisionalTask"

	name := content.DisplayName
	if name == "" {
		base := filepath.Base(strings.TrimPrefix(content.URI, "file://"))
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, types.E(types.KindIO, op, fmt.Errorf("cannot derive a display name from %q", content.URI))
	}

	fi, err := e.store.InsertFileInfo(ctx, extensionForMime(content.MimeType), content.URI, name)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(e.cfg.FilesDir, store.FileName(fi))

	if err := e.copyContent(ctx, content.URI, path); err != nil {
		e.cleanupFile(ctx, fi.ID, path)
		return nil, types.E(types.KindIO, op, err)
	}
	return &types.ProvisionalTask{
		FileID:      fi.ID,
		AudioPath:   path,
		DisplayName: name,
	}, nil
}

func (e *engine) copyContent(ctx context.Context, uri, path string) error {
	src, err := e.cfg.Resolver.Open(ctx, uri)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", uri, err)
	}
	defer src.Close()

	dst, err := createExclusive(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to copy %s: %w", uri, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (e *engine) DiscardProvisionalTask(ctx context.Context, p types.ProvisionalTask) error {
	if err := os.Remove(p.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return types.E(types.KindIO, "sync.DiscardProvisionalTask", err)
	}
	return e.store.DeleteFileInfo(ctx, p.FileID)
}

// CreateTranscriptTask submits first and records the task locally only
// after the server accepted it.
func (e *engine) CreateTranscriptTask(ctx context.Context, p types.ProvisionalTask, lengthMs int64) (*types.Task, error) {
	if lengthMs <= 0 {
		return nil, types.E(types.KindIO, "sync.CreateTranscriptTask", fmt.Errorf("length must be positive (got %d)", lengthMs))
	}
	if err := e.waitForAudio(ctx, p.AudioPath); err != nil {
		return nil, err
	}

	accepted, err := e.remote.SubmitTask(ctx, p.AudioPath, p.DisplayName, lengthMs)
	if err != nil {
		return nil, err
	}
	task, err := e.store.InsertLocalTask(ctx, accepted.RemoteID, accepted.URL, p.FileID, p.AudioPath, p.DisplayName, lengthMs)
	if err != nil {
		return nil, fmt.Errorf("server accepted task %d but it could not be recorded: %w", accepted.RemoteID, err)
	}
	e.logger.Printf("Submitted %q as task %d (remote %d)", p.DisplayName, task.ID, task.RemoteID)
	return task, nil
}

// extensionForMime picks the stored file extension for a MIME type,
// defaulting to "audio".
func extensionForMime(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "audio"
	}
	if ext, ok := audioExtensions[mt]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mt); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "audio"
}
