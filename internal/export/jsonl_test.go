package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/segment"
	"github.com/fieldscribe/fieldscribe/internal/store"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// seedStore creates two tasks an hour apart. The second one has regions and
// a saved transcript.
func seedStore(t *testing.T) (*store.Store, time.Time) {
	t.Helper()
	now := time.UnixMilli(1_700_000_000_000)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{
		Clock:  func() time.Time { return now },
		Logger: log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if _, err := st.InsertRemoteTask(ctx, 1, "https://srv.test/tasks/1/file", "old.wav", 4000); err != nil {
		t.Fatalf("InsertRemoteTask() failed: %v", err)
	}

	now = now.Add(time.Hour)
	task, err := st.InsertRemoteTask(ctx, 2, "https://srv.test/tasks/2/file", "new.wav", 7000)
	if err != nil {
		t.Fatalf("InsertRemoteTask() failed: %v", err)
	}
	spans, err := segment.Segment(7000, 5000)
	if err != nil {
		t.Fatal(err)
	}
	regions, err := st.ReplaceActiveRegions(ctx, task.ID, spans)
	if err != nil {
		t.Fatalf("ReplaceActiveRegions() failed: %v", err)
	}
	now = now.Add(time.Second)
	if _, err := st.InsertPartialTranscript(ctx, regions[0], "hello there"); err != nil {
		t.Fatalf("InsertPartialTranscript() failed: %v", err)
	}
	return st, now
}

func TestCollect(t *testing.T) {
	st, last := seedStore(t)
	ctx := context.Background()

	records, skipped, err := Collect(ctx, st, time.Time{})
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if len(records) != 2 || skipped != 0 {
		t.Fatalf("Collect() = %d records, %d skipped, want 2 and 0", len(records), skipped)
	}

	records, skipped, err = Collect(ctx, st, last.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Collect() failed: %v", err)
	}
	if len(records) != 1 || skipped != 1 {
		t.Fatalf("Collect(since) = %d records, %d skipped, want 1 and 1", len(records), skipped)
	}

	rec := records[0]
	if rec.Task.RemoteID != 2 || rec.Task.Phase != "IN_PROGRESS" {
		t.Errorf("task = %+v", rec.Task)
	}
	if rec.Task.LatestTranscript != "hello there" {
		t.Errorf("latest transcript = %q", rec.Task.LatestTranscript)
	}
	if len(rec.Regions) != 2 {
		t.Errorf("regions = %d, want 2", len(rec.Regions))
	}
	if len(rec.Transcripts) != 1 || rec.Transcripts[0].RegionID != rec.Regions[0].ID {
		t.Errorf("transcripts = %+v", rec.Transcripts)
	}
}

func TestExportRoundTrip(t *testing.T) {
	st, _ := seedStore(t)
	path := filepath.Join(t.TempDir(), "backup", "tasks.jsonl")

	result, err := Export(context.Background(), st, path, time.Time{})
	if err != nil {
		t.Fatalf("Export() failed: %v", err)
	}
	if result.TasksExported != 2 || result.Path != path {
		t.Errorf("result = %+v", result)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain after export")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("export has %d lines, want 2", lines)
	}

	records, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("read %d records, want 2", len(records))
	}
	// Most recently updated first.
	if records[0].Task.DisplayName != "new.wav" || records[1].Task.DisplayName != "old.wav" {
		t.Errorf("order = %s, %s", records[0].Task.DisplayName, records[1].Task.DisplayName)
	}
	if !records[0].Task.UpdatedAt.Equal(records[0].Transcripts[0].UpdatedAt) {
		t.Errorf("task updated_at %v != transcript updated_at %v",
			records[0].Task.UpdatedAt, records[0].Transcripts[0].UpdatedAt)
	}
}

func TestNewRecord_Outcome(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	completed := created.Add(time.Minute)
	reason := types.RejectBlank
	task := &types.Task{
		ID:           3,
		RemoteID:     30,
		DisplayName:  "blank.wav",
		Provenance:   types.ProvenanceLocal,
		Length:       1000,
		RegionLength: 5000,
		CreatedAt:    created,
		UpdatedAt:    completed,
		CompletedAt:  &completed,
		RejectReason: &reason,
	}

	rec := NewRecord(task, nil, nil)
	if rec.Task.Phase != "REJECTED" || rec.Task.RejectReason != "BLANK" || rec.Task.Difficulty != "" {
		t.Errorf("task = %+v", rec.Task)
	}

	var buf bytes.Buffer
	if err := WriteJSONL(&buf, []*Record{rec}); err != nil {
		t.Fatalf("WriteJSONL() failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"regions":[]`) {
		t.Errorf("empty regions should encode as [], got %s", buf.String())
	}
}

func TestReadJSONL_Invalid(t *testing.T) {
	input := `{"task":{"id":1}}` + "\n" + `{not json`
	_, err := ReadJSONL(strings.NewReader(input))
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("ReadJSONL() = %v, want error at line 2", err)
	}

	if _, err := ReadFile("/nonexistent/path.jsonl"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

type failingSource struct {
	Source
}

func (failingSource) AllTasksContext(context.Context) ([]types.Task, error) {
	return nil, errors.New("disk on fire")
}

func TestCollect_SourceError(t *testing.T) {
	_, _, err := Collect(context.Background(), failingSource{}, time.Time{})
	if err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Errorf("Collect() = %v", err)
	}
}
