// Package export writes the local task database as JSON Lines for backup
// and audit. Each line is one Record: a task with its active regions and
// every partial transcript snapshot.
package export

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// TaskFile is the exported form of a task.
type TaskFile struct {
	ID                  int64      `json:"id"`
	RemoteID            int64      `json:"remote_id"`
	RemoteURL           string     `json:"remote_url"`
	DisplayName         string     `json:"display_name"`
	Provenance          string     `json:"provenance"`
	Phase               string     `json:"phase"`
	LengthMs            int64      `json:"length_ms"`
	RegionLengthMs      int64      `json:"region_length_ms"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	SubmittedAt         *time.Time `json:"submitted_at,omitempty"`
	LatestTranscript    string     `json:"latest_transcript,omitempty"`
	SubmittedTranscript *string    `json:"submitted_transcript,omitempty"`
	RejectReason        string     `json:"reject_reason,omitempty"`
	Difficulty          string     `json:"difficulty,omitempty"`
}

// RegionFile is the exported form of a region.
type RegionFile struct {
	ID        int64 `json:"id"`
	StartMs   int64 `json:"start_ms"`
	EndMs     int64 `json:"end_ms"`
	PlayCount int64 `json:"play_count"`
}

// TranscriptFile is the exported form of a partial transcript snapshot.
type TranscriptFile struct {
	ID        int64     `json:"id"`
	RegionID  int64     `json:"region_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is one line of an export.
type Record struct {
	Task        TaskFile         `json:"task"`
	Regions     []RegionFile     `json:"regions"`
	Transcripts []TranscriptFile `json:"transcripts"`
}

// Source is the read side of the store used by Collect.
type Source interface {
	AllTasksContext(ctx context.Context) ([]types.Task, error)
	GetActiveRegions(ctx context.Context, taskID types.TaskID) ([]types.Region, error)
	GetPartialTranscripts(ctx context.Context, taskID types.TaskID) ([]types.PartialTranscript, error)
}

// Result contains statistics about an export
type Result struct {
	TasksExported int
	TasksSkipped  int
	Path          string
}

// Collect loads every task updated at or after since. A zero since exports
// everything.
func Collect(ctx context.Context, src Source, since time.Time) ([]*Record, int, error) {
	tasks, err := src.AllTasksContext(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tasks: %w", err)
	}

	var records []*Record
	skipped := 0
	for i := range tasks {
		task := &tasks[i]
		if !since.IsZero() && task.UpdatedAt.Before(since) {
			skipped++
			continue
		}

		regions, err := src.GetActiveRegions(ctx, task.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load regions of task %d: %w", task.ID, err)
		}
		partials, err := src.GetPartialTranscripts(ctx, task.ID)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to load transcripts of task %d: %w", task.ID, err)
		}
		records = append(records, NewRecord(task, regions, partials))
	}
	return records, skipped, nil
}

// NewRecord converts a task and its rows to export form
func NewRecord(task *types.Task, regions []types.Region, partials []types.PartialTranscript) *Record {
	rec := &Record{
		Task: TaskFile{
			ID:                  int64(task.ID),
			RemoteID:            int64(task.RemoteID),
			RemoteURL:           task.RemoteURL,
			DisplayName:         task.DisplayName,
			Provenance:          string(task.Provenance),
			Phase:               task.Phase().String(),
			LengthMs:            task.Length,
			RegionLengthMs:      task.RegionLength,
			CreatedAt:           task.CreatedAt,
			UpdatedAt:           task.UpdatedAt,
			CompletedAt:         task.CompletedAt,
			SubmittedAt:         task.SubmittedAt,
			LatestTranscript:    task.LatestTranscript,
			SubmittedTranscript: task.SubmittedTranscript,
		},
		Regions:     make([]RegionFile, 0, len(regions)),
		Transcripts: make([]TranscriptFile, 0, len(partials)),
	}
	if task.RejectReason != nil {
		rec.Task.RejectReason = string(*task.RejectReason)
	}
	if task.Difficulty != nil {
		rec.Task.Difficulty = string(*task.Difficulty)
	}

	for _, r := range regions {
		rec.Regions = append(rec.Regions, RegionFile{
			ID:        int64(r.ID),
			StartMs:   r.Start,
			EndMs:     r.End,
			PlayCount: r.PlayCount,
		})
	}
	for _, p := range partials {
		rec.Transcripts = append(rec.Transcripts, TranscriptFile{
			ID:        int64(p.ID),
			RegionID:  int64(p.RegionID),
			Content:   p.Content,
			UpdatedAt: p.UpdatedAt,
		})
	}
	return rec
}

// WriteJSONL encodes one record per line
func WriteJSONL(w io.Writer, records []*Record) error {
	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(bw)
	for _, rec := range records {
		if err := encoder.Encode(rec); err != nil {
			return fmt.Errorf("failed to encode task %d: %w", rec.Task.ID, err)
		}
	}
	return bw.Flush()
}

// WriteFile writes records to path atomically via a temp file
func WriteFile(path string, records []*Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := WriteJSONL(f, records); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Export collects records from src and writes them to path.
func Export(ctx context.Context, src Source, path string, since time.Time) (*Result, error) {
	records, skipped, err := Collect(ctx, src, since)
	if err != nil {
		return nil, err
	}
	if err := WriteFile(path, records); err != nil {
		return nil, err
	}
	return &Result{
		TasksExported: len(records),
		TasksSkipped:  skipped,
		Path:          path,
	}, nil
}

// ReadJSONL reads an export back
func ReadJSONL(r io.Reader) ([]*Record, error) {
	var records []*Record
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++
		records = append(records, &rec)
	}

	return records, nil
}

// ReadFile reads an export file
func ReadFile(path string) ([]*Record, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer f.Close()
	return ReadJSONL(f)
}
