package types

import (
	"fmt"
	"strings"
	"time"
)

// DefaultRegionLength is the target region length in milliseconds used for
// new tasks.
const DefaultRegionLength int64 = 5000

// Provenance records where a task came from.
type Provenance string

const (
	// ProvenanceLocal marks tasks created from on-device content.
	ProvenanceLocal Provenance = "LOCAL"
	// ProvenanceRemote marks tasks discovered on the server.
	ProvenanceRemote Provenance = "REMOTE"
)

// RejectReason explains why a task was rejected.
type RejectReason string

const (
	RejectBlank         RejectReason = "BLANK"
	RejectInappropriate RejectReason = "INAPPROPRIATE"
	RejectUnderage      RejectReason = "UNDERAGE"
)

// ParseRejectReason accepts a reject reason in any letter case.
func ParseRejectReason(s string) (RejectReason, error) {
	switch r := RejectReason(strings.ToUpper(strings.TrimSpace(s))); r {
	case RejectBlank, RejectInappropriate, RejectUnderage:
		return r, nil
	default:
		return "", fmt.Errorf("unknown reject reason %q (want BLANK, INAPPROPRIATE or UNDERAGE)", s)
	}
}

// Difficulty is the transcriber's rating of a completed task.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// ParseDifficulty accepts a difficulty in any letter case.
func ParseDifficulty(s string) (Difficulty, error) {
	switch d := Difficulty(strings.ToUpper(strings.TrimSpace(s))); d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return d, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q (want EASY, MEDIUM or HARD)", s)
	}
}

// Phase is the derived lifecycle phase of a task.
type Phase int

const (
	PhaseNew Phase = iota
	PhaseInProgress
	PhaseCompleted
	PhaseRejected
)

// String returns the phase name as used in logs and on the wire.
func (p Phase) String() string {
	switch p {
	case PhaseNew:
		return "NEW"
	case PhaseInProgress:
		return "IN_PROGRESS"
	case PhaseCompleted:
		return "COMPLETED"
	case PhaseRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Task is a unit of transcription work tied to one audio clip.
type Task struct {
	ID           TaskID
	RemoteID     RemoteID
	RemoteURL    string
	Length       int64 // total audio length, ms
	RegionLength int64 // target region length, ms
	Provenance   Provenance
	DisplayName  string

	CreatedAt            time.Time
	UpdatedAt            time.Time
	CompletedAt          *time.Time
	SubmittedAt          *time.Time
	CompletionNotifiedAt *time.Time

	// LocalFile is nil until the audio has been imported or downloaded.
	LocalFile *LocalID

	// LatestTranscript is the last locally saved transcript text.
	LatestTranscript string
	// SubmittedTranscript is the text the server accepted, if any.
	SubmittedTranscript *string

	RejectReason *RejectReason
	Difficulty   *Difficulty
}

// Phase derives the lifecycle phase. The first matching rule wins:
// rejected, completed, in progress (updated after creation), new.
func (t *Task) Phase() Phase {
	switch {
	case t.RejectReason != nil:
		return PhaseRejected
	case t.CompletedAt != nil:
		return PhaseCompleted
	case t.UpdatedAt.After(t.CreatedAt):
		return PhaseInProgress
	default:
		return PhaseNew
	}
}

// IsSynced reports whether the server has seen the latest local change.
func (t *Task) IsSynced() bool {
	return t.SubmittedAt != nil && !t.SubmittedAt.Before(t.UpdatedAt)
}

// CompletionPending reports whether a completion still has to be announced
// to the server.
func (t *Task) CompletionPending() bool {
	if t.CompletedAt == nil || t.RejectReason != nil {
		return false
	}
	return t.CompletionNotifiedAt == nil || t.CompletionNotifiedAt.Before(*t.CompletedAt)
}

// HasLocalFile reports whether the task's audio is available on the device.
func (t *Task) HasLocalFile() bool {
	return t.LocalFile != nil
}

// Validate checks the persisted invariants of a task.
func (t *Task) Validate() error {
	if t.Length <= 0 {
		return fmt.Errorf("length must be positive (got %d)", t.Length)
	}
	if t.RegionLength <= 0 {
		return fmt.Errorf("region length must be positive (got %d)", t.RegionLength)
	}
	if t.DisplayName == "" {
		return fmt.Errorf("display name is required")
	}
	switch t.Provenance {
	case ProvenanceLocal, ProvenanceRemote:
	default:
		return fmt.Errorf("unknown provenance %q", t.Provenance)
	}
	if t.CompletedAt != nil && t.Difficulty == nil && t.RejectReason == nil {
		return fmt.Errorf("completed task must record a difficulty or a rejection")
	}
	return nil
}

// ProvisionalTask describes imported audio that has not been submitted yet.
type ProvisionalTask struct {
	FileID      FileID `json:"fileId"`
	AudioPath   string `json:"audio_path"`
	DisplayName string `json:"displayName"`
}
