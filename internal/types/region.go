package types

import (
	"sort"
	"time"
)

// Region is a [Start, End] slice of a task's audio in milliseconds. Only the
// play count changes after creation; regeneration deactivates old regions.
type Region struct {
	ID        RegionID
	TaskID    TaskID
	Start     int64
	End       int64
	Active    bool
	PlayCount int64
}

// PartialTranscript is a saved snapshot of the text typed for one region.
type PartialTranscript struct {
	ID        PartialTranscriptID
	TaskID    TaskID
	RegionID  RegionID
	Content   string
	UpdatedAt time.Time
}

// FileInfo describes an audio blob that was imported or downloaded.
type FileInfo struct {
	ID              FileID
	Extension       string
	OrigURI         string
	OrigDisplayName string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LocalFile links a task to the on-device copy of its audio.
type LocalFile struct {
	ID        LocalID
	FileID    FileID
	Path      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FullTask is everything a transcription screen needs for one task.
type FullTask struct {
	Task               Task
	Regions            []Region
	PartialTranscripts []PartialTranscript
	LocalFilePath      string
}

// TranscriptUpload is one entry of the transcript upload payload.
type TranscriptUpload struct {
	RegionStart int64
	RegionEnd   int64
	UpdatedAt   time.Time
	Transcript  string
}

// TranscriptUploads builds the upload payload, newest snapshot first. Region
// bounds are resolved against all of the task's regions so snapshots taken
// before a regeneration keep their original bounds. Snapshots whose region is
// unknown are skipped.
func (f *FullTask) TranscriptUploads(allRegions []Region) []TranscriptUpload {
	byID := make(map[RegionID]Region, len(allRegions)+len(f.Regions))
	for _, r := range allRegions {
		byID[r.ID] = r
	}
	for _, r := range f.Regions {
		byID[r.ID] = r
	}

	partials := make([]PartialTranscript, len(f.PartialTranscripts))
	copy(partials, f.PartialTranscripts)
	sort.SliceStable(partials, func(i, j int) bool {
		return partials[i].UpdatedAt.After(partials[j].UpdatedAt)
	})

	uploads := make([]TranscriptUpload, 0, len(partials))
	for _, p := range partials {
		region, ok := byID[p.RegionID]
		if !ok {
			continue
		}
		uploads = append(uploads, TranscriptUpload{
			RegionStart: region.Start,
			RegionEnd:   region.End,
			UpdatedAt:   p.UpdatedAt,
			Transcript:  p.Content,
		})
	}
	return uploads
}
