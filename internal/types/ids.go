// Package types defines the domain model shared by the store, the remote
// client and the sync engine: identifiers, tasks, regions, partial
// transcripts, file metadata and the error taxonomy.
package types

import "strconv"

// TaskID is the local surrogate key of a task.
type TaskID int64

// RemoteID is the server-assigned task identifier. It is unique and never
// changes once a task has one.
type RemoteID int64

// RegionID identifies a playback region.
type RegionID int64

// FileID identifies a file metadata row.
type FileID int64

// LocalID identifies the link between a task and an on-device audio file.
type LocalID int64

// PartialTranscriptID identifies a partial transcript snapshot.
type PartialTranscriptID int64

func (id TaskID) String() string              { return strconv.FormatInt(int64(id), 10) }
func (id RemoteID) String() string            { return strconv.FormatInt(int64(id), 10) }
func (id RegionID) String() string            { return strconv.FormatInt(int64(id), 10) }
func (id FileID) String() string              { return strconv.FormatInt(int64(id), 10) }
func (id LocalID) String() string             { return strconv.FormatInt(int64(id), 10) }
func (id PartialTranscriptID) String() string { return strconv.FormatInt(int64(id), 10) }
