package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/fieldscribe/fieldscribe/internal/daemon"
	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

// TaskSource publishes task list snapshots. *store.Store implements it.
type TaskSource interface {
	Subscribe() (<-chan []types.Task, func())
}

// Handler turns store snapshots and daemon events into dashboard messages.
// It implements daemon.Notifier.
type Handler struct {
	server *Server
	logger *log.Logger
	now    func() time.Time
}

var _ daemon.Notifier = (*Handler)(nil)

// NewHandler creates a new event handler connected to a dashboard server
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(log.Writer(), "[dashboard] ", log.LstdFlags)
	}

	return &Handler{
		server: server,
		logger: logger,
		now:    time.Now,
	}
}

// Run forwards every snapshot from src until ctx is cancelled.
func (h *Handler) Run(ctx context.Context, src TaskSource) {
	snapshots, cancel := src.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case tasks, ok := <-snapshots:
			if !ok {
				return
			}
			h.OnTaskList(tasks)
		}
	}
}

// OnTaskList publishes a task list snapshot.
func (h *Handler) OnTaskList(tasks []types.Task) {
	data := TaskListData{
		Tasks:   make([]TaskSummary, 0, len(tasks)),
		Total:   len(tasks),
		ByPhase: make(map[string]int),
	}
	for i := range tasks {
		t := &tasks[i]
		phase := t.Phase().String()
		data.ByPhase[phase]++
		if !t.IsSynced() {
			data.Unsynced++
		}
		data.Tasks = append(data.Tasks, TaskSummary{
			ID:          int64(t.ID),
			RemoteID:    int64(t.RemoteID),
			DisplayName: t.DisplayName,
			LengthMs:    t.Length,
			Phase:       phase,
			Synced:      t.IsSynced(),
			HasAudio:    t.HasLocalFile(),
			UpdatedAt:   t.UpdatedAt,
		})
	}

	msg, ok := h.message(MessageTypeTaskList, data)
	if !ok {
		return
	}
	h.server.SetSnapshot(msg)
}

// SyncComplete handles sync cycle completion
func (h *Handler) SyncComplete(report syncengine.SyncReport) {
	h.publish(MessageTypeSyncComplete, SyncCompleteData{
		Inserted:    report.Inserted,
		Rejected:    report.Push.Rejected,
		Transcripts: report.Push.Transcripts,
		Completions: report.Push.Completions,
		Failed:      report.Push.Failed(),
	})
}

// SyncFailed handles a failed sync cycle
func (h *Handler) SyncFailed(err error) {
	h.publish(MessageTypeSyncFailed, SyncFailedData{
		Kind:  types.KindOf(err).String(),
		Error: err.Error(),
	})
}

// TaskIngested handles a clip submitted from the inbox
func (h *Handler) TaskIngested(task *types.Task) {
	h.logger.Printf("Task ingested: %d (%s)", task.ID, task.DisplayName)
	h.publish(MessageTypeTaskIngested, TaskIngestedData{
		TaskID:      int64(task.ID),
		RemoteID:    int64(task.RemoteID),
		DisplayName: task.DisplayName,
	})
}

func (h *Handler) publish(typ MessageType, data any) {
	if msg, ok := h.message(typ, data); ok {
		h.server.Broadcast(msg)
	}
}

func (h *Handler) message(typ MessageType, data any) (Message, bool) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return Message{}, false
	}
	return Message{
		Type:      typ,
		Timestamp: h.now(),
		Data:      dataJSON,
	}, true
}
