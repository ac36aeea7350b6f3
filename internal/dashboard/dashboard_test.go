package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/fieldscribe/fieldscribe/internal/store"
	syncengine "github.com/fieldscribe/fieldscribe/internal/sync"
	"github.com/fieldscribe/fieldscribe/internal/types"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Host:   "127.0.0.1",
		Port:   0, // Use random available port
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, server.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	if addr := server.GetAddr(); addr == "" {
		t.Fatal("Server address is empty")
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Failed to stop server: %v", err)
	}
}

func TestHealthAndRoot(t *testing.T) {
	server := startTestServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()
	var health map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v, want ok", health["status"])
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/")
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET / status = %d", resp.StatusCode)
	}

	resp, err = http.Get("http://" + server.GetAddr() + "/nope")
	if err != nil {
		t.Fatalf("GET /nope failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /nope status = %d, want 404", resp.StatusCode)
	}
}

func TestSnapshotOnConnect(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	now := time.UnixMilli(1_700_000_000_000)
	handler.OnTaskList([]types.Task{
		{ID: 1, RemoteID: 10, DisplayName: "a.wav", Length: 5000, CreatedAt: now, UpdatedAt: now},
		{ID: 2, RemoteID: 11, DisplayName: "b.wav", Length: 7000, CreatedAt: now, UpdatedAt: now.Add(time.Second), SubmittedAt: ptr(now.Add(time.Second))},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeTaskList {
		t.Fatalf("Expected %s, got %s", MessageTypeTaskList, msg.Type)
	}
	var data TaskListData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Failed to unmarshal task list: %v", err)
	}
	if data.Total != 2 || len(data.Tasks) != 2 {
		t.Fatalf("Expected 2 tasks, got %+v", data)
	}
	if data.ByPhase["NEW"] != 1 || data.ByPhase["IN_PROGRESS"] != 1 {
		t.Errorf("by_phase = %v", data.ByPhase)
	}
	if data.Unsynced != 1 || data.Tasks[1].Synced != true {
		t.Errorf("unsynced = %d, tasks[1].synced = %v", data.Unsynced, data.Tasks[1].Synced)
	}
}

func TestBroadcastEvents(t *testing.T) {
	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	clients := []*websocket.Conn{dial(t, ctx, server), dial(t, ctx, server)}
	waitForClients(t, server, 2)

	handler.SyncComplete(syncengine.SyncReport{Inserted: 2, Push: syncengine.PushReport{Transcripts: 1, TranscriptFailed: 1}})
	handler.SyncFailed(types.E(types.KindNetwork, "remote.RefreshTasks", errors.New("offline")))
	handler.TaskIngested(&types.Task{ID: 3, RemoteID: 33, DisplayName: "memo"})

	for i, conn := range clients {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeSyncComplete {
			t.Fatalf("client %d: expected %s, got %s", i, MessageTypeSyncComplete, msg.Type)
		}
		var done SyncCompleteData
		if err := json.Unmarshal(msg.Data, &done); err != nil {
			t.Fatal(err)
		}
		if done.Inserted != 2 || done.Transcripts != 1 || done.Failed != 1 {
			t.Errorf("client %d: sync_complete = %+v", i, done)
		}

		msg = readMessage(t, ctx, conn)
		var failed SyncFailedData
		if err := json.Unmarshal(msg.Data, &failed); err != nil {
			t.Fatal(err)
		}
		if msg.Type != MessageTypeSyncFailed || failed.Kind != types.KindNetwork.String() {
			t.Errorf("client %d: got %s %+v", i, msg.Type, failed)
		}

		msg = readMessage(t, ctx, conn)
		var ingested TaskIngestedData
		if err := json.Unmarshal(msg.Data, &ingested); err != nil {
			t.Fatal(err)
		}
		if msg.Type != MessageTypeTaskIngested || ingested.RemoteID != 33 {
			t.Errorf("client %d: got %s %+v", i, msg.Type, ingested)
		}
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}

func TestHandlerRun_ForwardsStoreSnapshots(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "fieldscribe.db"), store.Options{Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	server := startTestServer(t)
	handler := NewHandler(server, log.New(io.Discard, "", 0))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		handler.Run(ctx, st)
	}()

	conn := dial(t, ctx, server)
	waitForClients(t, server, 1)

	if _, err := st.InsertRemoteTask(ctx, 7, "https://srv.test/tasks/7/file", "clip.wav", 3000); err != nil {
		t.Fatalf("InsertRemoteTask failed: %v", err)
	}

	// The first snapshot may predate the insert; wait for the one with it.
	for {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeTaskList {
			continue
		}
		var data TaskListData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatal(err)
		}
		if data.Total == 1 {
			if data.Tasks[0].RemoteID != 7 || data.Tasks[0].HasAudio {
				t.Errorf("task = %+v", data.Tasks[0])
			}
			break
		}
	}

	cancel()
	<-runDone
}

func ptr[T any](v T) *T { return &v }
