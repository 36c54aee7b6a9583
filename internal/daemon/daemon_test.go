package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/lock"
	"github.com/civicgrid/complaintd/internal/model"
	"github.com/civicgrid/complaintd/internal/restapi"
	"github.com/civicgrid/complaintd/internal/snapshot"
	"github.com/civicgrid/complaintd/internal/store"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/civicgrid/complaintd/internal/workflow"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// complaintService is a fake remote service: the REST list, the status
// write and the websocket feed, all on one listener.
type complaintService struct {
	upgrader websocket.Upgrader

	list    atomic.Value // []model.Complaint
	patches atomic.Int64
	conns   chan *websocket.Conn
}

func newComplaintService(initial []model.Complaint) *complaintService {
	s := &complaintService{conns: make(chan *websocket.Conn, 4)}
	s.list.Store(initial)
	return s
}

func (s *complaintService) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/complaints", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": s.list.Load()})
	})
	mux.HandleFunc("PATCH /api/complaints/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status model.Status `json:"status"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		s.patches.Add(1)

		id := r.PathValue("id")
		for _, c := range s.list.Load().([]model.Complaint) {
			if c.ID == id {
				c.Status = body.Status
				c.UpdatedAt = time.Now().UTC()
				_ = json.NewEncoder(w).Encode(map[string]any{"data": c})
				return
			}
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Consume the subscribe handshake before handing the conn out.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		s.conns <- conn
	})
	return mux
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// TestDaemonLifecycle wires the real components the way the fx module does
// and drives one full cycle: warm start, fetch, live event, staged write,
// shutdown.
func TestDaemonLifecycle(t *testing.T) {
	seed := []model.Complaint{
		{ID: "c1", Title: "pothole", Status: model.StatusPending, CreatedAt: time.Now().UTC()},
	}
	svc := newComplaintService(seed)
	remote := httptest.NewServer(svc.handler())
	defer remote.Close()

	dir := t.TempDir()

	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	db, err := store.Open(dir + "/cache.db")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()

	b := bus.New()
	machine := connstate.NewMachine(b)
	client := restapi.NewClient(remote.URL, "tok", nil)
	wf, err := workflow.NewEngine(workflow.Default())
	if err != nil {
		t.Fatal(err)
	}
	engine := intsync.NewEngine(snapshot.NewStore(snapshot.DefaultCap), client, client, wf, db, b, zap.NewNop())

	feedURL, err := client.FeedURL("/ws")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(feedURL, "ws://") {
		t.Fatalf("feed url = %q, want ws scheme", feedURL)
	}
	mgr := feed.NewManager(feed.Config{URL: feedURL, Token: client.Token()}, machine, engine.HandleFeedEvent, zap.NewNop())
	engine.SetConnector(mgr)

	engine.WarmStart()
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	if got := engine.Snapshot(); len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("snapshot after fetch = %+v, want [c1]", got)
	}
	waitFor(t, func() bool { return machine.Current() == connstate.Connected }, "feed never connected")
	conn := <-svc.conns

	// A live created event lands in the snapshot.
	evt := map[string]any{
		"type": "complaint_created",
		"data": model.Complaint{ID: "c2", Title: "noise", Status: model.StatusPending, CreatedAt: time.Now().UTC()},
	}
	if err := conn.WriteJSON(evt); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return len(engine.Snapshot()) == 2 }, "live event never reconciled")

	// A staged write goes through the workflow gate and the remote PATCH.
	if err := engine.StagedUpdate(context.Background(), model.RoleStaff, "c1", model.StatusInProgress, "on it"); err != nil {
		t.Fatalf("StagedUpdate() = %v", err)
	}
	if svc.patches.Load() != 1 {
		t.Errorf("remote received %d patches, want 1", svc.patches.Load())
	}

	// The cache saw everything; a fresh engine warm starts from it.
	engine.Stop()
	waitFor(t, func() bool { return machine.Current() == connstate.Disconnected }, "feed never shut down")

	engine2 := intsync.NewEngine(snapshot.NewStore(snapshot.DefaultCap), client, client, wf, db, bus.New(), zap.NewNop())
	engine2.WarmStart()
	if got := engine2.Snapshot(); len(got) != 2 {
		t.Fatalf("warm start restored %d complaints, want 2", len(got))
	}
}

// TestSecondDaemonRefused verifies the profile lock keeps two daemons off
// the same cache.
func TestSecondDaemonRefused(t *testing.T) {
	dir := t.TempDir()
	lk, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = lk.Release() }()

	if _, err := lock.Acquire(dir); err == nil {
		t.Fatal("second Acquire succeeded, want HeldError")
	}
}
