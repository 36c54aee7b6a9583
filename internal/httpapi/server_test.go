package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/model"
	"github.com/civicgrid/complaintd/internal/snapshot"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/civicgrid/complaintd/internal/workflow"
	"github.com/gorilla/websocket"
)

type fakeFetcher struct {
	list []model.Complaint
	err  error
}

func (f *fakeFetcher) ListComplaints(context.Context) ([]model.Complaint, error) {
	return f.list, f.err
}

type fakeWriter struct{}

func (fakeWriter) UpdateStatus(context.Context, string, model.Status, string, string) (model.Complaint, error) {
	return model.Complaint{}, errors.New("not used")
}

func complaint(id string, status model.Status) model.Complaint {
	return model.Complaint{
		ID:        id,
		Title:     "t-" + id,
		Status:    status,
		CreatedAt: time.Now().UTC(),
	}
}

func testServer(t *testing.T, fetcher *fakeFetcher) (*Server, *intsync.Engine, *bus.Bus) {
	t.Helper()
	b := bus.New()
	wf, err := workflow.NewEngine(workflow.Default())
	if err != nil {
		t.Fatal(err)
	}
	engine := intsync.NewEngine(snapshot.NewStore(snapshot.DefaultCap), fetcher, fakeWriter{}, wf, nil, b, nil)
	return NewServer("127.0.0.1:0", engine, connstate.NewMachine(b), b, nil), engine, b
}

func TestGetStatus(t *testing.T) {
	s, _, _ := testServer(t, &fakeFetcher{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		State      string `json:"state"`
		Attempt    int    `json:"attempt"`
		Complaints int    `json:"complaints"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.State != string(connstate.Disconnected) {
		t.Errorf("state = %q, want disconnected", body.State)
	}
	if body.Complaints != 0 {
		t.Errorf("complaints = %d, want 0", body.Complaints)
	}
}

func TestListComplaintsFilter(t *testing.T) {
	fetcher := &fakeFetcher{list: []model.Complaint{
		complaint("a", model.StatusPending),
		complaint("b", model.StatusResolved),
		complaint("c", model.StatusPending),
	}}
	s, engine, _ := testServer(t, fetcher)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	var body struct {
		Data []model.Complaint `json:"data"`
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/complaints", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 3 {
		t.Errorf("unfiltered = %d complaints, want 3", len(body.Data))
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/complaints?status=pending", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Data) != 2 {
		t.Errorf("filtered = %d complaints, want 2", len(body.Data))
	}
	for _, c := range body.Data {
		if c.Status != model.StatusPending {
			t.Errorf("complaint %s has status %s, want pending", c.ID, c.Status)
		}
	}
}

func TestListComplaintsRejectsUnknownStatus(t *testing.T) {
	s, _, _ := testServer(t, &fakeFetcher{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/complaints?status=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	fetcher := &fakeFetcher{list: []model.Complaint{complaint("a", model.StatusPending)}}
	s, _, _ := testServer(t, fetcher)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	fetcher.err = errors.New("service down")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/refresh", nil))
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestStreamPushesSnapshots(t *testing.T) {
	fetcher := &fakeFetcher{list: []model.Complaint{complaint("a", model.StatusPending)}}
	s, engine, _ := testServer(t, fetcher)
	if err := engine.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	readMsg := func() streamMsg {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var msg streamMsg
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		return msg
	}

	// First message is the snapshot at connect time.
	msg := readMsg()
	if msg.Type != "snapshot" {
		t.Fatalf("first message type = %q, want snapshot", msg.Type)
	}

	// A live event triggers a fresh snapshot push.
	engine.HandleFeedEvent(feed.Event{Type: feed.EventCreated, Complaint: complaint("b", model.StatusPending)})
	msg = readMsg()
	if msg.Type != "snapshot" {
		t.Fatalf("second message type = %q, want snapshot", msg.Type)
	}
	list, ok := msg.Data.([]any)
	if !ok {
		t.Fatalf("snapshot data is %T, want array", msg.Data)
	}
	if len(list) != 2 {
		t.Errorf("pushed snapshot has %d complaints, want 2", len(list))
	}
}
