// Package sync composes the snapshot store, the event reconciler, the live
// feed and the workflow gate into one lifecycle: fetch, connect, reconcile,
// publish. Data flows one way into the snapshot; projections only ever see
// immutable copies published on the bus.
package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/model"
	"github.com/civicgrid/complaintd/internal/snapshot"
	"github.com/civicgrid/complaintd/internal/store"
	"github.com/civicgrid/complaintd/internal/workflow"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Fetcher lists the full complaint set from the remote service.
type Fetcher interface {
	ListComplaints(ctx context.Context) ([]model.Complaint, error)
}

// Writer issues the remote status write and returns the confirmed record.
type Writer interface {
	UpdateStatus(ctx context.Context, id string, newStatus model.Status, note, idempotencyKey string) (model.Complaint, error)
}

// Connector is the live feed lifecycle the engine drives.
type Connector interface {
	Connect()
	Shutdown()
}

// Engine owns the snapshot store. Every mutation (initial fetch, live
// event, manual refresh, staged write) goes through it under one mutex,
// is written through to the cache, and ends in a snapshot publication.
type Engine struct {
	mu      stdsync.Mutex
	snap    *snapshot.Store
	stopped bool

	fetcher Fetcher
	writer  Writer
	wf      *workflow.Engine
	conn    Connector
	cache   *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewEngine creates an engine. cache may be nil (no persistence); conn is
// attached later via SetConnector because the feed manager needs the
// engine's event handler at construction.
func NewEngine(snap *snapshot.Store, fetcher Fetcher, writer Writer, wf *workflow.Engine, cache *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		snap:    snap,
		fetcher: fetcher,
		writer:  writer,
		wf:      wf,
		cache:   cache,
		bus:     b,
		logger:  logger,
	}
}

// SetConnector attaches the live feed lifecycle.
func (e *Engine) SetConnector(c Connector) { e.conn = c }

// WarmStart seeds the snapshot from the local cache so projections have
// data before the first fetch lands. Missing cache or empty cache is fine.
func (e *Engine) WarmStart() {
	if e.cache == nil {
		return
	}
	cached, err := e.cache.ListComplaints(e.snap.Cap())
	if err != nil {
		e.logger.Warn("cache warm start failed", zap.Error(err))
		return
	}
	if len(cached) == 0 {
		return
	}
	e.mu.Lock()
	e.snap.ReplaceAll(cached)
	e.mu.Unlock()
	e.logger.Info("snapshot warm started from cache", zap.Int("complaints", len(cached)))
	e.publish()
}

// Start performs the initial full fetch and then connects the live feed.
// A fetch failure is returned to the caller but does not block the feed:
// the snapshot stays on whatever the cache provided and live events begin
// repairing it.
func (e *Engine) Start(ctx context.Context) error {
	err := e.Refresh(ctx)
	if e.conn != nil {
		e.conn.Connect()
	}
	if err != nil {
		return fmt.Errorf("initial fetch: %w", err)
	}
	return nil
}

// Refresh re-fetches the full list and replaces the snapshot wholesale.
// Usable while disconnected; this is also the path that reconciles away
// deletions missed during an outage. On fetch failure the snapshot is left
// untouched. A refresh that completes after Stop is discarded.
func (e *Engine) Refresh(ctx context.Context) error {
	list, err := e.fetcher.ListComplaints(ctx)
	if err != nil {
		e.bus.Publish("sync.refresh_failed", err.Error())
		return fmt.Errorf("fetch complaints: %w", err)
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.snap.ReplaceAll(list)
	retained := e.snap.List()
	e.mu.Unlock()

	e.persistReplace(retained)
	e.logger.Info("snapshot refreshed", zap.Int("fetched", len(list)), zap.Int("retained", len(retained)))
	e.publish()
	return nil
}

// HandleFeedEvent is the live-channel handler wired into the feed manager.
// Events arriving after Stop are dropped.
func (e *Engine) HandleFeedEvent(evt feed.Event) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	changed := Reconcile(e.snap, evt)
	e.mu.Unlock()

	if !changed {
		return
	}
	e.persistEvent(evt)
	e.publish()
}

// StagedUpdate performs a role-gated status change as a staged write:
// validate, apply an optimistic local update, issue the remote write, and
// on failure apply a compensating event restoring the prior confirmed
// record. On success the server's confirmed record flows back through the
// same reconcile path a live update would take.
func (e *Engine) StagedUpdate(ctx context.Context, role model.Role, id string, newStatus model.Status, note string) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return fmt.Errorf("sync engine stopped")
	}
	prior, ok := e.snap.Get(id)
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("complaint %s not in snapshot", id)
	}

	if err := e.wf.Validate(role, prior.Status, newStatus); err != nil {
		return err
	}

	provisional := prior
	provisional.Status = newStatus
	provisional.UpdatedAt = time.Now().UTC()
	e.HandleFeedEvent(feed.Event{Type: feed.EventUpdated, Complaint: provisional})

	confirmed, err := e.writer.UpdateStatus(ctx, id, newStatus, note, uuid.New().String())
	if err != nil {
		// Roll the optimistic state back to the last confirmed record.
		e.HandleFeedEvent(feed.Event{Type: feed.EventUpdated, Complaint: prior})
		e.bus.Publish("write.rejected", err.Error())
		return fmt.Errorf("update status of %s: %w", id, err)
	}

	e.HandleFeedEvent(feed.Event{Type: feed.EventUpdated, Complaint: confirmed})
	e.logger.Info("status updated",
		zap.String("id", id),
		zap.String("from", string(prior.Status)),
		zap.String("to", string(newStatus)))
	return nil
}

// AllowedNext exposes the workflow gate to projections.
func (e *Engine) AllowedNext(role model.Role, current model.Status) []model.Status {
	return e.wf.AllowedNext(role, current)
}

// Snapshot returns an immutable copy of the current snapshot.
func (e *Engine) Snapshot() []model.Complaint {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.List()
}

// Stop shuts the feed down and guarantees no further snapshot
// publications, even if the transport delivers a buffered message right
// after close.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	if e.conn != nil {
		e.conn.Shutdown()
	}
	e.logger.Info("sync engine stopped")
}

// publish pushes a fresh snapshot copy to every subscriber.
func (e *Engine) publish() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	list := e.snap.List()
	e.mu.Unlock()
	e.bus.Publish("snapshot.published", list)
}

func (e *Engine) persistEvent(evt feed.Event) {
	if e.cache == nil {
		return
	}
	var err error
	switch evt.Type {
	case feed.EventDeleted:
		err = e.cache.DeleteComplaint(evt.Complaint.ID)
	default:
		err = e.cache.UpsertComplaint(evt.Complaint)
	}
	if err != nil {
		e.logger.Warn("cache write failed", zap.String("id", evt.Complaint.ID), zap.Error(err))
	}
}

func (e *Engine) persistReplace(list []model.Complaint) {
	if e.cache == nil {
		return
	}
	if err := e.cache.ReplaceComplaints(list); err != nil {
		e.logger.Warn("cache replace failed", zap.Error(err))
	}
}
