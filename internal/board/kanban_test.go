package board

import (
	"testing"

	"github.com/civicgrid/complaintd/internal/model"
)

func TestKanbanBucketsByStatus(t *testing.T) {
	k := NewKanban()
	k.Update([]model.Complaint{
		{ID: "a", Title: "a", Status: model.StatusPending},
		{ID: "b", Title: "b", Status: model.StatusPending},
		{ID: "c", Title: "c", Status: model.StatusClosed},
	})

	counts := map[model.Status]int{}
	for _, col := range k.columns {
		counts[col.status] = len(col.items)
	}
	if counts[model.StatusPending] != 2 {
		t.Errorf("pending column has %d items, want 2", counts[model.StatusPending])
	}
	if counts[model.StatusClosed] != 1 {
		t.Errorf("closed column has %d items, want 1", counts[model.StatusClosed])
	}
	if counts[model.StatusResolved] != 0 {
		t.Errorf("resolved column has %d items, want 0", counts[model.StatusResolved])
	}
}

func TestKanbanSelectedFollowsActiveColumn(t *testing.T) {
	k := NewKanban()
	k.Update([]model.Complaint{
		{ID: "a", Title: "a", Status: model.StatusPending},
		{ID: "c", Title: "c", Status: model.StatusInProgress},
	})

	got, ok := k.Selected()
	if !ok || got.ID != "a" {
		t.Fatalf("Selected() = %v, %v; want a", got.ID, ok)
	}

	k.MoveActive(1)
	got, ok = k.Selected()
	if !ok || got.ID != "c" {
		t.Fatalf("Selected() after move = %v, %v; want c", got.ID, ok)
	}

	// Board edges clamp.
	k.MoveActive(-1)
	k.MoveActive(-1)
	got, _ = k.Selected()
	if got.ID != "a" {
		t.Fatalf("Selected() at left edge = %v, want a", got.ID)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long complaint title", 10); len([]rune(got)) != 10 {
		t.Errorf("truncate long = %q (%d runes), want 10 runes", got, len([]rune(got)))
	}
}
