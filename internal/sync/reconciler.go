package sync

import (
	"github.com/civicgrid/complaintd/internal/feed"
	"github.com/civicgrid/complaintd/internal/snapshot"
)

// Reconcile merges one normalized change notification into the snapshot and
// reports whether anything changed.
//
// The merge is idempotent and order-tolerant: the transport promises at
// most "at least once, possibly duplicated, in any order", so created and
// updated both upsert (a duplicate created, or an updated arriving before
// its created, converge to the same state) and deleting an absent id is a
// no-op. Whichever notification is applied last wins; there is no version
// field to order by.
func Reconcile(s *snapshot.Store, evt feed.Event) bool {
	switch evt.Type {
	case feed.EventCreated, feed.EventUpdated:
		s.Upsert(evt.Complaint)
		return true
	case feed.EventDeleted:
		return s.Remove(evt.Complaint.ID)
	}
	return false
}
