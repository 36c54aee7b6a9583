// Package snapshot holds the locally reconciled copy of the server's
// complaint set: deduplicated by id, ordered by creation time descending,
// capped to a recent-activity window. The store is the single source the
// projections render from; only the sync engine mutates it.
package snapshot

import (
	"sort"

	"github.com/civicgrid/complaintd/internal/model"
)

// DefaultCap bounds the retained window. The UI paginates a recent-activity
// view, not a durable archive, so silent eviction of the oldest entries is
// acceptable.
const DefaultCap = 200

type entry struct {
	complaint model.Complaint
	arrival   uint64
}

// Store is an ordered, deduplicated collection of complaints. It is not
// safe for concurrent use; the owning engine serializes access.
type Store struct {
	entries []entry
	byID    map[string]int // id -> index into entries
	cap     int
	nextSeq uint64
}

// NewStore creates an empty store retaining at most max entries. max <= 0
// selects DefaultCap.
func NewStore(max int) *Store {
	if max <= 0 {
		max = DefaultCap
	}
	return &Store{byID: make(map[string]int), cap: max}
}

// Len returns the number of retained complaints.
func (s *Store) Len() int { return len(s.entries) }

// Cap returns the retention limit.
func (s *Store) Cap() int { return s.cap }

// Get returns the complaint with the given id, if retained.
func (s *Store) Get(id string) (model.Complaint, bool) {
	i, ok := s.byID[id]
	if !ok {
		return model.Complaint{}, false
	}
	return s.entries[i].complaint, true
}

// Upsert inserts c or replaces the existing entry with the same id. A
// replaced entry keeps its original arrival order so equal-createdAt ties
// stay stable across duplicate deliveries.
func (s *Store) Upsert(c model.Complaint) {
	if i, ok := s.byID[c.ID]; ok {
		s.entries[i].complaint = c
	} else {
		s.entries = append(s.entries, entry{complaint: c, arrival: s.nextSeq})
		s.nextSeq++
	}
	s.normalize()
}

// Remove deletes the entry with the given id. Removing an unknown id is a
// no-op and reports false.
func (s *Store) Remove(id string) bool {
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	s.normalize()
	return true
}

// ReplaceAll swaps the entire content for a freshly fetched list. Later
// duplicates of an id within the list win. This is the path that reconciles
// away entries deleted server-side while the feed was down.
func (s *Store) ReplaceAll(list []model.Complaint) {
	s.entries = s.entries[:0]
	s.byID = make(map[string]int, len(list))
	s.nextSeq = 0
	for _, c := range list {
		if i, ok := s.byID[c.ID]; ok {
			s.entries[i].complaint = c
			continue
		}
		s.byID[c.ID] = len(s.entries)
		s.entries = append(s.entries, entry{complaint: c, arrival: s.nextSeq})
		s.nextSeq++
	}
	s.normalize()
}

// List returns the retained complaints newest-first. The slice and its
// attachment lists are copies; callers may not reach the store's memory.
func (s *Store) List() []model.Complaint {
	out := make([]model.Complaint, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.complaint
		if len(e.complaint.Attachments) > 0 {
			out[i].Attachments = append([]model.Attachment(nil), e.complaint.Attachments...)
		}
	}
	return out
}

// normalize re-sorts newest-first (arrival order breaks createdAt ties),
// truncates to the cap and rebuilds the id index.
func (s *Store) normalize() {
	sort.SliceStable(s.entries, func(i, j int) bool {
		a, b := s.entries[i], s.entries[j]
		if !a.complaint.CreatedAt.Equal(b.complaint.CreatedAt) {
			return a.complaint.CreatedAt.After(b.complaint.CreatedAt)
		}
		return a.arrival < b.arrival
	})
	if len(s.entries) > s.cap {
		s.entries = s.entries[:s.cap]
	}
	clear(s.byID)
	for i, e := range s.entries {
		s.byID[e.complaint.ID] = i
	}
}
