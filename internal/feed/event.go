package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/civicgrid/complaintd/internal/model"
)

// EventType is the normalized change-notification kind. Raw tag spellings
// from older producers are folded into these three at the boundary so
// nothing downstream ever branches on wire strings.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// ErrUnknownTag marks an envelope whose type tag belongs to no known
// family. Such messages are dropped, never treated as failures.
var ErrUnknownTag = errors.New("unknown event tag")

// ErrMissingID marks a payload without a complaint id, which no merge
// operation can key on.
var ErrMissingID = errors.New("event payload missing complaint id")

// Event is a normalized change notification about one complaint.
type Event struct {
	Type      EventType
	Complaint model.Complaint
}

// envelope is the wire shape of a feed message.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// tagFamilies maps every historical tag spelling to its normalized type.
var tagFamilies = map[string]EventType{
	"complaint_created": EventCreated,
	"NEW_COMPLAINT":     EventCreated,
	"complaint_updated": EventUpdated,
	"UPDATED_COMPLAINT": EventUpdated,
	"complaint_deleted": EventDeleted,
	"DELETED_COMPLAINT": EventDeleted,
}

// Normalize parses a raw feed message into an Event. Unknown tags return
// ErrUnknownTag and payloads without an id return ErrMissingID; both are
// drop-and-continue conditions for the caller.
func Normalize(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	typ, ok := tagFamilies[env.Type]
	if !ok {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownTag, env.Type)
	}

	var c model.Complaint
	if err := json.Unmarshal(env.Data, &c); err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", typ, err)
	}
	if c.ID == "" {
		return Event{}, ErrMissingID
	}

	return Event{Type: typ, Complaint: c}, nil
}
