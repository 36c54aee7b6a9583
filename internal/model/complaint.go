package model

import "time"

// Status is the lifecycle state of a complaint. The set is closed; the
// workflow package owns which transitions between them are legal per role.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusRejected   Status = "rejected"
	StatusClosed     Status = "closed"
)

// AllStatuses lists every status in display order (kanban column order).
var AllStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusResolved,
	StatusRejected,
	StatusClosed,
}

// Valid reports whether s is a member of the closed status enum.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// Priority enumerates complaint urgency.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Category enumerates the complaint subject areas offered by the intake form.
type Category string

const (
	CategoryService   Category = "service"
	CategoryBilling   Category = "billing"
	CategoryTechnical Category = "technical"
	CategoryStaff     Category = "staff"
	CategoryOther     Category = "other"
)

// Reporter identifies the submitting user. Display-only; no ownership
// semantics are attached to it anywhere in the sync core.
type Reporter struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Attachment is an opaque file reference carried along with a complaint.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Complaint is the record being synchronized. ID is the primary key for all
// merge operations and is immutable once assigned by the server.
type Complaint struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Category    Category     `json:"category"`
	Priority    Priority     `json:"priority"`
	Status      Status       `json:"status"`
	Reporter    Reporter     `json:"reporter"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
