// Package workflow is the role-scoped gate over the complaint status
// machine. It has no internal state: the whole engine is a lookup over an
// immutable role -> status -> next-statuses matrix, checked for completeness
// at construction so a missing entry is a startup error, not a silent nil at
// runtime. The server enforces the same matrix; this copy only decides
// whether to offer a transition at all.
package workflow

import (
	"errors"
	"fmt"
	"slices"

	"github.com/civicgrid/complaintd/internal/model"
)

// ErrPermissionDenied means the proposed status is not in the actor's
// allowed set for the complaint's current status.
var ErrPermissionDenied = errors.New("status transition not permitted for role")

// ErrNoOp means the proposed status equals the current status. Reported
// distinctly so the UI can say "nothing to change" instead of "not allowed".
var ErrNoOp = errors.New("status transition is a no-op")

// Matrix maps role -> current status -> legal next statuses. An empty slice
// is a valid entry meaning "no transitions from here for this role".
type Matrix map[model.Role]map[model.Status][]model.Status

// Default is the production transition matrix.
//
// Admin moves between almost any pair of states, including reopening
// resolved, rejected and closed complaints. Staff works forward along the
// triage path and cannot reopen a closed complaint. Reporters observe only.
func Default() Matrix {
	return Matrix{
		model.RoleAdmin: {
			model.StatusPending:    {model.StatusInProgress, model.StatusResolved, model.StatusRejected, model.StatusClosed},
			model.StatusInProgress: {model.StatusPending, model.StatusResolved, model.StatusRejected, model.StatusClosed},
			model.StatusResolved:   {model.StatusPending, model.StatusInProgress, model.StatusClosed},
			model.StatusRejected:   {model.StatusPending, model.StatusInProgress, model.StatusClosed},
			model.StatusClosed:     {model.StatusPending, model.StatusInProgress},
		},
		model.RoleStaff: {
			model.StatusPending:    {model.StatusInProgress, model.StatusResolved, model.StatusRejected},
			model.StatusInProgress: {model.StatusResolved, model.StatusRejected},
			model.StatusResolved:   {model.StatusClosed},
			model.StatusRejected:   {model.StatusPending},
			model.StatusClosed:     {},
		},
		model.RoleReporter: {
			model.StatusPending:    {},
			model.StatusInProgress: {},
			model.StatusResolved:   {},
			model.StatusRejected:   {},
			model.StatusClosed:     {},
		},
	}
}

// Engine answers "which transitions may this actor perform" and validates
// proposed transitions before a remote write is issued.
type Engine struct {
	matrix Matrix
}

// NewEngine validates the matrix and returns an engine over it. Every
// (role, status) pair must have a defined entry and every target status must
// be a member of the enum.
func NewEngine(m Matrix) (*Engine, error) {
	for _, role := range model.AllRoles {
		byStatus, ok := m[role]
		if !ok {
			return nil, fmt.Errorf("workflow matrix: missing role %q", role)
		}
		for _, st := range model.AllStatuses {
			next, ok := byStatus[st]
			if !ok {
				return nil, fmt.Errorf("workflow matrix: role %q missing entry for status %q", role, st)
			}
			for _, n := range next {
				if !n.Valid() {
					return nil, fmt.Errorf("workflow matrix: role %q status %q lists unknown status %q", role, st, n)
				}
				if n == st {
					return nil, fmt.Errorf("workflow matrix: role %q status %q lists itself", role, st)
				}
			}
		}
	}
	return &Engine{matrix: m}, nil
}

// AllowedNext returns the statuses the role may move a complaint in the
// given status to. The returned slice is a copy; an empty slice means the UI
// must not offer an edit affordance. Unknown roles or statuses get nothing.
func (e *Engine) AllowedNext(role model.Role, current model.Status) []model.Status {
	next, ok := e.matrix[role][current]
	if !ok {
		return nil
	}
	return slices.Clone(next)
}

// Validate checks a proposed transition before submission. It returns
// ErrNoOp when proposed equals current, and ErrPermissionDenied when the
// role may not perform the move. Nil means the write may be offered.
func (e *Engine) Validate(role model.Role, current, proposed model.Status) error {
	if proposed == current {
		return fmt.Errorf("%w: %s", ErrNoOp, current)
	}
	if !slices.Contains(e.matrix[role][current], proposed) {
		return fmt.Errorf("%w: %s may not move %s -> %s", ErrPermissionDenied, role, current, proposed)
	}
	return nil
}
