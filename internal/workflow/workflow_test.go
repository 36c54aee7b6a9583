package workflow

import (
	"errors"
	"slices"
	"testing"

	"github.com/civicgrid/complaintd/internal/model"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(Default())
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAdminCanReopenResolved(t *testing.T) {
	e := testEngine(t)
	next := e.AllowedNext(model.RoleAdmin, model.StatusResolved)
	for _, want := range []model.Status{model.StatusPending, model.StatusInProgress, model.StatusClosed} {
		if !slices.Contains(next, want) {
			t.Errorf("admin resolved: allowed set %v missing %s", next, want)
		}
	}
}

func TestStaffResolvedOnlyCloses(t *testing.T) {
	e := testEngine(t)
	next := e.AllowedNext(model.RoleStaff, model.StatusResolved)
	if len(next) != 1 || next[0] != model.StatusClosed {
		t.Errorf("staff resolved: allowed = %v, want [closed]", next)
	}
}

func TestReporterHasNoTransitions(t *testing.T) {
	e := testEngine(t)
	for _, st := range model.AllStatuses {
		if next := e.AllowedNext(model.RoleReporter, st); len(next) != 0 {
			t.Errorf("reporter %s: allowed = %v, want empty", st, next)
		}
	}
}

func TestClosedIsTerminalForStaff(t *testing.T) {
	e := testEngine(t)
	err := e.Validate(model.RoleStaff, model.StatusClosed, model.StatusPending)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("staff closed -> pending: err = %v, want ErrPermissionDenied", err)
	}
}

func TestNoOpIsDistinctFromDenied(t *testing.T) {
	e := testEngine(t)
	err := e.Validate(model.RoleAdmin, model.StatusPending, model.StatusPending)
	if !errors.Is(err, ErrNoOp) {
		t.Errorf("admin pending -> pending: err = %v, want ErrNoOp", err)
	}
	if errors.Is(err, ErrPermissionDenied) {
		t.Error("no-op must not also match ErrPermissionDenied")
	}
}

func TestValidateAcceptsAllowedMove(t *testing.T) {
	e := testEngine(t)
	if err := e.Validate(model.RoleStaff, model.StatusPending, model.StatusInProgress); err != nil {
		t.Errorf("staff pending -> in_progress: %v", err)
	}
}

func TestAllowedNextIsACopy(t *testing.T) {
	e := testEngine(t)
	next := e.AllowedNext(model.RoleStaff, model.StatusPending)
	if len(next) == 0 {
		t.Fatal("expected non-empty allowed set")
	}
	next[0] = model.StatusClosed
	again := e.AllowedNext(model.RoleStaff, model.StatusPending)
	if again[0] == model.StatusClosed {
		t.Error("mutating the returned slice leaked into the matrix")
	}
}

func TestUnknownRoleGetsNothing(t *testing.T) {
	e := testEngine(t)
	if next := e.AllowedNext(model.Role("auditor"), model.StatusPending); len(next) != 0 {
		t.Errorf("unknown role: allowed = %v, want empty", next)
	}
	err := e.Validate(model.Role("auditor"), model.StatusPending, model.StatusClosed)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("unknown role validate: err = %v, want ErrPermissionDenied", err)
	}
}

func TestNewEngineRejectsIncompleteMatrix(t *testing.T) {
	m := Default()
	delete(m[model.RoleStaff], model.StatusRejected)
	if _, err := NewEngine(m); err == nil {
		t.Error("matrix missing (staff, rejected) should fail validation")
	}

	m = Default()
	delete(m, model.RoleReporter)
	if _, err := NewEngine(m); err == nil {
		t.Error("matrix missing reporter role should fail validation")
	}
}

func TestNewEngineRejectsSelfTransition(t *testing.T) {
	m := Default()
	m[model.RoleAdmin][model.StatusPending] = append(m[model.RoleAdmin][model.StatusPending], model.StatusPending)
	if _, err := NewEngine(m); err == nil {
		t.Error("matrix listing a self-transition should fail validation")
	}
}
