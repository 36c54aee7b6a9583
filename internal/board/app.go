// Package board is the kanban projection: one column per status, fed by
// snapshot publications off the bus. It embeds the sync engine in-process
// and never mutates the snapshot directly; moves go through the staged
// write path like any other status change.
package board

import (
	"context"
	"errors"
	"fmt"

	"github.com/civicgrid/complaintd/internal/bus"
	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/civicgrid/complaintd/internal/model"
	intsync "github.com/civicgrid/complaintd/internal/sync"
	"github.com/civicgrid/complaintd/internal/workflow"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App is the board application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	engine    *intsync.Engine
	bus       *bus.Bus
	role      model.Role
	kanban    *Kanban
	statusBar *StatusBar
	detail    *tview.TextView
	moveList  *tview.List
	flash     *FlashModel
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the board over an already-wired engine and bus.
func NewApp(engine *intsync.Engine, b *bus.Bus, role model.Role, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	flash := &FlashModel{}

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		engine:    engine,
		bus:       b,
		role:      role,
		kanban:    NewKanban(),
		statusBar: NewStatusBar(profileName, string(role), flash),
		detail:    tview.NewTextView().SetDynamicColors(true),
		moveList:  tview.NewList(),
		flash:     flash,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.detail.SetBorder(true)
	a.detail.SetTitle(" Complaint ")
	a.moveList.SetBorder(true)
	a.moveList.SetTitle(" Move to ")

	a.setupLayout()
	return a
}

func (a *App) setupLayout() {
	a.pages.AddPage("board", a.kanban, true, true)
	a.pages.AddPage("detail", center(a.detail, 60, 16), true, false)
	a.pages.AddPage("move", center(a.moveList, 30, 10), true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetFocus(a.kanban.ActiveTable())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage != "board" {
			a.closeModal()
			return nil
		}
		if currentPage != "board" {
			return event
		}

		switch {
		case event.Key() == tcell.KeyLeft, event.Rune() == 'h':
			a.kanban.MoveActive(-1)
			a.app.SetFocus(a.kanban.ActiveTable())
			return nil
		case event.Key() == tcell.KeyRight, event.Rune() == 'l':
			a.kanban.MoveActive(1)
			a.app.SetFocus(a.kanban.ActiveTable())
			return nil
		case event.Rune() == 'q':
			a.app.Stop()
			return nil
		case event.Rune() == 'r':
			go a.refresh()
			return nil
		case event.Rune() == 'm', event.Key() == tcell.KeyEnter:
			a.showMove()
			return nil
		case event.Rune() == 'd':
			a.showDetail()
			return nil
		}
		return event
	})
}

// Run renders the current snapshot, subscribes to the bus and blocks until
// quit.
func (a *App) Run() error {
	a.kanban.Update(a.engine.Snapshot())
	a.statusBar.SetCount(len(a.engine.Snapshot()))

	events, unsubscribe := a.bus.Subscribe("", 64)
	go func() {
		defer unsubscribe()
		for {
			select {
			case evt := <-events:
				a.handleBusEvent(evt)
			case <-a.ctx.Done():
				return
			}
		}
	}()

	return a.app.Run()
}

// Stop tears the board down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

func (a *App) handleBusEvent(evt bus.Event) {
	switch evt.Kind {
	case "snapshot.published":
		list, ok := evt.Payload.([]model.Complaint)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.kanban.Update(list)
			a.statusBar.SetCount(len(list))
		})
	case "conn.status_changed":
		change, ok := evt.Payload.(connstate.Change)
		if !ok {
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetConn(change.To, change.Attempt)
		})
	case "sync.refresh_failed", "write.rejected":
		msg, _ := evt.Payload.(string)
		a.flash.Err(errors.New(msg))
		a.app.QueueUpdateDraw(a.statusBar.Render)
	}
}

func (a *App) refresh() {
	if err := a.engine.Refresh(a.ctx); err != nil {
		a.flash.Err(err)
	} else {
		a.flash.Info("refreshed")
	}
	a.app.QueueUpdateDraw(a.statusBar.Render)
}

// showMove opens the transition picker for the selected complaint. The
// options come from the workflow gate, so an empty list means the role has
// nowhere to move this complaint.
func (a *App) showMove() {
	c, ok := a.kanban.Selected()
	if !ok {
		return
	}
	allowed := a.engine.AllowedNext(a.role, c.Status)
	if len(allowed) == 0 {
		a.flash.Info(fmt.Sprintf("%s cannot move a %s complaint", a.role, c.Status))
		a.statusBar.Render()
		return
	}

	a.moveList.Clear()
	for _, st := range allowed {
		target := st
		a.moveList.AddItem(string(target), "", 0, func() {
			a.closeModal()
			go a.move(c, target)
		})
	}
	a.pages.ShowPage("move")
	a.app.SetFocus(a.moveList)
}

func (a *App) move(c model.Complaint, target model.Status) {
	err := a.engine.StagedUpdate(a.ctx, a.role, c.ID, target, "")
	switch {
	case err == nil:
		a.flash.Info(fmt.Sprintf("%s -> %s", truncate(c.Title, 20), target))
	case errors.Is(err, workflow.ErrNoOp):
		a.flash.Info("already " + string(target))
	case errors.Is(err, workflow.ErrPermissionDenied):
		a.flash.Err(fmt.Errorf("%s may not move %s to %s", a.role, c.Status, target))
	default:
		a.flash.Err(err)
	}
	a.app.QueueUpdateDraw(a.statusBar.Render)
}

func (a *App) showDetail() {
	c, ok := a.kanban.Selected()
	if !ok {
		return
	}
	a.detail.Clear()
	_, _ = fmt.Fprintf(a.detail, "[::b]%s[-:-:-]\n\n", c.Title)
	_, _ = fmt.Fprintf(a.detail, "Status:   %s\n", c.Status)
	_, _ = fmt.Fprintf(a.detail, "Priority: %s\n", c.Priority)
	_, _ = fmt.Fprintf(a.detail, "Category: %s\n", c.Category)
	if c.Reporter.Name != "" {
		_, _ = fmt.Fprintf(a.detail, "Reporter: %s <%s>\n", c.Reporter.Name, c.Reporter.Email)
	}
	_, _ = fmt.Fprintf(a.detail, "Created:  %s\n", c.CreatedAt.Local().Format("2006-01-02 15:04"))
	if len(c.Attachments) > 0 {
		_, _ = fmt.Fprintf(a.detail, "Files:    %d attached\n", len(c.Attachments))
	}
	if c.Description != "" {
		_, _ = fmt.Fprintf(a.detail, "\n%s\n", c.Description)
	}
	a.pages.ShowPage("detail")
	a.app.SetFocus(a.detail)
}

func (a *App) closeModal() {
	a.pages.HidePage("move")
	a.pages.HidePage("detail")
	a.app.SetFocus(a.kanban.ActiveTable())
}

// center wraps p in a flex so it floats at a fixed size over the board.
func center(p tview.Primitive, width, height int) tview.Primitive {
	return tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(p, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)
}
