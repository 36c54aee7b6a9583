package board

import (
	"fmt"
	"strings"

	"github.com/civicgrid/complaintd/internal/model"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// columnTitles maps each status to its column header.
var columnTitles = map[model.Status]string{
	model.StatusPending:    "Pending",
	model.StatusInProgress: "In Progress",
	model.StatusResolved:   "Resolved",
	model.StatusRejected:   "Rejected",
	model.StatusClosed:     "Closed",
}

var priorityColors = map[model.Priority]string{
	model.PriorityLow:      "gray",
	model.PriorityMedium:   "white",
	model.PriorityHigh:     "yellow",
	model.PriorityCritical: "red",
}

// column is one status lane of the board.
type column struct {
	status model.Status
	table  *tview.Table
	items  []model.Complaint
}

// Kanban renders the snapshot as one column per status.
type Kanban struct {
	*tview.Flex
	columns []*column
	active  int
}

// NewKanban creates the board with a column for every status.
func NewKanban() *Kanban {
	k := &Kanban{Flex: tview.NewFlex()}
	for _, st := range model.AllStatuses {
		table := tview.NewTable().SetSelectable(true, false)
		table.SetBorder(true)
		c := &column{status: st, table: table}
		k.columns = append(k.columns, c)
		k.Flex.AddItem(table, 0, 1, false)
	}
	k.renderTitles()
	return k
}

// Update re-buckets the snapshot into columns, keeping each column's
// selection clamped to its new length.
func (k *Kanban) Update(list []model.Complaint) {
	byStatus := make(map[model.Status][]model.Complaint, len(k.columns))
	for _, c := range list {
		byStatus[c.Status] = append(byStatus[c.Status], c)
	}

	for _, col := range k.columns {
		col.items = byStatus[col.status]
		row, _ := col.table.GetSelection()
		col.table.Clear()
		for i, c := range col.items {
			color := priorityColors[c.Priority]
			if color == "" {
				color = "white"
			}
			cell := tview.NewTableCell(fmt.Sprintf("[%s]%s[-]", color, truncate(c.Title, 28))).
				SetExpansion(1)
			col.table.SetCell(i, 0, cell)
		}
		if len(col.items) > 0 {
			if row >= len(col.items) {
				row = len(col.items) - 1
			}
			if row < 0 {
				row = 0
			}
			col.table.Select(row, 0)
		}
	}
	k.renderTitles()
}

func (k *Kanban) renderTitles() {
	for i, col := range k.columns {
		title := fmt.Sprintf(" %s (%d) ", columnTitles[col.status], len(col.items))
		col.table.SetTitle(title)
		if i == k.active {
			col.table.SetBorderColor(tcell.ColorYellow)
		} else {
			col.table.SetBorderColor(tview.Styles.BorderColor)
		}
	}
}

// ActiveTable returns the focused column's table, for tview focus handling.
func (k *Kanban) ActiveTable() *tview.Table {
	return k.columns[k.active].table
}

// MoveActive shifts column focus by delta, clamped to the board edges.
func (k *Kanban) MoveActive(delta int) {
	next := k.active + delta
	if next < 0 || next >= len(k.columns) {
		return
	}
	k.active = next
	k.renderTitles()
}

// Selected returns the complaint under the cursor, if any.
func (k *Kanban) Selected() (model.Complaint, bool) {
	col := k.columns[k.active]
	if len(col.items) == 0 {
		return model.Complaint{}, false
	}
	row, _ := col.table.GetSelection()
	if row < 0 || row >= len(col.items) {
		return model.Complaint{}, false
	}
	return col.items[row], true
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
