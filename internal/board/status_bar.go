package board

import (
	"fmt"
	"time"

	"github.com/civicgrid/complaintd/internal/connstate"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, role, feed connectivity and flashes.
type StatusBar struct {
	*tview.TextView
	profile string
	role    string
	state   connstate.State
	attempt int
	count   int
	flash   *FlashModel
}

// NewStatusBar creates the bar. flash may be shared with the app.
func NewStatusBar(profile, role string, flash *FlashModel) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{
		TextView: tv,
		profile:  profile,
		role:     role,
		state:    connstate.Disconnected,
		flash:    flash,
	}
}

// SetConn updates the connectivity segment.
func (sb *StatusBar) SetConn(state connstate.State, attempt int) {
	sb.state = state
	sb.attempt = attempt
	sb.Render()
}

// SetCount updates the complaint count segment.
func (sb *StatusBar) SetCount(n int) {
	sb.count = n
	sb.Render()
}

// Render redraws the bar from current segments.
func (sb *StatusBar) Render() {
	sb.Clear()

	conn := string(sb.state)
	switch sb.state {
	case connstate.Connected:
		conn = "[green]" + conn + "[-]"
	case connstate.Connecting:
		if sb.attempt > 0 {
			conn = fmt.Sprintf("[yellow]%s (retry %d)[-]", conn, sb.attempt)
		} else {
			conn = "[yellow]" + conn + "[-]"
		}
	default:
		conn = "[red]" + conn + "[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s | %s | %d complaints | %s",
		sb.profile, sb.role, conn, sb.count, time.Now().Format("15:04"))

	if msg := sb.flash.Get(); msg != nil {
		color := "yellow"
		if msg.Level == FlashErr {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, msg.Text)
	}

	_, _ = fmt.Fprint(sb, line)
}
