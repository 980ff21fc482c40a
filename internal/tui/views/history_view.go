package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/opsms/internal/store"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// HistoryView lists the send journal, newest first.
type HistoryView struct {
	*tview.Table
	theme *ui.Theme
	now   func() time.Time
}

// NewHistoryView creates a new send history table.
func NewHistoryView(theme *ui.Theme) *HistoryView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Send History ")
	table.SetTitleColor(theme.TitleColor)

	return &HistoryView{Table: table, theme: theme, now: time.Now}
}

// Name implements Component.
func (hv *HistoryView) Name() string { return "History" }

// Start implements Component.
func (hv *HistoryView) Start() {}

// Stop implements Component.
func (hv *HistoryView) Stop() {}

// Update refreshes the table.
func (hv *HistoryView) Update(entries []store.SendEntry) {
	hv.Clear()

	for col, h := range []string{" TIME", " STATUS", " TO", " MESSAGE", " RESULT"} {
		exp := 0
		if col == 3 {
			exp = 2
		}
		hv.SetCell(0, col, tview.NewTableCell(h).
			SetSelectable(false).
			SetTextColor(hv.theme.TableHeaderFg).
			SetBackgroundColor(hv.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(exp))
	}

	now := hv.now()
	for i, e := range entries {
		row := i + 1
		result := e.ServerMsgID
		if e.ErrorMessage != "" {
			result = e.ErrorMessage
		}
		hv.SetCell(row, 0, tview.NewTableCell(" "+formatTimestamp(time.UnixMilli(e.CreatedAt), now)).SetTextColor(hv.theme.FgColor))
		hv.SetCell(row, 1, tview.NewTableCell(" "+string(e.Status)).SetTextColor(hv.statusColor(e.Status)))
		hv.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(e.Participant)).SetTextColor(hv.theme.FgColor))
		hv.SetCell(row, 3, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(e.Body))).SetExpansion(2).SetMaxWidth(60).SetTextColor(hv.theme.FgColor))
		hv.SetCell(row, 4, tview.NewTableCell(" "+tview.Escape(result)).SetMaxWidth(40).SetTextColor(hv.theme.FgColor))
	}
	hv.SetTitle(fmt.Sprintf(" Send History (%d) ", len(entries)))
}

func (hv *HistoryView) statusColor(s store.SendStatus) tcell.Color {
	switch s {
	case store.SendPending:
		return hv.theme.PendingColor
	case store.SendRolledBack, store.SendAbandoned:
		return hv.theme.FailedColor
	}
	return hv.theme.FgColor
}
