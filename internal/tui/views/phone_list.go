package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// PhoneList is the root screen listing the workspace's phone numbers.
type PhoneList struct {
	*tview.Table
	theme  *ui.Theme
	phones []openphone.PhoneNumber
}

// NewPhoneList creates a new phone number table.
func NewPhoneList(theme *ui.Theme) *PhoneList {
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
	table.SetTitle(" Phone Numbers ")
	table.SetTitleColor(theme.TitleColor)

	return &PhoneList{Table: table, theme: theme}
}

// Name implements Component.
func (pl *PhoneList) Name() string { return "Phone Numbers" }

// Start implements Component.
func (pl *PhoneList) Start() {}

// Stop implements Component.
func (pl *PhoneList) Stop() {}

// Update refreshes the table.
func (pl *PhoneList) Update(phones []openphone.PhoneNumber) {
	pl.phones = phones
	pl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" NAME", 1},
		{" NUMBER", 1},
		{" ID", 0},
		{" USERS", 0},
	}
	for col, h := range headers {
		pl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(pl.theme.TableHeaderFg).
			SetBackgroundColor(pl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	for i, p := range phones {
		row := i + 1
		name := p.Name
		if p.Symbol != nil && *p.Symbol != "" {
			name = *p.Symbol + " " + name
		}
		pl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(pl.theme.FgColor))
		pl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(p.Display())).SetExpansion(1).SetTextColor(pl.theme.FgColor))
		pl.SetCell(row, 2, tview.NewTableCell(" "+p.ID).SetTextColor(pl.theme.FgColor))
		pl.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%d", len(p.Users))).SetTextColor(pl.theme.FgColor).SetAlign(tview.AlignRight))
	}
	pl.SetTitle(fmt.Sprintf(" Phone Numbers (%d) ", len(phones)))
}

// Selected returns the phone number under the cursor.
func (pl *PhoneList) Selected() (openphone.PhoneNumber, bool) {
	row, _ := pl.GetSelection()
	idx := row - 1 // header
	if idx < 0 || idx >= len(pl.phones) {
		return openphone.PhoneNumber{}, false
	}
	return pl.phones[idx], true
}
