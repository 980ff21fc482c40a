package views

import (
	"fmt"

	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView displays key binding reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := ui.ColorName(theme.MenuKeyColor)
	_, _ = fmt.Fprintf(tv, `
  [::b]Global Keys[-:-:-]

  [%[1]s]:[-:-:-]      Command mode       [%[1]s]Esc[-:-:-]    Go back
  [%[1]s]?[-:-:-]      Help               [%[1]s]H[-:-:-]      Send history
  [%[1]s]q[-:-:-]      Quit               [%[1]s]Ctrl-C[-:-:-] Quit immediately

  [::b]Phone Numbers[-:-:-]

  [%[1]s]Enter[-:-:-]  Open conversations [%[1]s]d[-:-:-]      Details and QR code

  [::b]Conversations[-:-:-]

  [%[1]s]Enter[-:-:-]  Open thread        [%[1]s]/[-:-:-]      Filter
  [%[1]s]1-9[-:-:-]    Jump to Nth        [%[1]s]r[-:-:-]      Reload list

  [::b]Message Thread[-:-:-]

  [%[1]s]i[-:-:-]      Focus composer     [%[1]s]Enter[-:-:-]  Send (in composer)
  [%[1]s]m[-:-:-]      Load older page    [%[1]s]r[-:-:-]      Refetch thread

  [::b]Commands (: mode)[-:-:-]

  [%[1]s]:open <number>[-:-:-]   Open a thread with a number
  [%[1]s]:history[-:-:-]         Show send history
  [%[1]s]:help[-:-:-] / [%[1]s]:h[-:-:-]       Show this help
  [%[1]s]:quit[-:-:-] / [%[1]s]:q[-:-:-]       Quit application
`, kc)

	return &HelpView{TextView: tv}
}

// Name implements Component.
func (hv *HelpView) Name() string { return "Help" }

// Start implements Component.
func (hv *HelpView) Start() {}

// Stop implements Component.
func (hv *HelpView) Stop() {}
