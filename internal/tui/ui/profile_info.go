package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// ProfileData is the header summary of the running client.
type ProfileData struct {
	Profile       string
	Phone         string
	Conversations int
	Fetching      bool
	Sending       bool
}

// ProfileInfo displays profile metadata in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates a new profile info panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &ProfileInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the profile info.
func (pi *ProfileInfo) Update(data ProfileData) {
	pi.Clear()

	fg := ColorName(pi.theme.FgColor)
	val := ColorName(pi.theme.CounterColor)

	phone := data.Phone
	if phone == "" {
		phone = "-"
	}
	activity := "idle"
	switch {
	case data.Sending:
		activity = "sending"
	case data.Fetching:
		activity = "fetching"
	}

	_, _ = fmt.Fprintf(pi,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Phone:[-:-:-]   [%s]%s[-]\n"+
			"[%s::b]Convs:[-:-:-]   [%s]%d[-]\n"+
			"[%s::b]Sync:[-:-:-]    [%s]%s[-]",
		fg, val, tview.Escape(data.Profile),
		fg, val, tview.Escape(phone),
		fg, val, data.Conversations,
		fg, val, activity,
	)
}
