package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the profile, a fetch indicator and the current flash
// message.
type StatusBar struct {
	*tview.TextView
	theme    *ui.Theme
	profile  string
	fetching bool
	flash    *ui.FlashMessage
	now      func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.render()
}

// SetFetching updates the fetch indicator.
func (sb *StatusBar) SetFetching(fetching bool) {
	sb.fetching = fetching
	sb.render()
}

// SetFlash shows msg, or clears the flash when msg is nil.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	indicator := " "
	if sb.fetching {
		indicator = "[green]~[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] %s | %s", tview.Escape(sb.profile), indicator, sb.now().Format("15:04"))
	if sb.flash != nil {
		color := sb.theme.FlashInfoColor
		switch sb.flash.Level {
		case ui.FlashWarn:
			color = sb.theme.FlashWarnColor
		case ui.FlashErr:
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", ui.ColorName(color), tview.Escape(sb.flash.Text))
	}
	return line
}
