package views

import (
	"fmt"
	"unicode/utf8"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages. It is disabled while a
// send for the conversation is pending.
type Composer struct {
	*tview.InputField
	theme   *ui.Theme
	pending bool
	onSend  func(text string)
}

// NewComposer creates a new message composer.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	input.SetBorder(true)
	input.SetBorderColor(theme.BorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)
	input.SetTitleColor(theme.TitleColor)

	c := &Composer{InputField: input, theme: theme}

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || c.pending || c.onSend == nil {
			return
		}
		text := c.GetText()
		if text == "" {
			return
		}
		c.onSend(text)
		c.SetText("")
	})
	input.SetChangedFunc(func(string) { c.updateTitle() })
	input.SetFocusFunc(func() { input.SetBorderColor(theme.BorderFocusColor) })
	input.SetBlurFunc(func() { input.SetBorderColor(theme.BorderColor) })
	c.updateTitle()

	return c
}

// SetOnSend sets the callback when a message is submitted.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetPending disables the composer while a send is in flight.
func (c *Composer) SetPending(pending bool) {
	if c.pending == pending {
		return
	}
	c.pending = pending
	c.SetDisabled(pending)
	if pending {
		c.SetFieldTextColor(c.theme.DisabledColor)
	} else {
		c.SetFieldTextColor(c.theme.FgColor)
	}
	c.updateTitle()
}

// Pending reports whether the composer is disabled by a pending send.
func (c *Composer) Pending() bool { return c.pending }

func (c *Composer) updateTitle() {
	if c.pending {
		c.SetTitle(" Sending… ")
		return
	}
	n := utf8.RuneCountInString(c.GetText())
	c.SetTitle(fmt.Sprintf(" Compose (i to focus) %d/%d ", n, openphone.MaxContentLength))
}
