package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/tui/model"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
)

// MessageThread displays the messages of one conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *Composer
	title    string
	onStart  func()
	onStop   func()
	now      func() time.Time
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Messages ")
	messages.SetTitleColor(theme.TitleColor)

	composer := NewComposer(theme)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	return &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}
}

// Name implements Component.
func (mt *MessageThread) Name() string {
	if mt.title != "" {
		return mt.title
	}
	return "Messages"
}

// Start implements Component.
func (mt *MessageThread) Start() {
	if mt.onStart != nil {
		mt.onStart()
	}
}

// Stop implements Component.
func (mt *MessageThread) Stop() {
	if mt.onStop != nil {
		mt.onStop()
	}
}

// SetLifecycle sets the callbacks run when the thread is shown and popped.
func (mt *MessageThread) SetLifecycle(onStart, onStop func()) {
	mt.onStart = onStart
	mt.onStop = onStop
}

// SetConversation updates the conversation title and clears the view.
func (mt *MessageThread) SetConversation(title string) {
	mt.title = title
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(title)))
	mt.messages.Clear()
}

// Update re-renders the thread from a snapshot.
func (mt *MessageThread) Update(snap model.ThreadSnapshot) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, renderThread(snap, mt.theme, mt.now()))
	mt.messages.ScrollToEnd()
	mt.composer.SetPending(snap.Pending)
}

// renderThread formats a thread oldest first.
func renderThread(snap model.ThreadSnapshot, theme *ui.Theme, now time.Time) string {
	var b strings.Builder
	st := snap.State

	if st.IsLoading {
		b.WriteString("[::d]Loading…[-:-:-]\n")
		return b.String()
	}
	if st.HasNextPage {
		b.WriteString("[::d]── older messages (m to load) ──[-:-:-]\n\n")
	}
	if len(snap.Messages) == 0 {
		b.WriteString("[::d]" + api.EmptyText + "[-:-:-]\n")
	}
	for _, m := range snap.Messages {
		b.WriteString(renderMessage(m, theme, now))
	}
	if st.IsError && st.Err != nil {
		fmt.Fprintf(&b, "[%s]%s[-]\n", ui.ColorName(theme.FailedColor), tview.Escape(st.Err.Error()))
	}
	return b.String()
}

func renderMessage(m openphone.Message, theme *ui.Theme, now time.Time) string {
	sender := m.From
	color := theme.IncomingColor
	if m.Direction == openphone.Outgoing {
		sender = "You"
		color = theme.OutgoingColor
	}

	glyph := api.StatusGlyph(m)
	glyphColor := color
	switch glyph {
	case "…":
		glyphColor = theme.PendingColor
	case "✗":
		glyphColor = theme.FailedColor
	}

	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-] [%s]%s[-]\n%s\n\n",
		ui.ColorName(color), tview.Escape(sanitizeForTerminal(sender)),
		formatTimestamp(m.CreatedAt, now),
		ui.ColorName(glyphColor), glyph,
		tview.Escape(sanitizeForTerminal(m.Text)))
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer (for focus management).
func (mt *MessageThread) Composer() *Composer {
	return mt.composer
}
