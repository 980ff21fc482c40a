package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// PhoneInfo shows the details of a phone number and a QR code that opens an
// SMS to it when scanned.
type PhoneInfo struct {
	*tview.TextView
	theme *ui.Theme
}

// NewPhoneInfo creates a new phone details view.
func NewPhoneInfo(theme *ui.Theme) *PhoneInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)

	return &PhoneInfo{TextView: tv, theme: theme}
}

// Name implements Component.
func (pi *PhoneInfo) Name() string { return "Details" }

// Start implements Component.
func (pi *PhoneInfo) Start() {}

// Stop implements Component.
func (pi *PhoneInfo) Stop() {}

// Update renders the details of p.
func (pi *PhoneInfo) Update(p openphone.PhoneNumber) {
	pi.Clear()
	pi.SetTitle(fmt.Sprintf(" %s Details ", tview.Escape(p.Name)))

	fg := ui.ColorName(pi.theme.FgColor)
	val := ui.ColorName(pi.theme.CounterColor)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(pi, " [%s::b]%-14s[-:-:-] [%s]%s[-]\n", fg, label+":", val, tview.Escape(value))
	}

	_, _ = fmt.Fprint(pi, "\n")
	row("Name", p.Name)
	row("Number", p.Display())
	row("ID", p.ID)
	row("Group", p.GroupID)
	row("Forward", deref(p.Forward))
	row("Porting", deref(p.PortingStatus))
	row("SMS US/CA", p.Restrictions.Messaging.US+"/"+p.Restrictions.Messaging.CA)
	row("SMS Intl", p.Restrictions.Messaging.Intl)
	row("Users", userNames(p.Users))

	_, _ = fmt.Fprintf(pi, "\n  Scan to text %s:\n\n%s", tview.Escape(p.Display()), renderQR(SMSURI(p.Number)))
	pi.ScrollToBeginning()
}

// SMSURI returns the sms: URI of a phone number.
func SMSURI(number string) string {
	return "sms:" + number
}

func userNames(users []openphone.PhoneNumberUser) string {
	names := make([]string, 0, len(users))
	for _, u := range users {
		name := strings.TrimSpace(deref(u.FirstName) + " " + deref(u.LastName))
		if name == "" {
			name = u.Email
		}
		names = append(names, name)
	}
	return strings.Join(names, ", ")
}

// renderQR converts content to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x] // true = black module
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('\u2588') // █
			case top && !bot:
				sb.WriteRune('\u2580') // ▀
			case !top && bot:
				sb.WriteRune('\u2584') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
