package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

const menuColumnWidth = 18

// Menu lists the key hints of the current page in the header, filling
// columns top to bottom.
type Menu struct {
	*tview.TextView
	theme *Theme
	rows  int
}

// NewMenu creates a menu that puts at most rows hints in a column.
func NewMenu(theme *Theme, rows int) *Menu {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 0)

	return &Menu{TextView: tv, theme: theme, rows: max(rows, 1)}
}

// Update replaces the hints shown.
func (m *Menu) Update(hints []MenuHint) {
	m.SetText(m.render(hints))
}

func (m *Menu) render(hints []MenuHint) string {
	lines := make([]string, min(len(hints), m.rows))
	for i, h := range hints {
		color := m.theme.MenuKeyColor
		if h.Numeric {
			color = m.theme.NumericKeyColor
		}
		label := fmt.Sprintf("<%s> %s", h.Key, h.Description)
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", ColorName(color), tview.Escape(h.Key), h.Description)
		if i/m.rows < (len(hints)-1)/m.rows {
			cell += strings.Repeat(" ", max(menuColumnWidth-len(label), 1))
		}
		lines[i%m.rows] += cell
	}
	return strings.Join(lines, "\n")
}
