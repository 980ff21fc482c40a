package ui

import "github.com/rivo/tview"

// MenuHint describes a keyboard shortcut for display in the menu bar.
type MenuHint struct {
	Key         string
	Description string
	Numeric     bool // true for 0-9 shortcuts (displayed in a different color)
}

// Component is a screen that can be pushed on the page stack.
// Start runs when the screen becomes visible and Stop when it is popped.
type Component interface {
	tview.Primitive
	Name() string
	Start()
	Stop()
}
