package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a stack of components wrapping tview.Pages.
// Pushing a component starts it; popping it stops it.
type Pages struct {
	*tview.Pages
	components map[string]Component
	stack      []string
	onChange   func(top Component, stack []string)
}

// NewPages creates an empty page stack.
func NewPages() *Pages {
	return &Pages{
		Pages:      tview.NewPages(),
		components: make(map[string]Component),
	}
}

// SetOnChange sets a callback that fires after every push or pop.
func (p *Pages) SetOnChange(fn func(top Component, stack []string)) {
	p.onChange = fn
}

// Add registers a component under id without showing it.
func (p *Pages) Add(id string, c Component) {
	p.components[id] = c
	p.AddPage(id, c, true, false)
}

// Push shows the component registered under id on top of the stack. If id
// is already stacked, it and everything above it are stopped first so the
// component starts afresh.
func (p *Pages) Push(id string) {
	c, ok := p.components[id]
	if !ok {
		return
	}
	if i := slices.Index(p.stack, id); i >= 0 {
		p.truncate(i)
	}
	if len(p.stack) > 0 {
		p.HidePage(p.Current())
	}
	p.stack = append(p.stack, id)
	p.ShowPage(id)
	p.SendToFront(id)
	c.Start()
	p.notify()
}

// Pop stops and hides the top component and shows the one below it.
// The last component is never popped. Returns the popped id or "".
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.truncate(len(p.stack) - 1)

	current := p.Current()
	p.ShowPage(current)
	p.SendToFront(current)
	p.notify()
	return top
}

// truncate stops and removes stacked components until n remain.
func (p *Pages) truncate(n int) {
	for len(p.stack) > n {
		top := p.stack[len(p.stack)-1]
		p.stack = p.stack[:len(p.stack)-1]
		p.HidePage(top)
		p.components[top].Stop()
	}
}

// Current returns the id of the top component.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Top returns the top component, or nil.
func (p *Pages) Top() Component {
	return p.components[p.Current()]
}

// Stack returns the display names of the stacked components, bottom first.
func (p *Pages) Stack() []string {
	names := make([]string, len(p.stack))
	for i, id := range p.stack {
		names[i] = p.components[id].Name()
	}
	return names
}

// Depth returns the current stack depth.
func (p *Pages) Depth() int {
	return len(p.stack)
}

// StopAll stops every stacked component, top first, and empties the stack.
func (p *Pages) StopAll() {
	p.truncate(0)
}

func (p *Pages) notify() {
	if p.onChange != nil {
		p.onChange(p.Top(), p.Stack())
	}
}
