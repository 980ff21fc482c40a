package ui

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/rivo/tview"
)

type fakeComponent struct {
	*tview.Box
	name   string
	starts int
	stops  int
}

func newFake(name string) *fakeComponent {
	return &fakeComponent{Box: tview.NewBox(), name: name}
}

func (f *fakeComponent) Name() string { return f.name }
func (f *fakeComponent) Start()       { f.starts++ }
func (f *fakeComponent) Stop()        { f.stops++ }

func TestPagesPushPop(t *testing.T) {
	p := NewPages()
	phones, convs, thread := newFake("Phones"), newFake("Conversations"), newFake("+1555")
	p.Add("phones", phones)
	p.Add("convs", convs)
	p.Add("thread", thread)

	var stacks [][]string
	p.SetOnChange(func(_ Component, stack []string) { stacks = append(stacks, stack) })

	p.Push("phones")
	p.Push("convs")
	p.Push("thread")
	if p.Current() != "thread" || p.Depth() != 3 {
		t.Fatalf("current=%s depth=%d", p.Current(), p.Depth())
	}
	if !slices.Equal(p.Stack(), []string{"Phones", "Conversations", "+1555"}) {
		t.Errorf("Stack() = %v", p.Stack())
	}

	if got := p.Pop(); got != "thread" {
		t.Errorf("Pop() = %q", got)
	}
	if thread.starts != 1 || thread.stops != 1 {
		t.Errorf("thread starts=%d stops=%d", thread.starts, thread.stops)
	}
	if len(stacks) != 4 {
		t.Errorf("onChange fired %d times, want 4", len(stacks))
	}

	p.Pop()
	if p.Pop() != "" || p.Current() != "phones" {
		t.Error("the root page must never be popped")
	}
}

func TestPagesPushRestartsStackedComponent(t *testing.T) {
	p := NewPages()
	convs, thread, help := newFake("Conversations"), newFake("Thread"), newFake("Help")
	p.Add("convs", convs)
	p.Add("thread", thread)
	p.Add("help", help)

	p.Push("convs")
	p.Push("thread")
	p.Push("help")
	p.Push("thread")

	if p.Depth() != 2 || p.Current() != "thread" {
		t.Fatalf("depth=%d current=%s", p.Depth(), p.Current())
	}
	if thread.starts != 2 || thread.stops != 1 || help.stops != 1 {
		t.Errorf("thread starts=%d stops=%d help stops=%d", thread.starts, thread.stops, help.stops)
	}

	p.StopAll()
	if p.Depth() != 0 || convs.stops != 1 || thread.stops != 2 {
		t.Errorf("after StopAll depth=%d convs stops=%d thread stops=%d", p.Depth(), convs.stops, thread.stops)
	}
}

func TestFlashExpires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFlashModel()
	f.now = func() time.Time { return now }

	if f.Get() != nil {
		t.Fatal("new model should be empty")
	}
	calls := 0
	f.OnSet(func() { calls++ })
	f.Err(errors.New("send failed"))
	msg := f.Get()
	if msg == nil || msg.Text != "send failed" || msg.Level != FlashErr {
		t.Fatalf("Get() = %+v", msg)
	}
	if calls != 1 {
		t.Errorf("OnSet callback ran %d times", calls)
	}

	now = now.Add(11 * time.Second)
	if f.Get() != nil {
		t.Error("error flash should expire after 10s")
	}
}

func TestCrumbsRender(t *testing.T) {
	c := NewCrumbs(DefaultTheme())
	out := c.render([]string{"Phones", "Sales [1]"})
	if !strings.Contains(out, " > ") {
		t.Errorf("render() = %q, want separator", out)
	}
	if !strings.Contains(out, tview.Escape("Sales [1]")) {
		t.Errorf("render() = %q, want escaped name", out)
	}
	if c.render(nil) != "" {
		t.Error("empty stack should render nothing")
	}
}

func TestMenuFillsColumns(t *testing.T) {
	theme := DefaultTheme()
	m := NewMenu(theme, 2)
	hints := []MenuHint{
		{Key: "1-9", Description: "Jump", Numeric: true},
		{Key: "/", Description: "Filter"},
		{Key: "r", Description: "Reload"},
	}

	lines := strings.Split(m.render(hints), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q, want 2 rows", lines)
	}
	if !strings.HasPrefix(lines[0], "["+ColorName(theme.NumericKeyColor)) {
		t.Errorf("numeric hint not colored: %q", lines[0])
	}
	if !strings.Contains(lines[0], "Jump") || !strings.HasSuffix(lines[0], "Reload") {
		t.Errorf("first row = %q, want Jump then Reload", lines[0])
	}
	if !strings.Contains(lines[1], "Filter") {
		t.Errorf("second row = %q", lines[1])
	}
}

func TestMenuSingleColumnHasNoPadding(t *testing.T) {
	m := NewMenu(DefaultTheme(), 5)
	out := m.render([]MenuHint{{Key: "q", Description: "Quit"}, {Key: "?", Description: "Help"}})
	for _, line := range strings.Split(out, "\n") {
		if strings.HasSuffix(line, " ") {
			t.Errorf("padded line %q", line)
		}
	}
	if m.render(nil) != "" {
		t.Error("no hints should render nothing")
	}
}
