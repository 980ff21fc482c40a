// Package tui is the terminal client: phone numbers, their conversations and
// a message thread with an optimistic composer.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/opsms/internal/api"
	"github.com/matheus3301/opsms/internal/openphone"
	"github.com/matheus3301/opsms/internal/tui/keys"
	"github.com/matheus3301/opsms/internal/tui/model"
	"github.com/matheus3301/opsms/internal/tui/ui"
	"github.com/matheus3301/opsms/internal/tui/views"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const (
	pagePhones        = "phones"
	pagePhoneInfo     = "phone-info"
	pageConversations = "conversations"
	pageThread        = "thread"
	pageHistory       = "history"
	pageHelp          = "help"

	historyLimit = 100
	headerHeight = 5
)

// Options configures the App.
type Options struct {
	Profile string
	// DefaultPhone opens the conversations of this phone number (ID or
	// number) on start.
	DefaultPhone string
	Logger       *zap.Logger
}

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	vm       *model.ViewModel
	registry *keys.Registry
	flash    *ui.FlashModel
	opts     Options
	logger   *zap.Logger

	body        *tview.Flex
	info        *ui.ProfileInfo
	menu        *ui.Menu
	crumbs      *ui.Crumbs
	prompt      *ui.Prompt
	promptShown bool
	statusBar   *views.StatusBar

	phoneList *views.PhoneList
	phoneInfo *views.PhoneInfo
	convList  *views.ConversationList
	thread    *views.MessageThread
	history   *views.HistoryView
	help      *views.HelpView

	// activeThread is only touched from the UI goroutine.
	activeThread *model.Thread

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(svc *api.Service, opts Options) *App {
	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	theme := ui.DefaultTheme()

	a := &App{
		app:       tview.NewApplication(),
		theme:     theme,
		pages:     ui.NewPages(),
		vm:        model.NewViewModel(svc),
		registry:  keys.NewRegistry(),
		flash:     ui.NewFlashModel(),
		opts:      opts,
		logger:    logger,
		info:      ui.NewProfileInfo(theme),
		menu:      ui.NewMenu(theme, headerHeight),
		crumbs:    ui.NewCrumbs(theme),
		prompt:    ui.NewPrompt(theme),
		statusBar: views.NewStatusBar(theme),
		phoneList: views.NewPhoneList(theme),
		phoneInfo: views.NewPhoneInfo(theme),
		convList:  views.NewConversationList(theme),
		thread:    views.NewMessageThread(theme),
		history:   views.NewHistoryView(theme),
		help:      views.NewHelpView(theme),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(opts.Profile)
	a.info.Update(ui.ProfileData{Profile: opts.Profile})
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: "Command", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptCommand) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'H',
		Description: "History", Visible: true,
		Handler: a.showHistory,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '?',
		Description: "Help", Visible: true,
		Handler: func() { a.push(pageHelp) },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "Quit", Visible: true,
		Handler: a.Stop,
	})

	a.registry.AddView(pagePhones, &keys.Action{
		Key: tcell.KeyRune, Rune: 'd',
		Description: "Details", Visible: true,
		Handler: a.showPhoneInfo,
	})
	a.registry.AddView(pagePhones, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Reload", Visible: true,
		Handler: a.loadPhones,
	})

	a.registry.AddView(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "Filter", Visible: true,
		Handler: func() { a.showPrompt(ui.PromptFilter) },
	})
	a.registry.AddView(pageConversations, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Reload", Visible: true,
		Handler: a.loadConversations,
	})

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'i',
		Description: "Compose", Visible: true,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm',
		Description: "Older", Visible: true,
		Handler: a.loadOlder,
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Refetch", Visible: true,
		Handler: a.refetchThread,
	})

	a.registry.AddView(pageHistory, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "Reload", Visible: true,
		Handler: a.showHistory,
	})
}

func (a *App) setupCallbacks() {
	a.phoneList.SetSelectedFunc(func(int, int) {
		if p, ok := a.phoneList.Selected(); ok {
			a.openPhone(p)
		}
	})

	a.convList.SetSelectedFunc(func(int, int) {
		if c, ok := a.convList.Selected(); ok {
			a.openConversation(c)
		}
	})

	a.thread.SetLifecycle(a.startThread, a.stopThread)
	a.thread.Composer().SetOnSend(a.send)

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.convList.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text))
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)

	a.flash.OnSet(func() {
		a.app.QueueUpdateDraw(func() { a.statusBar.SetFlash(a.flash.Get()) })
	})

	a.pages.SetOnChange(func(_ ui.Component, stack []string) {
		a.crumbs.Update(stack)
		a.menu.Update(a.hints(a.pages.Current()))
	})
}

func (a *App) setupLayout() {
	a.pages.Add(pagePhones, a.phoneList)
	a.pages.Add(pagePhoneInfo, a.phoneInfo)
	a.pages.Add(pageConversations, a.convList)
	a.pages.Add(pageThread, a.thread)
	a.pages.Add(pageHistory, a.history)
	a.pages.Add(pageHelp, a.help)

	header := tview.NewFlex().
		AddItem(ui.NewLogo(a.theme), 18, 0, false).
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 1, false)

	a.body = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.body, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.promptShown {
			return event
		}

		if event.Key() == tcell.KeyEscape {
			if a.composerFocused() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
			if a.pages.Pop() != "" {
				a.focusTop()
				return nil
			}
			return event
		}

		// Let text input widgets handle all keys normally.
		if a.composerFocused() {
			return event
		}

		page := a.pages.Current()
		if page == pageConversations && event.Key() == tcell.KeyRune && event.Rune() >= '1' && event.Rune() <= '9' {
			if c, ok := a.convList.ByIndex(int(event.Rune() - '0')); ok {
				a.openConversation(c)
			}
			return nil
		}

		if a.registry.HandleEvent(page, event) {
			return nil
		}
		return event
	})
}

func (a *App) hints(page string) []ui.MenuHint {
	hints := a.registry.Hints(page)
	if page == pageConversations {
		hints = append([]ui.MenuHint{{Key: "1-9", Description: "Jump", Numeric: true}}, hints...)
	}
	return hints
}

func (a *App) composerFocused() bool {
	switch a.app.GetFocus().(type) {
	case *tview.InputField, *views.Composer:
		return true
	}
	return false
}

func (a *App) push(page string) {
	a.pages.Push(page)
	a.focusTop()
}

func (a *App) focusTop() {
	if a.pages.Current() == pageThread {
		a.app.SetFocus(a.thread.Messages())
		return
	}
	if top := a.pages.Top(); top != nil {
		a.app.SetFocus(top)
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	a.prompt.Activate(mode)
	if mode == ui.PromptFilter {
		a.prompt.SetText(a.convList.Filter())
	}
	if !a.promptShown {
		a.body.AddItem(a.prompt, 3, 0, true)
		a.promptShown = true
	}
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if a.promptShown {
		a.body.RemoveItem(a.prompt)
		a.promptShown = false
	}
	a.focusTop()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.Stop()
	case "h", "help":
		a.push(pageHelp)
	case "history":
		a.showHistory()
	case "open":
		if cmd.Args == "" {
			a.flash.Warn("usage: open <number>")
			return
		}
		if _, ok := a.vm.ActivePhone(); !ok {
			a.flash.Warn("select a phone number first")
			return
		}
		a.openConversation(openphone.Conversation{Participants: []string{cmd.Args}})
	default:
		a.flash.Warn(fmt.Sprintf("unknown command: %s", cmd.Name))
	}
}

// async runs fn off the UI goroutine, showing the fetch indicator meanwhile.
func (a *App) async(what string, fn func(ctx context.Context) error, then func()) {
	a.statusBar.SetFetching(true)
	go func() {
		err := fn(a.ctx)
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetFetching(false)
			if err != nil {
				if a.ctx.Err() == nil {
					a.logger.Warn(what+" failed", zap.Error(err))
					a.flash.Err(fmt.Errorf("%s: %w", what, err))
				}
				return
			}
			if then != nil {
				then()
			}
		})
	}()
}

func (a *App) loadPhones() {
	a.async("load phone numbers", a.vm.LoadPhoneNumbers, func() {
		phones := a.vm.PhoneNumbers()
		a.phoneList.Update(phones)
		if a.opts.DefaultPhone == "" || a.pages.Current() != pagePhones {
			return
		}
		for _, p := range phones {
			if p.ID == a.opts.DefaultPhone || p.Number == a.opts.DefaultPhone {
				a.openPhone(p)
				return
			}
		}
		a.flash.Warn(fmt.Sprintf("default phone number %s not found", a.opts.DefaultPhone))
	})
}

func (a *App) showPhoneInfo() {
	p, ok := a.phoneList.Selected()
	if !ok {
		return
	}
	a.phoneInfo.Update(p)
	a.push(pagePhoneInfo)
}

func (a *App) openPhone(p openphone.PhoneNumber) {
	if _, ok := a.vm.SelectPhone(p.ID); !ok {
		return
	}
	a.convList.Update(nil)
	a.updateInfo()
	a.push(pageConversations)
	a.loadConversations()
}

func (a *App) loadConversations() {
	a.async("load conversations", a.vm.LoadConversations, func() {
		a.convList.Update(a.vm.Conversations())
		a.updateInfo()
	})
}

func (a *App) updateInfo() {
	data := ui.ProfileData{
		Profile:       a.opts.Profile,
		Conversations: len(a.vm.Conversations()),
	}
	if p, ok := a.vm.ActivePhone(); ok {
		data.Phone = p.Display()
	}
	if a.activeThread != nil && a.pages.Current() == pageThread {
		snap := a.activeThread.Snapshot()
		data.Fetching = snap.State.IsFetching
		data.Sending = snap.Pending
	}
	a.info.Update(data)
}

func (a *App) openConversation(c openphone.Conversation) {
	t, ok := a.vm.Thread(c.Participant())
	if !ok {
		return
	}
	title := c.Participant()
	if c.Name != nil && *c.Name != "" {
		title = *c.Name + " " + title
	}
	a.activeThread = t
	a.thread.SetConversation(title)
	a.push(pageThread)
}

// startThread runs when the thread page is pushed.
func (a *App) startThread() {
	t := a.activeThread
	if t == nil {
		return
	}
	t.Watch(a.ctx, func() {
		a.app.QueueUpdateDraw(func() {
			if a.activeThread == t {
				a.renderThread()
			}
		})
	})
	a.renderThread()
	a.async("load messages", t.Query.Open, a.renderThread)
}

// stopThread runs when the thread page is popped.
func (a *App) stopThread() {
	if a.activeThread != nil {
		a.activeThread.Unwatch()
	}
}

func (a *App) renderThread() {
	if a.activeThread == nil {
		return
	}
	a.thread.Update(a.activeThread.Snapshot())
	a.updateInfo()
}

func (a *App) loadOlder() {
	t := a.activeThread
	if t == nil || !t.Query.HasNextPage() {
		a.flash.Info("no older messages")
		return
	}
	a.async("load older messages", func(ctx context.Context) error {
		_, err := t.Query.FetchNextPage(ctx)
		return err
	}, a.renderThread)
}

func (a *App) refetchThread() {
	t := a.activeThread
	if t == nil {
		return
	}
	a.async("refetch", t.Query.Refetch, a.renderThread)
}

func (a *App) send(text string) {
	t := a.activeThread
	if t == nil {
		return
	}
	a.thread.Composer().SetPending(true)
	go func() {
		msg, err := t.Mutation.Mutate(a.ctx, text)
		if err != nil {
			a.logger.Warn("send failed", zap.Stringer("key", t.Key()), zap.Error(err))
			a.flash.Err(fmt.Errorf("send failed: %w", err))
		} else {
			a.logger.Info("message sent", zap.Stringer("key", t.Key()), zap.String("id", msg.ID))
		}
		a.app.QueueUpdateDraw(func() {
			if a.activeThread == t {
				a.renderThread()
			} else {
				a.thread.Composer().SetPending(false)
			}
		})
	}()
}

func (a *App) showHistory() {
	entries, err := a.vm.History(historyLimit)
	if err != nil {
		a.flash.Err(fmt.Errorf("load history: %w", err))
		return
	}
	a.history.Update(entries)
	if a.pages.Current() != pageHistory {
		a.push(pageHistory)
	}
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					a.statusBar.SetFlash(a.flash.Get())
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Run starts the TUI application and blocks until it exits.
func (a *App) Run() error {
	a.pages.Push(pagePhones)
	a.app.SetFocus(a.phoneList)
	a.loadPhones()
	a.startRefreshLoop()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.pages.StopAll()
	a.app.Stop()
}
