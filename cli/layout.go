package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/brunoscheufler/notekeeper/telemetry"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	pageLogin   = "login"
	pageNotes   = "notes"
	pageEditor  = "editor"
	pageConfirm = "confirm"

	listTitleWidth = 32
)

type CLIApp struct {
	app   *tview.Application
	pages *tview.Pages
	theme Theme

	loginForm  *tview.Form
	loginInfo  *tview.TextView
	noteList   *tview.List
	detailView *tview.TextView
	statsView  *tview.TextView
	logView    *tview.TextView
	statusBar  *tview.TextView

	sessions  *state.SessionStore
	notes     *state.NotesStore
	telemetry *telemetry.Telemetry
	options   CLIOptions

	// ids mirrors the rows of noteList
	ids []int64

	ctx    context.Context
	cancel context.CancelFunc
}

func NewCLIApp(appConfig *AppConfig, options CLIOptions) *CLIApp {
	ctx, cancel := context.WithCancel(context.Background())

	return &CLIApp{
		app:       tview.NewApplication(),
		theme:     GetTheme(options.Theme),
		sessions:  appConfig.Sessions,
		notes:     appConfig.Notes,
		telemetry: appConfig.Telemetry,
		options:   options,
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (c *CLIApp) Setup() {
	ApplyTheme(c.theme)

	c.pages = tview.NewPages()
	c.pages.AddPage(pageLogin, c.buildLoginPage(), true, false)
	c.pages.AddPage(pageNotes, c.buildNotesPage(), true, false)

	c.statusBar = tview.NewTextView()
	c.statusBar.SetDynamicColors(true)
	ApplyThemeToTextView(c.statusBar, c.theme)

	root := tview.NewFlex()
	root.SetDirection(tview.FlexRow)
	root.AddItem(c.pages, 0, 1, true)
	root.AddItem(c.statusBar, 1, 0, false)

	c.app.SetRoot(root, true)
	c.app.EnableMouse(true)

	c.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			c.Stop()
			return nil
		}
		return event
	})

	// Store callbacks arrive on worker goroutines, possibly while the event
	// loop is busy, so redraws are queued asynchronously.
	redraw := func() {
		go c.app.QueueUpdateDraw(c.refresh)
	}
	c.sessions.Subscribe(redraw)
	c.notes.Subscribe(redraw)

	c.telemetry.LogCapture.SetLogCallback(func(entry telemetry.LogEntry) {
		c.appendLog(FormatLogEntryWithTheme(entry, c.theme))
	})

	c.refresh()
}

func (c *CLIApp) buildLoginPage() tview.Primitive {
	c.loginInfo = tview.NewTextView()
	c.loginInfo.SetDynamicColors(true)
	c.loginInfo.SetText(fmt.Sprintf("%sSign in, or fill in a name to create an account.[-]", c.theme.SecondaryTag))
	ApplyThemeToTextView(c.loginInfo, c.theme)

	c.loginForm = tview.NewForm()
	c.loginForm.AddInputField("Name", "", 40, nil, nil)
	c.loginForm.AddInputField("Email", "", 40, nil, nil)
	c.loginForm.AddPasswordField("Password", "", 40, '*', nil)
	c.loginForm.AddButton("Login", func() {
		email, password := c.loginFields()
		c.run(func(ctx context.Context) {
			c.sessions.Login(ctx, email, password)
			c.afterAuth()
		})
	})
	c.loginForm.AddButton("Register", func() {
		name := c.loginForm.GetFormItemByLabel("Name").(*tview.InputField).GetText()
		email, password := c.loginFields()
		c.run(func(ctx context.Context) {
			c.sessions.Register(ctx, name, email, password)
			c.afterAuth()
		})
	})
	c.loginForm.AddButton("Quit", c.Stop)
	c.loginForm.SetBorder(true)
	c.loginForm.SetTitle(" " + constants.AppName + " ")
	c.loginForm.SetTitleAlign(tview.AlignLeft)

	content := tview.NewFlex()
	content.SetDirection(tview.FlexRow)
	content.AddItem(c.loginInfo, 2, 0, false)
	content.AddItem(c.loginForm, 11, 0, true)

	// Center the form
	row := tview.NewFlex()
	row.AddItem(nil, 0, 1, false)
	row.AddItem(content, 60, 0, true)
	row.AddItem(nil, 0, 1, false)

	page := tview.NewFlex()
	page.SetDirection(tview.FlexRow)
	page.AddItem(nil, 0, 1, false)
	page.AddItem(row, 13, 0, true)
	page.AddItem(nil, 0, 1, false)
	return page
}

func (c *CLIApp) loginFields() (email, password string) {
	email = c.loginForm.GetFormItemByLabel("Email").(*tview.InputField).GetText()
	password = c.loginForm.GetFormItemByLabel("Password").(*tview.InputField).GetText()
	return strings.TrimSpace(email), password
}

// afterAuth loads the notes of a freshly signed in user.
func (c *CLIApp) afterAuth() {
	if !c.sessions.Authenticated() {
		return
	}
	c.app.QueueUpdateDraw(func() {
		c.loginForm.GetFormItemByLabel("Password").(*tview.InputField).SetText("")
	})
	c.notes.FetchNotes(c.ctx)
}

func (c *CLIApp) buildNotesPage() tview.Primitive {
	c.noteList = tview.NewList()
	c.noteList.ShowSecondaryText(false)
	c.noteList.SetHighlightFullLine(true)
	c.noteList.SetBorder(true)
	c.noteList.SetTitle(" Notes [a]dd [e]dit [d]elete [r]efresh [l]ogout [q]uit ")
	c.noteList.SetTitleAlign(tview.AlignLeft)
	c.noteList.SetChangedFunc(func(index int, _, _ string, _ rune) {
		c.showDetail(index)
	})
	c.noteList.SetInputCapture(c.handleNotesKey)

	c.detailView = tview.NewTextView()
	c.detailView.SetBorder(true)
	c.detailView.SetTitle(" Note ")
	c.detailView.SetTitleAlign(tview.AlignLeft)
	c.detailView.SetDynamicColors(true)
	c.detailView.SetWordWrap(true)
	c.detailView.SetScrollable(true)
	ApplyThemeToTextView(c.detailView, c.theme)

	c.statsView = tview.NewTextView()
	c.statsView.SetBorder(true)
	c.statsView.SetTitle(" Requests ")
	c.statsView.SetTitleAlign(tview.AlignLeft)
	c.statsView.SetDynamicColors(true)
	ApplyThemeToTextView(c.statsView, c.theme)

	c.logView = tview.NewTextView()
	c.logView.SetBorder(true)
	c.logView.SetTitle(" Logs ")
	c.logView.SetTitleAlign(tview.AlignLeft)
	c.logView.SetDynamicColors(true)
	c.logView.SetScrollable(true)
	c.logView.SetMaxLines(constants.DefaultLogBufferSize)
	ApplyThemeToTextView(c.logView, c.theme)

	topRow := tview.NewFlex()
	topRow.SetDirection(tview.FlexColumn)
	topRow.AddItem(c.noteList, 0, 1, true)
	topRow.AddItem(c.detailView, 0, 2, false)

	bottomRow := tview.NewFlex()
	bottomRow.SetDirection(tview.FlexColumn)
	bottomRow.AddItem(c.statsView, 36, 0, false)
	bottomRow.AddItem(c.logView, 0, 1, false)

	// 2/3 notes, 1/3 telemetry
	page := tview.NewFlex()
	page.SetDirection(tview.FlexRow)
	page.AddItem(topRow, 0, 2, true)
	page.AddItem(bottomRow, 0, 1, false)
	return page
}

func (c *CLIApp) handleNotesKey(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyEscape {
		c.Stop()
		return nil
	}

	switch event.Rune() {
	case 'q':
		c.Stop()
	case 'a':
		c.showEditor(nil)
	case 'e':
		if note, ok := c.selectedNote(); ok {
			c.showEditor(&note)
		}
	case 'd':
		if note, ok := c.selectedNote(); ok {
			c.confirmDelete(note)
		}
	case 'r':
		c.run(func(ctx context.Context) {
			c.notes.FetchNotes(ctx)
		})
	case 'l':
		c.run(func(ctx context.Context) {
			c.sessions.Logout(ctx)
		})
	case 'x':
		go c.notes.ClearStatus()
	default:
		return event
	}
	return nil
}

func (c *CLIApp) selectedNote() (store.Note, bool) {
	index := c.noteList.GetCurrentItem()
	if index < 0 || index >= len(c.ids) {
		return store.Note{}, false
	}
	return c.notes.Note(c.ids[index])
}

// showEditor opens the note form. A nil note creates a new one.
func (c *CLIApp) showEditor(note *store.Note) {
	title, content := "", ""
	heading := " New note "
	if note != nil {
		title, content = note.Title, note.Content
		heading = fmt.Sprintf(" Edit note #%d ", note.ID)
	}

	form := tview.NewForm()
	form.AddInputField("Title", title, 0, nil, nil)
	contentArea := tview.NewTextArea()
	contentArea.SetLabel("Content")
	contentArea.SetText(content, false)
	contentArea.SetSize(12, 0)
	form.AddFormItem(contentArea)
	form.AddButton("Save", func() {
		newTitle := form.GetFormItemByLabel("Title").(*tview.InputField).GetText()
		newContent := contentArea.GetText()
		c.closeModal(pageEditor)

		if note == nil {
			c.run(func(ctx context.Context) {
				c.notes.AddNote(ctx, newTitle, newContent)
			})
			return
		}
		patch := store.EditPatch(newTitle, newContent)
		id := note.ID
		c.run(func(ctx context.Context) {
			c.notes.UpdateNote(ctx, id, patch)
		})
	})
	form.AddButton("Cancel", func() {
		c.closeModal(pageEditor)
	})
	form.SetCancelFunc(func() {
		c.closeModal(pageEditor)
	})
	form.SetBorder(true)
	form.SetTitle(heading)
	form.SetTitleAlign(tview.AlignLeft)

	c.pages.AddPage(pageEditor, modal(form, 80, 20), true, true)
	c.app.SetFocus(form)
}

func (c *CLIApp) confirmDelete(note store.Note) {
	dialog := tview.NewModal()
	dialog.SetText(fmt.Sprintf("Delete note #%d %q?", note.ID, note.Title))
	dialog.AddButtons([]string{"Delete", "Cancel"})
	dialog.SetDoneFunc(func(_ int, label string) {
		c.closeModal(pageConfirm)
		if label != "Delete" {
			return
		}
		c.run(func(ctx context.Context) {
			c.notes.DeleteNote(ctx, note.ID)
		})
	})

	c.pages.AddPage(pageConfirm, dialog, true, true)
	c.app.SetFocus(dialog)
}

func (c *CLIApp) closeModal(name string) {
	c.pages.RemovePage(name)
	c.app.SetFocus(c.noteList)
}

// modal centers p in a box of the given size.
func modal(p tview.Primitive, width, height int) tview.Primitive {
	row := tview.NewFlex()
	row.AddItem(nil, 0, 1, false)
	row.AddItem(p, width, 0, true)
	row.AddItem(nil, 0, 1, false)

	col := tview.NewFlex()
	col.SetDirection(tview.FlexRow)
	col.AddItem(nil, 0, 1, false)
	col.AddItem(row, height, 0, true)
	col.AddItem(nil, 0, 1, false)
	return col
}

// run executes a store operation off the event loop. Results reach the UI
// through store subscriptions.
func (c *CLIApp) run(op func(ctx context.Context)) {
	go op(c.ctx)
}

// refresh redraws everything derived from store state. It must run on the
// event loop.
func (c *CLIApp) refresh() {
	front, _ := c.pages.GetFrontPage()
	authenticated := c.sessions.Authenticated()

	switch {
	case !authenticated && front != pageLogin:
		c.pages.RemovePage(pageEditor)
		c.pages.RemovePage(pageConfirm)
		c.pages.SwitchToPage(pageLogin)
		c.app.SetFocus(c.loginForm)
	case authenticated && (front == pageLogin || front == ""):
		c.pages.SwitchToPage(pageNotes)
		c.app.SetFocus(c.noteList)
	}

	c.refreshNotes()
	c.refreshStats()

	status := c.notes.Status()
	if !authenticated {
		status = c.sessions.Status()
	}
	c.statusBar.SetText(FormatStatus(status, c.theme))
}

func (c *CLIApp) refreshNotes() {
	notes := c.notes.Notes()
	current := c.noteList.GetCurrentItem()
	var selected int64
	if current >= 0 && current < len(c.ids) {
		selected = c.ids[current]
	}

	c.noteList.Clear()
	c.ids = c.ids[:0]
	for i, note := range notes {
		c.ids = append(c.ids, note.ID)
		c.noteList.AddItem(FormatNoteItem(note, listTitleWidth), "", 0, nil)
		if note.ID == selected {
			current = i
		}
	}

	if len(notes) == 0 {
		c.detailView.SetText(c.theme.SecondaryTag + "No notes yet. Press a to add one.[-]")
		return
	}
	current = min(max(current, 0), len(notes)-1)
	c.noteList.SetCurrentItem(current)
	c.showDetail(current)
}

func (c *CLIApp) showDetail(index int) {
	if index < 0 || index >= len(c.ids) {
		return
	}
	note, ok := c.notes.Note(c.ids[index])
	if !ok {
		return
	}
	c.detailView.SetText(FormatNoteDetail(note, time.Now(), c.theme))
	c.detailView.ScrollToBeginning()
}

func (c *CLIApp) refreshStats() {
	session, _ := c.sessions.Session()
	stats := c.telemetry.StatsCollector.CollectStats()
	c.statsView.SetText(FormatStatsWithTheme(stats, session, len(c.ids), c.theme))
}

func (c *CLIApp) Start() error {
	go c.statsUpdateLoop()

	go func() {
		c.loadExistingLogs()
	}()

	// A restored session starts with a refresh from the backend
	if c.sessions.Authenticated() {
		c.run(func(ctx context.Context) {
			c.notes.FetchNotes(ctx)
		})
	}

	return c.app.Run()
}

func (c *CLIApp) Stop() {
	c.cancel()
	c.app.Stop()
}

func (c *CLIApp) statsUpdateLoop() {
	ticker := time.NewTicker(constants.DefaultStatsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.app.QueueUpdateDraw(c.refreshStats)
		}
	}
}

func (c *CLIApp) appendLog(message string) {
	c.app.QueueUpdateDraw(func() {
		fmt.Fprint(c.logView, message)
		c.logView.ScrollToEnd()
	})
}

func (c *CLIApp) loadExistingLogs() {
	logs := c.telemetry.LogCapture.GetAllLogs()

	if len(logs) == 0 {
		c.appendLog(c.theme.SecondaryTag + "Waiting for logs...[-]\n")
		return
	}

	var logText strings.Builder
	for _, entry := range logs {
		logText.WriteString(FormatLogEntryWithTheme(entry, c.theme))
	}

	c.app.QueueUpdateDraw(func() {
		c.logView.SetText(logText.String())
		c.logView.ScrollToEnd()
	})
}
