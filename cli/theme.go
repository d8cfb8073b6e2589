package cli

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/brunoscheufler/notekeeper/render"
	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/brunoscheufler/notekeeper/telemetry"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

type Theme struct {
	Name       string
	Foreground tcell.Color
	Border     tcell.Color
	Title      tcell.Color
	Highlight  tcell.Color
	Secondary  tcell.Color
	Accent     tcell.Color
	Success    tcell.Color
	Warning    tcell.Color
	Error      tcell.Color

	// tview color tags for dynamic text
	LabelTag     string
	ValueTag     string
	SecondaryTag string
	HeaderTag    string
	SuccessTag   string
	ErrorTag     string
}

var (
	DarkTheme = Theme{
		Name:         "dark",
		Foreground:   tcell.ColorWhite,
		Border:       tcell.ColorBlue,
		Title:        tcell.ColorYellow,
		Highlight:    tcell.ColorGreen,
		Secondary:    tcell.ColorGray,
		Accent:       tcell.ColorAqua,
		Success:      tcell.ColorGreen,
		Warning:      tcell.ColorYellow,
		Error:        tcell.ColorRed,
		LabelTag:     "[white]",
		ValueTag:     "[aqua]",
		SecondaryTag: "[gray]",
		HeaderTag:    "[yellow]",
		SuccessTag:   "[green]",
		ErrorTag:     "[red]",
	}

	LightTheme = Theme{
		Name:         "light",
		Foreground:   tcell.ColorBlack,
		Border:       tcell.ColorNavy,
		Title:        tcell.ColorDarkBlue,
		Highlight:    tcell.ColorDarkGreen,
		Secondary:    tcell.ColorDarkGray,
		Accent:       tcell.ColorTeal,
		Success:      tcell.ColorDarkGreen,
		Warning:      tcell.ColorOrange,
		Error:        tcell.ColorDarkRed,
		LabelTag:     "[navy]",
		ValueTag:     "[teal]",
		SecondaryTag: "[darkgray]",
		HeaderTag:    "[navy]",
		SuccessTag:   "[darkgreen]",
		ErrorTag:     "[darkred]",
	}
)

func GetTheme(themeName string) Theme {
	switch themeName {
	case "light":
		return LightTheme
	case "dark":
		fallthrough
	default:
		return DarkTheme
	}
}

func ApplyTheme(theme Theme) {
	// Transparent backgrounds so the terminal's own background shows through
	tview.Styles = tview.Theme{
		PrimitiveBackgroundColor:    tcell.ColorDefault,
		ContrastBackgroundColor:     tcell.ColorDefault,
		MoreContrastBackgroundColor: tcell.ColorDefault,
		BorderColor:                 theme.Border,
		TitleColor:                  theme.Title,
		GraphicsColor:               theme.Accent,
		PrimaryTextColor:            theme.Foreground,
		SecondaryTextColor:          theme.Secondary,
		TertiaryTextColor:           theme.Secondary,
		InverseTextColor:            theme.Foreground,
		ContrastSecondaryTextColor:  theme.Foreground,
	}
}

func ApplyThemeToTextView(tv *tview.TextView, theme Theme) {
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetTextColor(theme.Foreground)
	tv.SetBorderColor(theme.Border)
	tv.SetTitleColor(theme.Title)
}

const statsTemplate = `{{.LabelTag}}User:{{.ValueTag}} {{.User}}{{.LabelTag}}
Notes:{{.ValueTag}} {{.NoteCount}}{{.LabelTag}}
Requests:{{.ValueTag}} {{.TotalRequests}}{{.LabelTag}}
Failed:{{.ValueTag}} {{.FailedRequests}}{{.LabelTag}}
Conflicts:{{.ValueTag}} {{.Conflicts}}{{.LabelTag}}
Avg latency:{{.ValueTag}} {{.AvgLatency}}{{.LabelTag}}
Uptime:{{.ValueTag}} {{.Uptime}}{{.LabelTag}}
Updated:{{.SecondaryTag}} {{.LastUpdated}}[-]`

type StatsData struct {
	User           string
	NoteCount      int
	TotalRequests  int64
	FailedRequests int64
	Conflicts      int64
	AvgLatency     string
	Uptime         string
	LastUpdated    string
	LabelTag       string
	ValueTag       string
	SecondaryTag   string
}

var statsTemplateParsed = template.Must(template.New("stats").Parse(statsTemplate))

func FormatStatsWithTheme(stats telemetry.Stats, session store.Session, noteCount int, theme Theme) string {
	var conflicts int64
	var total time.Duration
	for _, route := range stats.Routes {
		conflicts += route.Conflicts
		total += route.TotalDuration
	}

	avg := "-"
	if stats.TotalRequests > 0 {
		avg = (total / time.Duration(stats.TotalRequests)).Round(time.Millisecond).String()
	}

	user := "signed out"
	if session.Complete() {
		user = session.User.Email
	}

	data := StatsData{
		User:           tview.Escape(user),
		NoteCount:      noteCount,
		TotalRequests:  stats.TotalRequests,
		FailedRequests: stats.FailedRequests,
		Conflicts:      conflicts,
		AvgLatency:     avg,
		Uptime:         formatDuration(stats.Uptime),
		LastUpdated:    stats.LastUpdated.Format(time.TimeOnly),
		LabelTag:       theme.LabelTag,
		ValueTag:       theme.ValueTag,
		SecondaryTag:   theme.SecondaryTag,
	}

	var buf bytes.Buffer
	if err := statsTemplateParsed.Execute(&buf, data); err != nil {
		return fmt.Sprintf("Error formatting stats: %v", err)
	}

	return buf.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatStatus renders a store status for the status bar.
func FormatStatus(status state.Status, theme Theme) string {
	switch {
	case status.Busy:
		return fmt.Sprintf("%sWorking (%s)...[-]", theme.SecondaryTag, status.Op)
	case status.HasError:
		return theme.ErrorTag + tview.Escape(status.ErrorMessage) + "[-] " + theme.SecondaryTag + "(x to dismiss)[-]"
	case status.HasSuccess:
		return theme.SuccessTag + tview.Escape(status.SuccessMessage) + "[-]"
	default:
		return ""
	}
}

// FormatNoteDetail renders a note for the detail pane.
func FormatNoteDetail(note store.Note, now time.Time, theme Theme) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s%s[-]\n", theme.HeaderTag, tview.Escape(note.Title))
	fmt.Fprintf(&b, "%screated %s, updated %s[-]\n\n",
		theme.SecondaryTag,
		render.Relative(note.CreatedAt, now),
		render.Relative(note.UpdatedAt, now),
	)
	b.WriteString(tview.Escape(note.Content))
	return b.String()
}

// FormatNoteItem is the list label of a note.
func FormatNoteItem(note store.Note, width int) string {
	return fmt.Sprintf("#%d %s", note.ID, tview.Escape(render.Truncate(note.Title, width)))
}

func FormatLogEntryWithTheme(entry telemetry.LogEntry, theme Theme) string {
	// The tint handler already includes ANSI colors and timestamp formatting,
	// so we can return the message directly for tview to interpret
	return tview.TranslateANSI(entry.Message)
}
