package render

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/brunoscheufler/notekeeper/store"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const maxTitleWidth = 40

type Palette struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color
	Success   lipgloss.Color
	Error     lipgloss.Color
	Border    lipgloss.Color
}

var (
	DarkPalette = Palette{
		Primary:   lipgloss.Color("#FFFFFF"),
		Secondary: lipgloss.Color("#808080"),
		Accent:    lipgloss.Color("#00FFFF"),
		Success:   lipgloss.Color("#00FF00"),
		Error:     lipgloss.Color("#FF0000"),
		Border:    lipgloss.Color("#0000FF"),
	}

	LightPalette = Palette{
		Primary:   lipgloss.Color("#000000"),
		Secondary: lipgloss.Color("#404040"),
		Accent:    lipgloss.Color("#008080"),
		Success:   lipgloss.Color("#006400"),
		Error:     lipgloss.Color("#8B0000"),
		Border:    lipgloss.Color("#000080"),
	}
)

func GetPalette(theme string) Palette {
	if theme == "light" {
		return LightPalette
	}
	return DarkPalette
}

// Printer writes notes and session details for the non-interactive commands.
// Colors are dropped when out is not a terminal.
type Printer struct {
	out io.Writer
	now func() time.Time

	id      lipgloss.Style
	title   lipgloss.Style
	subtle  lipgloss.Style
	success lipgloss.Style
	failure lipgloss.Style
	panel   lipgloss.Style
}

func NewPrinter(out io.Writer, theme string) *Printer {
	r := lipgloss.NewRenderer(out)
	p := GetPalette(theme)

	return &Printer{
		out:     out,
		now:     time.Now,
		id:      r.NewStyle().Foreground(p.Accent).Bold(true),
		title:   r.NewStyle().Foreground(p.Primary).Bold(true),
		subtle:  r.NewStyle().Foreground(p.Secondary),
		success: r.NewStyle().Foreground(p.Success),
		failure: r.NewStyle().Foreground(p.Error).Bold(true),
		panel: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(p.Border).
			Padding(0, 1),
	}
}

// Notes prints one line per note, in collection order.
func (p *Printer) Notes(notes []store.Note) {
	if len(notes) == 0 {
		fmt.Fprintln(p.out, p.subtle.Render("No notes yet."))
		return
	}

	idWidth := 0
	for _, n := range notes {
		idWidth = max(idWidth, len(fmt.Sprint(n.ID)))
	}

	for _, n := range notes {
		id := fmt.Sprintf("%*d", idWidth, n.ID)
		fmt.Fprintf(p.out, "%s  %s  %s\n",
			p.id.Render(id),
			p.title.Render(Truncate(n.Title, maxTitleWidth)),
			p.subtle.Render("updated "+Relative(n.UpdatedAt, p.now())),
		)
	}
}

// Note prints a single note with its body inside a panel.
func (p *Printer) Note(n store.Note) {
	header := fmt.Sprintf("%s %s", p.id.Render(fmt.Sprintf("#%d", n.ID)), p.title.Render(n.Title))
	meta := p.subtle.Render(fmt.Sprintf("created %s, updated %s",
		Relative(n.CreatedAt, p.now()),
		Relative(n.UpdatedAt, p.now()),
	))

	fmt.Fprintln(p.out, header)
	fmt.Fprintln(p.out, meta)
	fmt.Fprintln(p.out, p.panel.Render(n.Content))
}

func (p *Printer) Session(s store.Session) {
	fmt.Fprintf(p.out, "%s %s\n", p.title.Render(s.User.Name), p.subtle.Render("<"+s.User.Email+">"))
	fmt.Fprintf(p.out, "%s %d\n", p.subtle.Render("user id"), s.User.ID)
}

func (p *Printer) Success(message string) {
	fmt.Fprintln(p.out, p.success.Render(message))
}

func (p *Printer) Error(message string) {
	fmt.Fprintln(p.out, p.failure.Render(message))
}

// Relative formats an RFC 3339 timestamp relative to now. Unparseable values
// are returned unchanged.
func Relative(ts string, now time.Time) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Truncate shortens s to at most width runes, marking the cut with an
// ellipsis. Line breaks are flattened.
func Truncate(s string, width int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}
