package cli

import (
	"testing"
	"time"

	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/brunoscheufler/notekeeper/telemetry"
	"github.com/stretchr/testify/require"
)

func TestGetTheme(t *testing.T) {
	require.Equal(t, "light", GetTheme("light").Name)
	require.Equal(t, "dark", GetTheme("dark").Name)
	require.Equal(t, "dark", GetTheme("").Name)
}

func TestFormatStatus(t *testing.T) {
	theme := DarkTheme

	require.Empty(t, FormatStatus(state.Status{}, theme))
	require.Contains(t, FormatStatus(state.Status{Phase: state.PhasePending, Op: "fetch", Busy: true}, theme), "Working (fetch)")

	errText := FormatStatus(state.Status{Phase: state.PhaseSettled, HasError: true, ErrorMessage: state.ConflictMessage}, theme)
	require.Contains(t, errText, theme.ErrorTag+state.ConflictMessage)
	require.Contains(t, errText, "x to dismiss")

	okText := FormatStatus(state.Status{Phase: state.PhaseSettled, HasSuccess: true, SuccessMessage: state.CreatedMessage}, theme)
	require.Equal(t, theme.SuccessTag+state.CreatedMessage+"[-]", okText)
}

func TestFormatStatsWithTheme(t *testing.T) {
	stats := telemetry.Stats{
		TotalRequests:  4,
		FailedRequests: 1,
		Routes: []telemetry.RouteStats{
			{Method: "GET", Route: "/api/notes", Count: 3, TotalDuration: 30 * time.Millisecond},
			{Method: "PUT", Route: "/api/notes/{id}", Count: 1, Failures: 1, Conflicts: 1, TotalDuration: 10 * time.Millisecond},
		},
		Uptime:      90 * time.Second,
		LastUpdated: time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC),
	}
	session := store.Session{User: store.User{ID: 1, Email: "a@b.com"}, Auth: store.Credentials{Token: "t"}}

	text := FormatStatsWithTheme(stats, session, 2, DarkTheme)
	require.Contains(t, text, "User:[aqua] a@b.com")
	require.Contains(t, text, "Notes:[aqua] 2")
	require.Contains(t, text, "Requests:[aqua] 4")
	require.Contains(t, text, "Failed:[aqua] 1")
	require.Contains(t, text, "Conflicts:[aqua] 1")
	require.Contains(t, text, "Avg latency:[aqua] 10ms")
	require.Contains(t, text, "Uptime:[aqua] 1m30s")
	require.Contains(t, text, "12:30:00")

	signedOut := FormatStatsWithTheme(telemetry.Stats{}, store.Session{}, 0, LightTheme)
	require.Contains(t, signedOut, "signed out")
	require.Contains(t, signedOut, "Avg latency:[teal] -")
}

func TestFormatNote(t *testing.T) {
	note := store.Note{
		ID:        7,
		Title:     "[red]not a tag",
		Content:   "body",
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	detail := FormatNoteDetail(note, now, DarkTheme)
	require.Contains(t, detail, "[red[]not a tag", "user text is escaped")
	require.Contains(t, detail, "created now, updated now")
	require.Contains(t, detail, "body")

	require.Equal(t, "#7 [red[]not…", FormatNoteItem(note, 9))
}

func TestFormatDuration(t *testing.T) {
	require.Equal(t, "0m5s", formatDuration(5*time.Second))
	require.Equal(t, "2h3m", formatDuration(2*time.Hour+3*time.Minute))
}
