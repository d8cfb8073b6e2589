package cli

import (
	"github.com/brunoscheufler/notekeeper/state"
	"github.com/brunoscheufler/notekeeper/telemetry"
)

// AppConfig groups common application dependencies to reduce parameter lists
type AppConfig struct {
	Sessions  *state.SessionStore
	Notes     *state.NotesStore
	Telemetry *telemetry.Telemetry
}

type CLIOptions struct {
	Theme string
}

// RunCLI starts the interactive UI and blocks until it exits
func RunCLI(appConfig *AppConfig, options CLIOptions) error {
	cliApp := NewCLIApp(appConfig, options)
	cliApp.Setup()

	return cliApp.Start()
}
