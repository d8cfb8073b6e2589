package constants

import "time"

// Durable storage keys. Both are removed together on logout.
const (
	SessionKey = "session"
	NotesKey   = "notes"
)

// Backend endpoint paths
const (
	RegisterPath = "/api/auth/register"
	LoginPath    = "/api/auth/login"
	NotesPath    = "/api/notes"
	NotePath     = "/api/notes/{id}"
	HealthPath   = "/healthz"
)

// Application-wide defaults
const (
	DefaultServerURL   = "http://localhost:8080"
	DefaultHTTPTimeout = 30 * time.Second
	DefaultStatusTTL   = 4 * time.Second
	DefaultServeAddr   = ":8080"
	DefaultTokenTTL    = 24 * time.Hour
	DatabaseFileName   = "notekeeper.db"
	AppName            = "notekeeper"

	// Telemetry configuration
	DefaultLogBufferSize = 1000
	DefaultStatsInterval = 2 * time.Second

	GracefulShutdownTimeout = 5 * time.Second
	RequestIDHeader         = "X-Request-ID"
)
