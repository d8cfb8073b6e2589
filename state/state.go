// Package state holds the client-side session and notes stores. Each store
// wraps one backend call per operation, mirrors successful results to durable
// storage and exposes a Status for the UI.
package state

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/brunoscheufler/notekeeper/store"
)

// AuthAPI is the part of the backend the session store calls.
type AuthAPI interface {
	Register(ctx context.Context, name, email, password string) error
	Login(ctx context.Context, email, password string) (store.Session, error)
}

// NotesAPI is the part of the backend the notes store calls.
type NotesAPI interface {
	ListNotes(ctx context.Context, token string) ([]store.Note, error)
	CreateNote(ctx context.Context, token string, draft store.NoteDraft) (store.Note, error)
	UpdateNote(ctx context.Context, token string, id int64, patch store.NotePatch) (store.Note, error)
	DeleteNote(ctx context.Context, token string, id int64) error
}

// TokenSource supplies the bearer token for note requests. An empty token
// means no session.
type TokenSource interface {
	Token() string
}

type options struct {
	logger    *slog.Logger
	statusTTL time.Duration
}

// Option defines a functional option shared by both stores
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithStatusTTL auto-dismisses success notifications after d. Zero keeps them
// until ClearStatus.
func WithStatusTTL(d time.Duration) Option {
	return func(o *options) {
		o.statusTTL = d
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
