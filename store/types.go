package store

import (
	"context"
	"errors"
	"time"
)

type User struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Credentials struct {
	Token string `json:"token"`
}

// Session is the authenticated user plus the bearer token issued for them.
// It is serialized as-is into durable storage.
type Session struct {
	User User        `json:"user"`
	Auth Credentials `json:"auth"`
}

// Complete reports whether the session carries both a user and a token.
func (s Session) Complete() bool {
	return s.User.ID != 0 && s.Auth.Token != ""
}

// Note timestamps are kept as the exact strings the server sent so that the
// cached copy serializes back byte-for-byte.
type Note struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Created parses CreatedAt as RFC 3339.
func (n Note) Created() (time.Time, error) {
	return time.Parse(time.RFC3339, n.CreatedAt)
}

// Updated parses UpdatedAt as RFC 3339.
func (n Note) Updated() (time.Time, error) {
	return time.Parse(time.RFC3339, n.UpdatedAt)
}

type NoteDraft struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// NotePatch carries the fields of a partial update. Nil fields are omitted
// from the request body. Timestamps are set by the server only.
type NotePatch struct {
	Title   *string `json:"title,omitempty"`
	Content *string `json:"content,omitempty"`
}

// EditPatch builds a patch replacing both title and content.
func EditPatch(title, content string) NotePatch {
	return NotePatch{Title: &title, Content: &content}
}

// KeyValueStore is durable key/value persistence surviving process restarts.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, keys ...string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

var (
	ErrKeyNotFound = errors.New("key not found")
)

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	EnableWAL       bool
}

// DefaultDatabaseConfig returns sensible defaults for database configuration
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		EnableWAL:       true,
	}
}
