package state

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/brunoscheufler/notekeeper/store"
	"golang.org/x/crypto/bcrypt"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

// fakeAPI implements AuthAPI and NotesAPI with canned answers. When gate is
// set, every call signals entered and waits for gate to close.
type fakeAPI struct {
	mu     sync.Mutex
	calls  []string
	tokens []string

	registerErr  error
	loginSession store.Session
	loginErr     error
	listNotes    []store.Note
	listErr      error
	created      store.Note
	createErr    error
	updated      store.Note
	updateErr    error
	deleteErr    error

	entered chan struct{}
	gate    chan struct{}
}

func (f *fakeAPI) record(call, token string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.tokens = append(f.tokens, token)
	entered, gate := f.entered, f.gate
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeAPI) Register(_ context.Context, _, _, _ string) error {
	f.record("register", "")
	return f.registerErr
}

func (f *fakeAPI) Login(_ context.Context, _, _ string) (store.Session, error) {
	f.record("login", "")
	return f.loginSession, f.loginErr
}

func (f *fakeAPI) ListNotes(_ context.Context, token string) ([]store.Note, error) {
	f.record("list", token)
	return f.listNotes, f.listErr
}

func (f *fakeAPI) CreateNote(_ context.Context, token string, _ store.NoteDraft) (store.Note, error) {
	f.record("create", token)
	return f.created, f.createErr
}

func (f *fakeAPI) UpdateNote(_ context.Context, token string, _ int64, _ store.NotePatch) (store.Note, error) {
	f.record("update", token)
	return f.updated, f.updateErr
}

func (f *fakeAPI) DeleteNote(_ context.Context, token string, _ int64) error {
	f.record("delete", token)
	return f.deleteErr
}

func testSession() store.Session {
	return store.Session{
		User: store.User{ID: 1, Name: "Ada", Email: "a@b.com"},
		Auth: store.Credentials{Token: "tok"},
	}
}

func testNote(id int64, title string) store.Note {
	return store.Note{
		ID:        id,
		Title:     title,
		Content:   "x",
		CreatedAt: "2024-01-01T00:00:00Z",
		UpdatedAt: "2024-01-01T00:00:00Z",
	}
}

// setupBackend starts the reference backend and returns a client for it.
func setupBackend(t *testing.T) *restapi.Client {
	t.Helper()
	_, client := setupBackendServer(t)
	return client
}

func setupBackendServer(t *testing.T) (*restapi.Server, *restapi.Client) {
	t.Helper()

	server := restapi.NewServer(restapi.WithBcryptCost(bcrypt.MinCost))
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return server, restapi.NewClient(ts.URL, restapi.WithTimeout(5*time.Second))
}

// mockEndpoint serves a fixed status and body for every request and records
// the Authorization header of the last one.
func mockEndpoint(t *testing.T, status int, body string) (*restapi.Client, func() string) {
	t.Helper()

	var mu sync.Mutex
	var auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auth = r.Header.Get("Authorization")
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(ts.Close)

	return restapi.NewClient(ts.URL), func() string {
		mu.Lock()
		defer mu.Unlock()
		return auth
	}
}
