package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/brunoscheufler/notekeeper/store"
)

// SessionStore owns the signed-in user and bearer token.
type SessionStore struct {
	api    AuthAPI
	kv     store.KeyValueStore
	logger *slog.Logger

	mu      sync.RWMutex
	session *store.Session
	hooks   []func()

	tracker   *tracker
	listeners listeners
}

// NewSessionStore restores a persisted session, if any. The restored session
// is trusted until the backend rejects its token.
func NewSessionStore(ctx context.Context, api AuthAPI, kv store.KeyValueStore, opts ...Option) *SessionStore {
	o := buildOptions(opts)
	s := &SessionStore{
		api:    api,
		kv:     kv,
		logger: o.logger,
	}
	s.tracker = newTracker(o.statusTTL, s.listeners.notify)
	s.rehydrate(ctx)
	return s
}

func (s *SessionStore) rehydrate(ctx context.Context) {
	data, err := s.kv.Get(ctx, constants.SessionKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn("Failed to read stored session", "error", err.Error())
		return
	}

	var session store.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("Ignoring corrupt stored session", "error", err.Error())
		return
	}
	if !session.Complete() {
		s.logger.Warn("Ignoring incomplete stored session")
		return
	}

	s.session = &session
	s.logger.Debug("Restored session", "user_id", session.User.ID)
}

// Register creates an account and signs in with the same credentials. Both
// steps run as one operation.
func (s *SessionStore) Register(ctx context.Context, name, email, password string) error {
	if err := s.tracker.begin("register"); err != nil {
		return err
	}

	if err := s.api.Register(ctx, name, email, password); err != nil {
		s.logger.Warn("Registration failed", "email", email, "error", err.Error())
		return s.settle(newOpError("register", ErrRegistration, restapi.StatusCode(err), err))
	}

	if opErr := s.login(ctx, "register", email, password); opErr != nil {
		return s.settle(opErr)
	}
	return s.settle(nil)
}

// Login signs in and persists the returned session. Failures of any kind are
// reported as ErrAuthentication.
func (s *SessionStore) Login(ctx context.Context, email, password string) error {
	if err := s.tracker.begin("login"); err != nil {
		return err
	}
	return s.settle(s.login(ctx, "login", email, password))
}

func (s *SessionStore) login(ctx context.Context, op, email, password string) *OpError {
	session, err := s.api.Login(ctx, email, password)
	if err != nil {
		s.logger.Warn("Login failed", "email", email, "error", err.Error())
		return newOpError(op, ErrAuthentication, restapi.StatusCode(err), err)
	}
	if !session.Complete() {
		s.logger.Warn("Login returned an incomplete session", "email", email)
		return newOpError(op, ErrAuthentication, 0, errors.New("incomplete session payload"))
	}

	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()

	if err := s.persist(ctx, session); err != nil {
		s.logger.Error("Failed to persist session", "error", err.Error())
	}

	s.logger.Info("Logged in", "user_id", session.User.ID, "email", session.User.Email)
	return nil
}

func (s *SessionStore) persist(ctx context.Context, session store.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.kv.Set(ctx, constants.SessionKey, data)
}

func (s *SessionStore) settle(opErr *OpError) error {
	if opErr != nil {
		s.tracker.fail(opErr)
		return opErr
	}
	s.tracker.succeed("")
	return nil
}

// Logout forgets the session, runs the logout hooks and then removes both the
// session and the notes cache from durable storage. Hooks must have stopped
// all cache writes by the time they return. A storage failure is returned
// after memory has been cleared.
func (s *SessionStore) Logout(ctx context.Context) error {
	s.mu.Lock()
	s.session = nil
	hooks := make([]func(), len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}

	err := s.kv.Delete(ctx, constants.SessionKey, constants.NotesKey)

	s.tracker.clear()
	s.listeners.notify()

	if err != nil {
		return fmt.Errorf("failed to remove stored session: %w", err)
	}
	s.logger.Info("Logged out")
	return nil
}

// Session returns the signed-in session, if any.
func (s *SessionStore) Session() (store.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return store.Session{}, false
	}
	return *s.session, true
}

// Token implements TokenSource.
func (s *SessionStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Auth.Token
}

// Authenticated reports whether a session is held.
func (s *SessionStore) Authenticated() bool {
	_, ok := s.Session()
	return ok
}

// Status reports the current or last session operation.
func (s *SessionStore) Status() Status {
	return s.tracker.snapshot()
}

// ClearStatus dismisses a settled error.
func (s *SessionStore) ClearStatus() {
	s.tracker.clear()
}

// OnLogout registers fn to run after every logout.
func (s *SessionStore) OnLogout(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

// Subscribe registers fn to run after every change of session or status.
func (s *SessionStore) Subscribe(fn func()) {
	s.listeners.add(fn)
}
