package restapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Server is a reference notes backend held in memory. It serves the same
// contract the client consumes and is meant for local development and tests.
type Server struct {
	mu         sync.Mutex
	accounts   map[string]*account
	notes      map[int64]map[int64]store.Note
	locked     map[int64]bool
	nextUserID int64
	nextNoteID int64

	signingKey []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
	logger     *slog.Logger
}

type account struct {
	user         store.User
	passwordHash []byte
}

// ServerOption defines a functional option for configuring Server
type ServerOption func(*Server)

// WithSigningKey sets the HMAC key used to sign bearer tokens
func WithSigningKey(key []byte) ServerOption {
	return func(s *Server) {
		s.signingKey = key
	}
}

// WithTokenTTL sets how long issued tokens stay valid
func WithTokenTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.tokenTTL = ttl
	}
}

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) ServerOption {
	return func(s *Server) {
		s.bcryptCost = cost
	}
}

// WithClock overrides the time source used for timestamps and token expiry
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// WithServerLogger configures the logger for request logs
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new server with functional options
func NewServer(options ...ServerOption) *Server {
	s := &Server{
		accounts:   make(map[string]*account),
		notes:      make(map[int64]map[int64]store.Note),
		locked:     make(map[int64]bool),
		tokenTTL:   constants.DefaultTokenTTL,
		bcryptCost: bcrypt.DefaultCost,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(s)
	}
	if len(s.signingKey) == 0 {
		s.signingKey = []byte("notekeeper-development-key")
	}
	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	// Health check endpoint
	mux.HandleFunc("GET "+constants.HealthPath, s.handleHealthCheck)

	// Account management
	mux.HandleFunc("POST "+constants.RegisterPath, s.handleRegister)
	mux.HandleFunc("POST "+constants.LoginPath, s.handleLogin)

	// Note management
	mux.HandleFunc("GET "+constants.NotesPath, s.requireAuth(s.handleListNotes))
	mux.HandleFunc("POST "+constants.NotesPath, s.requireAuth(s.handleCreateNote))
	mux.HandleFunc("PUT "+constants.NotePath, s.requireAuth(s.handleUpdateNote))
	mux.HandleFunc("DELETE "+constants.NotePath, s.requireAuth(s.handleDeleteNote))
}

// Handler returns the routed server wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return s.LoggingMiddleware(mux)
}

// responseWriter captures the status code for logs
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)

		s.logger.Info("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"status", rw.status,
			"request_id", r.Header.Get(constants.RequestIDHeader),
		)
	})
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON", "error", err)
	}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

// Authentication

type userIDKey struct{}

func (s *Server) issueToken(userID int64) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

func (s *Server) parseToken(raw string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(claims.Subject, 10, 64)
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			s.writeError(w, http.StatusUnauthorized, "Missing bearer token")
			return
		}

		userID, err := s.parseToken(strings.TrimSpace(raw))
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "Invalid bearer token")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFrom(ctx context.Context) int64 {
	id, _ := ctx.Value(userIDKey{}).(int64)
	return id
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if strings.TrimSpace(req.Name) == "" || req.Email == "" || req.Password == "" {
		s.writeError(w, http.StatusUnprocessableEntity, "name, email and password are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, "Invalid password")
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[req.Email]; exists {
		s.mu.Unlock()
		s.writeError(w, http.StatusConflict, "Email already registered")
		return
	}
	s.nextUserID++
	acc := &account{
		user:         store.User{ID: s.nextUserID, Name: strings.TrimSpace(req.Name), Email: req.Email},
		passwordHash: hash,
	}
	s.accounts[req.Email] = acc
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, acc.user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(strings.TrimSpace(req.Email))]
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(req.Password)) != nil {
		s.writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := s.issueToken(acc.user.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to issue token")
		return
	}

	s.writeJSON(w, http.StatusOK, store.Session{User: acc.user, Auth: store.Credentials{Token: token}})
}

// Notes

// LockNote blocks updates of a note until UnlockNote; they are answered with
// 409 Conflict.
func (s *Server) LockNote(noteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked[noteID] = true
}

func (s *Server) UnlockNote(noteID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locked, noteID)
}

// parseNoteID parses a note ID path value and handles error response internally
func (s *Server) parseNoteID(w http.ResponseWriter, idStr string) (int64, bool) {
	noteID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || noteID <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid note ID")
		return 0, false
	}
	return noteID, true
}

// validateDraft validates note data
func validateDraft(draft store.NoteDraft) error {
	if strings.TrimSpace(draft.Title) == "" {
		return errors.New("note title is required")
	}
	if strings.TrimSpace(draft.Content) == "" {
		return errors.New("note content is required")
	}
	if len(draft.Content) > 10000 {
		return errors.New("note content too long (max 10000 characters)")
	}
	return nil
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	s.mu.Lock()
	notes := make([]store.Note, 0, len(s.notes[userID]))
	for _, n := range s.notes[userID] {
		notes = append(notes, n)
	}
	s.mu.Unlock()

	sort.Slice(notes, func(i, j int) bool { return notes[i].ID < notes[j].ID })
	s.writeJSON(w, http.StatusOK, notes)
}

func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var draft store.NoteDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if err := validateDraft(draft); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	now := s.timestamp()

	s.mu.Lock()
	s.nextNoteID++
	note := store.Note{
		ID:        s.nextNoteID,
		Title:     draft.Title,
		Content:   draft.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.notes[userID] == nil {
		s.notes[userID] = make(map[int64]store.Note)
	}
	s.notes[userID][note.ID] = note
	s.mu.Unlock()

	s.writeJSON(w, http.StatusCreated, note)
}

func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	noteID, ok := s.parseNoteID(w, r.PathValue("id"))
	if !ok {
		return
	}

	var patch store.NotePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	note, exists := s.notes[userID][noteID]
	if !exists {
		s.writeError(w, http.StatusNotFound, "Note not found")
		return
	}

	if s.locked[noteID] {
		s.writeError(w, http.StatusConflict, "Note is locked")
		return
	}

	draft := store.NoteDraft{Title: note.Title, Content: note.Content}
	if patch.Title != nil {
		draft.Title = *patch.Title
	}
	if patch.Content != nil {
		draft.Content = *patch.Content
	}
	if err := validateDraft(draft); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	note.Title = draft.Title
	note.Content = draft.Content
	note.UpdatedAt = s.timestamp()
	s.notes[userID][noteID] = note

	s.writeJSON(w, http.StatusOK, note)
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	noteID, ok := s.parseNoteID(w, r.PathValue("id"))
	if !ok {
		return
	}

	s.mu.Lock()
	_, exists := s.notes[userID][noteID]
	if exists {
		delete(s.notes[userID], noteID)
		delete(s.locked, noteID)
	}
	s.mu.Unlock()

	if !exists {
		s.writeError(w, http.StatusNotFound, "Note not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
