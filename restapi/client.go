package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/brunoscheufler/notekeeper/telemetry"
	"github.com/google/uuid"
)

// Client talks to the notes backend. Every method performs exactly one HTTP
// round trip and never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stats      *telemetry.StatsCollector
	logger     *slog.Logger
}

type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 if the server never
// answered.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// ClientOption defines a functional option for configuring Client
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the per-request timeout; zero disables it
func WithTimeout(d time.Duration) ClientOption {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithStatsCollector records every request in sc
func WithStatsCollector(sc *telemetry.StatsCollector) ClientOption {
	return func(client *Client) {
		client.stats = sc
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

func NewClient(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, option := range options {
		option(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// doRequest sends body as JSON and decodes a 2xx response into result. route
// is the path template used for statistics and logs.
func (c *Client) doRequest(ctx context.Context, method, route, path, token string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set(constants.RequestIDHeader, requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.track(method, route, time.Since(start), 0, requestID)
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	c.track(method, route, time.Since(start), resp.StatusCode, requestID)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			apiErr.Message = errResp.Error
			if apiErr.Message == "" {
				apiErr.Message = errResp.Message
			}
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *Client) track(method, route string, d time.Duration, status int, requestID string) {
	c.logger.Debug("API request",
		"method", method,
		"route", route,
		"status", status,
		"duration", d,
		"request_id", requestID,
	)
	if c.stats == nil {
		return
	}
	if err := c.stats.TrackAPIRequest(method, route, d, status); err != nil {
		c.logger.Info("Failed to track API request metric", "error", err.Error())
	}
}

// Auth operations

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account. Any 2xx counts as accepted; the body is ignored.
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	body := registerRequest{Name: name, Email: email, Password: password}
	return c.doRequest(ctx, http.MethodPost, constants.RegisterPath, constants.RegisterPath, "", body, nil)
}

func (c *Client) Login(ctx context.Context, email, password string) (store.Session, error) {
	var session store.Session
	body := loginRequest{Email: email, Password: password}
	err := c.doRequest(ctx, http.MethodPost, constants.LoginPath, constants.LoginPath, "", body, &session)
	return session, err
}

// Note operations

func (c *Client) ListNotes(ctx context.Context, token string) ([]store.Note, error) {
	var notes []store.Note
	err := c.doRequest(ctx, http.MethodGet, constants.NotesPath, constants.NotesPath, token, nil, &notes)
	if err == nil && notes == nil {
		notes = []store.Note{}
	}
	return notes, err
}

func (c *Client) CreateNote(ctx context.Context, token string, draft store.NoteDraft) (store.Note, error) {
	var note store.Note
	err := c.doRequest(ctx, http.MethodPost, constants.NotesPath, constants.NotesPath, token, draft, &note)
	return note, err
}

func (c *Client) UpdateNote(ctx context.Context, token string, id int64, patch store.NotePatch) (store.Note, error) {
	var note store.Note
	err := c.doRequest(ctx, http.MethodPut, constants.NotePath, notePath(id), token, patch, &note)
	return note, err
}

func (c *Client) DeleteNote(ctx context.Context, token string, id int64) error {
	return c.doRequest(ctx, http.MethodDelete, constants.NotePath, notePath(id), token, nil, nil)
}

func notePath(id int64) string {
	return constants.NotesPath + "/" + strconv.FormatInt(id, 10)
}
