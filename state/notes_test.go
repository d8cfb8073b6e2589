package state

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/brunoscheufler/notekeeper/store"
	"github.com/stretchr/testify/require"
)

func TestNotesStore_FetchMirrorsResponse(t *testing.T) {
	ctx := context.Background()
	body := `[{"id":1,"title":"A","content":"x","created_at":"2024-01-01T00:00:00Z","updated_at":"2024-01-01T00:00:00Z"}]`
	client, lastAuth := mockEndpoint(t, http.StatusOK, body)
	kv := store.NewMemoryKV()

	notes := NewNotesStore(ctx, client, kv, staticToken("tok"))
	require.NoError(t, notes.FetchNotes(ctx))

	require.Len(t, notes.Notes(), 1)
	require.Equal(t, testNote(1, "A"), notes.Notes()[0])
	require.Equal(t, "Bearer tok", lastAuth())

	cached, err := kv.Get(ctx, constants.NotesKey)
	require.NoError(t, err)
	require.JSONEq(t, body, string(cached))

	status := notes.Status()
	require.Equal(t, PhaseSettled, status.Phase)
	require.False(t, status.HasError)
	require.False(t, status.HasSuccess, "fetch does not notify")
}

func TestNotesStore_FetchFailureKeepsState(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	api := &fakeAPI{listNotes: []store.Note{testNote(1, "A"), testNote(2, "B")}}

	notes := NewNotesStore(ctx, api, kv, staticToken("tok"))
	require.NoError(t, notes.FetchNotes(ctx))
	before, err := kv.Get(ctx, constants.NotesKey)
	require.NoError(t, err)

	api.listErr = &restapi.APIError{StatusCode: http.StatusInternalServerError}
	err = notes.FetchNotes(ctx)
	require.ErrorIs(t, err, ErrFetch)
	require.Equal(t, FetchMessage, notes.Status().ErrorMessage)

	require.Len(t, notes.Notes(), 2)
	after, err := kv.Get(ctx, constants.NotesKey)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestNotesStore_WithoutSessionSendsNoAuthorization(t *testing.T) {
	ctx := context.Background()
	client, lastAuth := mockEndpoint(t, http.StatusUnauthorized, `{"error":"missing bearer token"}`)

	notes := NewNotesStore(ctx, client, store.NewMemoryKV(), staticToken(""))
	err := notes.FetchNotes(ctx)

	require.ErrorIs(t, err, ErrFetch)
	require.Empty(t, lastAuth())
	require.Equal(t, http.StatusUnauthorized, restapi.StatusCode(err))
}

func TestNotesStore_AddNoteAppendsServerNote(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	created := testNote(3, "C")
	api := &fakeAPI{listNotes: []store.Note{testNote(1, "A")}, created: created}

	notes := NewNotesStore(ctx, api, kv, staticToken("tok"))
	require.NoError(t, notes.FetchNotes(ctx))
	before := notes.Notes()

	note, err := notes.AddNote(ctx, "C", "x")
	require.NoError(t, err)
	require.Equal(t, created, note)

	after := notes.Notes()
	require.Len(t, after, len(before)+1)
	require.Equal(t, created, after[len(after)-1])

	status := notes.Status()
	require.True(t, status.HasSuccess)
	require.Equal(t, CreatedMessage, status.SuccessMessage)

	// The cache follows the collection
	restarted := NewNotesStore(ctx, api, kv, staticToken("tok"))
	require.Equal(t, after, restarted.Notes())
}

func TestNotesStore_AddNoteFailure(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{createErr: &restapi.APIError{StatusCode: http.StatusUnprocessableEntity}}

	notes := NewNotesStore(ctx, api, store.NewMemoryKV(), staticToken("tok"))
	_, err := notes.AddNote(ctx, "", "")

	require.ErrorIs(t, err, ErrCreate)
	require.Empty(t, notes.Notes())
	require.Equal(t, CreateMessage, notes.Status().ErrorMessage)
	require.False(t, notes.Status().HasSuccess)
}

func TestNotesStore_UpdateNoteErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantKind    error
		wantMessage string
		conflict    bool
	}{
		{
			name:        "not found",
			err:         &restapi.APIError{StatusCode: http.StatusNotFound},
			wantKind:    ErrUpdate,
			wantMessage: UpdateMessage,
		},
		{
			name:        "conflict",
			err:         &restapi.APIError{StatusCode: http.StatusConflict},
			wantKind:    ErrConflict,
			wantMessage: ConflictMessage,
			conflict:    true,
		},
		{
			name:        "transport",
			err:         errors.New("connection reset"),
			wantKind:    ErrUpdate,
			wantMessage: UpdateMessage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			original := testNote(1, "A")
			api := &fakeAPI{listNotes: []store.Note{original}, updateErr: tt.err}

			notes := NewNotesStore(ctx, api, store.NewMemoryKV(), staticToken("tok"))
			require.NoError(t, notes.FetchNotes(ctx))

			_, err := notes.UpdateNote(ctx, 1, store.EditPatch("B", "y"))
			require.ErrorIs(t, err, tt.wantKind)
			require.ErrorIs(t, err, ErrUpdate)
			require.Equal(t, tt.conflict, errors.Is(err, ErrConflict))

			status := notes.Status()
			require.True(t, status.HasError)
			require.Equal(t, tt.wantMessage, status.ErrorMessage)
			if tt.conflict {
				require.Contains(t, status.ErrorMessage, "Conflict")
				require.NotContains(t, status.ErrorMessage, "Failed to update")
			}

			got, ok := notes.Note(1)
			require.True(t, ok)
			require.Equal(t, original, got, "failed update leaves the note alone")
			require.Equal(t, []string{"list", "update"}, api.Calls(), "no retry")
		})
	}
}

func TestNotesStore_UpdateNoteReplacesByID(t *testing.T) {
	ctx := context.Background()
	updated := testNote(2, "B2")
	updated.UpdatedAt = "2024-01-02T00:00:00Z"
	api := &fakeAPI{
		listNotes: []store.Note{testNote(1, "A"), testNote(2, "B"), testNote(3, "C")},
		updated:   updated,
	}
	kv := store.NewMemoryKV()

	notes := NewNotesStore(ctx, api, kv, staticToken("tok"))
	require.NoError(t, notes.FetchNotes(ctx))

	title := "B2"
	note, err := notes.UpdateNote(ctx, 2, store.NotePatch{Title: &title})
	require.NoError(t, err)
	require.Equal(t, updated, note)

	require.Equal(t, []store.Note{testNote(1, "A"), updated, testNote(3, "C")}, notes.Notes())
	require.Equal(t, UpdatedMessage, notes.Status().SuccessMessage)
	require.Equal(t, notes.Notes(), NewNotesStore(ctx, api, kv, staticToken("tok")).Notes())
}

func TestNotesStore_DeleteNote(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{listNotes: []store.Note{testNote(1, "A"), testNote(2, "B")}}
	kv := store.NewMemoryKV()

	notes := NewNotesStore(ctx, api, kv, staticToken("tok"))
	require.NoError(t, notes.FetchNotes(ctx))

	_, ok := notes.Note(1)
	require.True(t, ok)

	require.NoError(t, notes.DeleteNote(ctx, 1))
	_, ok = notes.Note(1)
	require.False(t, ok)
	require.Equal(t, []store.Note{testNote(2, "B")}, notes.Notes())
	require.Equal(t, DeletedMessage, notes.Status().SuccessMessage)
	require.Equal(t, notes.Notes(), NewNotesStore(ctx, api, kv, staticToken("tok")).Notes())

	api.deleteErr = &restapi.APIError{StatusCode: http.StatusNotFound}
	err := notes.DeleteNote(ctx, 2)
	require.ErrorIs(t, err, ErrDelete)
	require.Equal(t, DeleteMessage, notes.Status().ErrorMessage)
	require.Len(t, notes.Notes(), 1)
}

func TestNotesStore_RejectsOverlappingOperations(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{
		listNotes: []store.Note{testNote(1, "A")},
		entered:   make(chan struct{}),
		gate:      make(chan struct{}),
	}
	notes := NewNotesStore(ctx, api, store.NewMemoryKV(), staticToken("tok"))

	done := make(chan error)
	go func() {
		done <- notes.FetchNotes(ctx)
	}()
	<-api.entered

	status := notes.Status()
	require.Equal(t, PhasePending, status.Phase)
	require.True(t, status.Busy)

	_, err := notes.AddNote(ctx, "B", "y")
	require.ErrorIs(t, err, ErrBusy)
	require.ErrorIs(t, notes.DeleteNote(ctx, 1), ErrBusy)

	notes.ClearStatus()
	require.True(t, notes.Status().Busy, "a pending operation cannot be dismissed")

	close(api.gate)
	require.NoError(t, <-done)
	require.Equal(t, []string{"list"}, api.Calls())
	require.False(t, notes.Status().Busy)
}

func TestNotesStore_SuccessAutoDismiss(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{created: testNote(1, "A")}

	notes := NewNotesStore(ctx, api, store.NewMemoryKV(), staticToken("tok"), WithStatusTTL(10*time.Millisecond))

	_, err := notes.AddNote(ctx, "A", "x")
	require.NoError(t, err)
	require.True(t, notes.Status().HasSuccess)

	require.Eventually(t, func() bool {
		return notes.Status().Phase == PhaseIdle
	}, time.Second, 5*time.Millisecond)
	require.False(t, notes.Status().HasSuccess)
}

func TestNotesStore_ErrorsDoNotAutoDismiss(t *testing.T) {
	ctx := context.Background()
	api := &fakeAPI{createErr: errors.New("boom")}

	notes := NewNotesStore(ctx, api, store.NewMemoryKV(), staticToken("tok"), WithStatusTTL(time.Millisecond))
	_, err := notes.AddNote(ctx, "A", "x")
	require.Error(t, err)

	time.Sleep(20 * time.Millisecond)
	require.True(t, notes.Status().HasError)

	notes.ClearStatus()
	require.Equal(t, PhaseIdle, notes.Status().Phase)
	require.False(t, notes.Status().HasError)
}

func TestNotesStore_RehydrateIgnoresCorruptCache(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemoryKV()
	require.NoError(t, kv.Set(ctx, constants.NotesKey, []byte(`[{"id":`)))

	notes := NewNotesStore(ctx, &fakeAPI{}, kv, staticToken(""))
	require.NotNil(t, notes.Notes())
	require.Empty(t, notes.Notes())
}

func TestNotesStore_EndToEndConflict(t *testing.T) {
	ctx := context.Background()
	server, client := setupBackendServer(t)
	kv := store.NewMemoryKV()

	sessions := NewSessionStore(ctx, client, kv)
	require.NoError(t, sessions.Register(ctx, "Ada", "ada@example.com", "secret"))

	notes := NewNotesStore(ctx, client, kv, sessions)
	sessions.OnLogout(notes.Reset)

	created, err := notes.AddNote(ctx, "A", "x")
	require.NoError(t, err)

	server.LockNote(created.ID)
	_, err = notes.UpdateNote(ctx, created.ID, store.EditPatch("C", "z"))
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, ConflictMessage, notes.Status().ErrorMessage)

	cached, ok := notes.Note(created.ID)
	require.True(t, ok)
	require.Equal(t, created, cached, "a conflict leaves the note alone")

	// Once the note is released the same edit applies, without a retry in between
	server.UnlockNote(created.ID)
	updated, err := notes.UpdateNote(ctx, created.ID, store.EditPatch("C", "z"))
	require.NoError(t, err)
	require.Equal(t, "C", updated.Title)
	require.Equal(t, created.CreatedAt, updated.CreatedAt)

	require.NoError(t, sessions.Logout(ctx))
	require.Empty(t, notes.Notes())
}
