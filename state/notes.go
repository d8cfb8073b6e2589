package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/brunoscheufler/notekeeper/constants"
	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/brunoscheufler/notekeeper/store"
)

// NotesStore owns the signed-in user's notes. The collection is a cache of
// the backend and is written to durable storage after every successful
// operation.
type NotesStore struct {
	api    NotesAPI
	kv     store.KeyValueStore
	tokens TokenSource
	logger *slog.Logger

	mu    sync.RWMutex
	notes []store.Note
	// epoch advances on every Reset. Results of calls started in an older
	// epoch are dropped.
	epoch uint64

	tracker   *tracker
	listeners listeners
}

// NewNotesStore restores the cached collection, if any.
func NewNotesStore(ctx context.Context, api NotesAPI, kv store.KeyValueStore, tokens TokenSource, opts ...Option) *NotesStore {
	o := buildOptions(opts)
	n := &NotesStore{
		api:    api,
		kv:     kv,
		tokens: tokens,
		logger: o.logger,
		notes:  []store.Note{},
	}
	n.tracker = newTracker(o.statusTTL, n.listeners.notify)
	n.rehydrate(ctx)
	return n
}

func (n *NotesStore) rehydrate(ctx context.Context) {
	data, err := n.kv.Get(ctx, constants.NotesKey)
	if errors.Is(err, store.ErrKeyNotFound) {
		return
	}
	if err != nil {
		n.logger.Warn("Failed to read cached notes", "error", err.Error())
		return
	}

	var notes []store.Note
	if err := json.Unmarshal(data, &notes); err != nil {
		n.logger.Warn("Ignoring corrupt notes cache", "error", err.Error())
		return
	}
	if notes != nil {
		n.notes = notes
	}
	n.logger.Debug("Restored notes cache", "count", len(n.notes))
}

// FetchNotes replaces the collection with the backend's. On failure the
// collection is left as it was.
func (n *NotesStore) FetchNotes(ctx context.Context) error {
	const op = "fetch"
	epoch, err := n.begin(op)
	if err != nil {
		return err
	}

	notes, err := n.api.ListNotes(ctx, n.tokens.Token())
	if err != nil {
		return n.fail(epoch, newOpError(op, ErrFetch, restapi.StatusCode(err), err))
	}

	if !n.commit(ctx, epoch, func() {
		n.notes = slices.Clone(notes)
	}) {
		return n.discard(op)
	}

	n.logger.Debug("Fetched notes", "count", len(notes))
	n.tracker.succeed("")
	return nil
}

// AddNote creates a note and appends the backend's version of it.
func (n *NotesStore) AddNote(ctx context.Context, title, content string) (store.Note, error) {
	const op = "create"
	epoch, err := n.begin(op)
	if err != nil {
		return store.Note{}, err
	}

	note, err := n.api.CreateNote(ctx, n.tokens.Token(), store.NoteDraft{Title: title, Content: content})
	if err != nil {
		return store.Note{}, n.fail(epoch, newOpError(op, ErrCreate, restapi.StatusCode(err), err))
	}

	if !n.commit(ctx, epoch, func() {
		n.notes = append(n.notes, note)
	}) {
		return store.Note{}, n.discard(op)
	}

	n.logger.Info("Created note", "note_id", note.ID)
	n.tracker.succeed(CreatedMessage)
	return note, nil
}

// UpdateNote sends patch and replaces the note with the same id by the
// backend's version. A 409 answer is reported as ErrConflict and is not
// retried.
func (n *NotesStore) UpdateNote(ctx context.Context, id int64, patch store.NotePatch) (store.Note, error) {
	const op = "update"
	epoch, err := n.begin(op)
	if err != nil {
		return store.Note{}, err
	}

	note, err := n.api.UpdateNote(ctx, n.tokens.Token(), id, patch)
	if err != nil {
		status := restapi.StatusCode(err)
		kind := ErrUpdate
		if status == http.StatusConflict {
			kind = ErrConflict
		}
		return store.Note{}, n.fail(epoch, newOpError(op, kind, status, err))
	}

	if !n.commit(ctx, epoch, func() {
		if i := n.indexOf(id); i >= 0 {
			n.notes[i] = note
		} else {
			n.logger.Warn("Updated note is not in the local collection", "note_id", id)
		}
	}) {
		return store.Note{}, n.discard(op)
	}

	n.logger.Info("Updated note", "note_id", id)
	n.tracker.succeed(UpdatedMessage)
	return note, nil
}

// DeleteNote deletes a note on the backend and drops it from the collection.
func (n *NotesStore) DeleteNote(ctx context.Context, id int64) error {
	const op = "delete"
	epoch, err := n.begin(op)
	if err != nil {
		return err
	}

	if err := n.api.DeleteNote(ctx, n.tokens.Token(), id); err != nil {
		return n.fail(epoch, newOpError(op, ErrDelete, restapi.StatusCode(err), err))
	}

	if !n.commit(ctx, epoch, func() {
		n.notes = slices.DeleteFunc(n.notes, func(note store.Note) bool {
			return note.ID == id
		})
	}) {
		return n.discard(op)
	}

	n.logger.Info("Deleted note", "note_id", id)
	n.tracker.succeed(DeletedMessage)
	return nil
}

// begin admits op and returns the epoch it runs in.
func (n *NotesStore) begin(op string) (uint64, error) {
	if err := n.tracker.begin(op); err != nil {
		return 0, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.epoch, nil
}

func (n *NotesStore) current(epoch uint64) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.epoch == epoch
}

func (n *NotesStore) fail(epoch uint64, opErr *OpError) error {
	n.logger.Warn("Notes operation failed",
		"op", opErr.Op,
		"status", opErr.Status,
		"error", opErr.Err.Error(),
	)
	if !n.current(epoch) {
		n.tracker.abandon()
		return opErr
	}
	n.tracker.fail(opErr)
	return opErr
}

// discard settles an operation whose result arrived after a Reset.
func (n *NotesStore) discard(op string) error {
	n.logger.Info("Dropping result of notes operation started before logout", "op", op)
	n.tracker.abandon()
	return newOpError(op, ErrSessionEnded, 0, nil)
}

// commit applies mutate and writes the collection to durable storage, unless
// the store was reset since epoch. The lock is held across the write, so no
// write lands after a Reset returns. Storage failures are logged only; the
// backend already accepted the change.
func (n *NotesStore) commit(ctx context.Context, epoch uint64, mutate func()) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.epoch != epoch {
		return false
	}
	mutate()

	if err := n.persist(ctx); err != nil {
		n.logger.Error("Failed to persist notes cache", "error", err.Error())
	}
	return true
}

// indexOf must be called with mu held.
func (n *NotesStore) indexOf(id int64) int {
	return slices.IndexFunc(n.notes, func(note store.Note) bool {
		return note.ID == id
	})
}

// persist must be called with mu held.
func (n *NotesStore) persist(ctx context.Context) error {
	data, err := json.Marshal(n.notes)
	if err != nil {
		return fmt.Errorf("failed to marshal notes: %w", err)
	}
	return n.kv.Set(ctx, constants.NotesKey, data)
}

// Notes returns a copy of the collection in backend order.
func (n *NotesStore) Notes() []store.Note {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return slices.Clone(n.notes)
}

// Note looks up a note in the collection by id.
func (n *NotesStore) Note(id int64) (store.Note, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if i := n.indexOf(id); i >= 0 {
		return n.notes[i], true
	}
	return store.Note{}, false
}

// Status reports the current or last notes operation.
func (n *NotesStore) Status() Status {
	return n.tracker.snapshot()
}

// ClearStatus dismisses a settled error or success.
func (n *NotesStore) ClearStatus() {
	n.tracker.clear()
}

// Reset empties the in-memory collection and dismisses the status. It is
// registered as a logout hook; durable storage is cleared by the session
// store. Operations still in flight settle without touching the collection.
func (n *NotesStore) Reset() {
	n.mu.Lock()
	n.notes = []store.Note{}
	n.epoch++
	n.mu.Unlock()

	n.tracker.clear()
	n.listeners.notify()
}

// Subscribe registers fn to run after every change of notes or status.
func (n *NotesStore) Subscribe(fn func()) {
	n.listeners.add(fn)
}
