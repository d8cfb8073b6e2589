package state

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/brunoscheufler/notekeeper/restapi"
	"github.com/stretchr/testify/require"
)

func TestTracker_Lifecycle(t *testing.T) {
	var changes int
	tr := newTracker(0, func() { changes++ })

	require.Equal(t, PhaseIdle, tr.snapshot().Phase)

	require.NoError(t, tr.begin("fetch"))
	require.Equal(t, Status{Phase: PhasePending, Op: "fetch", Busy: true}, tr.snapshot())

	err := tr.begin("create")
	require.ErrorIs(t, err, ErrBusy)
	require.Equal(t, "fetch", tr.snapshot().Op)

	tr.succeed("")
	require.Equal(t, Status{Phase: PhaseSettled, Op: "fetch"}, tr.snapshot())

	require.NoError(t, tr.begin("create"))
	tr.fail(newOpError("create", ErrCreate, 500, errors.New("boom")))
	require.Equal(t, Status{
		Phase:        PhaseSettled,
		Op:           "create",
		HasError:     true,
		ErrorMessage: CreateMessage,
	}, tr.snapshot())

	tr.clear()
	require.Equal(t, PhaseIdle, tr.snapshot().Phase)
	require.False(t, tr.snapshot().HasError)

	// begin, succeed, begin, fail, clear; the rejected begin is silent
	require.Equal(t, 5, changes)
}

func TestTracker_NewOperationCancelsDismissal(t *testing.T) {
	tr := newTracker(20*time.Millisecond, func() {})

	require.NoError(t, tr.begin("create"))
	tr.succeed(CreatedMessage)
	require.NoError(t, tr.begin("update"))

	time.Sleep(40 * time.Millisecond)
	require.Equal(t, PhasePending, tr.snapshot().Phase, "stale timer must not touch a newer operation")
}

func TestTracker_Abandon(t *testing.T) {
	var changes int
	tr := newTracker(0, func() { changes++ })

	require.NoError(t, tr.begin("fetch"))
	tr.clear()
	require.Equal(t, PhasePending, tr.snapshot().Phase)

	tr.abandon()
	require.Equal(t, Status{Phase: PhaseIdle, Op: "fetch"}, tr.snapshot())
	require.NoError(t, tr.begin("create"), "an abandoned operation frees the tracker")
	require.Equal(t, 3, changes)
}

func TestPhase_String(t *testing.T) {
	require.Equal(t, "idle", PhaseIdle.String())
	require.Equal(t, "pending", PhasePending.String())
	require.Equal(t, "settled", PhaseSettled.String())
	require.Equal(t, "unknown", Phase(42).String())
}

func TestOpError(t *testing.T) {
	cause := &restapi.APIError{StatusCode: 409, Message: "locked"}
	err := fmt.Errorf("saving: %w", newOpError("update", ErrConflict, 409, cause))

	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, err, ErrUpdate)
	require.NotErrorIs(t, err, ErrDelete)
	require.Equal(t, 409, restapi.StatusCode(err))
	require.Equal(t, ConflictMessage, Message(err))
	require.Equal(t, "saving: update: update note conflict: API error (409): locked", err.Error())

	busy := newOpError("fetch", ErrBusy, 0, nil)
	require.Equal(t, "fetch: operation in progress", busy.Error())
	require.NotErrorIs(t, busy, ErrUpdate)

	require.Empty(t, Message(errors.New("plain")))
}
