package state

import (
	"sync"
	"time"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
	PhaseSettled
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	case PhaseSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Status is a snapshot of a store's current or last operation.
type Status struct {
	Phase Phase
	// Op names the running or last settled operation
	Op             string
	Busy           bool
	HasError       bool
	ErrorMessage   string
	HasSuccess     bool
	SuccessMessage string
}

// tracker admits one operation at a time and records how it settled.
type tracker struct {
	mu         sync.Mutex
	status     Status
	ttl        time.Duration
	dismiss    *time.Timer
	generation uint64
	onChange   func()
}

func newTracker(ttl time.Duration, onChange func()) *tracker {
	return &tracker{ttl: ttl, onChange: onChange}
}

// begin moves the tracker to Pending. While another operation is pending it
// fails with ErrBusy and leaves the status alone.
func (t *tracker) begin(op string) error {
	t.mu.Lock()
	if t.status.Phase == PhasePending {
		t.mu.Unlock()
		return newOpError(op, ErrBusy, 0, nil)
	}
	t.stopDismiss()
	t.generation++
	t.status = Status{Phase: PhasePending, Op: op, Busy: true}
	t.mu.Unlock()

	t.onChange()
	return nil
}

func (t *tracker) fail(err *OpError) {
	t.mu.Lock()
	t.generation++
	t.status = Status{
		Phase:        PhaseSettled,
		Op:           err.Op,
		HasError:     true,
		ErrorMessage: err.Message,
	}
	t.mu.Unlock()

	t.onChange()
}

// succeed settles the pending operation. An empty message records no
// notification.
func (t *tracker) succeed(message string) {
	t.mu.Lock()
	t.generation++
	t.status = Status{
		Phase:          PhaseSettled,
		Op:             t.status.Op,
		HasSuccess:     message != "",
		SuccessMessage: message,
	}
	if message != "" && t.ttl > 0 {
		generation := t.generation
		t.dismiss = time.AfterFunc(t.ttl, func() {
			t.expire(generation)
		})
	}
	t.mu.Unlock()

	t.onChange()
}

// abandon returns a pending operation to Idle without recording an outcome.
func (t *tracker) abandon() {
	t.mu.Lock()
	t.stopDismiss()
	t.generation++
	t.status = Status{Phase: PhaseIdle, Op: t.status.Op}
	t.mu.Unlock()

	t.onChange()
}

func (t *tracker) expire(generation uint64) {
	t.mu.Lock()
	if t.generation != generation || t.status.Phase != PhaseSettled {
		t.mu.Unlock()
		return
	}
	t.status = Status{Phase: PhaseIdle, Op: t.status.Op}
	t.dismiss = nil
	t.mu.Unlock()

	t.onChange()
}

// clear dismisses a settled status. A pending operation is left running.
func (t *tracker) clear() {
	t.mu.Lock()
	if t.status.Phase != PhaseSettled {
		t.mu.Unlock()
		return
	}
	t.stopDismiss()
	t.generation++
	t.status = Status{Phase: PhaseIdle, Op: t.status.Op}
	t.mu.Unlock()

	t.onChange()
}

func (t *tracker) snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *tracker) stopDismiss() {
	if t.dismiss != nil {
		t.dismiss.Stop()
		t.dismiss = nil
	}
}

// listeners fans change notifications out to subscribers.
type listeners struct {
	mu  sync.RWMutex
	fns []func()
}

func (l *listeners) add(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fns = append(l.fns, fn)
}

func (l *listeners) notify() {
	l.mu.RLock()
	fns := make([]func(), len(l.fns))
	copy(fns, l.fns)
	l.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}
