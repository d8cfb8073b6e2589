package state

import (
	"errors"
	"fmt"
)

// Error kinds, one per store operation. Match with errors.Is.
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrRegistration   = errors.New("registration failed")
	ErrFetch          = errors.New("fetch notes failed")
	ErrCreate         = errors.New("create note failed")
	ErrUpdate         = errors.New("update note failed")
	ErrConflict       = errors.New("update note conflict")
	ErrDelete         = errors.New("delete note failed")
	ErrBusy           = errors.New("operation in progress")
	ErrSessionEnded   = errors.New("session ended during operation")
)

// User-facing messages recorded in Status.ErrorMessage and OpError.Message
const (
	AuthenticationMessage = "Invalid email or password"
	RegistrationMessage   = "Registration failed. Please try again."
	FetchMessage          = "Failed to fetch notes. Please try again."
	CreateMessage         = "Failed to add note. Please try again."
	UpdateMessage         = "Failed to update note. Please try again."
	ConflictMessage       = "Conflict when updating the note. It is possible that it is blocked or a deadlock was generated. Please try again."
	DeleteMessage         = "Failed to delete note. Please try again."
	BusyMessage           = "Another operation is still in progress."
	SessionEndedMessage   = "You were logged out before the operation finished."

	CreatedMessage = "Note created successfully."
	UpdatedMessage = "Note updated successfully."
	DeletedMessage = "Note deleted successfully."
)

var messages = map[error]string{
	ErrAuthentication: AuthenticationMessage,
	ErrRegistration:   RegistrationMessage,
	ErrFetch:          FetchMessage,
	ErrCreate:         CreateMessage,
	ErrUpdate:         UpdateMessage,
	ErrConflict:       ConflictMessage,
	ErrDelete:         DeleteMessage,
	ErrBusy:           BusyMessage,
	ErrSessionEnded:   SessionEndedMessage,
}

// OpError is returned by every failed store operation.
type OpError struct {
	Op      string
	Kind    error
	Message string
	// Status is the HTTP status when the server answered, otherwise 0
	Status int
	Err    error
}

func newOpError(op string, kind error, status int, cause error) *OpError {
	return &OpError{
		Op:      op,
		Kind:    kind,
		Message: messages[kind],
		Status:  status,
		Err:     cause,
	}
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes the kind and the cause. A conflict is also an update failure.
func (e *OpError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Kind == ErrConflict {
		errs = append(errs, ErrUpdate)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the user-facing message carried by err, if any.
func Message(err error) string {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Message
	}
	return ""
}
