package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates caller supplied input that can never succeed as given.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request clashes with the current state of the resource.
	ErrConflict = errors.New("conflict")
	// ErrStore wraps failures raised by the persistence layer.
	ErrStore = errors.New("store failure")
)

// UserSafeMessage returns an error description suitable for API clients.
// Store and unknown failures collapse into a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrConflict):
		return err.Error()
	default:
		return "internal error, please retry later"
	}
}
