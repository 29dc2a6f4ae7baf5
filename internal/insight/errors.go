package insight

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a fetch failed. Pending is not an error kind:
// pending statuses come back as ordinary results.
type ErrorKind int

const (
	// Transient covers network failures and unexpected HTTP statuses.
	Transient ErrorKind = iota
	// Unauthorized means the session expired. The caller must send the user
	// through re-authentication and must not retry.
	Unauthorized
	// Forbidden means the session lacks permission for this photo.
	Forbidden
	// Malformed means the API answered 2xx with a body that breaks the
	// response contract.
	Malformed
	// InvalidArgument means the caller passed identifiers the API cannot
	// accept; no request was made.
	InvalidArgument
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case Malformed:
		return "malformed"
	case InvalidArgument:
		return "invalid_argument"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinels for errors.Is. Any *FetchError matches the sentinel of its kind.
var (
	ErrTransient       = &FetchError{Kind: Transient}
	ErrUnauthorized    = &FetchError{Kind: Unauthorized}
	ErrForbidden       = &FetchError{Kind: Forbidden}
	ErrMalformed       = &FetchError{Kind: Malformed}
	ErrInvalidArgument = &FetchError{Kind: InvalidArgument}
)

// FetchError is returned by FetchOnce for every failure.
type FetchError struct {
	Kind ErrorKind
	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int
	// Status is the job status carried by an error response body, if any.
	Status AnalysisStatus
	// Message is suitable for showing to the user.
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("insight fetch %s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("insight fetch %s: %s", e.Kind, msg)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches any FetchError of the same kind.
func (e *FetchError) Is(target error) bool {
	t, ok := target.(*FetchError)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first FetchError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// UserMessage returns the text a viewer should show for err.
func UserMessage(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		switch {
		case fe.Message != "":
			return fe.Message
		case fe.Kind == Malformed:
			return "The analysis result could not be read."
		case fe.Kind == Forbidden:
			return "You do not have permission to view this analysis."
		case fe.Kind == Unauthorized:
			return "Your session has expired. Please sign in again."
		}
	}
	if err == nil {
		return ""
	}
	return "Unknown error"
}

func malformed(msg string) *FetchError {
	return &FetchError{Kind: Malformed, Message: "The analysis result could not be read.", Err: errors.New(msg)}
}
