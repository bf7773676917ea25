package action

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned when an action is attempted on a peer
	// whose socket is not open, and delivered to calls still pending when
	// their session closes.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrTimeout is delivered to a pending call whose response did not
	// arrive within the configured action timeout.
	ErrTimeout = errors.New("action timed out")
)

// ActionFailedError is returned when the peer rejects an action, answers
// with a non-200 HTTP status, or sends a response that cannot be decoded.
// Callers can use errors.As to extract it:
//
//	var failed *action.ActionFailedError
//	if errors.As(err, &failed) && failed.Code == 1404 { ... }
type ActionFailedError struct {
	Action string
	// Code is the protocol retcode, or the HTTP status when HTTPStatus is set.
	Code       int
	HTTPStatus bool
	Reason     string
}

func (e *ActionFailedError) Error() string {
	kind := "retcode"
	if e.HTTPStatus {
		kind = "http status"
	}
	if e.Reason == "" {
		return fmt.Sprintf("action %s failed (%s %d)", e.Action, kind, e.Code)
	}
	return fmt.Sprintf("action %s failed (%s %d): %s", e.Action, kind, e.Code, e.Reason)
}

// IsActionFailed reports whether err is an *ActionFailedError.
func IsActionFailed(err error) bool {
	var failed *ActionFailedError
	return errors.As(err, &failed)
}

// IsRetcode reports whether err is an *ActionFailedError carrying the given
// protocol retcode.
func IsRetcode(err error, code int) bool {
	var failed *ActionFailedError
	if errors.As(err, &failed) {
		return !failed.HTTPStatus && failed.Code == code
	}
	return false
}

// MalformedResponse builds the error reported for response bodies that
// cannot be decoded.
func MalformedResponse(action string, err error) *ActionFailedError {
	reason := "malformed response"
	if err != nil {
		reason += ": " + err.Error()
	}
	return &ActionFailedError{Action: action, Code: -1, Reason: reason}
}
