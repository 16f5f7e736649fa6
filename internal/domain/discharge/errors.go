package discharge

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies workflow failures so handlers can map them to HTTP codes
// without string matching.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindInvalidState
	KindPreconditionFailed
	KindConflict
	KindInvalidTransition
	KindTerminalState
	KindExternalFailure
)

type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func errNotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func errInvalidState(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidState, Msg: fmt.Sprintf(format, args...)}
}

func errPrecondition(format string, args ...interface{}) error {
	return &Error{Kind: KindPreconditionFailed, Msg: fmt.Sprintf(format, args...)}
}

func errConflict(format string, args ...interface{}) error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func errInvalidTransition(from, to string) error {
	return &Error{Kind: KindInvalidTransition, Msg: fmt.Sprintf("cannot transition from %s to %s", from, to)}
}

func errTerminal(status string) error {
	return &Error{Kind: KindTerminalState, Msg: fmt.Sprintf("%s is a terminal state", status)}
}

// HTTPStatus maps a workflow error to its response code. Unknown errors
// fall through to 500.
func HTTPStatus(err error) int {
	var we *Error
	if !errors.As(err, &we) {
		return http.StatusInternalServerError
	}
	switch we.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict, KindTerminalState:
		return http.StatusConflict
	case KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case KindExternalFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
