package chattypes

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a turn failure.
type ErrorKind string

const (
	// KindInputRejected is an empty or whitespace-only submission. No turn is started.
	KindInputRejected ErrorKind = "input_rejected"
	// KindSearchFailure is an unreachable search service or unparseable search data.
	KindSearchFailure ErrorKind = "search_failure"
	// KindCompletionFailure is a connection or mid-stream failure of the completion service.
	KindCompletionFailure ErrorKind = "completion_failure"
	// KindUnsupportedModel is a model identifier outside the supported set.
	KindUnsupportedModel ErrorKind = "unsupported_model"
	// KindTurnInProgress is a submission while another turn of the same session is active.
	KindTurnInProgress ErrorKind = "turn_in_progress"
	// KindConfiguration is missing or invalid configuration such as an absent API key.
	KindConfiguration ErrorKind = "configuration"
)

// TurnError is the error type returned by adapters and the turn controller.
type TurnError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Sentinel errors for errors.Is checks against a kind.
var (
	ErrInputRejected     = &TurnError{Kind: KindInputRejected}
	ErrSearchFailure     = &TurnError{Kind: KindSearchFailure}
	ErrCompletionFailure = &TurnError{Kind: KindCompletionFailure}
	ErrUnsupportedModel  = &TurnError{Kind: KindUnsupportedModel}
	ErrTurnInProgress    = &TurnError{Kind: KindTurnInProgress}
	ErrConfiguration     = &TurnError{Kind: KindConfiguration}
)

// NewTurnError wraps err with a kind and the operation that failed.
func NewTurnError(kind ErrorKind, op string, err error) *TurnError {
	return &TurnError{Kind: kind, Op: op, Err: err}
}

// Error implements the error interface.
func (e *TurnError) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the underlying cause.
func (e *TurnError) Unwrap() error {
	return e.Err
}

// Is matches any TurnError of the same kind when target is a bare sentinel.
func (e *TurnError) Is(target error) bool {
	t, ok := target.(*TurnError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// KindOf returns the kind of the first TurnError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// Retryable reports whether the user can resubmit after this error.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindSearchFailure, KindCompletionFailure, KindTurnInProgress:
		return true
	default:
		return false
	}
}
