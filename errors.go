package parley

import (
	"errors"
	"fmt"
)

// ErrValidation indicates a message or history failed validation.
var ErrValidation = errors.New("validation error")

// FaultOwner identifies who must act on an error.
type FaultOwner string

const (
	FaultUser      FaultOwner = "USER"       // invalid configuration or input
	FaultLLM       FaultOwner = "LLM"        // provider API failure
	FaultMCPServer FaultOwner = "MCP_SERVER" // tool server launch, handshake, or execution failure
	FaultInternal  FaultOwner = "INTERNAL"   // a bug: malformed response, impossible state
)

// Error attributes a failure to the party that must act on it. Retriable
// marks failures where repeating the operation could plausibly succeed.
type Error struct {
	Owner     FaultOwner
	Retriable bool
	Message   string
	Err       error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Owner, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Owner, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf returns a non-retriable Error with a formatted message.
func Errorf(owner FaultOwner, format string, args ...any) *Error {
	return &Error{Owner: owner, Message: fmt.Sprintf(format, args...)}
}

// WrapError attributes an underlying error to owner.
func WrapError(owner FaultOwner, message string, err error) *Error {
	return &Error{Owner: owner, Message: message, Err: err}
}

// OwnerOf classifies err, defaulting to FaultInternal for untyped errors.
func OwnerOf(err error) FaultOwner {
	var e *Error
	if errors.As(err, &e) {
		return e.Owner
	}
	return FaultInternal
}

// IsRetriable reports whether retrying the failed operation could help.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retriable
	}
	return false
}
