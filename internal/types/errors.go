package types

import (
	"errors"
	"fmt"
)

// Error kinds carried in the error_kind field of the transfer envelope.
// The names are part of the wire contract and never change.
const (
	KindSessionExists         = "SessionExistsError"
	KindSessionDoesNotExist   = "SessionDoesNotExistError"
	KindSessionNotInitialized = "SessionNotInitializedError"
	KindBashIncorrectSyntax   = "BashIncorrectSyntaxError"
	KindCommandTimeout        = "CommandTimeoutError"
	KindNonZeroExitCode       = "NonZeroExitCodeError"
	KindNoExitCode            = "NoExitCodeError"
	KindDeploymentNotStarted  = "DeploymentNotStartedError"
	KindFileOp                = "FileOpError"
	KindGeneric               = "SWEReXception"
)

// RexError is an error that transfers over HTTP with a stable kind.
type RexError interface {
	error
	Kind() string
	Extra() map[string]any
}

// KindError is a RexError carrying only a kind and a message.
type KindError struct {
	ErrKind string
	Message string
}

func (e *KindError) Error() string { return e.Message }

// Kind returns the wire name of the error.
func (e *KindError) Kind() string { return e.ErrKind }

// Extra returns nil; KindError carries no structured data.
func (e *KindError) Extra() map[string]any { return nil }

// NewSessionExistsError reports a duplicate session name.
func NewSessionExistsError(session string) *KindError {
	return &KindError{
		ErrKind: KindSessionExists,
		Message: fmt.Sprintf("session %q already exists", session),
	}
}

// NewSessionDoesNotExistError reports an unknown session name.
func NewSessionDoesNotExistError(session string) *KindError {
	return &KindError{
		ErrKind: KindSessionDoesNotExist,
		Message: fmt.Sprintf("session %q does not exist", session),
	}
}

// NewSessionNotInitializedError reports a session whose shell is not in
// a usable state.
func NewSessionNotInitializedError(msg string) *KindError {
	return &KindError{ErrKind: KindSessionNotInitialized, Message: msg}
}

// NewBashIncorrectSyntaxError reports a command rejected by the static
// syntax check.
func NewBashIncorrectSyntaxError(msg string) *KindError {
	return &KindError{ErrKind: KindBashIncorrectSyntax, Message: msg}
}

// NewNoExitCodeError reports a completed command whose exit code could
// not be determined.
func NewNoExitCodeError(msg string) *KindError {
	return &KindError{ErrKind: KindNoExitCode, Message: msg}
}

// NewDeploymentNotStartedError reports an operation on a deployment
// that has no running runtime.
func NewDeploymentNotStartedError() *KindError {
	return &KindError{ErrKind: KindDeploymentNotStarted, Message: "deployment not started"}
}

// NewFileOpError reports a failed file operation.
func NewFileOpError(err error) *KindError {
	return &KindError{ErrKind: KindFileOp, Message: err.Error()}
}

// CommandTimeoutError reports a command that exceeded its timeout.
type CommandTimeoutError struct {
	Message string

	// Timeout is the limit that was exceeded, in seconds.
	Timeout float64

	// Recovered is true when the shell was brought back to its prompt
	// and the session remains usable.
	Recovered bool

	// PartialOutput is whatever the command produced before the
	// timeout, sanitized like a normal observation.
	PartialOutput string
}

func (e *CommandTimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("timeout %gs exceeded while running command", e.Timeout)
}

// Kind returns the wire name of the error.
func (e *CommandTimeoutError) Kind() string { return KindCommandTimeout }

// Extra returns the structured timeout data for the envelope.
func (e *CommandTimeoutError) Extra() map[string]any {
	return map[string]any{
		"timeout":        e.Timeout,
		"recovered":      e.Recovered,
		"partial_output": e.PartialOutput,
	}
}

// NonZeroExitCodeError reports a checked command that exited non-zero.
type NonZeroExitCodeError struct {
	Message  string
	ExitCode int
	Output   string
}

func (e *NonZeroExitCodeError) Error() string { return e.Message }

// Kind returns the wire name of the error.
func (e *NonZeroExitCodeError) Kind() string { return KindNonZeroExitCode }

// Extra returns the structured exit data for the envelope.
func (e *NonZeroExitCodeError) Extra() map[string]any {
	return map[string]any{
		"exit_code": e.ExitCode,
		"output":    e.Output,
	}
}

// ErrorStatus is the HTTP status code that carries an ErrorEnvelope
// body. Clients decode exactly this status back into typed errors and
// treat every other non-2xx status as a plain HTTP failure.
const ErrorStatus = 511

// ErrorEnvelope is the JSON body of HTTP 511 responses. Anything that
// is not a transfer envelope (auth failures, malformed requests) uses a
// plain {"detail": ...} body instead.
type ErrorEnvelope struct {
	ErrorKind string         `json:"error_kind"`
	Message   string         `json:"message"`
	Extra     map[string]any `json:"extra,omitempty"`
}

// EncodeError converts an error into a transfer envelope. Errors
// outside the taxonomy are carried with the generic kind.
func EncodeError(err error) ErrorEnvelope {
	var rex RexError
	if errors.As(err, &rex) {
		return ErrorEnvelope{
			ErrorKind: rex.Kind(),
			Message:   rex.Error(),
			Extra:     rex.Extra(),
		}
	}
	return ErrorEnvelope{ErrorKind: KindGeneric, Message: err.Error()}
}

// DecodeError reconstructs the typed error a transfer envelope was
// built from. Unknown kinds come back as generic errors so that new
// server-side kinds never break older clients.
func DecodeError(env ErrorEnvelope) error {
	switch env.ErrorKind {
	case KindCommandTimeout:
		e := &CommandTimeoutError{Message: env.Message}
		if v, ok := env.Extra["timeout"].(float64); ok {
			e.Timeout = v
		}
		if v, ok := env.Extra["recovered"].(bool); ok {
			e.Recovered = v
		}
		if v, ok := env.Extra["partial_output"].(string); ok {
			e.PartialOutput = v
		}
		return e
	case KindNonZeroExitCode:
		e := &NonZeroExitCodeError{Message: env.Message}
		if v, ok := env.Extra["exit_code"].(float64); ok {
			e.ExitCode = int(v)
		}
		if v, ok := env.Extra["output"].(string); ok {
			e.Output = v
		}
		return e
	case KindSessionExists, KindSessionDoesNotExist, KindSessionNotInitialized,
		KindBashIncorrectSyntax, KindNoExitCode, KindDeploymentNotStarted,
		KindFileOp, KindGeneric:
		return &KindError{ErrKind: env.ErrorKind, Message: env.Message}
	default:
		return &KindError{ErrKind: KindGeneric, Message: env.Message}
	}
}

// IsKind reports whether err carries the given error kind.
func IsKind(err error, kind string) bool {
	var rex RexError
	if errors.As(err, &rex) {
		return rex.Kind() == kind
	}
	return false
}
