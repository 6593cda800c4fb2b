// Package types defines the JSON wire contract shared by the runtime
// server and its clients: request and response bodies plus the error
// transfer envelope.
package types

import (
	"encoding/json"
	"time"
)

const (
	// DefaultSessionName is used when a request omits the session field.
	DefaultSessionName = "default"

	// SessionTypeBash is the only supported session type.
	SessionTypeBash = "bash"
)

// Check modes for BashAction.
const (
	CheckSilent = "silent" // report the exit code, never fail
	CheckRaise  = "raise"  // non-zero exit code becomes a NonZeroExitCodeError
)

// CreateBashSessionRequest starts a new interactive bash session.
type CreateBashSessionRequest struct {
	// Session is the name the new session is registered under.
	Session string `json:"session"`

	// StartupSource lists files sourced before the first command runs.
	// They get special treatment because rc files routinely overwrite
	// the prompt and other shell state the session depends on.
	StartupSource []string `json:"startup_source"`

	// StartupTimeout bounds the startup handshake, in seconds.
	StartupTimeout float64 `json:"startup_timeout"`

	SessionType string `json:"session_type"`
}

// SessionName returns the target session, applying the default.
func (r *CreateBashSessionRequest) SessionName() string {
	if r.Session == "" {
		return DefaultSessionName
	}
	return r.Session
}

// StartupTimeoutOrDefault converts the startup timeout to a duration.
func (r *CreateBashSessionRequest) StartupTimeoutOrDefault(def time.Duration) time.Duration {
	if r.StartupTimeout <= 0 {
		return def
	}
	return time.Duration(r.StartupTimeout * float64(time.Second))
}

// BashAction runs a command in an existing session.
type BashAction struct {
	// Command is the bash input. In normal mode it must be a complete
	// bash statement; in interactive mode it is written verbatim.
	Command string `json:"command"`

	Session string `json:"session"`

	// Timeout bounds the command, in seconds. Zero means the session
	// default.
	Timeout float64 `json:"timeout"`

	// IsInteractiveCommand feeds input to a running interactive program
	// instead of executing a standalone command. No exit code is
	// available in this mode.
	IsInteractiveCommand bool `json:"is_interactive_command"`

	// IsInteractiveQuit ends an interactive program: the quit byte
	// (Ctrl-D) is written before the command, and the session is
	// resynchronized to the prompt afterwards.
	IsInteractiveQuit bool `json:"is_interactive_quit"`

	// Check selects what happens on a non-zero exit code: "silent"
	// (default) reports it, "raise" turns it into an error.
	Check string `json:"check"`

	// ErrorMsg is prefixed to the error message when Check is "raise"
	// and the command fails.
	ErrorMsg string `json:"error_msg"`

	// Expect lists strings that terminate the read in addition to the
	// built-in completion detection. Matching one leaves the command
	// running in the foreground.
	Expect []string `json:"expect"`

	SessionType string `json:"session_type"`
}

// SessionName returns the target session, applying the default.
func (a *BashAction) SessionName() string {
	if a.Session == "" {
		return DefaultSessionName
	}
	return a.Session
}

// TimeoutOrDefault converts the action timeout to a duration.
func (a *BashAction) TimeoutOrDefault(def time.Duration) time.Duration {
	if a.Timeout <= 0 {
		return def
	}
	return time.Duration(a.Timeout * float64(time.Second))
}

// CloseBashSessionRequest closes a session.
type CloseBashSessionRequest struct {
	Session     string `json:"session"`
	SessionType string `json:"session_type"`
}

// SessionName returns the target session, applying the default.
func (r *CloseBashSessionRequest) SessionName() string {
	if r.Session == "" {
		return DefaultSessionName
	}
	return r.Session
}

// CommandInput is a command given either as a single string run through
// a shell or as an argv vector executed directly. On the wire it is a
// JSON string or a JSON array of strings.
type CommandInput struct {
	String string
	Argv   []string
	IsArgv bool
}

// UnmarshalJSON accepts both wire forms.
func (c *CommandInput) UnmarshalJSON(data []byte) error {
	trimmed := skipSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		c.IsArgv = true
		c.String = ""
		return json.Unmarshal(data, &c.Argv)
	}
	c.IsArgv = false
	c.Argv = nil
	return json.Unmarshal(data, &c.String)
}

// MarshalJSON emits the form the value was built with.
func (c CommandInput) MarshalJSON() ([]byte, error) {
	if c.IsArgv {
		return json.Marshal(c.Argv)
	}
	return json.Marshal(c.String)
}

// Empty reports whether no command was provided.
func (c CommandInput) Empty() bool {
	if c.IsArgv {
		return len(c.Argv) == 0
	}
	return c.String == ""
}

func skipSpace(data []byte) []byte {
	for i, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			return data[i:]
		}
	}
	return nil
}

// Command runs a single program outside of any session.
type Command struct {
	Command CommandInput `json:"command"`

	// Timeout bounds the execution, in seconds. Zero means no limit.
	Timeout float64 `json:"timeout"`

	// Shell runs the command string through "sh -c". Required when
	// Command is a string rather than an argv vector.
	Shell bool `json:"shell"`

	// Env is merged over the server environment for the child process.
	Env map[string]string `json:"env"`

	// Cwd is the working directory for the child process.
	Cwd string `json:"cwd"`

	// Stdin is written to the child's standard input.
	Stdin string `json:"stdin"`
}

// TimeoutOrZero converts the command timeout to a duration; zero means
// unbounded.
func (c *Command) TimeoutOrZero() time.Duration {
	if c.Timeout <= 0 {
		return 0
	}
	return time.Duration(c.Timeout * float64(time.Second))
}

// ReadFileRequest reads a file from the runtime host.
type ReadFileRequest struct {
	Path string `json:"path"`
}

// WriteFileRequest writes a file on the runtime host, creating parent
// directories as needed.
type WriteFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
