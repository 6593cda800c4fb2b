package types

// IsAliveResponse reports server liveness.
type IsAliveResponse struct {
	IsAlive bool   `json:"is_alive"`
	Message string `json:"message"`
}

// CreateSessionResponse carries the output produced during session
// startup (banner, rc file output).
type CreateSessionResponse struct {
	Output      string `json:"output"`
	SessionType string `json:"session_type"`
}

// BashObservation is the result of a BashAction.
type BashObservation struct {
	Output string `json:"output"`

	// ExitCode is null for interactive actions and for commands that
	// were left running after an expect string matched.
	ExitCode *int `json:"exit_code"`

	// FailureReason is set when the action failed in a way that still
	// produced an observation.
	FailureReason string `json:"failure_reason"`

	// ExpectString is the string whose match ended the read: one of the
	// caller's expect strings, or the prompt on normal completion.
	ExpectString string `json:"expect_string"`

	SessionType string `json:"session_type"`
}

// CloseSessionResponse acknowledges a session close.
type CloseSessionResponse struct {
	SessionType string `json:"session_type"`
}

// CommandResponse is the result of a one-shot Command.
type CommandResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`

	// ExitCode is null when the command timed out.
	ExitCode *int `json:"exit_code"`

	// Success is true iff the command exited with code zero.
	Success bool `json:"success"`
}

// ReadFileResponse carries the file content.
type ReadFileResponse struct {
	Content string `json:"content"`
}

// WriteFileResponse acknowledges a file write.
type WriteFileResponse struct{}

// UploadResponse acknowledges an upload.
type UploadResponse struct{}

// CloseResponse acknowledges runtime shutdown.
type CloseResponse struct{}

// IntPtr returns a pointer to v, for populating nullable exit codes.
func IntPtr(v int) *int {
	return &v
}
