package bash

import (
	"io"
	"time"
)

// shellPty owns the parent side of the pseudo-terminal a shell runs on.
// Read blocks until output arrives or the child side goes away; the
// session drains it from a dedicated goroutine.
type shellPty interface {
	io.ReadWriteCloser

	// Interrupt writes the terminal interrupt character. The line
	// discipline delivers SIGINT to the foreground process group,
	// which a plain kill of the shell's group would miss for jobs
	// running in groups of their own.
	Interrupt() error

	// Kill delivers SIGKILL to the shell's process group.
	Kill() error

	// Terminate sends SIGTERM, waits up to grace for exit, escalates
	// to SIGKILL, and closes the PTY.
	Terminate(grace time.Duration) error

	// Pid returns the shell's process id.
	Pid() int
}
