//go:build unix && !linux

package bash

import (
	"os/exec"
	"syscall"
)

// setSessionAttr is a no-op outside Linux; Pdeathsig is Linux-only and
// the PTY start call fills in the session flags itself. Orphan cleanup
// relies on explicit Close calls.
func setSessionAttr(cmd *exec.Cmd) {
	_ = cmd
}

// killProcessGroup delivers SIGKILL to the shell's process group.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// terminateProcessGroup delivers SIGTERM to the shell's process group.
func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
