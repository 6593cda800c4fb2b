//go:build linux

package bash

import (
	"os/exec"
	"syscall"
)

// setSessionAttr presets process attributes before the PTY start call
// fills in the session and controlling-terminal flags. Pdeathsig
// ensures the shell dies if the server is killed without a clean
// shutdown. Setpgid must not be set here: the PTY start makes the
// child a session leader, and setpgid fails for session leaders.
func setSessionAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Pdeathsig: syscall.SIGTERM}
}

// killProcessGroup delivers SIGKILL to the shell's process group.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}

// terminateProcessGroup delivers SIGTERM to the shell's process group.
func terminateProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGTERM)
}
