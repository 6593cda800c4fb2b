//go:build unix && !linux

package runtime

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group. Parent death
// signals are Linux-only.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup forcibly kills the child's entire process group.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
