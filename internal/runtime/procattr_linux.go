//go:build linux

package runtime

import (
	"os/exec"
	"syscall"
)

// setProcGroup places the child in its own process group and asks the
// kernel to deliver SIGTERM if this process dies first.
func setProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}

// killProcessGroup forcibly kills the child's entire process group.
func killProcessGroup(pid int) error {
	return syscall.Kill(-pid, syscall.SIGKILL)
}
