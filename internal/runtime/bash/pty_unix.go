//go:build unix

package bash

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
)

// ctrlC is the terminal interrupt character.
const ctrlC = 0x03

// unixPty wraps a Unix PTY master and the shell process behind it.
type unixPty struct {
	f        *os.File
	cmd      *exec.Cmd
	waitDone chan struct{}
}

// startShellPty spawns the shell attached to a fresh PTY. The child
// becomes a session leader with the PTY as controlling terminal, so
// its process group id equals its pid.
func startShellPty(shell string, env []string, dir string, cols, rows int) (*unixPty, error) {
	cmd := exec.Command(shell)
	cmd.Dir = dir
	cmd.Env = env
	setSessionAttr(cmd)

	f, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start PTY: %w", err)
	}

	p := &unixPty{
		f:        f,
		cmd:      cmd,
		waitDone: make(chan struct{}),
	}
	go p.waitExit()
	return p, nil
}

// waitExit reaps the shell process so it never lingers as a zombie.
func (p *unixPty) waitExit() {
	_ = p.cmd.Wait()
	close(p.waitDone)
}

func (p *unixPty) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *unixPty) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *unixPty) Close() error                { return p.f.Close() }

func (p *unixPty) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *unixPty) Interrupt() error {
	_, err := p.f.Write([]byte{ctrlC})
	return err
}

func (p *unixPty) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return killProcessGroup(p.cmd.Process.Pid)
}

func (p *unixPty) Terminate(grace time.Duration) error {
	if p.cmd.Process != nil {
		select {
		case <-p.waitDone:
		default:
			_ = terminateProcessGroup(p.cmd.Process.Pid)
			select {
			case <-p.waitDone:
			case <-time.After(grace):
				_ = killProcessGroup(p.cmd.Process.Pid)
				select {
				case <-p.waitDone:
				case <-time.After(grace):
				}
			}
		}
	}
	return p.f.Close()
}
