package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// defaultShell interprets string commands when shell mode is requested.
const defaultShell = "/bin/sh"

// executeWaitDelay bounds how long Wait lingers on the child's pipes
// after the process group has been killed. Grandchildren that inherited
// stdout would otherwise hold the command open forever.
const executeWaitDelay = 2 * time.Second

// runCommand executes one command outside of any session and captures
// its output. A timeout yields a response with a null exit code and
// whatever output was produced; a non-zero exit code is a normal
// result, not an error. Only failures to launch are errors.
func runCommand(req types.Command, log *logger.Logger) (types.CommandResponse, error) {
	resp := types.CommandResponse{}
	if req.Command.Empty() {
		return resp, errors.New("no command provided")
	}

	// The deadline is deliberately not tied to the request context:
	// the caller going away must not kill the command early.
	runCtx := context.Background()
	if timeout := req.TimeoutOrZero(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	cmd := buildCommand(runCtx, req)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	resp.Stdout = stdout.String()
	resp.Stderr = stderr.String()
	log.Debug("one-shot command finished",
		zap.Duration("took", time.Since(start)),
		zap.Bool("timed_out", errors.Is(runCtx.Err(), context.DeadlineExceeded)),
		zap.Error(err))

	if err == nil {
		resp.ExitCode = types.IntPtr(0)
		resp.Success = true
		return resp, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		// Timed out: partial output, no exit code.
		return resp, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		resp.ExitCode = types.IntPtr(exitErr.ExitCode())
		return resp, nil
	}
	return resp, fmt.Errorf("failed to execute command: %w", err)
}

// buildCommand constructs the exec.Cmd for a one-shot request. The
// child runs in its own process group so that cancellation takes the
// whole tree down, not just the direct child.
func buildCommand(ctx context.Context, req types.Command) *exec.Cmd {
	var cmd *exec.Cmd
	switch {
	case req.Command.IsArgv:
		cmd = exec.CommandContext(ctx, req.Command.Argv[0], req.Command.Argv[1:]...)
	case req.Shell:
		cmd = exec.CommandContext(ctx, defaultShell, "-c", req.Command.String)
	default:
		cmd = exec.CommandContext(ctx, req.Command.String)
	}
	if req.Cwd != "" {
		cmd.Dir = req.Cwd
	}
	if len(req.Env) > 0 {
		cmd.Env = mergeEnv(req.Env)
	}
	if req.Stdin != "" {
		cmd.Stdin = strings.NewReader(req.Stdin)
	}
	setProcGroup(cmd)
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return killProcessGroup(cmd.Process.Pid)
	}
	cmd.WaitDelay = executeWaitDelay
	return cmd
}

// mergeEnv layers per-command variables over the server environment.
func mergeEnv(env map[string]string) []string {
	base := os.Environ()
	merged := make([]string, 0, len(base)+len(env))
	for _, entry := range base {
		if eq := strings.IndexByte(entry, '='); eq >= 0 {
			if _, ok := env[entry[:eq]]; ok {
				continue
			}
		}
		merged = append(merged, entry)
	}
	for k, v := range env {
		merged = append(merged, k+"="+v)
	}
	return merged
}
