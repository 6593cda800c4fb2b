package bash

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// Run executes one action in the session and returns the observation.
// The registry serializes callers; Run must never be invoked
// concurrently on the same session.
func (s *Session) Run(action types.BashAction) (types.BashObservation, error) {
	obs := types.BashObservation{SessionType: types.SessionTypeBash}

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()
	switch state {
	case stateNew:
		return obs, types.NewSessionNotInitializedError(fmt.Sprintf("session %q has not been started", s.name))
	case stateFailed:
		return obs, types.NewSessionNotInitializedError(fmt.Sprintf("session %q is in a failed state; close it and create a new one", s.name))
	case stateClosed:
		return obs, types.NewSessionNotInitializedError(fmt.Sprintf("session %q is closed", s.name))
	}

	timeout := action.TimeoutOrDefault(s.cfg.DefaultTimeout)
	if action.IsInteractiveCommand || action.IsInteractiveQuit {
		return s.runInteractive(action, timeout)
	}
	return s.runNormal(action, timeout)
}

// runNormal wraps the command with sentinel echoes, writes everything
// in one go, and reads until the exit-code sentinel and the prompt
// appear at the tail of the buffer.
func (s *Session) runNormal(action types.BashAction, timeout time.Duration) (types.BashObservation, error) {
	obs := types.BashObservation{SessionType: types.SessionTypeBash}

	if err := CheckSyntax(action.Command); err != nil {
		return obs, err
	}

	nonce := newNonce()
	written := wrapCommand(action.Command, nonce)
	if _, err := s.pty.Write([]byte(written)); err != nil {
		s.fail()
		return obs, types.NewSessionNotInitializedError(fmt.Sprintf("failed to write command to shell: %v", err))
	}

	s.logger.Debug("running command", zap.Float64("timeout_s", timeout.Seconds()))

	deadline := time.Now().Add(timeout)
	var raw []byte
	for {
		chunk, err := s.readNonblocking(s.cfg.ReadWait)
		raw = append(raw, chunk...)
		if err != nil {
			s.fail()
			return obs, types.NewSessionNotInitializedError("shell exited unexpectedly while running command")
		}

		// Caller-supplied terminators win over the sentinel: matching
		// one returns with the command still in the foreground.
		if len(action.Expect) > 0 {
			norm := normalizeCRLF(raw)
			if matched, idx := firstExpectMatch(norm, action.Expect); idx >= 0 {
				obs.Output = sanitize(norm[:idx], written, action.Command, nonce, s.cfg.PS1, s.cfg.PS2)
				obs.ExpectString = matched
				return obs, nil
			}
		}

		code, done, malformed := scanCompletion(raw, nonce, s.cfg.PS1)
		if done {
			output := sanitize(normalizeCRLF(raw), written, action.Command, nonce, s.cfg.PS1, s.cfg.PS2)
			if malformed {
				return obs, types.NewNoExitCodeError(fmt.Sprintf("no exit code found in output %q", output))
			}
			obs.Output = output
			obs.ExitCode = types.IntPtr(code)
			obs.ExpectString = s.cfg.PS1
			if action.Check == types.CheckRaise && code != 0 {
				return obs, nonZeroError(action, code, output)
			}
			return obs, nil
		}

		if time.Now().After(deadline) {
			return obs, s.recoverFromTimeout(action, raw, written, nonce, timeout)
		}
	}
}

// recoverFromTimeout interrupts the foreground job and waits briefly
// for the prompt. If the prompt returns the session stays usable;
// otherwise the shell is torn down and the session marked failed.
func (s *Session) recoverFromTimeout(action types.BashAction, raw []byte, written, nonce string, timeout time.Duration) error {
	s.logger.Warn("command timed out, interrupting", zap.Float64("timeout_s", timeout.Seconds()))

	recovered := false
	if err := s.pty.Interrupt(); err == nil {
		deadline := time.Now().Add(s.cfg.RecoveryTimeout)
		for time.Now().Before(deadline) {
			chunk, err := s.readNonblocking(s.cfg.ReadWait)
			raw = append(raw, chunk...)
			if err != nil {
				break
			}
			if promptAtTail(raw, s.cfg.PS1) {
				recovered = true
				break
			}
		}
	}

	partial := sanitize(normalizeCRLF(raw), written, action.Command, nonce, s.cfg.PS1, s.cfg.PS2)
	if !recovered {
		_ = s.pty.Terminate(s.cfg.TerminateGrace)
		s.fail()
		s.logger.Error("shell did not recover from interrupt, session failed")
	}
	return &types.CommandTimeoutError{
		Message:       fmt.Sprintf("timeout (%gs) exceeded while running command %q", timeout.Seconds(), action.Command),
		Timeout:       timeout.Seconds(),
		Recovered:     recovered,
		PartialOutput: partial,
	}
}

// runInteractive feeds input to a running interactive program. No
// sentinel wrapping and no exit code: the read ends at an expect
// string, at the prompt, or at the timeout.
func (s *Session) runInteractive(action types.BashAction, timeout time.Duration) (types.BashObservation, error) {
	obs := types.BashObservation{SessionType: types.SessionTypeBash}

	if action.IsInteractiveQuit {
		if _, err := s.pty.Write([]byte{s.cfg.QuitByte}); err != nil {
			s.fail()
			return obs, types.NewSessionNotInitializedError(fmt.Sprintf("failed to write to shell: %v", err))
		}
	}

	written := ""
	if !(action.IsInteractiveQuit && action.Command == "") {
		written = action.Command + "\n"
		if _, err := s.pty.Write([]byte(written)); err != nil {
			s.fail()
			return obs, types.NewSessionNotInitializedError(fmt.Sprintf("failed to write to shell: %v", err))
		}
	}

	expect := append(append([]string{}, action.Expect...), s.cfg.PS1)

	deadline := time.Now().Add(timeout)
	var raw []byte
	for {
		chunk, err := s.readNonblocking(s.cfg.ReadWait)
		raw = append(raw, chunk...)
		if err != nil {
			s.fail()
			return obs, types.NewSessionNotInitializedError("shell exited unexpectedly during interactive command")
		}

		norm := normalizeCRLF(raw)
		if matched, idx := firstExpectMatch(norm, expect); idx >= 0 {
			obs.Output = sanitize(norm[:idx], written, action.Command, "", s.cfg.PS1, s.cfg.PS2)
			obs.ExpectString = matched
			if action.IsInteractiveQuit && matched == s.cfg.PS1 {
				s.resyncTerminal()
			}
			return obs, nil
		}

		if time.Now().After(deadline) {
			// The interactive program is meant to keep running, so no
			// interrupt: the caller decides what to feed it next.
			partial := sanitize(norm, written, action.Command, "", s.cfg.PS1, s.cfg.PS2)
			return obs, &types.CommandTimeoutError{
				Message:       fmt.Sprintf("timeout (%gs) exceeded while running interactive command %q", timeout.Seconds(), action.Command),
				Timeout:       timeout.Seconds(),
				Recovered:     true,
				PartialOutput: partial,
			}
		}
	}
}

// resyncTerminal re-asserts raw terminal modes after an interactive
// program exits; REPLs restore the echo settings they found at start.
func (s *Session) resyncTerminal() {
	if _, err := s.pty.Write([]byte("stty -echo -icanon\n")); err != nil {
		return
	}
	deadline := time.Now().Add(s.cfg.RecoveryTimeout)
	var raw []byte
	for time.Now().Before(deadline) {
		chunk, err := s.readNonblocking(s.cfg.ReadWait)
		raw = append(raw, chunk...)
		if err != nil {
			return
		}
		if promptAtTail(raw, s.cfg.PS1) {
			return
		}
	}
}

func nonZeroError(action types.BashAction, code int, output string) *types.NonZeroExitCodeError {
	msg := fmt.Sprintf("command %q failed with exit code %d. Here is the output:\n%s", action.Command, code, output)
	if action.ErrorMsg != "" {
		msg = action.ErrorMsg + ": " + msg
	}
	return &types.NonZeroExitCodeError{Message: msg, ExitCode: code, Output: output}
}
