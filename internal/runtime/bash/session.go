// Package bash provides persistent interactive bash sessions on a
// pseudo-terminal. A session survives across commands, preserving
// working directory, exported variables, aliases and functions;
// completion of each command is detected through sentinel lines wrapped
// around it rather than by guessing at prompt shapes.
package bash

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// Config holds the tunables of a bash session.
type Config struct {
	// Shell is the shell binary. It must be bash compatible: the setup
	// line uses set +H, bind and PROMPT_COMMAND.
	Shell string

	// WorkDir is the initial working directory. Empty means inherit.
	WorkDir string

	// PS1 and PS2 are the deterministic prompt strings the session
	// installs. They are scanned for literally, so they must be
	// unlikely to occur in natural command output.
	PS1 string
	PS2 string

	// QuitByte is written before an is_interactive_quit command.
	QuitByte byte

	// DefaultTimeout bounds commands that do not carry their own.
	DefaultTimeout time.Duration

	// StartupTimeout bounds each phase of the startup handshake.
	StartupTimeout time.Duration

	// RecoveryTimeout bounds the wait for the prompt after an
	// interrupt.
	RecoveryTimeout time.Duration

	// TerminateGrace is the SIGTERM to SIGKILL escalation delay.
	TerminateGrace time.Duration

	// ReadWait is how long a single nonblocking read waits for the
	// first byte.
	ReadWait time.Duration

	Cols int
	Rows int
}

// DefaultConfig returns the session defaults.
func DefaultConfig() Config {
	return Config{
		Shell:           "/bin/bash",
		PS1:             "SWE-REX-PS1>",
		PS2:             "SWE-REX-PS2>",
		QuitByte:        0x04,
		DefaultTimeout:  30 * time.Second,
		StartupTimeout:  10 * time.Second,
		RecoveryTimeout: 3 * time.Second,
		TerminateGrace:  2 * time.Second,
		ReadWait:        250 * time.Millisecond,
		Cols:            80,
		Rows:            24,
	}
}

type sessionState int

const (
	stateNew sessionState = iota
	stateStarted
	stateFailed
	stateClosed
)

const (
	readChunkSize = 4096

	// recentBufferSize bounds the rolling history handed to new output
	// watchers.
	recentBufferSize = 16 * 1024
)

// Session is one interactive bash shell on a PTY. Command execution is
// not internally serialized; the registry guarantees one caller at a
// time.
type Session struct {
	name   string
	cfg    Config
	logger *logger.Logger

	pty shellPty

	mu    sync.Mutex
	state sessionState

	// Output handoff from the pump goroutine to the read loops.
	outMu   sync.Mutex
	outBuf  []byte
	eof     bool
	readErr error
	dataCh  chan struct{}
	eofCh   chan struct{}

	// Output watchers (WebSocket streams).
	subMu       sync.RWMutex
	subscribers map[chan<- []byte]struct{}

	// Rolling history for new watchers.
	recentMu sync.RWMutex
	recent   []byte
}

// NewSession creates a session in the unstarted state.
func NewSession(name string, cfg Config, log *logger.Logger) *Session {
	return &Session{
		name:        name,
		cfg:         cfg,
		logger:      log.WithFields(zap.String("component", "bash_session"), zap.String("session", name)),
		dataCh:      make(chan struct{}, 1),
		eofCh:       make(chan struct{}),
		subscribers: make(map[chan<- []byte]struct{}),
	}
}

// Name returns the registry name of the session.
func (s *Session) Name() string {
	return s.name
}

// Failed reports whether the shell died or could not be recovered.
func (s *Session) Failed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateFailed
}

// Done is closed when the shell's output stream ends.
func (s *Session) Done() <-chan struct{} {
	return s.eofCh
}

// Start spawns the shell and drives the startup handshake: a liveness
// probe, then a single setup line that sources the startup files,
// installs the deterministic prompts, and turns off echo, history
// expansion and bracketed paste. It returns the output produced before
// the shell reached its first prompt.
func (s *Session) Start(startupSources []string, startupTimeout time.Duration) (string, error) {
	s.mu.Lock()
	if s.state != stateNew {
		s.mu.Unlock()
		return "", types.NewSessionNotInitializedError(fmt.Sprintf("session %q was already started", s.name))
	}
	s.mu.Unlock()

	if startupTimeout <= 0 {
		startupTimeout = s.cfg.StartupTimeout
	}

	p, err := startShellPty(s.cfg.Shell, buildShellEnv(), s.cfg.WorkDir, s.cfg.Cols, s.cfg.Rows)
	if err != nil {
		s.fail()
		return "", types.NewSessionNotInitializedError(fmt.Sprintf("failed to spawn shell: %v", err))
	}
	s.pty = p
	go s.readOutput()

	s.logger.Info("bash session starting",
		zap.String("shell", s.cfg.Shell),
		zap.Int("pid", p.Pid()),
		zap.Int("startup_sources", len(startupSources)))

	// Liveness probe. It proves the shell is reading, drains any rc
	// banner, and turns echo off before the setup line is written.
	nonce := newNonce()
	probe, probeWant := buildProbe(s.cfg.PS1, s.cfg.PS2, nonce)
	if _, err := s.pty.Write([]byte(probe)); err != nil {
		return "", s.abortStart(fmt.Sprintf("failed to write to shell: %v", err))
	}
	probeRaw, ok, err := s.readUntil(startupTimeout, func(raw []byte) bool {
		return strings.Contains(string(raw), probeWant)
	})
	if err != nil {
		return "", s.abortStart("shell exited during startup")
	}
	if !ok {
		return "", s.abortStart(fmt.Sprintf("shell did not respond within %s", startupTimeout))
	}

	setup := buildSetup(startupSources, s.cfg.PS1, s.cfg.PS2, nonce)
	if _, err := s.pty.Write([]byte(setup)); err != nil {
		return "", s.abortStart(fmt.Sprintf("failed to write to shell: %v", err))
	}
	setupRaw, ok, err := s.readUntil(startupTimeout, func(raw []byte) bool {
		if !promptAtTail(raw, s.cfg.PS1) {
			return false
		}
		_, found, parsed := scanMarkerCode(stripControl(string(raw)), setupMarkerPrefix, nonce)
		return found && parsed
	})
	if err != nil {
		return "", s.abortStart("shell exited during startup")
	}
	if !ok {
		return "", s.abortStart(fmt.Sprintf("prompt did not appear within %s", startupTimeout))
	}

	output := startupOutput(probeRaw, setupRaw, nonce, s.cfg.PS1, s.cfg.PS2)
	rc, _, _ := scanMarkerCode(stripControl(string(setupRaw)), setupMarkerPrefix, nonce)
	if rc != 0 {
		return "", s.abortStart(fmt.Sprintf("sourcing startup files failed with exit code %d; output: %q", rc, output))
	}

	s.mu.Lock()
	s.state = stateStarted
	s.mu.Unlock()
	s.logger.Info("bash session ready")
	return output, nil
}

// abortStart tears the shell down after a failed startup and returns
// the error to surface.
func (s *Session) abortStart(msg string) error {
	if s.pty != nil {
		_ = s.pty.Terminate(s.cfg.TerminateGrace)
	}
	s.fail()
	s.logger.Error("bash session startup failed", zap.String("reason", msg))
	return types.NewSessionNotInitializedError(msg)
}

// startupOutput extracts the human-relevant part of startup: banner and
// rc output, without the probe and setup plumbing, prompts or escapes.
// The probe marker text appears inside the echoed probe line, so the
// cut at its first occurrence also discards the echo.
func startupOutput(probeRaw, setupRaw []byte, nonce, ps1, ps2 string) string {
	head := cutAtMarker(normalizeCRLF(probeRaw), probeMarkerPrefix+nonce)
	tail := cutAtMarker(normalizeCRLF(setupRaw), setupMarkerPrefix+nonce)
	out := stripControl(head + tail)
	out = strings.ReplaceAll(out, ps1, "")
	out = strings.ReplaceAll(out, ps2, "")
	return out
}

// cutAtMarker truncates at the first marker occurrence and drops the
// partial line the cut leaves behind.
func cutAtMarker(norm, marker string) string {
	i := strings.Index(norm, marker)
	if i < 0 {
		return norm
	}
	norm = norm[:i]
	if j := strings.LastIndex(norm, "\n"); j >= 0 {
		return norm[:j+1]
	}
	return ""
}

// Close shuts the session down: a polite exit, then escalating
// signals. It never fails from the caller's perspective and is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return nil
	}
	prev := s.state
	s.state = stateClosed
	s.mu.Unlock()

	if s.pty == nil || prev == stateNew {
		return nil
	}

	s.logger.Info("closing bash session")
	_, _ = s.pty.Write([]byte("exit\n"))
	select {
	case <-s.eofCh:
	case <-time.After(s.cfg.TerminateGrace):
	}
	if err := s.pty.Terminate(s.cfg.TerminateGrace); err != nil && !isClosedFileError(err) {
		s.logger.Warn("error terminating shell", zap.Error(err))
	}
	return nil
}

// Kill force-terminates the shell without the exit handshake. An
// in-flight command sees EOF and fails the session.
func (s *Session) Kill() {
	if s.pty != nil {
		_ = s.pty.Kill()
	}
}

func (s *Session) fail() {
	s.mu.Lock()
	if s.state != stateClosed {
		s.state = stateFailed
	}
	s.mu.Unlock()
}

func isClosedFileError(err error) bool {
	return err != nil && strings.Contains(err.Error(), os.ErrClosed.Error())
}

// readOutput pumps the PTY into the handoff buffer and fans chunks out
// to watchers. It exits when the child side goes away.
func (s *Session) readOutput() {
	buf := make([]byte, readChunkSize)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			s.appendOutput(data)
			s.broadcast(data)
		}
		if err != nil {
			s.outMu.Lock()
			s.eof = true
			if err != io.EOF {
				s.readErr = err
			}
			s.outMu.Unlock()
			close(s.eofCh)
			return
		}
	}
}

func (s *Session) appendOutput(data []byte) {
	s.outMu.Lock()
	s.outBuf = append(s.outBuf, data...)
	s.outMu.Unlock()

	select {
	case s.dataCh <- struct{}{}:
	default:
	}
}

// readNonblocking returns output accumulated since the previous call,
// waiting up to wait for the first byte. A nil, nil return means no
// data arrived in time. io.EOF is returned once the shell has exited
// and the buffer is drained.
func (s *Session) readNonblocking(wait time.Duration) ([]byte, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		s.outMu.Lock()
		if len(s.outBuf) > 0 {
			data := s.outBuf
			s.outBuf = nil
			s.outMu.Unlock()
			return data, nil
		}
		eof := s.eof
		readErr := s.readErr
		s.outMu.Unlock()

		if eof {
			if readErr != nil {
				return nil, readErr
			}
			return nil, io.EOF
		}

		select {
		case <-s.dataCh:
		case <-s.eofCh:
		case <-timer.C:
			return nil, nil
		}
	}
}

// readUntil accumulates output until done reports true or the deadline
// elapses. The error is non-nil when the shell exited mid-read.
func (s *Session) readUntil(timeout time.Duration, done func([]byte) bool) ([]byte, bool, error) {
	deadline := time.Now().Add(timeout)
	var raw []byte
	for {
		chunk, err := s.readNonblocking(s.cfg.ReadWait)
		raw = append(raw, chunk...)
		if err != nil {
			return raw, false, err
		}
		if done(raw) {
			return raw, true, nil
		}
		if time.Now().After(deadline) {
			return raw, false, nil
		}
	}
}

// Subscribe adds a watcher for raw session output.
func (s *Session) Subscribe(ch chan<- []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	s.subscribers[ch] = struct{}{}
}

// Unsubscribe removes a watcher.
func (s *Session) Unsubscribe(ch chan<- []byte) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	delete(s.subscribers, ch)
}

// broadcast fans a chunk out to watchers, dropping it for slow ones.
func (s *Session) broadcast(data []byte) {
	s.appendRecent(data)

	s.subMu.RLock()
	defer s.subMu.RUnlock()
	for ch := range s.subscribers {
		select {
		case ch <- data:
		default:
		}
	}
}

func (s *Session) appendRecent(data []byte) {
	s.recentMu.Lock()
	defer s.recentMu.Unlock()

	s.recent = append(s.recent, data...)
	if len(s.recent) > recentBufferSize {
		s.recent = s.recent[len(s.recent)-recentBufferSize:]
	}
}

// Recent returns a copy of the rolling output history for watchers
// that attach mid-session.
func (s *Session) Recent() []byte {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()

	if len(s.recent) == 0 {
		return nil
	}
	out := make([]byte, len(s.recent))
	copy(out, s.recent)
	return out
}

// buildShellEnv creates the environment for the shell process. TERM is
// forced to dumb so readline keeps its escape output to a minimum.
func buildShellEnv() []string {
	env := os.Environ()
	env = append(env, "TERM=dumb")
	return env
}
