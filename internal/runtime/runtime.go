// Package runtime implements the execution backend behind the HTTP
// surface: named interactive bash sessions, one-shot commands, and
// file transfer.
package runtime

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/runtime/bash"
	"github.com/SWE-agent/SWE-ReX/internal/tracing"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// Runtime is the local execution backend. The HTTP server and the Go
// client drive this same surface. Contexts are used for tracing only:
// a dropped client connection never cancels a command that was already
// dispatched to a shell.
type Runtime struct {
	sessionCfg bash.Config
	logger     *logger.Logger
	reg        *registry
}

// New creates a runtime using cfg as the per-session defaults.
func New(sessionCfg bash.Config, log *logger.Logger) *Runtime {
	return &Runtime{
		sessionCfg: sessionCfg,
		logger:     log.WithComponent("runtime"),
		reg:        newRegistry(),
	}
}

// IsAlive reports readiness.
func (r *Runtime) IsAlive(ctx context.Context) types.IsAliveResponse {
	return types.IsAliveResponse{IsAlive: true}
}

// CreateSession starts a new named bash session. The name is reserved
// before the shell spawns, so concurrent creates with the same name
// cannot both succeed.
func (r *Runtime) CreateSession(ctx context.Context, req types.CreateBashSessionRequest) (types.CreateSessionResponse, error) {
	name := req.SessionName()
	_, span := tracing.TraceSessionCreate(ctx, name, len(req.StartupSource))
	defer span.End()

	resp := types.CreateSessionResponse{SessionType: types.SessionTypeBash}
	s := bash.NewSession(name, r.sessionCfg, r.logger)
	if err := r.reg.add(name, s); err != nil {
		tracing.RecordResult(span, err)
		return resp, err
	}

	output, err := s.Start(req.StartupSource, req.StartupTimeoutOrDefault(r.sessionCfg.StartupTimeout))
	if err != nil {
		r.reg.drop(name)
		tracing.RecordResult(span, err)
		return resp, err
	}

	r.logger.Info("session created", zap.String("session", name))
	resp.Output = output
	return resp, nil
}

// RunInSession executes one action in a named session. Commands on the
// same session are serialized; callers queue in arrival order.
func (r *Runtime) RunInSession(ctx context.Context, action types.BashAction) (types.BashObservation, error) {
	name := action.SessionName()
	interactive := action.IsInteractiveCommand || action.IsInteractiveQuit
	_, span := tracing.TraceSessionRun(ctx, name, interactive, action.Timeout)
	defer span.End()

	obs := types.BashObservation{SessionType: types.SessionTypeBash}
	e, err := r.reg.get(name)
	if err != nil {
		tracing.RecordResult(span, err)
		return obs, err
	}
	if err := e.acquire(); err != nil {
		tracing.RecordResult(span, err)
		return obs, err
	}
	defer e.release()

	obs, err = e.session.Run(action)
	tracing.RecordResult(span, err)
	return obs, err
}

// CloseSession shuts a named session down and unregisters it. Closing
// a session that does not exist, including one already closed, is an
// error.
func (r *Runtime) CloseSession(ctx context.Context, req types.CloseBashSessionRequest) (types.CloseSessionResponse, error) {
	name := req.SessionName()
	_, span := tracing.TraceSessionClose(ctx, name)
	defer span.End()

	resp := types.CloseSessionResponse{SessionType: types.SessionTypeBash}
	err := r.reg.remove(name, r.sessionCfg.TerminateGrace)
	tracing.RecordResult(span, err)
	if err == nil {
		r.logger.Info("session closed", zap.String("session", name))
	}
	return resp, err
}

// Session returns a live session for output watching.
func (r *Runtime) Session(name string) (*bash.Session, error) {
	e, err := r.reg.get(name)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Execute runs one command outside of any session.
func (r *Runtime) Execute(ctx context.Context, req types.Command) (types.CommandResponse, error) {
	_, span := tracing.TraceExecute(ctx, req.Shell, req.Timeout)
	defer span.End()

	resp, err := runCommand(req, r.logger)
	tracing.RecordResult(span, err)
	return resp, err
}

// ReadFile returns the content of a file on the runtime host.
func (r *Runtime) ReadFile(ctx context.Context, req types.ReadFileRequest) (types.ReadFileResponse, error) {
	_, span := tracing.TraceFileOp(ctx, "read_file", req.Path)
	defer span.End()

	resp, err := readFile(req.Path)
	tracing.RecordResult(span, err)
	return resp, err
}

// WriteFile writes a file on the runtime host, creating parents.
func (r *Runtime) WriteFile(ctx context.Context, req types.WriteFileRequest) (types.WriteFileResponse, error) {
	_, span := tracing.TraceFileOp(ctx, "write_file", req.Path)
	defer span.End()

	resp, err := writeFile(req.Path, req.Content)
	tracing.RecordResult(span, err)
	return resp, err
}

// Upload stores an uploaded file at targetPath, optionally extracting
// it as a zip archive into that path.
func (r *Runtime) Upload(ctx context.Context, file io.Reader, targetPath string, unzip bool) (types.UploadResponse, error) {
	_, span := tracing.TraceFileOp(ctx, "upload", targetPath)
	defer span.End()

	err := saveUpload(file, targetPath, unzip)
	tracing.RecordResult(span, err)
	return types.UploadResponse{}, err
}

// Close tears down every session.
func (r *Runtime) Close(ctx context.Context) error {
	r.logger.Info("closing runtime", zap.Strings("sessions", r.reg.names()))
	return r.reg.closeAll(r.sessionCfg.TerminateGrace)
}
