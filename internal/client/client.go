// Package client provides RemoteRuntime, an HTTP client that mirrors
// the runtime facade and reconstructs its typed errors from the
// transfer envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SWE-agent/SWE-ReX/internal/common/logger"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// requestTimeout bounds plain control requests. Command requests get
// their own deadline derived from the command timeout.
const requestTimeout = 30 * time.Second

// requestMargin is added on top of a command timeout to leave room for
// transport and server-side timeout recovery.
const requestMargin = 30 * time.Second

// RemoteRuntime drives a runtime server over HTTP.
type RemoteRuntime struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logger.Logger
}

// NewRemoteRuntime creates a client for the runtime at host:port. The
// host may carry a scheme; without one http is assumed. An empty
// apiKey sends no authentication header.
func NewRemoteRuntime(host string, port int, apiKey string, log *logger.Logger) *RemoteRuntime {
	base := host
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	base = strings.TrimRight(base, "/")
	if port > 0 {
		base = fmt.Sprintf("%s:%d", base, port)
	}
	return &RemoteRuntime{
		baseURL: base,
		apiKey:  apiKey,
		// No global timeout: command requests stay open for as long
		// as the command runs.
		httpClient: &http.Client{},
		logger:     log.WithComponent("remote-runtime"),
	}
}

// BaseURL returns the server address the client talks to.
func (c *RemoteRuntime) BaseURL() string {
	return c.baseURL
}

// IsAlive reports whether the server answers its liveness check. It
// never returns an error; failures come back as a dead response with
// the reason in the message.
func (c *RemoteRuntime) IsAlive(ctx context.Context) types.IsAliveResponse {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp types.IsAliveResponse
	if err := c.getJSON(reqCtx, "/is_alive", &resp); err != nil {
		return types.IsAliveResponse{IsAlive: false, Message: err.Error()}
	}
	return resp
}

// WaitUntilAlive polls the server until it answers or the timeout
// expires.
func (c *RemoteRuntime) WaitUntilAlive(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last types.IsAliveResponse
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		last = c.IsAlive(attemptCtx)
		cancel()
		if last.IsAlive {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("runtime at %s did not come up within %gs: %s",
				c.baseURL, timeout.Seconds(), last.Message)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CreateSession starts a new named bash session on the server.
func (c *RemoteRuntime) CreateSession(ctx context.Context, req types.CreateBashSessionRequest) (types.CreateSessionResponse, error) {
	timeout := requestTimeout
	if req.StartupTimeout > 0 {
		timeout = req.StartupTimeoutOrDefault(0) + requestMargin
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var resp types.CreateSessionResponse
	err := c.postJSON(reqCtx, "/create_session", req, &resp)
	return resp, err
}

// RunInSession executes one action in a named session.
func (c *RemoteRuntime) RunInSession(ctx context.Context, action types.BashAction) (types.BashObservation, error) {
	reqCtx := ctx
	if action.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, action.TimeoutOrDefault(0)+requestMargin)
		defer cancel()
	}

	var obs types.BashObservation
	err := c.postJSON(reqCtx, "/run_in_session", action, &obs)
	return obs, err
}

// CloseSession shuts a named session down.
func (c *RemoteRuntime) CloseSession(ctx context.Context, req types.CloseBashSessionRequest) (types.CloseSessionResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp types.CloseSessionResponse
	err := c.postJSON(reqCtx, "/close_session", req, &resp)
	return resp, err
}

// Execute runs one command outside of any session.
func (c *RemoteRuntime) Execute(ctx context.Context, cmd types.Command) (types.CommandResponse, error) {
	reqCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, cmd.TimeoutOrZero()+requestMargin)
		defer cancel()
	}

	var resp types.CommandResponse
	err := c.postJSON(reqCtx, "/execute", cmd, &resp)
	return resp, err
}

// ReadFile returns the content of a file on the runtime host.
func (c *RemoteRuntime) ReadFile(ctx context.Context, req types.ReadFileRequest) (types.ReadFileResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp types.ReadFileResponse
	err := c.postJSON(reqCtx, "/read_file", req, &resp)
	return resp, err
}

// WriteFile writes a file on the runtime host.
func (c *RemoteRuntime) WriteFile(ctx context.Context, req types.WriteFileRequest) (types.WriteFileResponse, error) {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp types.WriteFileResponse
	err := c.postJSON(reqCtx, "/write_file", req, &resp)
	return resp, err
}

// Close tears down every session on the server.
func (c *RemoteRuntime) Close(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var resp types.CloseResponse
	return c.postJSON(reqCtx, "/close", struct{}{}, &resp)
}

func (c *RemoteRuntime) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
}

func (c *RemoteRuntime) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *RemoteRuntime) postJSON(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	return c.do(req, out)
}

func (c *RemoteRuntime) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return c.decodeResponse(req.URL.Path, resp.StatusCode, body, out)
}

// decodeResponse turns a wire response into a typed result: status 511
// carries a transfer envelope that decodes back into the server-side
// error, other non-2xx statuses are plain failures.
func (c *RemoteRuntime) decodeResponse(path string, status int, body []byte, out any) error {
	switch {
	case status == types.ErrorStatus:
		var env types.ErrorEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			return fmt.Errorf("failed to parse error envelope (status %d, body: %s): %w",
				status, truncateBody(body), err)
		}
		err := types.DecodeError(env)
		c.logger.Debug("server reported error",
			zap.String("path", path), zap.String("kind", env.ErrorKind))
		return err
	case status < 200 || status >= 300:
		var plain struct {
			Detail string `json:"detail"`
		}
		if json.Unmarshal(body, &plain) == nil && plain.Detail != "" {
			return fmt.Errorf("request to %s failed with status %d: %s", path, status, plain.Detail)
		}
		return fmt.Errorf("request to %s failed with status %d: %s", path, status, truncateBody(body))
	default:
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to parse response (status %d, body: %s): %w",
				status, truncateBody(body), err)
		}
		return nil
	}
}

// readResponseBody reads and returns the response body.
func readResponseBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// truncateBody truncates body for error messages to avoid huge logs.
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
