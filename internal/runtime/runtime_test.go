package runtime

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWE-agent/SWE-ReX/internal/runtime/bash"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// newLiveRuntime builds a runtime that spawns real shells.
func newLiveRuntime(t *testing.T) *Runtime {
	t.Helper()
	if os.Getenv("CI") != "" {
		t.Skip("Skipping PTY test in CI environment")
	}
	if _, err := os.Stat("/bin/bash"); err != nil {
		t.Skip("bash not available")
	}
	cfg := bash.DefaultConfig()
	cfg.ReadWait = 20 * time.Millisecond
	rt := New(cfg, newTestLogger(t))
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestRuntimeIsAlive(t *testing.T) {
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	assert.True(t, rt.IsAlive(context.Background()).IsAlive)
}

func TestRuntimeRunUnknownSession(t *testing.T) {
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	_, err := rt.RunInSession(context.Background(), types.BashAction{Command: "echo hi", Session: "ghost"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRuntimeCloseUnknownSession(t *testing.T) {
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	_, err := rt.CloseSession(context.Background(), types.CloseBashSessionRequest{Session: "ghost"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRuntimeSessionLifecycle(t *testing.T) {
	rt := newLiveRuntime(t)
	ctx := context.Background()

	created, err := rt.CreateSession(ctx, types.CreateBashSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.SessionTypeBash, created.SessionType)

	_, err = rt.CreateSession(ctx, types.CreateBashSessionRequest{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionExists))

	obs, err := rt.RunInSession(ctx, types.BashAction{Command: "echo hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", obs.Output)
	require.NotNil(t, obs.ExitCode)
	assert.Equal(t, 0, *obs.ExitCode)

	s, err := rt.Session("default")
	require.NoError(t, err)
	assert.Equal(t, "default", s.Name())

	closed, err := rt.CloseSession(ctx, types.CloseBashSessionRequest{})
	require.NoError(t, err)
	assert.Equal(t, types.SessionTypeBash, closed.SessionType)

	_, err = rt.CloseSession(ctx, types.CloseBashSessionRequest{})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))

	_, err = rt.RunInSession(ctx, types.BashAction{Command: "echo hello"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRuntimeCreateSessionStartupFailure(t *testing.T) {
	rt := newLiveRuntime(t)
	ctx := context.Background()

	_, err := rt.CreateSession(ctx, types.CreateBashSessionRequest{
		Session:       "broken",
		StartupSource: []string{filepath.Join(t.TempDir(), "missing.rc")},
	})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionNotInitialized))

	// The name was released when startup failed.
	_, err = rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "broken"})
	require.NoError(t, err)
}

func TestRuntimeSessionIsolation(t *testing.T) {
	rt := newLiveRuntime(t)
	ctx := context.Background()

	_, err := rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "left"})
	require.NoError(t, err)
	_, err = rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "right"})
	require.NoError(t, err)

	_, err = rt.RunInSession(ctx, types.BashAction{Command: "export SIDE=left", Session: "left"})
	require.NoError(t, err)

	obs, err := rt.RunInSession(ctx, types.BashAction{Command: "echo side=$SIDE", Session: "right"})
	require.NoError(t, err)
	assert.Equal(t, "side=\n", obs.Output, "sessions must not share shell state")

	obs, err = rt.RunInSession(ctx, types.BashAction{Command: "echo side=$SIDE", Session: "left"})
	require.NoError(t, err)
	assert.Equal(t, "side=left\n", obs.Output)
}

func TestRuntimeSerializesSessionCommands(t *testing.T) {
	rt := newLiveRuntime(t)
	ctx := context.Background()

	_, err := rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "serial"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	started := make(chan struct{})
	go func() {
		defer wg.Done()
		close(started)
		_, err := rt.RunInSession(ctx, types.BashAction{Command: "sleep 0.5; echo first", Session: "serial"})
		assert.NoError(t, err)
	}()

	<-started
	time.Sleep(100 * time.Millisecond)

	begin := time.Now()
	obs, err := rt.RunInSession(ctx, types.BashAction{Command: "echo second", Session: "serial"})
	require.NoError(t, err)
	assert.Equal(t, "second\n", obs.Output)
	assert.Greater(t, time.Since(begin), 200*time.Millisecond, "second command should queue behind the first")
	wg.Wait()
}

func TestRuntimeExecute(t *testing.T) {
	requireShell(t)
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	resp, err := rt.Execute(context.Background(), types.Command{
		Command: types.CommandInput{String: "echo via-facade"},
		Shell:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "via-facade\n", resp.Stdout)
	assert.True(t, resp.Success)
}

func TestRuntimeFileRoundTrip(t *testing.T) {
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "via", "facade.txt")

	_, err := rt.WriteFile(ctx, types.WriteFileRequest{Path: path, Content: "facade payload"})
	require.NoError(t, err)

	resp, err := rt.ReadFile(ctx, types.ReadFileRequest{Path: path})
	require.NoError(t, err)
	assert.Equal(t, "facade payload", resp.Content)

	_, err = rt.ReadFile(ctx, types.ReadFileRequest{Path: path + ".missing"})
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindFileOp))
}

func TestRuntimeUpload(t *testing.T) {
	rt := New(bash.DefaultConfig(), newTestLogger(t))
	target := filepath.Join(t.TempDir(), "uploaded.bin")

	_, err := rt.Upload(context.Background(), strings.NewReader("upload payload"), target, false)
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "upload payload", string(data))
}

func TestRuntimeCloseShutsSessionsDown(t *testing.T) {
	rt := newLiveRuntime(t)
	ctx := context.Background()

	_, err := rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "one"})
	require.NoError(t, err)
	_, err = rt.CreateSession(ctx, types.CreateBashSessionRequest{Session: "two"})
	require.NoError(t, err)

	require.NoError(t, rt.Close(ctx))

	_, err = rt.Session("one")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
	_, err = rt.Session("two")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}
