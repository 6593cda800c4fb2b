package runtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SWE-agent/SWE-ReX/internal/runtime/bash"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// newIdleSession returns a session that was never started. Close and
// Kill are no-ops for these, which keeps registry tests free of real
// shells.
func newIdleSession(t *testing.T, name string) *bash.Session {
	t.Helper()
	return bash.NewSession(name, bash.DefaultConfig(), newTestLogger(t))
}

func TestRegistryAddGetDuplicate(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))

	e, err := reg.get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", e.session.Name())

	err = reg.add("alpha", newIdleSession(t, "alpha"))
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionExists))
}

func TestRegistryGetMissing(t *testing.T) {
	reg := newRegistry()
	_, err := reg.get("ghost")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRegistryDrop(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
	reg.drop("alpha")

	_, err := reg.get("alpha")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))

	// The name is free again.
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
}

func TestRegistryRemove(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
	require.NoError(t, reg.remove("alpha", 100*time.Millisecond))

	_, err := reg.get("alpha")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))

	err = reg.remove("alpha", 100*time.Millisecond)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRegistryAcquireSerializes(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
	e, err := reg.get("alpha")
	require.NoError(t, err)

	require.NoError(t, e.acquire())

	second := make(chan error, 1)
	go func() {
		second <- e.acquire()
	}()

	select {
	case <-second:
		t.Fatal("second acquire should block while the slot is held")
	case <-time.After(50 * time.Millisecond):
	}

	e.release()
	select {
	case err := <-second:
		require.NoError(t, err)
		e.release()
	case <-time.After(time.Second):
		t.Fatal("second acquire did not proceed after release")
	}
}

func TestRegistryRemoveUnblocksWaiters(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
	e, err := reg.get("alpha")
	require.NoError(t, err)

	require.NoError(t, e.acquire())

	blocked := make(chan error, 1)
	go func() {
		blocked <- e.acquire()
	}()

	removed := make(chan error, 1)
	go func() {
		removed <- reg.remove("alpha", 500*time.Millisecond)
	}()

	// The queued acquire must bail out as soon as removal starts.
	select {
	case err := <-blocked:
		require.Error(t, err)
		assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
	case <-time.After(time.Second):
		t.Fatal("queued acquire still blocked after removal started")
	}

	e.release()
	select {
	case err := <-removed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("remove did not finish after the slot was released")
	}

	_, err = reg.get("alpha")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRegistryRemoveKillsStuckSession(t *testing.T) {
	reg := newRegistry()
	require.NoError(t, reg.add("alpha", newIdleSession(t, "alpha")))
	e, err := reg.get("alpha")
	require.NoError(t, err)

	// A wedged command that never releases the slot.
	require.NoError(t, e.acquire())

	require.NoError(t, reg.remove("alpha", 50*time.Millisecond))

	_, err = reg.get("alpha")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}

func TestRegistryCloseAll(t *testing.T) {
	reg := newRegistry()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, reg.add(name, newIdleSession(t, name)))
	}

	require.NoError(t, reg.closeAll(100*time.Millisecond))
	assert.Empty(t, reg.names())

	_, err := reg.get("a")
	assert.True(t, types.IsKind(err, types.KindSessionDoesNotExist))
}
