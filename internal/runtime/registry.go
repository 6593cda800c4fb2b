package runtime

import (
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/SWE-agent/SWE-ReX/internal/runtime/bash"
	"github.com/SWE-agent/SWE-ReX/internal/types"
)

// registry owns the named sessions and serializes access to each one.
// The per-session slot is a capacity-1 channel: whoever holds the token
// has exclusive use of the shell. Close uses a timed acquisition so a
// stuck command cannot block teardown forever.
type registry struct {
	mu       sync.RWMutex
	sessions map[string]*registryEntry
}

type registryEntry struct {
	session *bash.Session
	slot    chan struct{}

	// done is closed when the session is being removed, so callers
	// blocked on the slot stop waiting for a shell that is going away.
	done     chan struct{}
	doneOnce sync.Once
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*registryEntry)}
}

// add registers a session under its name.
func (r *registry) add(name string, s *bash.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[name]; ok {
		return types.NewSessionExistsError(name)
	}
	r.sessions[name] = &registryEntry{
		session: s,
		slot:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	return nil
}

// drop removes a registration without closing the session. Used when
// startup failed and the shell is already gone.
func (r *registry) drop(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, name)
}

func (r *registry) get(name string) (*registryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[name]
	if !ok {
		return nil, types.NewSessionDoesNotExistError(name)
	}
	return e, nil
}

// remove closes a session and unregisters it. It waits up to grace for
// an in-flight command to release the slot; on expiry it force-kills
// the shell, which errors the command out and frees the session.
func (r *registry) remove(name string, grace time.Duration) error {
	e, err := r.get(name)
	if err != nil {
		return err
	}
	e.markRemoved()
	e.acquireOrKill(grace)
	closeErr := e.session.Close()

	r.mu.Lock()
	delete(r.sessions, name)
	r.mu.Unlock()
	return closeErr
}

// closeAll tears down every session concurrently and clears the map.
func (r *registry) closeAll(grace time.Duration) error {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*registryEntry)
	r.mu.Unlock()

	var g errgroup.Group
	for _, e := range entries {
		g.Go(func() error {
			e.markRemoved()
			e.acquireOrKill(grace)
			return e.session.Close()
		})
	}
	return g.Wait()
}

// names returns the registered session names.
func (r *registry) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sessions))
	for name := range r.sessions {
		out = append(out, name)
	}
	return out
}

// acquire takes the session slot, failing when the session is removed
// while waiting.
func (e *registryEntry) acquire() error {
	select {
	case e.slot <- struct{}{}:
	case <-e.done:
		return types.NewSessionDoesNotExistError(e.session.Name())
	}
	// Both channels may have been ready at once.
	select {
	case <-e.done:
		<-e.slot
		return types.NewSessionDoesNotExistError(e.session.Name())
	default:
		return nil
	}
}

func (e *registryEntry) release() {
	<-e.slot
}

func (e *registryEntry) markRemoved() {
	e.doneOnce.Do(func() { close(e.done) })
}

// acquireOrKill takes the slot for teardown. If a running command does
// not release it within grace the shell is killed, which makes the
// command fail and free the slot.
func (e *registryEntry) acquireOrKill(grace time.Duration) {
	select {
	case e.slot <- struct{}{}:
		return
	case <-time.After(grace):
	}
	e.session.Kill()
	select {
	case e.slot <- struct{}{}:
	case <-time.After(grace):
		// The slot never came back; the shell is dead, close anyway.
	}
}
