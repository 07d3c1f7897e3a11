package runtime

import (
	"fmt"
	"sync"
	"time"
)

// Runtime owns the in-memory agent registry, each worker's call-stack and
// current-agent pointer, and the process-wide spawn graph. The durable
// conversation history each agent drives lives entirely in the Conversation
// Store; Runtime only tracks liveness and lineage.
type Runtime struct {
	mu     sync.RWMutex
	agents map[string]*Record

	stacksMu     sync.Mutex
	workerStacks map[string][]Identity

	edgesMu sync.Mutex
	edges   []SpawnEdge
	seen    map[string]bool

	onEvent func(Event)
}

// Event is emitted for liveness transitions a caller may want to observe
// (logging, metrics, a UI). OnEvent is optional.
type Event struct {
	Type     string
	Identity Identity
	Worker   string
}

// New returns an empty Runtime.
func New() *Runtime {
	return &Runtime{
		agents:       make(map[string]*Record),
		workerStacks: make(map[string][]Identity),
		seen:         make(map[string]bool),
	}
}

// SetEventCallback installs an optional observer for lifecycle events.
func (r *Runtime) SetEventCallback(fn func(Event)) {
	r.onEvent = fn
}

func (r *Runtime) emit(evt Event) {
	if r.onEvent != nil {
		r.onEvent(evt)
	}
}

// SeedAgent idempotently registers the agent, pushes it onto worker's
// stack, and makes it worker's current agent. id must be non-empty.
func (r *Runtime) SeedAgent(worker string, identity Identity, repoURL string) error {
	if identity.ID == "" {
		return fmt.Errorf("runtime: agent id is required")
	}

	r.mu.Lock()
	rec, ok := r.agents[identity.key()]
	if !ok {
		rec = &Record{Identity: identity, RepoURL: repoURL, Status: StatusIdle, CreatedAt: time.Now()}
		r.agents[identity.key()] = rec
	}
	rec.lastActive = time.Now()
	r.mu.Unlock()

	r.stacksMu.Lock()
	r.workerStacks[worker] = append(r.workerStacks[worker], identity)
	r.stacksMu.Unlock()

	r.emit(Event{Type: "seeded", Identity: identity, Worker: worker})
	return nil
}

// PopCurrentAgent pops worker's top frame. The previous frame, if any,
// becomes current; otherwise current clears.
func (r *Runtime) PopCurrentAgent(worker string) {
	r.stacksMu.Lock()
	defer r.stacksMu.Unlock()

	stack := r.workerStacks[worker]
	if len(stack) == 0 {
		return
	}
	stack = stack[:len(stack)-1]
	if len(stack) == 0 {
		delete(r.workerStacks, worker)
		return
	}
	r.workerStacks[worker] = stack
}

// CurrentAgent returns worker's top-of-stack identity, if any.
func (r *Runtime) CurrentAgent(worker string) (Identity, bool) {
	r.stacksMu.Lock()
	defer r.stacksMu.Unlock()

	stack := r.workerStacks[worker]
	if len(stack) == 0 {
		return Identity{}, false
	}
	return stack[len(stack)-1], true
}

// MarkRunning and MarkIdle transition an already-registered agent's status.
func (r *Runtime) MarkRunning(identity Identity) {
	r.setStatus(identity, StatusRunning)
}

func (r *Runtime) MarkIdle(identity Identity) {
	r.setStatus(identity, StatusIdle)
}

func (r *Runtime) setStatus(identity Identity, status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.agents[identity.key()]; ok {
		rec.Status = status
		rec.lastActive = time.Now()
	}
}

// Get returns the registered record for identity, if any.
func (r *Runtime) Get(identity Identity) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.agents[identity.key()]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ListRunningAgents returns every registered agent scoped to repoURL, or
// every registered agent if repoURL is empty.
func (r *Runtime) ListRunningAgents(repoURL string) []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.agents))
	for _, rec := range r.agents {
		if repoURL != "" && rec.RepoURL != repoURL {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// StackFrame is one entry of a worker's agent call stack, annotated with
// the identity that pushed it (empty for the bottom frame).
type StackFrame struct {
	Identity
	ParentRole string
	ParentID   string
}

// GetAgentStack returns worker's call stack bottom-to-top, each frame
// annotated with its caller.
func (r *Runtime) GetAgentStack(worker string) []StackFrame {
	r.stacksMu.Lock()
	defer r.stacksMu.Unlock()

	stack := r.workerStacks[worker]
	out := make([]StackFrame, len(stack))
	for i, id := range stack {
		frame := StackFrame{Identity: id}
		if i > 0 {
			frame.ParentRole = stack[i-1].Role
			frame.ParentID = stack[i-1].ID
		}
		out[i] = frame
	}
	return out
}

// RecordSpawnEdge appends a (parent, child) edge, deduplicated, skipping
// self-loops.
func (r *Runtime) RecordSpawnEdge(parent, child Identity) {
	if parent == child {
		return
	}
	key := parent.key() + ">" + child.key()

	r.edgesMu.Lock()
	defer r.edgesMu.Unlock()
	if r.seen[key] {
		return
	}
	r.seen[key] = true
	r.edges = append(r.edges, SpawnEdge{Parent: parent, Child: child})
}

// SpawnEdges returns a snapshot of recorded edges in insertion order.
func (r *Runtime) SpawnEdges() []SpawnEdge {
	r.edgesMu.Lock()
	defer r.edgesMu.Unlock()
	out := make([]SpawnEdge, len(r.edges))
	copy(out, r.edges)
	return out
}

// ErrAgentOnStack is returned by Remove when identity appears on any
// worker's current call-stack.
type errAgentOnStack struct{ identity Identity }

func (e *errAgentOnStack) Error() string {
	return fmt.Sprintf("runtime: agent %s/%s is still on a worker stack", e.identity.Role, e.identity.ID)
}

// onAnyStack reports whether identity currently appears on any worker's
// call-stack.
func (r *Runtime) onAnyStack(identity Identity) bool {
	r.stacksMu.Lock()
	defer r.stacksMu.Unlock()
	for _, stack := range r.workerStacks {
		for _, frame := range stack {
			if frame == identity {
				return true
			}
		}
	}
	return false
}

// Remove deletes the agent record, forbidding removal while identity is on
// any worker's current stack. Callers are responsible for purging the
// agent's conversation history from the Conversation Store; Remove only
// clears the in-memory registry entry.
func (r *Runtime) Remove(identity Identity) error {
	if r.onAnyStack(identity) {
		return &errAgentOnStack{identity: identity}
	}

	r.mu.Lock()
	delete(r.agents, identity.key())
	r.mu.Unlock()
	return nil
}

// SweepStale removes idle agents whose last activity is older than
// olderThan and that are not on any worker's current stack, returning the
// identities removed. Running agents are never swept regardless of age.
func (r *Runtime) SweepStale(olderThan time.Duration) []Identity {
	cutoff := time.Now().Add(-olderThan)

	r.mu.RLock()
	var candidates []Identity
	for _, rec := range r.agents {
		if rec.Status == StatusIdle && rec.lastActive.Before(cutoff) {
			candidates = append(candidates, rec.Identity)
		}
	}
	r.mu.RUnlock()

	var removed []Identity
	for _, id := range candidates {
		if err := r.Remove(id); err == nil {
			removed = append(removed, id)
		}
	}
	return removed
}
