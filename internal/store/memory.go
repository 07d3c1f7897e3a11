package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/swarmrun/swarmrun/internal/models"
)

// MemoryStore is an in-process Store backed by a guarded map, useful for
// tests and for running the engine without a Postgres instance configured.
type MemoryStore struct {
	mu        sync.RWMutex
	turns     map[string][]models.Turn
	states    map[string]models.AgentState
}

// NewMemoryStore returns an empty in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		turns:  make(map[string][]models.Turn),
		states: make(map[string]models.AgentState),
	}
}

func (s *MemoryStore) stateLocked(key models.ConversationKey) models.AgentState {
	if st, ok := s.states[key.String()]; ok {
		return st
	}
	return models.NewAgentState(key)
}

// AllocateNextTurnIdx implements Store.
func (s *MemoryStore) AllocateNextTurnIdx(ctx context.Context, key models.ConversationKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(key)
	st.LastTurnIdx++
	st.UpdatedAt = time.Now()
	s.states[key.String()] = st
	return st.LastTurnIdx, nil
}

// AllocateNextMessageID implements Store.
func (s *MemoryStore) AllocateNextMessageID(ctx context.Context, key models.ConversationKey) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(key)
	st.LastMessageID++
	st.UpdatedAt = time.Now()
	s.states[key.String()] = st
	return st.LastMessageID, nil
}

// LoadTurns implements Store.
func (s *MemoryStore) LoadTurns(ctx context.Context, key models.ConversationKey) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	existing := s.turns[key.String()]
	out := make([]models.Turn, len(existing))
	for i, t := range existing {
		out[i] = cloneTurn(t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TurnIdx < out[j].TurnIdx })
	return out, nil
}

// QueryTurns implements Store.
func (s *MemoryStore) QueryTurns(ctx context.Context, key models.ConversationKey, filters QueryFilters, srt Sort, limit, offset int) ([]models.Turn, error) {
	turns, err := s.LoadTurns(ctx, key)
	if err != nil {
		return nil, err
	}

	filtered := make([]models.Turn, 0, len(turns))
	for _, t := range turns {
		if !matchesFilters(t, filters) {
			continue
		}
		filtered = append(filtered, t)
	}

	applySort(filtered, srt)

	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return nil, nil
	}
	end := len(filtered)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return filtered[offset:end], nil
}

func matchesFilters(t models.Turn, f QueryFilters) bool {
	if f.Status != "" {
		if t.ToolInvocation == nil || t.ToolInvocation.Status != f.Status {
			return false
		}
	}
	if f.ToolName != "" {
		if t.ToolInvocation == nil || t.ToolInvocation.ToolName != f.ToolName {
			return false
		}
	}
	if f.Deleted != nil {
		if t.ToolInvocation == nil || t.ToolInvocation.Deleted != *f.Deleted {
			return false
		}
	}
	if f.TimeWindow != nil {
		inWindow := false
		for _, m := range t.Messages {
			if !m.Timestamp.Before(f.TimeWindow.Start) && !m.Timestamp.After(f.TimeWindow.End) {
				inWindow = true
				break
			}
		}
		if !inWindow {
			return false
		}
	}
	return true
}

// SaveTurns implements Store.
func (s *MemoryStore) SaveTurns(ctx context.Context, key models.ConversationKey, turns []models.Turn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clones := make([]models.Turn, len(turns))
	for i, t := range turns {
		clones[i] = cloneTurn(t)
	}
	s.turns[key.String()] = clones
	return nil
}

// DeleteConversation implements Store.
func (s *MemoryStore) DeleteConversation(ctx context.Context, key models.ConversationKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, key.String())
	delete(s.states, key.String())
	return nil
}

// GetAgentState implements Store.
func (s *MemoryStore) GetAgentState(ctx context.Context, key models.ConversationKey) (models.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked(key), nil
}

// GetMetadata implements Store.
func (s *MemoryStore) GetMetadata(ctx context.Context, key models.ConversationKey) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.stateLocked(key)
	out := make(map[string]any, len(st.Metadata))
	for k, v := range st.Metadata {
		out[k] = v
	}
	return out, nil
}

// UpdateMetadata implements Store.
func (s *MemoryStore) UpdateMetadata(ctx context.Context, key models.ConversationKey, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stateLocked(key)
	if st.Metadata == nil {
		st.Metadata = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		st.Metadata[k] = v
	}
	st.UpdatedAt = time.Now()
	s.states[key.String()] = st
	return nil
}

func cloneTurn(t models.Turn) models.Turn {
	clone := t
	clone.Messages = make([]models.Message, len(t.Messages))
	copy(clone.Messages, t.Messages)
	if t.ToolInvocation != nil {
		inv := *t.ToolInvocation
		clone.ToolInvocation = &inv
	}
	if t.TurnsToPurge != nil {
		clone.TurnsToPurge = append([]int(nil), t.TurnsToPurge...)
	}
	return clone
}
