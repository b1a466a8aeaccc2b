// Package session is the in-process registry of live conversational sessions, keyed by
// initiator and workflow kind. It enforces one live instance per key and routes direct
// messages to the session that most recently prompted in a channel.
package session

import (
	"errors"
	"sort"
	"sync"
	"time"

	"modbot/internal/modal"
)

var (
	ErrActive   = errors.New("a session of this kind is already active for the initiator")
	ErrNotFound = errors.New("session not found")
)

type Key struct {
	Initiator string
	Kind      modal.WorkflowKind
}

type Session struct {
	Key        Key
	WorkflowID string
	RunID      string
	// ChannelID and PromptedAt are set by MarkPrompted when the workflow sends a prompt.
	ChannelID  string
	PromptedAt time.Time
	StartedAt  time.Time
	ExpiresAt  time.Time
	// Data carries small per-session values that are not part of a workflow, such as the
	// subject of a pending modal submission.
	Data map[string]string
}

type Registry struct {
	mu       sync.Mutex
	sessions map[Key]*Session
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[Key]*Session), now: time.Now}
}

// WithClock replaces the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// Acquire reserves key for workflowID until ttl elapses or Release is called. It fails with
// ErrActive while a live session holds the key.
func (r *Registry) Acquire(key Key, workflowID string, ttl time.Duration, data map[string]string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if s, ok := r.sessions[key]; ok && now.Before(s.ExpiresAt) {
		return *s, ErrActive
	}
	s := &Session{
		Key:        key,
		WorkflowID: workflowID,
		StartedAt:  now,
		ExpiresAt:  now.Add(ttl),
		Data:       data,
	}
	r.sessions[key] = s
	return *s, nil
}

// Attach records the run id once the workflow has started.
func (r *Registry) Attach(key Key, runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[key]; ok {
		s.RunID = runID
	}
}

// Release evicts key. A non-empty workflowID only releases a session it still owns, so a late
// release from a finished run cannot evict its successor.
func (r *Registry) Release(key Key, workflowID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok || (workflowID != "" && s.WorkflowID != workflowID) {
		return false
	}
	delete(r.sessions, key)
	return true
}

func (r *Registry) Get(key Key) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[key]
	if !ok || !r.now().Before(s.ExpiresAt) {
		return Session{}, false
	}
	return *s, true
}

// MarkPrompted notes that the session's workflow just prompted in channelID.
func (r *Registry) MarkPrompted(workflowID, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.WorkflowID == workflowID {
			s.ChannelID = channelID
			s.PromptedAt = r.now()
			return nil
		}
	}
	return ErrNotFound
}

// Route picks the live session of author most recently prompted in channelID.
func (r *Registry) Route(authorID, channelID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var best *Session
	for _, s := range r.sessions {
		if s.Key.Initiator != authorID || s.ChannelID != channelID || !now.Before(s.ExpiresAt) {
			continue
		}
		if best == nil || s.PromptedAt.After(best.PromptedAt) {
			best = s
		}
	}
	if best == nil {
		return Session{}, false
	}
	return *best, true
}

// Sweep evicts expired sessions and returns them.
func (r *Registry) Sweep() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var evicted []Session
	for k, s := range r.sessions {
		if !now.Before(s.ExpiresAt) {
			evicted = append(evicted, *s)
			delete(r.sessions, k)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i].StartedAt.Before(evicted[j].StartedAt) })
	return evicted
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
