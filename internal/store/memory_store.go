package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"modbot/internal/modal"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	actions     []modal.ActionRecord
	actionIDs   map[string]struct{}
	temp        map[string]modal.TempActionRecord
	commissions map[string]modal.Commission
	notes       []modal.Note
	nextNoteID  int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		actionIDs:   make(map[string]struct{}),
		temp:        make(map[string]modal.TempActionRecord),
		commissions: make(map[string]modal.Commission),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) ActionIDExists(_ context.Context, actionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.actionIDs[actionID]
	return ok, nil
}

func (m *MemoryStore) AppendAction(_ context.Context, rec modal.ActionRecord, temp *modal.TempActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.actionIDs[rec.ActionID]; ok {
		return fmt.Errorf("append action %s: %w", rec.ActionID, ErrDuplicateID)
	}
	if temp != nil {
		if _, ok := m.temp[temp.ActionID]; ok {
			return fmt.Errorf("append temp action %s: %w", temp.ActionID, ErrDuplicateID)
		}
		m.temp[temp.ActionID] = *temp
	}
	m.actionIDs[rec.ActionID] = struct{}{}
	m.actions = append(m.actions, cloneRecord(rec))
	return nil
}

func (m *MemoryStore) GetAction(_ context.Context, actionID string) (modal.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.actions {
		if rec.ActionID == actionID {
			return cloneRecord(rec), nil
		}
	}
	return modal.ActionRecord{}, fmt.Errorf("action %s: %w", actionID, ErrNotFound)
}

func (m *MemoryStore) QueryActions(_ context.Context, q modal.ActionQuery) ([]modal.ActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []modal.ActionRecord
	for _, rec := range m.actions {
		if q.Matches(rec) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Stats(_ context.Context, since time.Time, topN int) (modal.ActionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := modal.ActionStats{Counts: make(map[modal.ActionKind]int)}
	perMod := make(map[string]int)
	for _, rec := range m.actions {
		if stats.FirstAt.IsZero() || rec.CreatedAt.Before(stats.FirstAt) {
			stats.FirstAt = rec.CreatedAt
		}
		if !since.IsZero() && rec.CreatedAt.Before(since) {
			continue
		}
		stats.Counts[rec.Kind]++
		stats.Total++
		perMod[rec.ModeratorID]++
	}
	for id, n := range perMod {
		stats.TopModerators = append(stats.TopModerators, modal.ActorCount{ActorID: id, Count: n})
	}
	sort.Slice(stats.TopModerators, func(i, j int) bool {
		a, b := stats.TopModerators[i], stats.TopModerators[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.ActorID < b.ActorID
	})
	if topN > 0 && len(stats.TopModerators) > topN {
		stats.TopModerators = stats.TopModerators[:topN]
	}
	return stats, nil
}

func (m *MemoryStore) ExpiredTempActions(_ context.Context, now time.Time) ([]modal.TempActionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []modal.TempActionRecord
	for _, t := range m.temp {
		if !t.ExpiresAt.After(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	return out, nil
}

func (m *MemoryStore) DeleteTempAction(_ context.Context, actionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.temp[actionID]; !ok {
		return false, nil
	}
	delete(m.temp, actionID)
	return true, nil
}

func (m *MemoryStore) DeleteTempActionsForSubject(_ context.Context, scopeID, subjectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, t := range m.temp {
		if t.ScopeID == scopeID && t.SubjectID == subjectID {
			delete(m.temp, id)
			n++
		}
	}
	return n, nil
}

// TempActions returns every temporary-action record regardless of expiry.
func (m *MemoryStore) TempActions() []modal.TempActionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]modal.TempActionRecord, 0, len(m.temp))
	for _, t := range m.temp {
		out = append(out, t)
	}
	return out
}

func (m *MemoryStore) CommissionExists(_ context.Context, commissionID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.commissions[commissionID]
	return ok, nil
}

func (m *MemoryStore) CreateCommission(_ context.Context, c modal.Commission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.commissions[c.CommissionID]; ok {
		return fmt.Errorf("create commission %s: %w", c.CommissionID, ErrDuplicateID)
	}
	m.commissions[c.CommissionID] = c
	return nil
}

func (m *MemoryStore) GetCommission(_ context.Context, commissionID string) (modal.Commission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.commissions[commissionID]
	if !ok {
		return modal.Commission{}, fmt.Errorf("commission %s: %w", commissionID, ErrNotFound)
	}
	return c, nil
}

func (m *MemoryStore) ConfirmCommission(_ context.Context, commissionID, channelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.commissions[commissionID]
	if !ok {
		return fmt.Errorf("commission %s: %w", commissionID, ErrNotFound)
	}
	if c.Status != modal.CommissionPending {
		return fmt.Errorf("confirm commission %s from %s: %w", commissionID, c.Status, ErrInvalidTransition)
	}
	c.Status = modal.CommissionConfirmed
	c.ChannelID = channelID
	c.UpdatedAt = at
	m.commissions[commissionID] = c
	return nil
}

func (m *MemoryStore) DeleteCommission(_ context.Context, commissionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.commissions, commissionID)
	return nil
}

// CommissionList returns every stored commission.
func (m *MemoryStore) CommissionList() []modal.Commission {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]modal.Commission, 0, len(m.commissions))
	for _, c := range m.commissions {
		out = append(out, c)
	}
	return out
}

func (m *MemoryStore) AddNote(_ context.Context, n modal.Note) (modal.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextNoteID++
	n.ID = m.nextNoteID
	m.notes = append(m.notes, n)
	return n, nil
}

func (m *MemoryStore) ListNotes(_ context.Context, subjectID string) ([]modal.Note, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []modal.Note
	for _, n := range m.notes {
		if n.SubjectID == subjectID {
			out = append(out, n)
		}
	}
	return out, nil
}

func cloneRecord(rec modal.ActionRecord) modal.ActionRecord {
	if rec.DurationSpec != nil {
		rec.DurationSpec = modal.StringPtr(*rec.DurationSpec)
	}
	return rec
}
