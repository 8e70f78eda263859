package template

// #region imports
import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// #endregion imports

// #region memory-backend

// MemoryBackend is an in-process Backend with the same semantics as the
// SQLite store. Used by the replay harness and tests.
type MemoryBackend struct {
	mu         sync.RWMutex
	historyCap int
	active     map[string]Template
	history    map[string][]Archived
	nextID     int64
}

// NewMemoryBackend returns an empty backend keeping at most historyCap
// archived templates per agent.
func NewMemoryBackend(historyCap int) *MemoryBackend {
	if historyCap <= 0 {
		historyCap = 10
	}
	return &MemoryBackend{
		historyCap: historyCap,
		active:     make(map[string]Template),
		history:    make(map[string][]Archived),
	}
}

// Load reads an agent's active template.
func (m *MemoryBackend) Load(ctx context.Context, agentID string) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.active[agentID]
	if !ok {
		return Template{}, fmt.Errorf("load %s: %w", agentID, ErrNotFound)
	}
	return t, nil
}

// LoadHistory returns an agent's archived templates, oldest first.
func (m *MemoryBackend) LoadHistory(ctx context.Context, agentID string) ([]Archived, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Archived, len(m.history[agentID]))
	copy(out, m.history[agentID])
	return out, nil
}

// Save replaces the active template, optionally archiving the displaced
// one, atomically under the backend lock.
func (m *MemoryBackend) Save(ctx context.Context, next Template, archive *Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[next.AgentID]; !ok {
		return fmt.Errorf("save %s: %w", next.AgentID, ErrNotFound)
	}
	if archive != nil {
		m.pushLocked(*archive)
	}
	m.active[next.AgentID] = next
	return nil
}

// Enroll registers an agent's first template.
func (m *MemoryBackend) Enroll(ctx context.Context, t Template) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[t.AgentID]; ok {
		return fmt.Errorf("enroll %s: %w", t.AgentID, ErrExists)
	}
	m.active[t.AgentID] = t
	return nil
}

// Rollback restores a history entry as active, archiving the displaced
// template.
func (m *MemoryBackend) Rollback(ctx context.Context, agentID string, historyID int64) (Template, error) {
	if err := ctx.Err(); err != nil {
		return Template{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var restored *Template
	for _, a := range m.history[agentID] {
		if a.HistoryID == historyID {
			t := a.Template
			restored = &t
			break
		}
	}
	if restored == nil {
		return Template{}, fmt.Errorf("history entry %d for %s: %w", historyID, agentID, ErrNotFound)
	}
	current, ok := m.active[agentID]
	if !ok {
		return Template{}, fmt.Errorf("rollback %s: %w", agentID, ErrNotFound)
	}
	m.pushLocked(current)
	m.active[agentID] = *restored
	return *restored, nil
}

// Agents lists enrolled agent IDs in lexical order.
func (m *MemoryBackend) Agents(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	agents := make([]string, 0, len(m.active))
	for id := range m.active {
		agents = append(agents, id)
	}
	sort.Strings(agents)
	return agents, nil
}

func (m *MemoryBackend) pushLocked(t Template) {
	m.nextID++
	m.history[t.AgentID] = append(m.history[t.AgentID], Archived{
		HistoryID:  m.nextID,
		Template:   t,
		ArchivedAt: time.Now().UTC(),
	})
	if over := len(m.history[t.AgentID]) - m.historyCap; over > 0 {
		m.history[t.AgentID] = m.history[t.AgentID][over:]
	}
}

// #endregion memory-backend
