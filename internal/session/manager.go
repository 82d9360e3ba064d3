package session

import (
	"context"
	"slices"
	"sync"

	"github.com/sells-group/brandpulse/internal/poller"
	"github.com/sells-group/brandpulse/pkg/pipelineapi"
)

// Manager lazily creates one Session per subject. All sessions share the
// manager's poller.
type Manager struct {
	ctx    context.Context
	client pipelineapi.Client
	poller *poller.Poller
	opts   []Option

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. Sessions run under ctx.
func NewManager(ctx context.Context, client pipelineapi.Client, p *poller.Poller, opts ...Option) *Manager {
	return &Manager{
		ctx:      ctx,
		client:   client,
		poller:   p,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Get returns the running session for subjectID, starting one if needed.
func (m *Manager) Get(subjectID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[subjectID]; ok {
		return s, nil
	}
	s := New(subjectID, m.client, m.poller, m.opts...)
	if err := s.Start(m.ctx); err != nil {
		return nil, err
	}
	m.sessions[subjectID] = s
	return s, nil
}

// Lookup returns the session for subjectID without creating one.
func (m *Manager) Lookup(subjectID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[subjectID]
	return s, ok
}

// Subjects lists the subjects with a running session, sorted.
func (m *Manager) Subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Stop stops and forgets the session for subjectID.
func (m *Manager) Stop(subjectID string) {
	m.mu.Lock()
	s, ok := m.sessions[subjectID]
	delete(m.sessions, subjectID)
	m.mu.Unlock()
	if ok {
		s.Stop()
	}
}

// Close stops every session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
