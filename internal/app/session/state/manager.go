package state

import (
	"sync"
	"time"
)

// Manager manages session state with thread-safe access.
type Manager struct {
	mu sync.RWMutex

	phase       Phase
	guildID     string
	connectedAt time.Time
	pauseCause  PauseCause
}

// New creates a new state manager in the idle phase.
func New() *Manager {
	return &Manager{phase: PhaseIdle}
}

// GetPhase returns the current session phase.
func (m *Manager) GetPhase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Connect records a voice connection in guildID. It does nothing once closed.
func (m *Manager) Connect(guildID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseClosed {
		return
	}
	if m.phase != PhaseConnected || m.guildID != guildID {
		m.connectedAt = time.Now()
	}
	m.phase = PhaseConnected
	m.guildID = guildID
}

// Disconnect returns to the idle phase. It reports whether the session was connected.
func (m *Manager) Disconnect() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhaseConnected {
		return false
	}
	m.phase = PhaseIdle
	m.pauseCause = PauseNone
	return true
}

// Close moves to the closed phase for good.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhaseClosed
}

// IsConnected returns true while joined to a voice channel.
func (m *Manager) IsConnected() bool {
	return m.GetPhase() == PhaseConnected
}

// CanAcceptRequests returns true unless the session is closed.
func (m *Manager) CanAcceptRequests() bool {
	return m.GetPhase() != PhaseClosed
}

// GetGuildID returns the guild of the last voice connection.
func (m *Manager) GetGuildID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.guildID
}

// ConnectedFor returns how long the current connection has lasted.
func (m *Manager) ConnectedFor() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.phase != PhaseConnected {
		return 0
	}
	return time.Since(m.connectedAt)
}

// SetPauseCause records why the session paused playback.
func (m *Manager) SetPauseCause(c PauseCause) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pauseCause = c
}

// TakePauseCause returns the recorded pause cause and clears it.
func (m *Manager) TakePauseCause() PauseCause {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.pauseCause
	m.pauseCause = PauseNone
	return c
}
