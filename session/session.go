package session

import (
	"sync"
	"time"

	"github.com/wfunc/soundbeats/auth"
	"github.com/wfunc/soundbeats/network"
)

// Session is one authenticated command-channel connection.
type Session struct {
	ID     string
	Conn   network.Connection
	Caller auth.Caller

	instanceID  string // events filter; empty receives every instance
	connectedAt time.Time
	lastSeen    time.Time
	mutex       sync.RWMutex
}

func NewSession(id string, conn network.Connection, caller auth.Caller) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		Conn:        conn,
		Caller:      caller,
		connectedAt: now,
		lastSeen:    now,
	}
}

// Subscribe restricts pushed events to one instance. An empty id clears the filter.
func (s *Session) Subscribe(instanceID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.instanceID = instanceID
}

// Subscription is the instance filter, empty when none is set.
func (s *Session) Subscription() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.instanceID
}

// Wants reports whether an event from instanceID should reach this session.
// Events without an instance reach everyone.
func (s *Session) Wants(instanceID string) bool {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.instanceID == "" || instanceID == "" || s.instanceID == instanceID
}

// Touch marks the session as seen now.
func (s *Session) Touch() {
	s.mutex.Lock()
	s.lastSeen = time.Now()
	s.mutex.Unlock()
}

func (s *Session) LastSeen() time.Time {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.lastSeen
}

func (s *Session) ConnectedAt() time.Time {
	return s.connectedAt
}

func (s *Session) Send(v interface{}) error {
	s.Touch()
	return s.Conn.Send(v)
}

func (s *Session) Close() error {
	return s.Conn.Close()
}

// Manager tracks live sessions by id.
type Manager struct {
	sessions map[string]*Session
	mutex    sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Add(session *Session) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.sessions[session.ID] = session
}

func (m *Manager) Remove(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.sessions, sessionID)
}

func (m *Manager) Get(sessionID string) (*Session, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	session, exists := m.sessions[sessionID]
	return session, exists
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

// All returns a snapshot of every session.
func (m *Manager) All() []*Session {
	return m.filter(func(*Session) bool { return true })
}

// Subscribers returns the sessions that want events from instanceID.
func (m *Manager) Subscribers(instanceID string) []*Session {
	return m.filter(func(s *Session) bool { return s.Wants(instanceID) })
}

// ByUser returns every session opened by userID.
func (m *Manager) ByUser(userID string) []*Session {
	return m.filter(func(s *Session) bool { return s.Caller.UserID == userID })
}

// CloseAll closes every connection; read loops then remove their sessions.
func (m *Manager) CloseAll() {
	for _, s := range m.All() {
		s.Close()
	}
}

func (m *Manager) filter(keep func(*Session) bool) []*Session {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	result := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		if keep(session) {
			result = append(result, session)
		}
	}
	return result
}
