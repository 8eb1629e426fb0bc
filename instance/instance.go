// Package instance keeps the configured game instances.
package instance

import (
	"context"
	"errors"
	"sync"

	"github.com/wfunc/soundbeats/game"
	"github.com/wfunc/soundbeats/media"
)

var ErrNotFound = errors.New("instance not found")

// Instance is one configured deployment with its own game and player.
type Instance struct {
	ID           string
	Name         string
	MaxTeams     int
	TimerSeconds int
	Game         *game.Store
	Player       *media.Controller // nil when no media player is configured
}

// TeamLimit is the largest team count a new game may use.
func (i *Instance) TeamLimit() int {
	if i.MaxTeams <= 0 || i.MaxTeams > game.MaxTeams {
		return game.MaxTeams
	}
	return i.MaxTeams
}

// DefaultTimer is the round length used when a request gives none.
func (i *Instance) DefaultTimer() int {
	if i.TimerSeconds <= 0 {
		return game.DefaultTimerSeconds
	}
	return i.TimerSeconds
}

// Manager 管理所有实例，按注册顺序保存
type Manager struct {
	instances map[string]*Instance
	order     []string
	mutex     sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		instances: make(map[string]*Instance),
	}
}

// Add registers inst, replacing any instance with the same id.
func (m *Manager) Add(inst *Instance) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.instances[inst.ID]; !exists {
		m.order = append(m.order, inst.ID)
	}
	m.instances[inst.ID] = inst
}

func (m *Manager) Get(id string) (*Instance, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	inst, exists := m.instances[id]
	return inst, exists
}

// Resolve returns the named instance, or the first configured one when id is empty.
func (m *Manager) Resolve(id string) (*Instance, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if id == "" {
		if len(m.order) == 0 {
			return nil, ErrNotFound
		}
		return m.instances[m.order[0]], nil
	}
	inst, exists := m.instances[id]
	if !exists {
		return nil, ErrNotFound
	}
	return inst, nil
}

// All returns the instances in registration order.
func (m *Manager) All() []*Instance {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	out := make([]*Instance, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.instances[id])
	}
	return out
}

func (m *Manager) Count() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.order)
}

// LoadAll restores every instance's stored state.
func (m *Manager) LoadAll(ctx context.Context) {
	for _, inst := range m.All() {
		inst.Game.LoadState(ctx)
	}
}

// SaveAll flushes every instance's state.
func (m *Manager) SaveAll(ctx context.Context) {
	for _, inst := range m.All() {
		inst.Game.SaveState(ctx)
	}
}
