package world

import (
	"sort"
	"sync"

	"github.com/annel0/constructs/internal/spawn"
)

// Manager уровни мира по имени
type Manager struct {
	mu     sync.RWMutex
	levels map[string]*Level
}

// NewManager создаёт пустой менеджер
func NewManager() *Manager {
	return &Manager{levels: make(map[string]*Level)}
}

// Add регистрирует уровень (замещая одноимённый)
func (m *Manager) Add(l *Level) {
	m.mu.Lock()
	m.levels[l.Name()] = l
	m.mu.Unlock()
}

// Remove убирает уровень (выгрузка)
func (m *Manager) Remove(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.levels[name]; !ok {
		return false
	}
	delete(m.levels, name)
	return true
}

// Level уровень по имени
func (m *Manager) Level(name string) (*Level, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.levels[name]
	return l, ok
}

// ResolveLevel реализует spawn.LevelResolver
func (m *Manager) ResolveLevel(name string) (spawn.Level, bool) {
	l, ok := m.Level(name)
	if !ok {
		return nil, false
	}
	return l, true
}

// Names имена уровней по возрастанию
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.levels))
	for n := range m.levels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FeedSpawnQueue направляет загрузку чанков всех уровней в очередь появления
func (m *Manager) FeedSpawnQueue(q *spawn.Queue) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, l := range m.levels {
		l.OnChunkEvent(func(ev ChunkEvent) {
			if ev.Type == EventChunkLoaded {
				q.Enqueue(ev.Level, ev.Chunk.X, ev.Chunk.Z)
			}
		})
	}
}

var _ spawn.LevelResolver = (*Manager)(nil)
