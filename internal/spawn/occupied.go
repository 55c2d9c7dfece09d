package spawn

import "sync"

// ChunkKey колонка чанка конкретного уровня
type ChunkKey struct {
	Level string
	X, Z  int
}

// OccupiedChunks множество зарезервированных чанков.
// Пишется вычислителем, очищается очередью после периода тишины.
type OccupiedChunks struct {
	mu     sync.RWMutex
	chunks map[ChunkKey]struct{}
}

// NewOccupiedChunks создаёт пустое множество
func NewOccupiedChunks() *OccupiedChunks {
	return &OccupiedChunks{chunks: make(map[ChunkKey]struct{})}
}

// Reserve помечает чанк; false, если он уже занят
func (o *OccupiedChunks) Reserve(level string, x, z int) bool {
	key := ChunkKey{Level: level, X: x, Z: z}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.chunks[key]; ok {
		return false
	}
	o.chunks[key] = struct{}{}
	return true
}

// Release снимает резерв
func (o *OccupiedChunks) Release(level string, x, z int) {
	o.mu.Lock()
	delete(o.chunks, ChunkKey{Level: level, X: x, Z: z})
	o.mu.Unlock()
}

// IsOccupied проверяет резерв
func (o *OccupiedChunks) IsOccupied(level string, x, z int) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.chunks[ChunkKey{Level: level, X: x, Z: z}]
	return ok
}

// Len количество зарезервированных чанков
func (o *OccupiedChunks) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.chunks)
}

// Clear снимает все резервы и возвращает их количество
func (o *OccupiedChunks) Clear() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.chunks)
	o.chunks = make(map[ChunkKey]struct{})
	return n
}
