package world

import (
	"sync"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/coherence"
	"github.com/annel0/constructs/internal/logging"
	"github.com/annel0/constructs/internal/vec"
)

// chunk загруженная колонка: сгенерированный рельеф
type chunk struct {
	columns *[vec.ChunkSize * vec.ChunkSize]column
}

// Level воксельный уровень в памяти: рельеф генератора, поставленные блоки,
// сущности с пространственным индексом и множество загруженных чанков.
// Поставленные блоки переживают выгрузку чанка.
type Level struct {
	name   string
	gen    *Generator
	logger *logging.Logger

	mu       sync.RWMutex
	chunks   map[vec.ChunkPos]*chunk
	placed   map[vec.Vec3]block.Descriptor
	index    *SpatialIndex
	nextID   uint64
	handlers []ChunkHandler
}

// NewLevel создаёт пустой уровень. gen == nil даёт плоский мир из воздуха.
func NewLevel(name string, gen *Generator, logger *logging.Logger) *Level {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Level{
		name:   name,
		gen:    gen,
		logger: logger,
		chunks: make(map[vec.ChunkPos]*chunk),
		placed: make(map[vec.Vec3]block.Descriptor),
		index:  NewSpatialIndex(vec.ChunkSize),
		nextID: 1000,
	}
}

// Name имя уровня
func (l *Level) Name() string {
	return l.name
}

// OnChunkEvent подписывает обработчик событий чанков
func (l *Level) OnChunkEvent(h ChunkHandler) {
	l.mu.Lock()
	l.handlers = append(l.handlers, h)
	l.mu.Unlock()
}

func (l *Level) emit(ev ChunkEvent) {
	l.mu.RLock()
	handlers := append([]ChunkHandler(nil), l.handlers...)
	l.mu.RUnlock()
	for _, h := range handlers {
		h(ev)
	}
}

// LoadChunk загружает колонку; true, если она не была загружена
func (l *Level) LoadChunk(x, z int) bool {
	pos := vec.ChunkPos{X: x, Z: z}

	l.mu.Lock()
	if _, ok := l.chunks[pos]; ok {
		l.mu.Unlock()
		return false
	}
	c := &chunk{}
	if l.gen != nil {
		c.columns = l.gen.generateChunk(pos)
	}
	l.chunks[pos] = c
	l.mu.Unlock()

	l.logger.Trace("%s: чанк (%d,%d) загружен", l.name, x, z)
	l.emit(ChunkEvent{Type: EventChunkLoaded, Level: l.name, Chunk: pos})
	return true
}

// UnloadChunk выгружает колонку
func (l *Level) UnloadChunk(x, z int) bool {
	pos := vec.ChunkPos{X: x, Z: z}

	l.mu.Lock()
	if _, ok := l.chunks[pos]; !ok {
		l.mu.Unlock()
		return false
	}
	delete(l.chunks, pos)
	l.mu.Unlock()

	l.emit(ChunkEvent{Type: EventChunkUnloaded, Level: l.name, Chunk: pos})
	return true
}

// IsChunkLoaded загружена ли колонка
func (l *Level) IsChunkLoaded(x, z int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.chunks[vec.ChunkPos{X: x, Z: z}]
	return ok
}

// LoadedChunks количество загруженных колонок
func (l *Level) LoadedChunks() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chunks)
}

// EnsureLoaded загружает недостающие колонки
func (l *Level) EnsureLoaded(chunks []vec.ChunkPos) {
	for _, c := range chunks {
		l.LoadChunk(c.X, c.Z)
	}
}

// SetBlock ставит блок, при необходимости загружая колонку
func (l *Level) SetBlock(pos vec.Vec3, d block.Descriptor) {
	c := pos.Chunk()
	l.LoadChunk(c.X, c.Z)

	l.mu.Lock()
	l.placed[pos] = d
	l.mu.Unlock()
}

// DescriptorAt блок в позиции. Для выгруженной колонки: воздух.
func (l *Level) DescriptorAt(pos vec.Vec3) block.Descriptor {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.chunks[pos.Chunk()]
	if !ok {
		return block.Air
	}
	if d, ok := l.placed[pos]; ok {
		return d
	}
	if c.columns == nil {
		return block.Air
	}
	lx, lz := vec.LocalInChunk(pos.X, pos.Z)
	return l.gen.blockAt(c.columns[lz*vec.ChunkSize+lx], pos.Y)
}

// ClearArea заменяет блоки ящика воздухом и убирает сущности внутри него
func (l *Level) ClearArea(min, max vec.Vec3) int {
	l.EnsureLoaded(chunksBetween(min, max))

	l.mu.Lock()
	defer l.mu.Unlock()

	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				l.placed[vec.Vec3{X: x, Y: y, Z: z}] = block.Air
			}
		}
	}
	box := vec.AABB{
		Min: min.Float(),
		Max: vec.Vec3Float{X: float64(max.X) + 1, Y: float64(max.Y) + 1, Z: float64(max.Z) + 1},
	}
	removed := 0
	for _, e := range l.index.QueryBox(box) {
		l.index.Remove(e.ID)
		removed++
	}
	return removed
}

// SpawnEntity добавляет сущность и возвращает её ID
func (l *Level) SpawnEntity(entityType string, pos vec.Vec3Float) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID++
	l.index.Insert(&Entity{ID: l.nextID, Type: entityType, Pos: pos})
	return l.nextID
}

// MoveEntity перемещает сущность
func (l *Level) MoveEntity(id uint64, pos vec.Vec3Float) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.index.Get(id)
	if !ok {
		return false
	}
	l.index.Insert(&Entity{ID: id, Type: e.Type, Pos: pos})
	return true
}

// RemoveEntity удаляет сущность
func (l *Level) RemoveEntity(id uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Remove(id)
}

// FindEntities сущности типа entityType внутри ящика (пустой тип: любые).
// Сущности в выгруженных колонках не видны.
func (l *Level) FindEntities(entityType string, box vec.AABB) []coherence.EntityRef {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []coherence.EntityRef
	for _, e := range l.index.QueryBox(box) {
		if entityType != "" && e.Type != entityType {
			continue
		}
		if _, ok := l.chunks[e.Pos.Block().Chunk()]; !ok {
			continue
		}
		out = append(out, coherence.EntityRef{ID: e.ID, Type: e.Type, Pos: e.Pos})
	}
	return out
}

// EntityCount количество сущностей уровня
func (l *Level) EntityCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index.GetEntityCount()
}

func chunksBetween(min, max vec.Vec3) []vec.ChunkPos {
	lo, hi := min.Chunk(), max.Chunk()
	var out []vec.ChunkPos
	for x := lo.X; x <= hi.X; x++ {
		for z := lo.Z; z <= hi.Z; z++ {
			out = append(out, vec.ChunkPos{X: x, Z: z})
		}
	}
	return out
}

var _ coherence.WorldReader = (*Level)(nil)
