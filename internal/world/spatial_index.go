package world

import (
	"fmt"
	"math"
	"sort"

	"github.com/annel0/constructs/internal/vec"
)

// Entity сущность живого уровня
type Entity struct {
	ID   uint64
	Type string
	Pos  vec.Vec3Float
}

// cellKey ячейка сетки по X/Z
type cellKey struct {
	x, z int
}

// SpatialIndex сетка ячеек для поиска сущностей по ящику.
// Синхронизацию обеспечивает владелец (Level).
type SpatialIndex struct {
	cellSize float64
	cells    map[cellKey]map[uint64]*Entity
	entities map[uint64]*Entity
}

// NewSpatialIndex создаёт индекс с ячейкой cellSize (по умолчанию размер чанка)
func NewSpatialIndex(cellSize float64) *SpatialIndex {
	if cellSize <= 0 {
		cellSize = vec.ChunkSize
	}
	return &SpatialIndex{
		cellSize: cellSize,
		cells:    make(map[cellKey]map[uint64]*Entity),
		entities: make(map[uint64]*Entity),
	}
}

func (si *SpatialIndex) keyFor(x, z float64) cellKey {
	return cellKey{x: int(math.Floor(x / si.cellSize)), z: int(math.Floor(z / si.cellSize))}
}

// Insert добавляет или перемещает сущность
func (si *SpatialIndex) Insert(e *Entity) {
	if old, ok := si.entities[e.ID]; ok {
		si.removeFromCell(old)
	}
	key := si.keyFor(e.Pos.X, e.Pos.Z)
	cell, ok := si.cells[key]
	if !ok {
		cell = make(map[uint64]*Entity)
		si.cells[key] = cell
	}
	cell[e.ID] = e
	si.entities[e.ID] = e
}

// Remove удаляет сущность; false, если её не было
func (si *SpatialIndex) Remove(id uint64) bool {
	e, ok := si.entities[id]
	if !ok {
		return false
	}
	si.removeFromCell(e)
	delete(si.entities, id)
	return true
}

func (si *SpatialIndex) removeFromCell(e *Entity) {
	key := si.keyFor(e.Pos.X, e.Pos.Z)
	if cell, ok := si.cells[key]; ok {
		delete(cell, e.ID)
		if len(cell) == 0 {
			delete(si.cells, key)
		}
	}
}

// Get возвращает сущность по ID
func (si *SpatialIndex) Get(id uint64) (*Entity, bool) {
	e, ok := si.entities[id]
	return e, ok
}

// QueryBox возвращает сущности внутри ящика, упорядоченные по ID
func (si *SpatialIndex) QueryBox(box vec.AABB) []*Entity {
	lo := si.keyFor(box.Min.X, box.Min.Z)
	hi := si.keyFor(box.Max.X, box.Max.Z)

	var out []*Entity
	for x := lo.x; x <= hi.x; x++ {
		for z := lo.z; z <= hi.z; z++ {
			for _, e := range si.cells[cellKey{x: x, z: z}] {
				if box.Contains(e.Pos) {
					out = append(out, e)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetCellCount количество непустых ячеек
func (si *SpatialIndex) GetCellCount() int {
	return len(si.cells)
}

// GetEntityCount количество сущностей
func (si *SpatialIndex) GetEntityCount() int {
	return len(si.entities)
}

// GetStats строка для диагностики
func (si *SpatialIndex) GetStats() string {
	avg := 0.0
	if len(si.cells) > 0 {
		avg = float64(len(si.entities)) / float64(len(si.cells))
	}
	return fmt.Sprintf("SpatialIndex: cells=%d entities=%d avg_per_cell=%.2f cell_size=%.1f",
		len(si.cells), len(si.entities), avg, si.cellSize)
}
