package construction

import (
	"sort"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/vec"
)

// BlockEntry пара позиция/дескриптор
type BlockEntry struct {
	Pos   vec.Vec3         `json:"pos"`
	Block block.Descriptor `json:"block"`
}

// Room именованная подобласть постройки. Её блоки: переопределения базового
// состояния, видимые в мире только пока комната активна. Своих границ у комнаты нет.
type Room struct {
	id       string
	blocks   map[vec.Vec3]block.Descriptor
	entities []EntityData
}

func newRoom(id string) *Room {
	return &Room{
		id:     id,
		blocks: make(map[vec.Vec3]block.Descriptor),
	}
}

// ID возвращает идентификатор комнаты
func (r *Room) ID() string {
	return r.id
}

// HasBlockChange сообщает, переопределяет ли комната позицию
func (r *Room) HasBlockChange(pos vec.Vec3) bool {
	_, ok := r.blocks[pos]
	return ok
}

// BlockChange возвращает переопределение в позиции
func (r *Room) BlockChange(pos vec.Vec3) (block.Descriptor, bool) {
	d, ok := r.blocks[pos]
	return d, ok
}

// BlockChanges возвращает все переопределения в детерминированном порядке
func (r *Room) BlockChanges() []BlockEntry {
	return sortedEntries(r.blocks)
}

// BlockChangeCount количество переопределений
func (r *Room) BlockChangeCount() int {
	return len(r.blocks)
}

// Entities возвращает копию списка сущностей комнаты
func (r *Room) Entities() []EntityData {
	return append([]EntityData(nil), r.entities...)
}

// Entity возвращает сущность по индексу
func (r *Room) Entity(i int) (EntityData, bool) {
	if i < 0 || i >= len(r.entities) {
		return EntityData{}, false
	}
	return r.entities[i], true
}

func (r *Room) clone() *Room {
	out := newRoom(r.id)
	for p, d := range r.blocks {
		out.blocks[p] = d
	}
	out.entities = r.Entities()
	return out
}

func sortedEntries(m map[vec.Vec3]block.Descriptor) []BlockEntry {
	out := make([]BlockEntry, 0, len(m))
	for p, d := range m {
		out = append(out, BlockEntry{Pos: p, Block: d})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}
