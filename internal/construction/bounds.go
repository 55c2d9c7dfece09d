package construction

import (
	"fmt"

	"github.com/annel0/constructs/internal/vec"
)

// Bounds выровненный по осям ящик блоков с включительными углами Min/Max.
// Нулевое значение не задано: у постройки ещё нет пространственного охвата.
type Bounds struct {
	Min vec.Vec3
	Max vec.Vec3
	set bool
}

// NewBounds создаёт заданные границы по двум углам (порядок углов не важен)
func NewBounds(a, b vec.Vec3) Bounds {
	return Bounds{
		Min: vec.Vec3{X: min(a.X, b.X), Y: min(a.Y, b.Y), Z: min(a.Z, b.Z)},
		Max: vec.Vec3{X: max(a.X, b.X), Y: max(a.Y, b.Y), Z: max(a.Z, b.Z)},
		set: true,
	}
}

// Valid сообщает, заданы ли границы: Min <= Max по каждой оси
func (b Bounds) Valid() bool {
	return b.set && b.Min.X <= b.Max.X && b.Min.Y <= b.Max.Y && b.Min.Z <= b.Max.Z
}

// Contains проверяет вхождение позиции. Для незаданных границ всегда false.
func (b Bounds) Contains(p vec.Vec3) bool {
	if !b.Valid() {
		return false
	}
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ExpandToInclude монотонно расширяет границы до точки p. Границы никогда не сжимаются.
func (b *Bounds) ExpandToInclude(p vec.Vec3) {
	if !b.Valid() {
		b.Min, b.Max, b.set = p, p, true
		return
	}
	b.Min = vec.Vec3{X: min(b.Min.X, p.X), Y: min(b.Min.Y, p.Y), Z: min(b.Min.Z, p.Z)}
	b.Max = vec.Vec3{X: max(b.Max.X, p.X), Y: max(b.Max.Y, p.Y), Z: max(b.Max.Z, p.Z)}
}

// Reset явно сбрасывает границы в незаданное состояние
func (b *Bounds) Reset() {
	*b = Bounds{}
}

// Size возвращает Max-Min (нулевой вектор для ящика из одного блока)
func (b Bounds) Size() vec.Vec3 {
	if !b.Valid() {
		return vec.Vec3{}
	}
	return b.Max.Sub(b.Min)
}

// Volume количество блоков внутри
func (b Bounds) Volume() int {
	if !b.Valid() {
		return 0
	}
	s := b.Size()
	return (s.X + 1) * (s.Y + 1) * (s.Z + 1)
}

// Chunks возвращает все колонки чанков, которые пересекает ящик
func (b Bounds) Chunks() []vec.ChunkPos {
	if !b.Valid() {
		return nil
	}
	lo, hi := b.Min.Chunk(), b.Max.Chunk()
	out := make([]vec.ChunkPos, 0, (hi.X-lo.X+1)*(hi.Z-lo.Z+1))
	for x := lo.X; x <= hi.X; x++ {
		for z := lo.Z; z <= hi.Z; z++ {
			out = append(out, vec.ChunkPos{X: x, Z: z})
		}
	}
	return out
}

func (b Bounds) String() string {
	if !b.Valid() {
		return "bounds(unset)"
	}
	return fmt.Sprintf("bounds(%d,%d,%d -> %d,%d,%d)", b.Min.X, b.Min.Y, b.Min.Z, b.Max.X, b.Max.Y, b.Max.Z)
}
