package construction

import (
	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/vec"
)

// Transform перенос постройки: поворот вокруг её границ и новый минимальный угол
type Transform struct {
	Rotation vec.Rotation
	NewMin   vec.Vec3
}

// ApplyTransform поворачивает и переносит все координаты постройки и её комнат.
// Границы пересчитываются в том же вызове, поэтому после него границы,
// блоки и смещения сущностей согласованы.
func (c *Construction) ApplyTransform(t Transform) error {
	if !c.bounds.Valid() {
		return ErrNoBounds
	}

	rot := t.Rotation.Normalize()
	old := c.bounds
	size := old.Size()

	mapPos := func(p vec.Vec3) vec.Vec3 {
		rel := p.Sub(old.Min)
		x, z := rot.RotateCell(rel.X, rel.Z, size.X, size.Z)
		return t.NewMin.Add(vec.Vec3{X: x, Y: rel.Y, Z: z})
	}
	mapBlocks := func(m map[vec.Vec3]block.Descriptor) map[vec.Vec3]block.Descriptor {
		out := make(map[vec.Vec3]block.Descriptor, len(m))
		for p, d := range m {
			out[mapPos(p)] = d.Rotate(rot)
		}
		return out
	}
	// Сущности живут в непрерывном пространстве: ящик шире на один блок
	w, d := float64(size.X+1), float64(size.Z+1)
	mapEntities := func(list []EntityData) []EntityData {
		out := make([]EntityData, len(list))
		for i, e := range list {
			x, z := rot.RotatePoint(e.Rel.X, e.Rel.Z, w, d)
			out[i] = EntityData{Type: e.Type, Rel: RelPos{X: x, Y: e.Rel.Y, Z: z}}
		}
		return out
	}

	c.blocks = mapBlocks(c.blocks)
	c.entities = mapEntities(c.entities)
	for _, r := range c.rooms {
		r.blocks = mapBlocks(r.blocks)
		r.entities = mapEntities(r.entities)
	}

	newSize := size
	if rot.SwapsAxes() {
		newSize.X, newSize.Z = size.Z, size.X
	}
	c.bounds = NewBounds(t.NewMin, t.NewMin.Add(newSize))
	c.facing = c.facing.Rotate(rot)

	c.notify("", ChangeTransformed, c.bounds.Min)
	return nil
}

// Move переносит постройку без поворота
func (c *Construction) Move(newMin vec.Vec3) error {
	return c.ApplyTransform(Transform{Rotation: vec.Rotate0, NewMin: newMin})
}

// PullTransform строит перенос, разворачивающий постройку в сторону facing
func (c *Construction) PullTransform(newMin vec.Vec3, facing vec.Facing) Transform {
	return Transform{Rotation: facing.RotationFrom(c.facing), NewMin: newMin}
}
