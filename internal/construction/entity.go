package construction

import "github.com/annel0/constructs/internal/vec"

// RelPos смещение сущности от минимального угла границ постройки.
// Для сущностей комнат отсчёт тоже идёт от границ постройки, а не комнаты.
type RelPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Abs переводит смещение в абсолютную мировую позицию
func (r RelPos) Abs(min vec.Vec3) vec.Vec3Float {
	return vec.Vec3Float{X: float64(min.X) + r.X, Y: float64(min.Y) + r.Y, Z: float64(min.Z) + r.Z}
}

// RelativeTo строит смещение абсолютной позиции от min
func RelativeTo(p vec.Vec3Float, min vec.Vec3) RelPos {
	return RelPos{X: p.X - float64(min.X), Y: p.Y - float64(min.Y), Z: p.Z - float64(min.Z)}
}

// EntityData описание сущности, принадлежащей постройке или комнате
type EntityData struct {
	Type string `json:"type"`
	Rel  RelPos `json:"rel"`
}
