package vec

import "fmt"

// Facing стороны света в плоскости XZ (north = -Z, east = +X)
type Facing uint8

const (
	North Facing = iota
	East
	South
	West
)

var facingNames = [...]string{"north", "east", "south", "west"}

// String возвращает имя стороны
func (f Facing) String() string {
	if int(f) < len(facingNames) {
		return facingNames[f]
	}
	return fmt.Sprintf("facing(%d)", uint8(f))
}

// ParseFacing разбирает имя стороны
func ParseFacing(s string) (Facing, error) {
	for i, name := range facingNames {
		if name == s {
			return Facing(i), nil
		}
	}
	return North, fmt.Errorf("неизвестное направление %q", s)
}

// Rotate поворачивает сторону по часовой стрелке
func (f Facing) Rotate(r Rotation) Facing {
	return Facing((int(f) + int(r.quarters())) % 4)
}

// RotationFrom возвращает поворот, переводящий from в f
func (f Facing) RotationFrom(from Facing) Rotation {
	return Rotation(((int(f) - int(from) + 4) % 4) * 90)
}

// Rotation поворот вокруг оси Y по часовой стрелке (вид сверху), кратный 90 градусам
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

func (r Rotation) quarters() int {
	return ((int(r)/90)%4 + 4) % 4
}

// Normalize приводит угол к диапазону [0, 360)
func (r Rotation) Normalize() Rotation {
	return Rotation(r.quarters() * 90)
}

// Compose складывает два поворота
func (r Rotation) Compose(other Rotation) Rotation {
	return Rotation(((r.quarters() + other.quarters()) % 4) * 90)
}

// SwapsAxes сообщает, меняются ли местами ширина и глубина
func (r Rotation) SwapsAxes() bool {
	return r.quarters()%2 == 1
}

// RotateCell поворачивает клетку (x, z) внутри прямоугольника с максимумами maxX, maxZ
// (минимумы равны нулю). Результат лежит в повёрнутом прямоугольнике с тем же началом.
func (r Rotation) RotateCell(x, z, maxX, maxZ int) (int, int) {
	switch r.quarters() {
	case 1:
		return maxZ - z, x
	case 2:
		return maxX - x, maxZ - z
	case 3:
		return z, maxX - x
	default:
		return x, z
	}
}

// RotatePoint поворачивает непрерывную точку внутри прямоугольника ширины w и глубины d
func (r Rotation) RotatePoint(x, z, w, d float64) (float64, float64) {
	switch r.quarters() {
	case 1:
		return d - z, x
	case 2:
		return w - x, d - z
	case 3:
		return z, w - x
	default:
		return x, z
	}
}
