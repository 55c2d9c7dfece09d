package vec

import "math"

// Vec3 представляет трехмерный вектор с целочисленными координатами.
// Используется как абсолютная мировая позиция блока.
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo возвращает квадрат расстояния до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Chunk возвращает координаты колонки чанка, содержащей блок
func (v Vec3) Chunk() ChunkPos {
	return ChunkPos{X: v.X >> 4, Z: v.Z >> 4}
}

// Float возвращает угол блока в непрерывных координатах
func (v Vec3) Float() Vec3Float {
	return Vec3Float{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

// Less задаёт детерминированный порядок обхода позиций (Y, затем Z, затем X)
func (v Vec3) Less(other Vec3) bool {
	if v.Y != other.Y {
		return v.Y < other.Y
	}
	if v.Z != other.Z {
		return v.Z < other.Z
	}
	return v.X < other.X
}

// Add складывает два вектора
func (v Vec3Float) Add(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3Float) Sub(other Vec3Float) Vec3Float {
	return Vec3Float{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// DistanceTo вычисляет евклидово расстояние до другой точки
func (v Vec3Float) DistanceTo(other Vec3Float) float64 {
	d := v.Sub(other)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// Block возвращает позицию блока, в котором лежит точка
func (v Vec3Float) Block() Vec3 {
	return Vec3{X: int(math.Floor(v.X)), Y: int(math.Floor(v.Y)), Z: int(math.Floor(v.Z))}
}

// AABB: выровненный по осям параллелепипед с замкнутыми границами
type AABB struct {
	Min Vec3Float `json:"min"`
	Max Vec3Float `json:"max"`
}

// Around строит куб с центром center и полуребром half
func Around(center Vec3Float, half float64) AABB {
	return AABB{
		Min: Vec3Float{X: center.X - half, Y: center.Y - half, Z: center.Z - half},
		Max: Vec3Float{X: center.X + half, Y: center.Y + half, Z: center.Z + half},
	}
}

// Contains проверяет, лежит ли точка внутри (включая границы)
func (b AABB) Contains(p Vec3Float) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}
