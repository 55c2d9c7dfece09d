package vec

// ChunkPos координаты колонки чанка 16x16 (по X и Z)
type ChunkPos struct {
	X int `json:"x"`
	Z int `json:"z"`
}

// ChunkSize размер стороны чанка в блоках
const ChunkSize = 16

// MinBlock возвращает минимальную мировую координату колонки по X и Z
func (c ChunkPos) MinBlock() (int, int) {
	return c.X << 4, c.Z << 4
}

// LocalInChunk возвращает локальные координаты блока внутри чанка
func LocalInChunk(x, z int) (int, int) {
	return x & 0xF, z & 0xF // Модуль 16
}
