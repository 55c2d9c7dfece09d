package world

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/vec"
)

// BiomeType тип биома колонки
type BiomeType int

const (
	BiomePlains BiomeType = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
)

// Пороги нормализованной высоты (0..1)
const (
	ShallowWaterMax = 0.30
	MountainStart   = 0.80
)

// SandName поверхность пустыни
const SandName = "sand"

// column сгенерированная колонка: высота поверхности и её блок
type column struct {
	height  int
	surface block.Descriptor
	filler  block.Descriptor
}

// Generator генерирует рельеф свежезагруженных чанков шумом Перлина
type Generator struct {
	Seed       int64
	NoiseScale float64 // Масштаб основного шума (высота)
	BiomeScale float64 // Масштаб шума биомов
	BaseHeight int     // Высота при нулевом шуме
	Amplitude  int     // Размах высот
	SeaLevel   int

	height *perlin.Perlin
	biome  *perlin.Perlin
}

// NewGenerator создаёт генератор для сида
func NewGenerator(seed int64) *Generator {
	alpha, beta, octaves := 2.0, 2.0, int32(3)
	return &Generator{
		Seed:       seed,
		NoiseScale: 0.05,
		BiomeScale: 0.02,
		BaseHeight: 48,
		Amplitude:  32,
		SeaLevel:   56,
		height:     perlin.NewPerlin(alpha, beta, octaves, seed),
		biome:      perlin.NewPerlin(alpha, beta, octaves, seed+42),
	}
}

// noise01 переводит шум из [-1,1] в [0,1]
func noise01(p *perlin.Perlin, x, z float64) float64 {
	return math.Max(0, math.Min(1, (p.Noise2D(x, z)+1)/2))
}

// Height высота поверхности в колонке (x, z)
func (g *Generator) Height(x, z int) int {
	return g.column(x, z).height
}

func (g *Generator) column(x, z int) column {
	h := noise01(g.height, float64(x)*g.NoiseScale, float64(z)*g.NoiseScale)
	b := g.biome.Noise2D(float64(x)*g.BiomeScale, float64(z)*g.BiomeScale)
	height := g.BaseHeight + int(h*float64(g.Amplitude))

	switch g.biomeType(h, b) {
	case BiomeWater:
		return column{height: height, surface: block.Of(SandName), filler: block.Of(SandName)}
	case BiomeDesert:
		return column{height: height, surface: block.Of(SandName), filler: block.Of(SandName)}
	case BiomeMountains:
		return column{height: height, surface: block.Of(block.StoneName), filler: block.Of(block.StoneName)}
	default:
		return column{height: height, surface: block.Of(block.GrassName), filler: block.Of(block.DirtName)}
	}
}

// biomeType определяет биом по высоте и шуму биомов
func (g *Generator) biomeType(height, biomeValue float64) BiomeType {
	if height < ShallowWaterMax {
		return BiomeWater
	}
	if height > MountainStart {
		return BiomeMountains
	}
	if biomeValue < -0.3 {
		return BiomeDesert
	} else if biomeValue > 0.3 {
		return BiomeForest
	}
	return BiomePlains
}

// generateChunk заполняет колонки чанка
func (g *Generator) generateChunk(pos vec.ChunkPos) *[vec.ChunkSize * vec.ChunkSize]column {
	var cols [vec.ChunkSize * vec.ChunkSize]column
	baseX, baseZ := pos.MinBlock()
	for lz := 0; lz < vec.ChunkSize; lz++ {
		for lx := 0; lx < vec.ChunkSize; lx++ {
			cols[lz*vec.ChunkSize+lx] = g.column(baseX+lx, baseZ+lz)
		}
	}
	return &cols
}

// blockAt блок сгенерированного рельефа на высоте y
func (g *Generator) blockAt(col column, y int) block.Descriptor {
	switch {
	case y == col.height:
		return col.surface
	case y < col.height-3:
		return block.Of(block.StoneName)
	case y < col.height:
		return col.filler
	case y <= g.SeaLevel:
		return block.Of(block.WaterName)
	default:
		return block.Air
	}
}
