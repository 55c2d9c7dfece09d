package world

import (
	"context"
	"testing"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/spawn"
	"github.com/annel0/constructs/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator(42), NewGenerator(42)
	for x := -20; x < 20; x += 3 {
		for z := -20; z < 20; z += 5 {
			h := a.Height(x, z)
			assert.Equal(t, h, b.Height(x, z))
			assert.GreaterOrEqual(t, h, a.BaseHeight)
			assert.LessOrEqual(t, h, a.BaseHeight+a.Amplitude)
		}
	}
}

func TestLevel_TerrainAndPlacedBlocks(t *testing.T) {
	gen := NewGenerator(7)
	l := NewLevel("overworld", gen, nil)
	pos := vec.Vec3{X: 3, Y: 0, Z: 5}

	assert.True(t, l.DescriptorAt(pos).IsAir(), "выгруженная колонка читается как воздух")
	require.True(t, l.LoadChunk(0, 0))
	assert.False(t, l.LoadChunk(0, 0))

	h := gen.Height(3, 5)
	assert.Equal(t, block.StoneName, l.DescriptorAt(vec.Vec3{X: 3, Y: h - 10, Z: 5}).Name)
	assert.False(t, l.DescriptorAt(vec.Vec3{X: 3, Y: h, Z: 5}).IsAir())
	assert.True(t, l.DescriptorAt(vec.Vec3{X: 3, Y: 200, Z: 5}).IsAir())

	lever := block.MustParse("lever[facing=north]")
	l.SetBlock(vec.Vec3{X: 3, Y: 200, Z: 5}, lever)
	assert.True(t, lever.Equal(l.DescriptorAt(vec.Vec3{X: 3, Y: 200, Z: 5})))

	// поставленный блок переживает выгрузку
	require.True(t, l.UnloadChunk(0, 0))
	assert.True(t, l.DescriptorAt(vec.Vec3{X: 3, Y: 200, Z: 5}).IsAir())
	l.LoadChunk(0, 0)
	assert.True(t, lever.Equal(l.DescriptorAt(vec.Vec3{X: 3, Y: 200, Z: 5})))
}

func TestLevel_SetBlockLoadsChunk(t *testing.T) {
	l := NewLevel("flat", nil, nil)
	var events []ChunkEvent
	l.OnChunkEvent(func(ev ChunkEvent) { events = append(events, ev) })

	l.SetBlock(vec.Vec3{X: -1, Y: 10, Z: 17}, block.Of(block.StoneName))
	assert.True(t, l.IsChunkLoaded(-1, 1))
	require.Len(t, events, 1)
	assert.Equal(t, ChunkEvent{Type: EventChunkLoaded, Level: "flat", Chunk: vec.ChunkPos{X: -1, Z: 1}}, events[0])
}

func TestLevel_FindEntities(t *testing.T) {
	l := NewLevel("flat", nil, nil)
	l.LoadChunk(6, 12)
	stand := l.SpawnEntity("armor_stand", vec.Vec3Float{X: 102, Y: 64, Z: 203})
	l.SpawnEntity("pig", vec.Vec3Float{X: 102.2, Y: 64, Z: 203})
	l.SpawnEntity("armor_stand", vec.Vec3Float{X: 140, Y: 64, Z: 203})

	found := l.FindEntities("armor_stand", vec.Around(vec.Vec3Float{X: 102, Y: 64, Z: 203}, 0.5))
	require.Len(t, found, 1)
	assert.Equal(t, stand, found[0].ID)

	assert.Len(t, l.FindEntities("", vec.Around(vec.Vec3Float{X: 102, Y: 64, Z: 203}, 0.5)), 2)

	require.True(t, l.MoveEntity(stand, vec.Vec3Float{X: 110, Y: 64, Z: 203}))
	assert.Empty(t, l.FindEntities("armor_stand", vec.Around(vec.Vec3Float{X: 102, Y: 64, Z: 203}, 0.5)))

	l.UnloadChunk(6, 12)
	assert.Empty(t, l.FindEntities("", vec.Around(vec.Vec3Float{X: 102, Y: 64, Z: 203}, 10)))
	assert.True(t, l.RemoveEntity(stand))
	assert.False(t, l.RemoveEntity(stand))
}

func TestLevel_ClearArea(t *testing.T) {
	l := NewLevel("flat", nil, nil)
	for x := 0; x < 3; x++ {
		l.SetBlock(vec.Vec3{X: x, Y: 1, Z: 0}, block.Of(block.StoneName))
	}
	l.SpawnEntity("armor_stand", vec.Vec3Float{X: 1.5, Y: 1, Z: 0.5})
	l.SpawnEntity("armor_stand", vec.Vec3Float{X: 9.5, Y: 1, Z: 0.5})

	assert.Equal(t, 1, l.ClearArea(vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 1, Y: 2, Z: 0}))
	assert.True(t, l.DescriptorAt(vec.Vec3{X: 1, Y: 1, Z: 0}).IsAir())
	assert.Equal(t, block.StoneName, l.DescriptorAt(vec.Vec3{X: 2, Y: 1, Z: 0}).Name)
	assert.Equal(t, 1, l.EntityCount())
}

func TestSpatialIndex_Stats(t *testing.T) {
	si := NewSpatialIndex(0)
	si.Insert(&Entity{ID: 1, Type: "a", Pos: vec.Vec3Float{X: 1, Z: 1}})
	si.Insert(&Entity{ID: 2, Type: "a", Pos: vec.Vec3Float{X: 40, Z: 1}})
	si.Insert(&Entity{ID: 1, Type: "a", Pos: vec.Vec3Float{X: 41, Z: 1}})

	assert.Equal(t, 1, si.GetCellCount())
	assert.Equal(t, 2, si.GetEntityCount())
	assert.Contains(t, si.GetStats(), "entities=2")
}

func TestManager_FeedsSpawnQueueOnChunkLoad(t *testing.T) {
	m := NewManager()
	l := NewLevel("overworld", nil, nil)
	m.Add(l)

	occupied := spawn.NewOccupiedChunks()
	q := spawn.NewQueue(spawn.Config{MaxPerTick: 10, ClearDelayTicks: 100}, m,
		&spawn.ReservingEvaluator{Occupied: occupied}, occupied, nil)
	m.FeedSpawnQueue(q)

	l.LoadChunk(2, 3)
	l.LoadChunk(2, 3)
	l.LoadChunk(4, 4)
	l.UnloadChunk(4, 4)
	require.Equal(t, 2, q.Len())

	res := q.Tick(context.Background(), 1)
	require.Len(t, res.Results, 2)
	assert.Equal(t, spawn.OutcomeProcessed, res.Results[0].Outcome)
	assert.Equal(t, spawn.OutcomeRegionUnloaded, res.Results[1].Outcome)
	assert.True(t, occupied.IsOccupied("overworld", 2, 3))

	_, ok := m.ResolveLevel("nether")
	assert.False(t, ok)
	assert.Equal(t, []string{"overworld"}, m.Names())
}
