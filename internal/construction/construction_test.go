package construction

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConstruction(t *testing.T) *Construction {
	t.Helper()
	c, err := New("tld.author.house")
	require.NoError(t, err)
	return c
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("tld.author.name"))
	assert.NoError(t, ValidateID("com.example.big-house_2"))
	assert.ErrorIs(t, ValidateID("house"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("tld.author"), ErrInvalidID)
	assert.ErrorIs(t, ValidateID("Tld.Author.Name"), ErrInvalidID)
}

func TestBounds_ZeroValueIsUnset(t *testing.T) {
	var b Bounds
	assert.False(t, b.Valid())
	assert.False(t, b.Contains(vec.Vec3{}))
	assert.Equal(t, 0, b.Volume())

	b.ExpandToInclude(vec.Vec3{})
	assert.True(t, b.Valid())
	assert.True(t, b.Contains(vec.Vec3{}))

	b.Reset()
	assert.False(t, b.Valid())
}

func TestBounds_ExpandIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var b Bounds
	var seen []vec.Vec3

	for i := 0; i < 500; i++ {
		p := vec.Vec3{X: rng.Intn(200) - 100, Y: rng.Intn(64), Z: rng.Intn(200) - 100}
		prev := b
		b.ExpandToInclude(p)
		seen = append(seen, p)

		require.True(t, b.Valid())
		for _, s := range seen {
			require.True(t, b.Contains(s), "точка %v выпала из %v", s, b)
		}
		if prev.Valid() {
			require.True(t, b.Contains(prev.Min))
			require.True(t, b.Contains(prev.Max))
		}
	}
}

func TestBounds_Chunks(t *testing.T) {
	b := NewBounds(vec.Vec3{X: 14, Y: 0, Z: -2}, vec.Vec3{X: 17, Y: 5, Z: 1})
	assert.ElementsMatch(t, []vec.ChunkPos{
		{X: 0, Z: -1}, {X: 0, Z: 0}, {X: 1, Z: -1}, {X: 1, Z: 0},
	}, b.Chunks())
}

func TestConstruction_AddBlockExpandsBounds(t *testing.T) {
	c := newTestConstruction(t)
	stone := block.Of(block.StoneName)

	c.AddBlock(vec.Vec3{X: 10, Y: 64, Z: 10}, stone)
	c.AddBlock(vec.Vec3{X: 12, Y: 66, Z: 8}, stone)

	b := c.Bounds()
	assert.Equal(t, vec.Vec3{X: 10, Y: 64, Z: 8}, b.Min)
	assert.Equal(t, vec.Vec3{X: 12, Y: 66, Z: 10}, b.Max)

	assert.True(t, c.RemoveBlock(vec.Vec3{X: 12, Y: 66, Z: 8}))
	assert.False(t, c.RemoveBlock(vec.Vec3{X: 12, Y: 66, Z: 8}))
	assert.Equal(t, b, c.Bounds(), "удаление не сжимает границы")
	assert.True(t, c.ContainsBlock(vec.Vec3{X: 10, Y: 64, Z: 10}))
}

func TestConstruction_RoomBlocksExpandConstructionBounds(t *testing.T) {
	c := newTestConstruction(t)
	c.AddBlock(vec.Vec3{X: 0, Y: 0, Z: 0}, block.Of(block.StoneName))

	_, err := c.AddRoom("cellar")
	require.NoError(t, err)
	_, err = c.AddRoom("cellar")
	assert.ErrorIs(t, err, ErrRoomExists)

	pos := vec.Vec3{X: 3, Y: -2, Z: 1}
	require.NoError(t, c.AddRoomBlock("cellar", pos, block.Of(block.DirtName)))
	assert.True(t, c.Bounds().Contains(pos))
	assert.False(t, c.ContainsBlock(pos), "переопределение комнаты не попадает в базовую карту")

	r, ok := c.Room("cellar")
	require.True(t, ok)
	assert.True(t, r.HasBlockChange(pos))

	assert.ErrorIs(t, c.AddRoomBlock("attic", pos, block.Air), ErrRoomNotFound)

	removed, err := c.RemoveRoomBlock("cellar", pos)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.False(t, r.HasBlockChange(pos))
}

func TestConstruction_Entities(t *testing.T) {
	c := newTestConstruction(t)
	c.SetBounds(NewBounds(vec.Vec3{X: 100, Y: 64, Z: 200}, vec.Vec3{X: 110, Y: 70, Z: 210}))

	idx := c.AddEntity(EntityData{Type: "armor_stand", Rel: RelPos{X: 2, Y: 0, Z: 3}})
	assert.Equal(t, 0, idx)

	e, ok := c.Entity(0)
	require.True(t, ok)
	assert.Equal(t, vec.Vec3Float{X: 102, Y: 64, Z: 203}, e.Rel.Abs(c.Bounds().Min))

	assert.ErrorIs(t, c.RemoveEntity(3), ErrIndexOutOfRange)
	require.NoError(t, c.RemoveEntity(0))
	assert.Empty(t, c.Entities())
}

func TestConstruction_LoweringMinKeepsEntitiesInPlace(t *testing.T) {
	c := newTestConstruction(t)
	c.AddBlock(vec.Vec3{X: 100, Y: 100, Z: 100}, block.Of(block.StoneName))
	c.AddBlock(vec.Vec3{X: 102, Y: 101, Z: 103}, block.Of(block.StoneName))
	c.AddEntity(EntityData{Type: "armor_stand", Rel: RelPos{X: 0.5, Y: 1, Z: 0.5}})
	_, err := c.AddRoom("hall")
	require.NoError(t, err)
	_, err = c.AddRoomEntity("hall", EntityData{Type: "painting", Rel: RelPos{X: 1.5, Y: 1, Z: 1.5}})
	require.NoError(t, err)

	base := c.Entities()[0].Rel.Abs(c.Bounds().Min)
	r, _ := c.Room("hall")
	inRoom := r.Entities()[0].Rel.Abs(c.Bounds().Min)

	c.AddBlock(vec.Vec3{X: 99, Y: 100, Z: 100}, block.Of(block.StoneName))
	require.NoError(t, c.AddRoomBlock("hall", vec.Vec3{X: 100, Y: 98, Z: 97}, block.Of(block.DirtName)))
	assert.Equal(t, vec.Vec3{X: 99, Y: 98, Z: 97}, c.Bounds().Min)

	assert.Equal(t, base, c.Entities()[0].Rel.Abs(c.Bounds().Min))
	assert.Equal(t, inRoom, r.Entities()[0].Rel.Abs(c.Bounds().Min))
	assert.Equal(t, RelPos{X: 1.5, Y: 3, Z: 3.5}, c.Entities()[0].Rel)

	// рост вверх минимальный угол не трогает
	c.AddBlock(vec.Vec3{X: 110, Y: 110, Z: 110}, block.Of(block.StoneName))
	assert.Equal(t, RelPos{X: 1.5, Y: 3, Z: 3.5}, c.Entities()[0].Rel)
}

func TestConstruction_ListenerReceivesChanges(t *testing.T) {
	c := newTestConstruction(t)
	var changes []Change
	c.SetListener(func(ch Change) { changes = append(changes, ch) })

	pos := vec.Vec3{X: 1, Y: 2, Z: 3}
	c.AddBlock(pos, block.Of(block.StoneName))
	_, err := c.AddRoom("hall")
	require.NoError(t, err)
	require.NoError(t, c.AddRoomBlock("hall", pos, block.Air))
	c.RemoveBlock(pos)

	require.Len(t, changes, 4)
	assert.Equal(t, ChangeBlockAdded, changes[0].Kind)
	assert.Equal(t, "tld.author.house", changes[0].ConstructionID)
	assert.Equal(t, ChangeRoomAdded, changes[1].Kind)
	assert.Equal(t, "hall", changes[2].RoomID)
	assert.Equal(t, ChangeBlockRemoved, changes[3].Kind)
}

func TestConstruction_ApplyTransformKeepsCoordinatesConsistent(t *testing.T) {
	c := newTestConstruction(t)
	min := vec.Vec3{X: 100, Y: 64, Z: 200}
	c.SetBounds(NewBounds(min, vec.Vec3{X: 104, Y: 66, Z: 202}))
	c.AddBlock(min, block.MustParse("oak_stairs[facing=north]"))
	c.AddBlock(vec.Vec3{X: 104, Y: 64, Z: 200}, block.Of(block.StoneName))
	c.AddEntity(EntityData{Type: "armor_stand", Rel: RelPos{X: 0.5, Y: 0, Z: 0.5}})
	_, err := c.AddRoom("hall")
	require.NoError(t, err)
	require.NoError(t, c.AddRoomBlock("hall", vec.Vec3{X: 101, Y: 64, Z: 201}, block.Of(block.DirtName)))

	newMin := vec.Vec3{X: 0, Y: 70, Z: 0}
	require.NoError(t, c.ApplyTransform(Transform{Rotation: vec.Rotate90, NewMin: newMin}))

	b := c.Bounds()
	assert.Equal(t, newMin, b.Min)
	assert.Equal(t, vec.Vec3{X: 2, Y: 72, Z: 4}, b.Max, "ширина и глубина меняются местами")
	assert.Equal(t, vec.East, c.Facing())

	// (0,0) в ящике 4x2 -> (maxZ - 0, 0) = (2, 0)
	d, ok := c.Block(vec.Vec3{X: 2, Y: 70, Z: 0})
	require.True(t, ok)
	assert.Equal(t, "oak_stairs[facing=east]", d.String())
	assert.True(t, c.ContainsBlock(vec.Vec3{X: 2, Y: 70, Z: 4}))

	r, _ := c.Room("hall")
	assert.True(t, r.HasBlockChange(vec.Vec3{X: 1, Y: 70, Z: 1}))

	for _, e := range c.Blocks() {
		assert.True(t, b.Contains(e.Pos))
	}
	e, _ := c.Entity(0)
	assert.InDelta(t, 2.5, e.Rel.X, 1e-9)
	assert.InDelta(t, 0.5, e.Rel.Z, 1e-9)
}

func TestConstruction_ApplyTransformWithoutBounds(t *testing.T) {
	c := newTestConstruction(t)
	assert.ErrorIs(t, c.Move(vec.Vec3{}), ErrNoBounds)
}

func TestConstruction_FourPullsReturnToStart(t *testing.T) {
	c := newTestConstruction(t)
	min := vec.Vec3{X: 8, Y: 60, Z: 8}
	c.SetBounds(NewBounds(min, vec.Vec3{X: 11, Y: 61, Z: 9}))
	c.AddBlock(vec.Vec3{X: 9, Y: 60, Z: 9}, block.MustParse("lever[facing=west]"))
	before := c.ToSnapshot()

	for _, f := range []vec.Facing{vec.East, vec.South, vec.West, vec.North} {
		require.NoError(t, c.ApplyTransform(c.PullTransform(min, f)))
		assert.Equal(t, f, c.Facing())
	}

	assert.Equal(t, before, c.ToSnapshot())
}

func TestSnapshot_PreservesRecordedBounds(t *testing.T) {
	c := newTestConstruction(t)
	c.AddBlock(vec.Vec3{X: 1, Y: 1, Z: 1}, block.Of(block.StoneName))
	_, err := c.AddRoom("hall")
	require.NoError(t, err)
	require.NoError(t, c.AddRoomBlock("hall", vec.Vec3{X: 1, Y: 2, Z: 1}, block.Air))

	s := c.ToSnapshot()
	s.Blocks = append(s.Blocks, BlockEntry{Pos: vec.Vec3{X: 50, Y: 1, Z: 1}, Block: block.Of(block.DirtName)})

	data, err := json.Marshal(s)
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored, err := FromSnapshot(decoded)
	require.NoError(t, err)
	assert.Equal(t, c.Bounds(), restored.Bounds(), "границы не подгоняются под блоки")
	assert.True(t, restored.ContainsBlock(vec.Vec3{X: 50, Y: 1, Z: 1}))
	assert.Equal(t, []string{"hall"}, restored.RoomIDs())
}

func TestClone_IsDeep(t *testing.T) {
	c := newTestConstruction(t)
	c.AddBlock(vec.Vec3{}, block.Of(block.StoneName))
	_, err := c.AddRoom("hall")
	require.NoError(t, err)

	cp := c.Clone()
	cp.AddBlock(vec.Vec3{X: 1}, block.Of(block.StoneName))
	require.NoError(t, cp.AddRoomBlock("hall", vec.Vec3{}, block.Air))

	assert.Equal(t, 1, c.BlockCount())
	r, _ := c.Room("hall")
	assert.Equal(t, 0, r.BlockChangeCount())
}
