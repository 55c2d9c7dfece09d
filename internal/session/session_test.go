package session

import (
	"context"
	"testing"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/coherence"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/registry"
	"github.com/annel0/constructs/internal/storage"
	"github.com/annel0/constructs/internal/tick"
	"github.com/annel0/constructs/internal/vec"
	"github.com/annel0/constructs/internal/world"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const houseID = "tld.test.directional"

type fixture struct {
	session *Session
	reg     *registry.Registry
	level   *world.Level
	loop    *tick.Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg, err := registry.New()
	require.NoError(t, err)
	t.Cleanup(reg.Close)
	require.NoError(t, reg.InitStorage(ctx, storage.NewMemoryStore()))
	require.NoError(t, reg.LoadAll(ctx))

	level := world.NewLevel("overworld", world.NewGenerator(1), nil)
	loop := tick.New(1000, nil)
	go loop.Run(ctx)

	return &fixture{
		session: New(reg, level, loop, nil, nil),
		reg:     reg,
		level:   level,
		loop:    loop,
	}
}

// buildHouse пол 3x4 с лестницей, базовой сущностью и комнатой hall,
// чей блок стоит на смещении (1,0,1) от минимального угла
func (f *fixture) buildHouse(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	min := vec.Vec3{X: 100, Y: 100, Z: 100}

	require.NoError(t, f.loop.Do(ctx, func() error {
		c, err := f.reg.Create(houseID, min)
		if err != nil {
			return err
		}
		for x := 0; x < 3; x++ {
			for z := 0; z < 4; z++ {
				c.AddBlock(min.Add(vec.Vec3{X: x, Z: z}), block.Of(block.StoneName))
			}
		}
		c.AddBlock(min.Add(vec.Vec3{Y: 1}), block.MustParse("oak_stairs[facing=north]"))
		c.AddEntity(construction.EntityData{Type: "armor_stand", Rel: construction.RelPos{X: 0.5, Y: 1, Z: 0.5}})

		if _, err := c.AddRoom("hall"); err != nil {
			return err
		}
		if err := c.AddRoomBlock("hall", min.Add(vec.Vec3{X: 1, Z: 1}), block.MustParse("oak_stairs[facing=east]")); err != nil {
			return err
		}
		_, err = c.AddRoomEntity("hall", construction.EntityData{Type: "painting", Rel: construction.RelPos{X: 1.5, Y: 1, Z: 1.5}})
		return err
	}))
	require.NoError(t, f.session.Materialize(ctx, houseID))
}

func (f *fixture) validate(t *testing.T) coherence.Report {
	t.Helper()
	rep, err := f.session.Validate(context.Background(), houseID, true)
	require.NoError(t, err)
	return rep
}

func (f *fixture) bounds(t *testing.T) construction.Bounds {
	t.Helper()
	var b construction.Bounds
	require.NoError(t, f.loop.Do(context.Background(), func() error {
		c, err := f.reg.Get(houseID)
		if err != nil {
			return err
		}
		b = c.Bounds()
		return nil
	}))
	return b
}

func TestSession_RotationScenario(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()

	rep := f.validate(t)
	require.True(t, rep.Passed, "%v", rep.Mismatches())

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	rep = f.validate(t)
	require.True(t, rep.Passed, "%v", rep.Mismatches())
	assert.Equal(t, "hall", rep.ActiveRoom)

	for i, facing := range []vec.Facing{vec.East, vec.South, vec.West, vec.North} {
		newMin := vec.Vec3{X: 200 + 10*i, Y: 100, Z: 100 - 7*i}
		require.NoError(t, f.session.Pull(ctx, houseID, newMin, facing))

		rep = f.validate(t)
		require.True(t, rep.Passed, "%s после переноса: %v", facing, rep.Mismatches())
		assert.Zero(t, rep.Failures())

		// цикл правки комнаты
		pos := f.bounds(t).Min.Add(vec.Vec3{Y: 1})
		require.NoError(t, f.session.AddBlock(ctx, houseID, "hall", pos, block.Of("lantern")))
		rep = f.validate(t)
		require.True(t, rep.Passed, "%s после правки: %v", facing, rep.Mismatches())

		require.NoError(t, f.session.RemoveBlock(ctx, houseID, "hall", pos))
		rep = f.validate(t)
		require.True(t, rep.Passed, "%s после отката: %v", facing, rep.Mismatches())
	}

	// одна испорченная позиция даёт ровно один провал
	var bad vec.Vec3
	require.NoError(t, f.loop.Do(ctx, func() error {
		c, err := f.reg.Get(houseID)
		if err != nil {
			return err
		}
		room, _ := c.Room("hall")
		for _, e := range c.Blocks() {
			if !room.HasBlockChange(e.Pos) {
				bad = e.Pos
				break
			}
		}
		f.level.SetBlock(bad, block.Of("gold_block"))
		return nil
	}))

	rep = f.validate(t)
	require.False(t, rep.Passed)
	require.Equal(t, 1, rep.Failures())
	m := rep.Mismatches()[0]
	assert.Equal(t, coherence.ReasonWorldMismatch, m.Reason)
	assert.Equal(t, bad, m.Pos)
	assert.Equal(t, "gold_block", m.Actual)
}

func TestSession_EnterExitRoom(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()
	over := vec.Vec3{X: 101, Y: 100, Z: 101}

	assert.ErrorIs(t, f.session.EnterRoom(ctx, houseID, "attic"), construction.ErrRoomNotFound)

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	assert.Equal(t, "oak_stairs", f.level.DescriptorAt(over).Name)

	require.NoError(t, f.session.ExitRoom(ctx, houseID))
	assert.Equal(t, "", f.session.ActiveRoom(houseID))
	assert.Equal(t, block.StoneName, f.level.DescriptorAt(over).Name)

	rep := f.validate(t)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())
}

func TestSession_BaseEditsReachWorld(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()
	pos := vec.Vec3{X: 102, Y: 101, Z: 103}

	require.NoError(t, f.session.AddBlock(ctx, houseID, "", pos, block.Of(block.DirtName)))
	assert.Equal(t, block.DirtName, f.level.DescriptorAt(pos).Name)

	_, err := f.session.AddEntity(ctx, houseID, "", construction.EntityData{Type: "pig", Rel: construction.RelPos{X: 2.5, Y: 1, Z: 2.5}})
	require.NoError(t, err)
	assert.True(t, f.validate(t).Passed)

	require.NoError(t, f.session.RemoveBlock(ctx, houseID, "", pos))
	assert.True(t, f.level.DescriptorAt(pos).IsAir())
	assert.True(t, f.validate(t).Passed)
}

func TestSession_BlockBelowMinKeepsEntitiesCoherent(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()
	require.True(t, f.validate(t).Passed)

	require.NoError(t, f.session.AddBlock(ctx, houseID, "", vec.Vec3{X: 99, Y: 100, Z: 100}, block.Of(block.StoneName)))
	assert.Equal(t, vec.Vec3{X: 99, Y: 100, Z: 100}, f.bounds(t).Min)
	rep := f.validate(t)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	require.NoError(t, f.session.AddBlock(ctx, houseID, "hall", vec.Vec3{X: 100, Y: 99, Z: 98}, block.Of("lantern")))
	rep = f.validate(t)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())

	require.NoError(t, f.session.ExitRoom(ctx, houseID))
	rep = f.validate(t)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())
}

func TestSession_MoveKeepsFacing(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()

	require.NoError(t, f.session.Move(ctx, houseID, vec.Vec3{X: 0, Y: 90, Z: 0}))
	b := f.bounds(t)
	assert.Equal(t, vec.Vec3{X: 0, Y: 90, Z: 0}, b.Min)
	assert.Equal(t, vec.Vec3{X: 2, Y: 91, Z: 3}, b.Max)
	assert.True(t, f.level.DescriptorAt(vec.Vec3{X: 100, Y: 100, Z: 100}).IsAir(), "старый охват очищен")
	assert.True(t, f.validate(t).Passed)
}

func TestSession_UnknownConstruction(t *testing.T) {
	f := newFixture(t)
	err := f.session.Materialize(context.Background(), "tld.test.none")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	rep, err := f.session.Validate(context.Background(), "tld.test.none", true)
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	assert.Equal(t, coherence.ReasonConstructionNotFound, rep.Reason)
}

func TestSession_ValidateRoomWithoutEntering(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()

	rep, err := f.session.ValidateRoom(ctx, houseID, "hall", false)
	require.NoError(t, err)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())
	assert.Equal(t, "hall", rep.ActiveRoom)

	// в мире выставлено базовое состояние, поэтому комната расходится с миром
	rep, err = f.session.ValidateRoom(ctx, houseID, "hall", true)
	require.NoError(t, err)
	assert.False(t, rep.Passed)
	assert.False(t, rep.Rooms.Passed)
	assert.Equal(t, "", f.session.ActiveRoom(houseID), "проверка не меняет активную комнату")
}

func TestSession_DestroyDropsRoomAndWorldState(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	require.NotZero(t, f.level.EntityCount())

	require.NoError(t, f.session.Destroy(ctx, houseID))
	assert.Equal(t, "", f.session.ActiveRoom(houseID))
	assert.Zero(t, f.level.EntityCount(), "сущности постройки сняты с мира")
	assert.True(t, f.level.DescriptorAt(vec.Vec3{X: 101, Y: 100, Z: 101}).IsAir(), "охват очищен")
	assert.ErrorIs(t, f.session.Destroy(ctx, houseID), registry.ErrNotFound)

	// та же постройка заново: никакого наследства от прежней
	min := vec.Vec3{X: 500, Y: 100, Z: 500}
	require.NoError(t, f.loop.Do(ctx, func() error {
		c, err := f.reg.Create(houseID, min)
		if err != nil {
			return err
		}
		c.AddBlock(min, block.Of(block.StoneName))
		return nil
	}))
	require.NoError(t, f.session.Materialize(ctx, houseID))
	rep := f.validate(t)
	assert.Equal(t, "", rep.ActiveRoom)
	assert.True(t, rep.Passed, "%v", rep.Mismatches())
}

func TestSession_ForgetAndReset(t *testing.T) {
	f := newFixture(t)
	f.buildHouse(t)
	ctx := context.Background()

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	require.NoError(t, f.session.Forget(ctx, houseID))
	assert.Equal(t, "", f.session.ActiveRoom(houseID))
	assert.Zero(t, f.level.EntityCount())

	require.NoError(t, f.session.EnterRoom(ctx, houseID, "hall"))
	f.session.Reset()
	assert.Equal(t, "", f.session.ActiveRoom(houseID))
}
