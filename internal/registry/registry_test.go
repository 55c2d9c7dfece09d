package registry

import (
	"context"
	"testing"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/storage"
	"github.com/annel0/constructs/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoaded(t *testing.T, store storage.ConstructionStore, opts ...Option) *Registry {
	t.Helper()
	r, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(r.Close)

	ctx := context.Background()
	require.NoError(t, r.InitStorage(ctx, store))
	require.NoError(t, r.LoadAll(ctx))
	return r
}

func TestRegistry_Lifecycle(t *testing.T) {
	ctx := context.Background()
	r, err := New()
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, StateUninitialized, r.State())
	_, err = r.Get("tld.author.house")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.ErrorIs(t, r.LoadAll(ctx), ErrNoStorage)

	store := storage.NewMemoryStore()
	require.NoError(t, r.InitStorage(ctx, store))
	require.NoError(t, r.LoadAll(ctx))
	assert.Equal(t, StateLoaded, r.State())
	assert.ErrorIs(t, r.LoadAll(ctx), ErrInvalidState)
	assert.ErrorIs(t, r.InitStorage(ctx, store), ErrInvalidState)

	r.Clear()
	assert.Equal(t, StateCleared, r.State())
	_, err = r.Create("tld.author.house", vec.Vec3{})
	assert.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, r.LoadAll(ctx))
	assert.Equal(t, StateLoaded, r.State())
}

func TestRegistry_CreateRejectsDuplicatesAndBadIDs(t *testing.T) {
	r := newLoaded(t, storage.NewMemoryStore())

	c, err := r.Create("tld.author.house", vec.Vec3{X: 5, Y: 64, Z: 5})
	require.NoError(t, err)
	assert.Equal(t, vec.Vec3{X: 5, Y: 64, Z: 5}, c.Bounds().Min)

	_, err = r.Create("tld.author.house", vec.Vec3{})
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = r.Create("house", vec.Vec3{})
	assert.ErrorIs(t, err, construction.ErrInvalidID)

	_, err = r.Get("tld.author.none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_SaveAllAndReload(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := newLoaded(t, store)

	c, err := r.Create("tld.author.house", vec.Vec3{})
	require.NoError(t, err)
	c.AddBlock(vec.Vec3{X: 2, Y: 1, Z: 2}, block.MustParse("oak_stairs[facing=south]"))
	_, err = c.AddRoom("hall")
	require.NoError(t, err)
	require.NoError(t, c.AddRoomBlock("hall", vec.Vec3{X: 1, Y: 0, Z: 1}, block.Of(block.DirtName)))
	_, err = r.Create("tld.author.barn", vec.Vec3{X: 40})
	require.NoError(t, err)

	require.NoError(t, r.SaveAll(ctx))
	assert.Equal(t, 2, store.Len())

	r.Clear()
	assert.Zero(t, r.Len())
	require.NoError(t, r.LoadAll(ctx))

	assert.Equal(t, []string{"tld.author.barn", "tld.author.house"}, r.IDs())
	loaded, err := r.Get("tld.author.house")
	require.NoError(t, err)
	assert.Equal(t, c.ToSnapshot(), loaded.ToSnapshot())
}

func TestRegistry_LoadAllSkipsCorruptRecords(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(ctx, "tld.author.broken", []byte("{не json")))

	r := newLoaded(t, store)
	assert.Zero(t, r.Len())
}

func TestRegistry_DestroyRemovesFromStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := newLoaded(t, store)

	_, err := r.Create("tld.author.house", vec.Vec3{})
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, "tld.author.house"))
	assert.Equal(t, 1, store.Len())

	require.NoError(t, r.Destroy(ctx, "tld.author.house"))
	assert.Zero(t, store.Len())
	assert.ErrorIs(t, r.Destroy(ctx, "tld.author.house"), ErrNotFound)
	assert.ErrorIs(t, r.Save(ctx, "tld.author.house"), ErrNotFound)
}

func TestRegistry_SnapshotThenPersist(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := newLoaded(t, store)

	c, err := r.Create("tld.author.house", vec.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, err)
	snap, err := r.Snapshot("tld.author.house")
	require.NoError(t, err)

	// правки после снимка в запись не попадают
	c.AddBlock(vec.Vec3{X: 9, Y: 2, Z: 3}, block.Of(block.StoneName))
	require.NoError(t, r.Persist(ctx, snap))

	records, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Contains(t, records, "tld.author.house")
	codec, err := storage.NewCodec()
	require.NoError(t, err)
	defer codec.Close()
	stored, err := codec.Decode(records["tld.author.house"])
	require.NoError(t, err)
	assert.Empty(t, stored.Blocks)

	_, err = r.Snapshot("tld.author.none")
	assert.ErrorIs(t, err, ErrNotFound)

	r.Clear()
	assert.ErrorIs(t, r.Persist(ctx, snap), ErrInvalidState)
}

func TestRegistry_DetachKeepsStoredRecord(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	r := newLoaded(t, store)

	_, err := r.Create("tld.author.house", vec.Vec3{})
	require.NoError(t, err)
	require.NoError(t, r.Save(ctx, "tld.author.house"))

	require.NoError(t, r.Detach("tld.author.house"))
	assert.Zero(t, r.Len())
	assert.Equal(t, 1, store.Len())
	assert.ErrorIs(t, r.Detach("tld.author.house"), ErrNotFound)

	require.NoError(t, r.DeleteStored(ctx, "tld.author.house"))
	assert.Zero(t, store.Len())
}

func TestRegistry_ListenerAttachedToConstructions(t *testing.T) {
	var changes []construction.Change
	r := newLoaded(t, storage.NewMemoryStore(), WithListener(func(ch construction.Change) {
		changes = append(changes, ch)
	}))

	c, err := r.Create("tld.author.house", vec.Vec3{})
	require.NoError(t, err)
	changes = nil

	c.AddBlock(vec.Vec3{X: 1}, block.Of(block.StoneName))
	require.Len(t, changes, 1)
	assert.Equal(t, construction.ChangeBlockAdded, changes[0].Kind)

	r.Clear()
	c.AddBlock(vec.Vec3{X: 2}, block.Of(block.StoneName))
	assert.Len(t, changes, 1, "после выгрузки слушатель отключён")
}
