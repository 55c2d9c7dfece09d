package storage

import (
	"context"
	"testing"

	"github.com/annel0/constructs/internal/block"
	"github.com/annel0/constructs/internal/construction"
	"github.com/annel0/constructs/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	store, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err, "не удалось создать хранилище")
	t.Cleanup(func() { store.Close() })
	return store
}

// exerciseStore общий сценарий для всех реализаций ConstructionStore
func exerciseStore(t *testing.T, store ConstructionStore) {
	ctx := context.Background()

	t.Run("Save and Load", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "tld.a.one", []byte("first")))

		data, found, err := store.Load(ctx, "tld.a.one")
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, []byte("first"), data)
	})

	t.Run("Load missing", func(t *testing.T) {
		data, found, err := store.Load(ctx, "tld.a.missing")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, data)
	})

	t.Run("Overwrite and LoadAll", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, "tld.a.one", []byte("second")))
		require.NoError(t, store.Save(ctx, "tld.a.two", []byte("other")))

		all, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string][]byte{
			"tld.a.one": []byte("second"),
			"tld.a.two": []byte("other"),
		}, all)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "tld.a.two"))
		require.NoError(t, store.Delete(ctx, "tld.a.two"), "повторное удаление не ошибка")

		all, err := store.LoadAll(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseStore(t, store)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Save(context.Background(), "tld.a.one", nil), ErrStoreClosed)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemoryStore().Save(ctx, "tld.a.one", nil), context.Canceled)
}

func TestBadgerStore(t *testing.T) {
	exerciseStore(t, setupBadgerStore(t))
}

func TestBadgerStore_Reopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewBadgerStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, "tld.a.keep", []byte("persisted")))
	require.NoError(t, store.Close())

	_, _, err = store.Load(ctx, "tld.a.keep")
	assert.ErrorIs(t, err, ErrStoreClosed)

	reopened, err := NewBadgerStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	data, found, err := reopened.Load(ctx, "tld.a.keep")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("persisted"), data)
}

func TestCodec_RoundTrip(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	c, err := construction.New("tld.author.tower")
	require.NoError(t, err)
	for y := 0; y < 32; y++ {
		c.AddBlock(vec.Vec3{X: 5, Y: y, Z: 5}, block.MustParse("oak_log[axis=y]"))
	}
	_, err = c.AddRoom("top")
	require.NoError(t, err)
	_, err = c.AddRoomEntity("top", construction.EntityData{Type: "villager", Rel: construction.RelPos{X: 0.5, Y: 31, Z: 0.5}})
	require.NoError(t, err)

	snap := c.ToSnapshot()
	data, err := codec.Encode(snap)
	require.NoError(t, err)
	assert.Equal(t, zstdMagic, data[:4], "снимок должен быть сжат zstd")

	decoded, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, decoded.ID)
	assert.Equal(t, snap.Bounds, decoded.Bounds)
	assert.Len(t, decoded.Blocks, 32)
	require.Len(t, decoded.Rooms, 1)
	assert.Equal(t, "villager", decoded.Rooms[0].Entities[0].Type)
}

func TestCodec_AcceptsPlainJSON(t *testing.T) {
	codec, err := NewCodec()
	require.NoError(t, err)
	defer codec.Close()

	s, err := codec.Decode([]byte(`{"id":"tld.a.plain","facing":"north","blocks":[{"pos":{"x":1,"y":2,"z":3},"block":"stone"}]}`))
	require.NoError(t, err)
	assert.Equal(t, "tld.a.plain", s.ID)
	require.Len(t, s.Blocks, 1)
	assert.Equal(t, "stone", s.Blocks[0].Block.String())

	_, err = codec.Decode([]byte("not json"))
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	store, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(Options{Backend: "", DataPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(Options{Backend: "maria"})
	assert.Error(t, err)
	_, err = Open(Options{Backend: "floppy"})
	assert.Error(t, err)
}
