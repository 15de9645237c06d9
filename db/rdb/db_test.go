package rdb

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navijation/njrdb/db/lsm"
	testing_util "github.com/navijation/njrdb/util/testing"
)

func newTestDB(t *testing.T, configure func(*Options)) *DB {
	t.Helper()

	path, cleanup := testing_util.DBPath(t, "rdb")
	t.Cleanup(cleanup)

	opts := NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	if configure != nil {
		configure(opts)
	}

	db, err := OpenDb(opts, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func get(t *testing.T, db *DB, ro *ReadOptions, key string) *Slice {
	t.Helper()

	slice, err := db.Get(ro, []byte(key))
	require.NoError(t, err)
	return slice
}

func TestOpenDb(t *testing.T) {
	path, cleanup := testing_util.DBPath(t, "rdb")
	defer cleanup()

	_, err := OpenDb(NewDefaultOptions(), path)
	require.ErrorIs(t, err, lsm.ErrNotFound)

	opts := NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	db, err := OpenDb(opts, path)
	require.NoError(t, err)
	assert.Equal(t, path, db.Name())
	require.NoError(t, db.Close())

	opts.SetErrorIfExists(true)
	_, err = OpenDb(opts, path)
	require.ErrorIs(t, err, lsm.ErrExists)
}

func TestDB_PutGetDelete(t *testing.T) {
	db := newTestDB(t, nil)
	wo := NewDefaultWriteOptions()
	ro := NewDefaultReadOptions()

	slice := get(t, db, ro, "missing")
	assert.False(t, slice.Exists())
	assert.Nil(t, slice.Data())
	assert.Equal(t, 0, slice.Size())

	require.NoError(t, db.Put(wo, []byte("key"), []byte("value")))
	slice = get(t, db, ro, "key")
	assert.True(t, slice.Exists())
	assert.Equal(t, []byte("value"), slice.Data())
	assert.Equal(t, 5, slice.Size())
	slice.Free()
	slice.Free()
	assert.Nil(t, slice.Data())

	require.NoError(t, db.Put(wo, []byte("empty"), nil))
	slice = get(t, db, ro, "empty")
	assert.True(t, slice.Exists())
	assert.Equal(t, []byte{}, slice.Data())

	value, err := db.GetBytes(ro, []byte("key"))
	require.NoError(t, err)
	assert.Equal(t, []byte("value"), value)

	require.NoError(t, db.Delete(wo, []byte("key")))
	assert.False(t, get(t, db, ro, "key").Exists())

	// nil option handles fall back to defaults
	require.NoError(t, db.Put(nil, []byte("nil"), []byte("opts")))
	assert.True(t, get(t, db, nil, "nil").Exists())
}

func TestDB_Write(t *testing.T) {
	db := newTestDB(t, nil)
	wo := NewDefaultWriteOptions()
	wo.SetSync(true)

	require.NoError(t, db.Put(wo, []byte("c"), []byte("old")))

	batch := NewWriteBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("c"))
	assert.Equal(t, 3, batch.Count())
	require.NoError(t, db.Write(wo, batch))
	require.NoError(t, db.Write(wo, nil))

	ro := NewDefaultReadOptions()
	assert.Equal(t, []byte("1"), get(t, db, ro, "a").Data())
	assert.Equal(t, []byte("2"), get(t, db, ro, "b").Data())
	assert.False(t, get(t, db, ro, "c").Exists())

	batch.Clear()
	assert.Equal(t, 0, batch.Count())
}

func TestDB_Iterator(t *testing.T) {
	db := newTestDB(t, func(opts *Options) { opts.SetDisableAutoCompactions(true) })
	wo := NewDefaultWriteOptions()

	givenKeys := []string{"key1", "key2", "key3", "other"}
	for i, key := range givenKeys {
		require.NoError(t, db.Put(wo, []byte(key), []byte("val")))
		if i == 1 {
			require.NoError(t, db.Flush(NewDefaultFlushOptions()))
		}
	}

	ro := NewDefaultReadOptions()
	it, err := db.NewIterator(ro)
	require.NoError(t, err)
	defer it.Close()

	var actualKeys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		actualKeys = append(actualKeys, string(it.Key()))
		assert.Equal(t, []byte("val"), it.Value())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, givenKeys, actualKeys)

	var prefixed []string
	for it.Seek([]byte("key")); it.ValidForPrefix([]byte("key")); it.Next() {
		prefixed = append(prefixed, string(it.Key()))
	}
	assert.Equal(t, []string{"key1", "key2", "key3"}, prefixed)

	it.SeekToLast()
	require.True(t, it.Valid())
	assert.Equal(t, "other", string(it.Key()))
	it.Prev()
	require.True(t, it.Valid())
	assert.Equal(t, "key3", string(it.Key()))

	t.Run("upper bound", func(t *testing.T) {
		ro := NewDefaultReadOptions()
		ro.SetIterateUpperBound([]byte("key3"))
		it, err := db.NewIterator(ro)
		require.NoError(t, err)
		defer it.Close()

		var keys []string
		for it.SeekToLast(); it.Valid(); it.Prev() {
			keys = append(keys, string(it.Key()))
		}
		assert.Equal(t, []string{"key2", "key1"}, keys)
	})
}

func TestDB_Snapshot(t *testing.T) {
	db := newTestDB(t, nil)
	wo := NewDefaultWriteOptions()

	require.NoError(t, db.Put(wo, []byte("key"), []byte("before")))
	snapshot, err := db.NewSnapshot()
	require.NoError(t, err)
	require.NoError(t, db.Put(wo, []byte("key"), []byte("after")))
	require.NoError(t, db.Put(wo, []byte("new"), []byte("after")))

	ro := NewDefaultReadOptions()
	ro.SetSnapshot(snapshot)
	assert.Equal(t, []byte("before"), get(t, db, ro, "key").Data())
	assert.False(t, get(t, db, ro, "new").Exists())
	assert.True(t, db.KeyMayExist(ro, []byte("key")))

	ro.SetSnapshot(nil)
	assert.Equal(t, []byte("after"), get(t, db, ro, "key").Data())

	ro.SetSnapshot(snapshot)
	db.ReleaseSnapshot(snapshot)
	_, err = db.Get(ro, []byte("key"))
	require.ErrorIs(t, err, lsm.ErrSnapshotUsed)
	db.ReleaseSnapshot(nil)
}

func TestDB_FlushAndCompact(t *testing.T) {
	db := newTestDB(t, func(opts *Options) {
		opts.SetDisableAutoCompactions(true)
		opts.SetCompression(LZ4Compression)
		opts.SetIndexChunkSize(128)
		opts.SetBloomBitsPerKey(12)
	})
	wo := NewDefaultWriteOptions()

	for round := range 3 {
		for i := range 50 {
			key := fmt.Sprintf("key%02d", i)
			require.NoError(t, db.Put(wo, []byte(key), []byte(fmt.Sprintf("%s-%d", key, round))))
		}
		fo := NewDefaultFlushOptions()
		fo.SetWait(true)
		require.NoError(t, db.Flush(fo))
	}
	assert.Equal(t, "3", db.GetProperty(lsm.PropertyNumFiles))
	assert.Equal(t, "150", db.GetProperty(lsm.PropertyEstimateNumKeys))

	require.NoError(t, db.CompactRange(Range{}))
	assert.Equal(t, "1", db.GetProperty(lsm.PropertyNumFiles))
	assert.Equal(t, "50", db.GetProperty(lsm.PropertyEstimateNumKeys))

	ro := NewDefaultReadOptions()
	for i := range 50 {
		key := fmt.Sprintf("key%02d", i)
		assert.Equal(t, key+"-2", string(get(t, db, ro, key).Data()))
	}

	assert.Contains(t, db.GetProperty(lsm.PropertyStats), "rdb_write_compactions_total 1")
	assert.Equal(t, "", db.GetProperty("rocksdb.unknown"))
	assert.NotNil(t, db.Registry())
}

func TestOpenDbForReadOnly(t *testing.T) {
	path, cleanup := testing_util.DBPath(t, "rdb")
	defer cleanup()

	opts := NewDefaultOptions()
	opts.SetCreateIfMissing(true)
	db, err := OpenDb(opts, path)
	require.NoError(t, err)
	require.NoError(t, db.Put(nil, []byte("flushed"), []byte("1")))
	require.NoError(t, db.Flush(nil))
	require.NoError(t, db.Close())

	readOnly, err := OpenDbForReadOnly(NewDefaultOptions(), path, true)
	require.NoError(t, err)
	assert.True(t, get(t, readOnly, nil, "flushed").Exists())
	require.ErrorIs(t, readOnly.Put(nil, []byte("a"), []byte("b")), lsm.ErrReadOnly)
	require.ErrorIs(t, readOnly.CompactRange(Range{}), lsm.ErrReadOnly)
	require.NoError(t, readOnly.Close())

	db, err = OpenDb(NewDefaultOptions(), path)
	require.NoError(t, err)
	require.NoError(t, db.Put(nil, []byte("logged"), []byte("1")))
	require.NoError(t, db.Close())

	_, err = OpenDbForReadOnly(NewDefaultOptions(), path, true)
	require.ErrorIs(t, err, ErrLogFileExists)

	readOnly, err = OpenDbForReadOnly(NewDefaultOptions(), path, false)
	require.NoError(t, err)
	defer readOnly.Close()
	assert.True(t, get(t, readOnly, nil, "logged").Exists())
}
