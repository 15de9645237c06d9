package lsm

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/storage/journal"
	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
	testing_util "github.com/navijation/njrdb/util/testing"
)

func openTestDB(t *testing.T, args OpenArgs) *LSMDB {
	t.Helper()

	db, err := Open(args)
	require.NoError(t, err)
	require.NoError(t, db.Start())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestDB(t *testing.T, args OpenArgs) *LSMDB {
	t.Helper()

	path, cleanup := testing_util.DBPath(t, "lsm")
	t.Cleanup(cleanup)

	args.Path = path
	args.Create = true
	return openTestDB(t, args)
}

func reopen(t *testing.T, db *LSMDB, args OpenArgs) *LSMDB {
	t.Helper()

	require.NoError(t, db.Close())
	args.Path = db.Path()
	return openTestDB(t, args)
}

func requireValue(t *testing.T, db *LSMDB, opts ReadOptions, key, expected string) {
	t.Helper()

	value, exists, err := db.Get(opts, []byte(key))
	require.NoError(t, err)
	require.True(t, exists, "key %q", key)
	assert.Equal(t, expected, string(value), "key %q", key)
}

func requireMissing(t *testing.T, db *LSMDB, opts ReadOptions, key string) {
	t.Helper()

	_, exists, err := db.Get(opts, []byte(key))
	require.NoError(t, err)
	require.False(t, exists, "key %q", key)
}

func countFiles(t *testing.T, db *LSMDB, extension string) int {
	t.Helper()

	entries, err := os.ReadDir(db.Path())
	require.NoError(t, err)

	count := 0
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), extension) {
			count++
		}
	}
	return count
}

func fileExists(t *testing.T, path string) bool {
	t.Helper()

	exists, err := util.FileExists(path)
	require.NoError(t, err)
	return exists
}

func TestOpen(t *testing.T) {
	path, cleanup := testing_util.DBPath(t, "lsm")
	defer cleanup()

	_, err := Open(OpenArgs{Path: path})
	require.ErrorIs(t, err, ErrNotFound)

	_, err = Open(OpenArgs{Path: path, ReadOnly: true, Create: true})
	require.ErrorIs(t, err, ErrNotFound)

	db, err := Open(OpenArgs{Path: path, Create: true})
	require.NoError(t, err)
	require.NoError(t, db.Start())

	assert.True(t, fileExists(t, filepath.Join(path, tmpDirName)))
	assert.Equal(t, 1, countFiles(t, db, writeAheadLogExtension))
	assert.Equal(t, 0, countFiles(t, db, sstableExtension))
	require.NoError(t, db.Close())

	_, err = Open(OpenArgs{Path: path, Create: true, ErrorIfExists: true})
	require.ErrorIs(t, err, ErrExists)

	_, err = Open(OpenArgs{Path: path, Compression: 99})
	require.Error(t, err)

	t.Run("closed database", func(t *testing.T) {
		require.ErrorIs(t, db.Start(), ErrClosed)
		require.ErrorIs(t, db.Put(WriteOptions{}, []byte("a"), []byte("b")), ErrClosed)
		_, _, err := db.Get(ReadOptions{}, []byte("a"))
		require.ErrorIs(t, err, ErrClosed)
		require.NoError(t, db.Close())
	})

	t.Run("not started", func(t *testing.T) {
		db, err := Open(OpenArgs{Path: path})
		require.NoError(t, err)
		defer db.Close()

		require.ErrorIs(t, db.Put(WriteOptions{}, []byte("a"), []byte("b")), ErrNotRunning)
	})
}

func TestLSMDB_PutGetDelete(t *testing.T) {
	db := newTestDB(t, OpenArgs{})

	requireMissing(t, db, ReadOptions{}, "a")

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Put(WriteOptions{Sync: true}, []byte("b"), []byte("2")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("3")))
	requireValue(t, db, ReadOptions{}, "a", "3")
	requireValue(t, db, ReadOptions{}, "b", "2")

	require.NoError(t, db.Delete(WriteOptions{}, []byte("b")))
	requireMissing(t, db, ReadOptions{}, "b")

	kvp, exists, err := db.Lookup([]byte("b"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.True(t, kvp.IsDeleted)

	t.Run("empty key and value", func(t *testing.T) {
		require.NoError(t, db.Put(WriteOptions{}, []byte{}, []byte("empty")))
		requireValue(t, db, ReadOptions{}, "", "empty")

		require.NoError(t, db.Put(WriteOptions{}, []byte("novalue"), nil))
		requireValue(t, db, ReadOptions{}, "novalue", "")
	})

	t.Run("caller buffers are copied", func(t *testing.T) {
		key, value := []byte("buf"), []byte("before")
		require.NoError(t, db.Put(WriteOptions{}, key, value))
		copy(value, "after!")
		key[0] = 'x'
		requireValue(t, db, ReadOptions{}, "buf", "before")
	})

	t.Run("survives reopen", func(t *testing.T) {
		db := reopen(t, db, OpenArgs{})
		assert.True(t, db.HasUnflushedLogEntries())
		requireValue(t, db, ReadOptions{}, "a", "3")
		requireValue(t, db, ReadOptions{}, "", "empty")
		requireValue(t, db, ReadOptions{}, "buf", "before")
		requireMissing(t, db, ReadOptions{}, "b")
	})
}

func TestLSMDB_WriteBatch(t *testing.T) {
	db := newTestDB(t, OpenArgs{})

	require.NoError(t, db.Put(WriteOptions{}, []byte("c"), []byte("old")))
	require.NoError(t, db.Write(WriteOptions{}, nil))
	require.NoError(t, db.Write(WriteOptions{}, NewWriteBatch()))

	batch := NewWriteBatch()
	batch.Put([]byte("a"), []byte("1"))
	batch.Put([]byte("b"), []byte("2"))
	batch.Delete([]byte("c"))
	batch.Put([]byte("a"), []byte("4"))
	assert.Equal(t, 4, batch.Count())

	require.NoError(t, db.Write(WriteOptions{Sync: true}, batch))
	requireValue(t, db, ReadOptions{}, "a", "4")
	requireValue(t, db, ReadOptions{}, "b", "2")
	requireMissing(t, db, ReadOptions{}, "c")

	batch.Clear()
	assert.Equal(t, 0, batch.Count())

	db = reopen(t, db, OpenArgs{})
	requireValue(t, db, ReadOptions{}, "a", "4")
	requireValue(t, db, ReadOptions{}, "b", "2")
	requireMissing(t, db, ReadOptions{}, "c")
}

func TestLSMDB_DisableWAL(t *testing.T) {
	db := newTestDB(t, OpenArgs{})

	require.NoError(t, db.Put(WriteOptions{DisableWAL: true}, []byte("volatile"), []byte("1")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("durable"), []byte("1")))
	requireValue(t, db, ReadOptions{}, "volatile", "1")

	db = reopen(t, db, OpenArgs{})
	requireMissing(t, db, ReadOptions{}, "volatile")
	requireValue(t, db, ReadOptions{}, "durable", "1")
}

func TestLSMDB_Flush(t *testing.T) {
	args := OpenArgs{DisableAutoCompactions: true}
	db := newTestDB(t, args)

	// nothing to flush
	require.NoError(t, db.Flush(true))
	assert.Equal(t, "0", db.GetProperty(PropertyNumFiles))

	for i := range 100 {
		key := fmt.Sprintf("key%03d", i)
		require.NoError(t, db.Put(WriteOptions{}, []byte(key), []byte(strconv.Itoa(i))))
	}
	require.NoError(t, db.Delete(WriteOptions{}, []byte("key050")))

	require.NoError(t, db.Flush(true))
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	assert.Equal(t, "0", db.GetProperty(PropertyNumEntriesActiveMemTable))
	assert.Equal(t, "0", db.GetProperty(PropertyNumImmutableMemTable))
	assert.Equal(t, 1, countFiles(t, db, sstableExtension))
	// the log holding the flushed writes is gone
	assert.Equal(t, 1, countFiles(t, db, writeAheadLogExtension))
	assert.False(t, db.HasUnflushedLogEntries())
	assert.Equal(t, 1.0, testutil.ToFloat64(db.stats.flushes))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.stats.liveTables))

	requireValue(t, db, ReadOptions{}, "key000", "0")
	requireValue(t, db, ReadOptions{}, "key099", "99")
	requireMissing(t, db, ReadOptions{}, "key050")

	// the tombstone is kept in the table
	kvp, exists, err := db.Lookup([]byte("key050"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.True(t, kvp.IsDeleted)

	require.NoError(t, db.Put(WriteOptions{}, []byte("key000"), []byte("new")))
	requireValue(t, db, ReadOptions{}, "key000", "new")

	db = reopen(t, db, args)
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "key000", "new")
	requireValue(t, db, ReadOptions{}, "key001", "1")
	requireMissing(t, db, ReadOptions{}, "key050")

	require.NoError(t, db.Flush(true))
	assert.Equal(t, "2", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "key000", "new")
}

func TestLSMDB_WriteBufferFlush(t *testing.T) {
	db := newTestDB(t, OpenArgs{
		WriteBufferSize:        util.Some[uint64](1024),
		MaxWriteBufferNumber:   util.Some(3),
		DisableAutoCompactions: true,
	})

	value := strings.Repeat("v", 100)
	for i := range 200 {
		require.NoError(t, db.Put(WriteOptions{}, []byte(fmt.Sprintf("key%03d", i)), []byte(value)))
	}
	require.NoError(t, db.Flush(true))

	numFiles, err := strconv.Atoi(db.GetProperty(PropertyNumFiles))
	require.NoError(t, err)
	assert.Greater(t, numFiles, 10)
	assert.Equal(t, "0", db.GetProperty(PropertyNumImmutableMemTable))

	for i := range 200 {
		requireValue(t, db, ReadOptions{}, fmt.Sprintf("key%03d", i), value)
	}
}

func TestLSMDB_ConcurrentWriters(t *testing.T) {
	db := newTestDB(t, OpenArgs{
		WriteBufferSize:                util.Some[uint64](4096),
		Level0FileNumCompactionTrigger: util.Some(4),
	})

	var wg sync.WaitGroup
	for writer := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 250 {
				key := fmt.Sprintf("w%d-%03d", writer, i)
				assert.NoError(t, db.Put(WriteOptions{}, []byte(key), []byte(key)))
			}
		}()
	}
	wg.Wait()
	require.NoError(t, db.CompactRange(nil, nil))

	for writer := range 4 {
		for i := range 250 {
			key := fmt.Sprintf("w%d-%03d", writer, i)
			requireValue(t, db, ReadOptions{}, key, key)
		}
	}
}

func TestLSMDB_ConcurrentSnapshotReads(t *testing.T) {
	db := newTestDB(t, OpenArgs{
		WriteBufferSize:                util.Some[uint64](2048),
		Level0FileNumCompactionTrigger: util.Some(3),
	})

	const numKeys = 300
	keyOf := func(i int) []byte { return []byte(fmt.Sprintf("s%03d", i)) }
	for i := range numKeys {
		require.NoError(t, db.Put(WriteOptions{}, keyOf(i), []byte("v1")))
	}
	require.NoError(t, db.Flush(true))
	for i := range numKeys / 2 {
		require.NoError(t, db.Put(WriteOptions{}, keyOf(i), []byte("v1")))
	}

	snapshot, err := db.NewSnapshot()
	require.NoError(t, err)
	at := ReadOptions{Snapshot: snapshot}

	var stopped atomic.Bool
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for round := 0; round == 0 || !stopped.Load(); round++ {
				for i := range numKeys {
					key := keyOf(i)
					if !db.KeyMayExist(at, nil, key).MayExist {
						assert.Fail(t, "false negative", "key %q", key)
						return
					}
					value, exists, err := db.Get(at, key)
					if !assert.NoError(t, err) || !assert.True(t, exists, "key %q", key) {
						return
					}
					assert.Equal(t, "v1", string(value))
				}
			}
		}()
	}

	for i := range numKeys {
		if i%2 == 0 {
			assert.NoError(t, db.Delete(WriteOptions{}, keyOf(i)))
		} else {
			assert.NoError(t, db.Put(WriteOptions{}, keyOf(i), []byte("v2")))
		}
		assert.NoError(t, db.Put(WriteOptions{}, []byte(fmt.Sprintf("n%03d", i)), []byte("v2")))

		switch {
		case i%100 == 99:
			assert.NoError(t, db.CompactRange(nil, nil))
		case i%25 == 0:
			assert.NoError(t, db.Flush(false))
		}
	}
	stopped.Store(true)
	wg.Wait()

	db.ReleaseSnapshot(snapshot)
	requireMissing(t, db, ReadOptions{}, "s000")
	requireValue(t, db, ReadOptions{}, "s001", "v2")
	requireValue(t, db, ReadOptions{}, "n299", "v2")
}

func TestLSMDB_CompactRange(t *testing.T) {
	args := OpenArgs{DisableAutoCompactions: true}
	db := newTestDB(t, args)

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("b"), []byte("1")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("c"), []byte("1")))
	require.NoError(t, db.Flush(true))

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("2")))
	require.NoError(t, db.Delete(WriteOptions{}, []byte("b")))
	require.NoError(t, db.Flush(true))

	require.NoError(t, db.Put(WriteOptions{}, []byte("d"), []byte("1")))
	assert.Equal(t, "2", db.GetProperty(PropertyNumFiles))

	// flushes d, then merges all three tables
	require.NoError(t, db.CompactRange(nil, nil))
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	assert.Equal(t, 1, countFiles(t, db, sstableExtension))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.stats.compactions))
	// the bottom table was included, so the tombstone for b was dropped
	assert.Equal(t, "3", db.GetProperty(PropertyEstimateNumKeys))

	requireValue(t, db, ReadOptions{}, "a", "2")
	requireMissing(t, db, ReadOptions{}, "b")
	requireValue(t, db, ReadOptions{}, "c", "1")
	requireValue(t, db, ReadOptions{}, "d", "1")
	_, exists, err := db.Lookup([]byte("b"))
	require.NoError(t, err)
	assert.False(t, exists)

	// a single table is left alone
	require.NoError(t, db.CompactRange(nil, nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(db.stats.compactions))

	db = reopen(t, db, args)
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "a", "2")
	requireMissing(t, db, ReadOptions{}, "b")

	t.Run("newer writes keep winning", func(t *testing.T) {
		require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("3")))
		require.NoError(t, db.Flush(true))
		require.NoError(t, db.CompactRange(nil, nil))
		requireValue(t, db, ReadOptions{}, "a", "3")

		require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("4")))
		require.NoError(t, db.Flush(true))
		requireValue(t, db, ReadOptions{}, "a", "4")
	})
}

func TestLSMDB_CompactRange_Bounded(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	put := func(keys ...string) {
		for _, key := range keys {
			require.NoError(t, db.Put(WriteOptions{}, []byte(key), []byte(key)))
		}
		require.NoError(t, db.Flush(true))
	}
	put("a", "b")
	put("x", "y")
	put("m", "n")
	require.NoError(t, db.Delete(WriteOptions{}, []byte("x")))
	require.NoError(t, db.Flush(true))

	// [x, x] and [x, y] overlap, so [m, n] between them is merged too; [a, b] stays and keeps
	// the tombstone alive
	require.NoError(t, db.CompactRange([]byte("o"), []byte("z")))
	assert.Equal(t, "2", db.GetProperty(PropertyNumFiles))
	requireMissing(t, db, ReadOptions{}, "x")
	requireValue(t, db, ReadOptions{}, "y", "y")

	kvp, exists, err := db.Lookup([]byte("x"))
	require.NoError(t, err)
	require.True(t, exists)
	assert.True(t, kvp.IsDeleted)

	// nothing in range
	require.NoError(t, db.CompactRange([]byte("c"), []byte("d")))
	assert.Equal(t, "2", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "m", "m")
	requireValue(t, db, ReadOptions{}, "a", "a")
}

func TestLSMDB_AutoCompaction(t *testing.T) {
	db := newTestDB(t, OpenArgs{Level0FileNumCompactionTrigger: util.Some(2)})

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("2")))
	require.NoError(t, db.Flush(true))

	require.Eventually(t, func() bool {
		return db.GetProperty(PropertyNumFiles) == "1"
	}, 5*time.Second, 10*time.Millisecond)
	requireValue(t, db, ReadOptions{}, "a", "2")
}

func TestLSMDB_EmptyCompaction(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Delete(WriteOptions{}, []byte("a")))

	require.NoError(t, db.CompactRange(nil, nil))
	assert.Equal(t, "0", db.GetProperty(PropertyNumFiles))
	assert.Equal(t, 0, countFiles(t, db, sstableExtension))
	requireMissing(t, db, ReadOptions{}, "a")
}

func TestLSMDB_Snapshot(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	require.NoError(t, db.Put(WriteOptions{}, []byte("flushed"), []byte("1")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("memtable"), []byte("1")))

	snapshot, err := db.NewSnapshot()
	require.NoError(t, err)

	require.NoError(t, db.Put(WriteOptions{}, []byte("flushed"), []byte("2")))
	require.NoError(t, db.Delete(WriteOptions{}, []byte("memtable")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("later"), []byte("1")))
	require.NoError(t, db.Flush(true))
	// merges the snapshot's table away and deletes its file
	require.NoError(t, db.CompactRange(nil, nil))
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))

	at := ReadOptions{Snapshot: snapshot}
	requireValue(t, db, at, "flushed", "1")
	requireValue(t, db, at, "memtable", "1")
	requireMissing(t, db, at, "later")

	requireValue(t, db, ReadOptions{}, "flushed", "2")
	requireMissing(t, db, ReadOptions{}, "memtable")
	requireValue(t, db, ReadOptions{}, "later", "1")

	it, err := db.NewIterator(at)
	require.NoError(t, err)
	var keys []string
	for it.SeekToFirst(); it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Err())
	it.Close()
	assert.Equal(t, []string{"flushed", "memtable"}, keys)

	probe := db.KeyMayExist(at, nil, []byte("memtable"))
	assert.True(t, probe.ValueFound)

	db.ReleaseSnapshot(snapshot)
	db.ReleaseSnapshot(snapshot)

	_, _, err = db.Get(at, []byte("flushed"))
	require.ErrorIs(t, err, ErrSnapshotUsed)
	_, err = db.NewIterator(at)
	require.ErrorIs(t, err, ErrSnapshotUsed)
}

func collectKeys(it *Iterator, forward bool) (out []string) {
	if forward {
		for it.SeekToFirst(); it.Valid(); it.Next() {
			out = append(out, string(it.Key())+"="+string(it.Value()))
		}
	} else {
		for it.SeekToLast(); it.Valid(); it.Prev() {
			out = append(out, string(it.Key())+"="+string(it.Value()))
		}
	}
	return out
}

func TestLSMDB_Iterator(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	for _, key := range []string{"a", "b", "c", "d", "e"} {
		require.NoError(t, db.Put(WriteOptions{}, []byte(key), []byte("old")))
	}
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("b"), []byte("new")))
	require.NoError(t, db.Delete(WriteOptions{}, []byte("c")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("f"), []byte("mem")))
	require.NoError(t, db.Delete(WriteOptions{}, []byte("e")))

	it, err := db.NewIterator(ReadOptions{})
	require.NoError(t, err)
	defer it.Close()

	// invisible to the open iterator
	require.NoError(t, db.Put(WriteOptions{}, []byte("g"), []byte("later")))

	assert.False(t, it.Valid())
	assert.Nil(t, it.Key())

	assert.Equal(t, []string{"a=old", "b=new", "d=old", "f=mem"}, collectKeys(it, true))
	assert.Equal(t, []string{"f=mem", "d=old", "b=new", "a=old"}, collectKeys(it, false))
	require.NoError(t, it.Err())

	it.Seek([]byte("c"))
	require.True(t, it.Valid())
	assert.Equal(t, "d", string(it.Key()))
	it.Prev()
	require.True(t, it.Valid())
	assert.Equal(t, "b", string(it.Key()))
	assert.True(t, it.ValidForPrefix([]byte("b")))
	assert.False(t, it.ValidForPrefix([]byte("a")))

	it.Seek([]byte("zzz"))
	assert.False(t, it.Valid())

	t.Run("upper bound", func(t *testing.T) {
		it, err := db.NewIterator(ReadOptions{IterateUpperBound: []byte("d")})
		require.NoError(t, err)
		defer it.Close()

		assert.Equal(t, []string{"a=old", "b=new"}, collectKeys(it, true))
		assert.Equal(t, []string{"b=new", "a=old"}, collectKeys(it, false))

		it.Seek([]byte("d"))
		assert.False(t, it.Valid())
	})

	t.Run("latest state", func(t *testing.T) {
		it, err := db.NewIterator(ReadOptions{})
		require.NoError(t, err)
		defer it.Close()

		assert.Equal(t, []string{"a=old", "b=new", "d=old", "f=mem", "g=later"}, collectKeys(it, true))
	})

	t.Run("survives compaction", func(t *testing.T) {
		before, err := db.NewIterator(ReadOptions{})
		require.NoError(t, err)
		defer before.Close()

		require.NoError(t, db.CompactRange(nil, nil))

		after, err := db.NewIterator(ReadOptions{})
		require.NoError(t, err)
		defer after.Close()

		expected := []string{"a=old", "b=new", "d=old", "f=mem", "g=later"}
		assert.Equal(t, expected, collectKeys(before, true))
		assert.Equal(t, expected, collectKeys(after, true))
	})

	t.Run("closed", func(t *testing.T) {
		it, err := db.NewIterator(ReadOptions{})
		require.NoError(t, err)
		it.Close()
		it.Close()

		it.SeekToFirst()
		assert.False(t, it.Valid())
	})
}

func TestLSMDB_KeyMayExist(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	probe := db.KeyMayExist(ReadOptions{}, nil, []byte("absent"))
	assert.False(t, probe.MayExist)

	require.NoError(t, db.Put(WriteOptions{}, []byte("live"), []byte("value")))
	probe = db.KeyMayExist(ReadOptions{}, db.DefaultColumnFamily(), []byte("live"))
	assert.Equal(t, ProbeResult{MayExist: true, Value: []byte("value"), ValueFound: true}, probe)

	require.NoError(t, db.Put(WriteOptions{}, []byte{}, []byte("empty")))
	probe = db.KeyMayExist(ReadOptions{}, nil, []byte{})
	assert.True(t, probe.ValueFound)
	assert.Equal(t, []byte("empty"), probe.Value)

	for i := range 100 {
		require.NoError(t, db.Put(WriteOptions{}, []byte(fmt.Sprintf("key%03d", i)), []byte("v")))
	}
	require.NoError(t, db.Flush(true))

	t.Run("no false negatives", func(t *testing.T) {
		for i := range 100 {
			probe := db.KeyMayExist(ReadOptions{}, nil, []byte(fmt.Sprintf("key%03d", i)))
			assert.True(t, probe.MayExist)
			assert.False(t, probe.ValueFound)
		}
	})

	t.Run("out of range", func(t *testing.T) {
		probe := db.KeyMayExist(ReadOptions{}, nil, []byte("zzz"))
		assert.False(t, probe.MayExist)
	})

	t.Run("bloom filter rejects most absent keys", func(t *testing.T) {
		positives := 0
		for i := range 1000 {
			if db.KeyMayExist(ReadOptions{}, nil, []byte(fmt.Sprintf("key%03dx", i))).MayExist {
				positives++
			}
		}
		assert.Less(t, positives, 100)
		assert.Greater(t, testutil.ToFloat64(db.stats.bloomUseful), 0.0)
	})

	t.Run("memtable tombstone shadows tables", func(t *testing.T) {
		require.NoError(t, db.Delete(WriteOptions{}, []byte("key010")))
		probe := db.KeyMayExist(ReadOptions{}, nil, []byte("key010"))
		assert.Equal(t, ProbeResult{}, probe)
	})

	assert.Equal(t, 1.0+1+1+100+1+1000+1, testutil.ToFloat64(db.stats.keyMayExist))
}

func TestLSMDB_ReadOnly(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	require.NoError(t, db.Put(WriteOptions{}, []byte("flushed"), []byte("1")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("logged"), []byte("1")))
	require.NoError(t, db.Close())

	readOnly := openTestDB(t, OpenArgs{Path: db.Path(), ReadOnly: true})
	assert.True(t, readOnly.IsReadOnly())
	assert.True(t, readOnly.HasUnflushedLogEntries())

	requireValue(t, readOnly, ReadOptions{}, "flushed", "1")
	requireValue(t, readOnly, ReadOptions{}, "logged", "1")

	require.ErrorIs(t, readOnly.Put(WriteOptions{}, []byte("a"), []byte("b")), ErrReadOnly)
	require.ErrorIs(t, readOnly.Delete(WriteOptions{}, []byte("a")), ErrReadOnly)
	require.ErrorIs(t, readOnly.Flush(true), ErrReadOnly)
	require.ErrorIs(t, readOnly.CompactRange(nil, nil), ErrReadOnly)

	it, err := readOnly.NewIterator(ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"flushed=1", "logged=1"}, collectKeys(it, true))
	it.Close()
	require.NoError(t, readOnly.Close())

	// unchanged on disk
	db = openTestDB(t, OpenArgs{Path: db.Path(), DisableAutoCompactions: true})
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "logged", "1")
}

func TestLSMDB_ReplayInterruptedFlush(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("b"), []byte("1")))

	// journal the rotation without ever writing the table
	ctx := &dbCtx{}
	ctx.Lock(&db.lock)
	entry := CreateSSTableEntry{
		SSTableNumber:       db.nextSSTableNumber,
		WriteAheadLogNumber: db.nextWriteAheadLogNumber,
	}
	require.NoError(t, db.appendEntry(ctx, &entry, true))
	ctx.Unlock(&db.lock)
	require.NoError(t, db.Close())

	db = openTestDB(t, OpenArgs{Path: db.Path(), DisableAutoCompactions: true})
	require.NoError(t, db.Flush(true))

	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	assert.True(t, fileExists(t, db.sstablePath(entry.SSTableNumber)))
	assert.Equal(t, 1, countFiles(t, db, writeAheadLogExtension))
	requireValue(t, db, ReadOptions{}, "a", "1")

	// later writes go to the log named by the entry
	require.NoError(t, db.Put(WriteOptions{}, []byte("c"), []byte("1")))
	db = reopen(t, db, OpenArgs{DisableAutoCompactions: true})
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	requireValue(t, db, ReadOptions{}, "b", "1")
	requireValue(t, db, ReadOptions{}, "c", "1")
}

func TestLSMDB_ReplayInterruptedMerge(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true})

	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("1")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Put(WriteOptions{}, []byte("a"), []byte("2")))
	require.NoError(t, db.Put(WriteOptions{}, []byte("b"), []byte("2")))
	require.NoError(t, db.Flush(true))
	require.NoError(t, db.Close())

	// install a merged table, then stop before the sources are deleted
	srcs := make([]*sstable.SSTable, 0, 2)
	for _, number := range []uint64{2, 1} {
		table, err := sstable.Open(sstable.OpenArgs{Path: db.sstablePath(number), ReadOnly: true})
		require.NoError(t, err)
		defer table.Close()
		srcs = append(srcs, &table)
	}
	dest, err := sstable.Open(sstable.OpenArgs{
		Path:     db.sstablePath(3),
		Create:   true,
		Version:  sstable.CurrentVersion,
		Sequence: 2,
	})
	require.NoError(t, err)
	require.NoError(t, dest.MergeTables(sstable.MergeTablesArgs{Srcs: srcs, DropTombstones: true}))
	require.NoError(t, dest.Close())

	log, err := journal.Open(journal.OpenArgs{Path: db.writeAheadLogPath(3)})
	require.NoError(t, err)
	content, err := util.ToBytes(&MergeTablesEntry{DestTableNumber: 3, SrcTableNumbers: []uint64{2, 1}})
	require.NoError(t, err)
	_, err = log.AppendEntry(content, true)
	require.NoError(t, err)
	require.NoError(t, log.Close())

	db = openTestDB(t, OpenArgs{Path: db.Path(), DisableAutoCompactions: true})
	assert.Equal(t, "1", db.GetProperty(PropertyNumFiles))
	assert.Equal(t, 1, countFiles(t, db, sstableExtension))
	assert.False(t, fileExists(t, db.sstablePath(1)))
	requireValue(t, db, ReadOptions{}, "a", "2")
	requireValue(t, db, ReadOptions{}, "b", "2")

	// table numbers continue after the merged table
	require.NoError(t, db.Put(WriteOptions{}, []byte("c"), []byte("3")))
	require.NoError(t, db.Flush(true))
	assert.True(t, fileExists(t, db.sstablePath(4)))
}

func TestLSMDB_Properties(t *testing.T) {
	db := newTestDB(t, OpenArgs{DisableAutoCompactions: true, Compression: compression.Snappy})

	assert.Equal(t, "", db.GetProperty("rdb.unknown"))
	assert.Equal(t, "0", db.GetProperty(PropertyEstimateNumKeys))
	assert.Equal(t, "0", db.GetProperty(PropertyCurSizeActiveMemTable))

	require.NoError(t, db.Put(WriteOptions{}, []byte("key"), []byte("value")))
	assert.Equal(t, "1", db.GetProperty(PropertyNumEntriesActiveMemTable))
	assert.Equal(t, strconv.Itoa(3+5+16), db.GetProperty(PropertyCurSizeActiveMemTable))
	assert.Equal(t, "0", db.GetProperty(PropertyTotalSSTFilesSize))

	require.NoError(t, db.Flush(true))
	totalSize, err := strconv.ParseUint(db.GetProperty(PropertyTotalSSTFilesSize), 10, 64)
	require.NoError(t, err)
	assert.Greater(t, totalSize, uint64(0))
	assert.Equal(t, "1", db.GetProperty(PropertyEstimateNumKeys))

	_, _, err = db.Get(ReadOptions{}, []byte("key"))
	require.NoError(t, err)

	stats := db.GetProperty(PropertyStats)
	assert.Contains(t, stats, "rdb_write_flushes_total 1\n")
	assert.Contains(t, stats, "rdb_read_lookups_total 1\n")
	assert.Contains(t, stats, "rdb_storage_live_tables 1\n")
	assert.Contains(t, stats, "rdb_write_bytes_written_total 8\n")

	count, err := testutil.GatherAndCount(db.Registry())
	require.NoError(t, err)
	assert.Equal(t, 9, count)
}
