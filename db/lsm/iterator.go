package lsm

import (
	"bytes"

	"github.com/navijation/njrdb/storage/keyvaluepair"
	"github.com/navijation/njrdb/storage/sstable"
)

// iteratorSource is one sorted input of the merged iterator. Every call is independent, so a
// source holds no position.
type iteratorSource interface {
	seekGE(key []byte) (keyvaluepair.KeyValuePair, bool, error)
	seekGT(key []byte) (keyvaluepair.KeyValuePair, bool, error)
	seekLT(key []byte) (keyvaluepair.KeyValuePair, bool, error)
	first() (keyvaluepair.KeyValuePair, bool, error)
	last() (keyvaluepair.KeyValuePair, bool, error)
}

type memtableSource struct {
	index *InMemoryIndex
}

func (me memtableSource) seekGE(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	kvp, exists := me.index.SeekGE(key)
	return kvp, exists, nil
}

func (me memtableSource) seekGT(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	kvp, exists := me.index.SeekGT(key)
	return kvp, exists, nil
}

func (me memtableSource) seekLT(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	kvp, exists := me.index.SeekLT(key)
	return kvp, exists, nil
}

func (me memtableSource) first() (keyvaluepair.KeyValuePair, bool, error) {
	kvp, exists := me.index.First()
	return kvp, exists, nil
}

func (me memtableSource) last() (keyvaluepair.KeyValuePair, bool, error) {
	kvp, exists := me.index.Last()
	return kvp, exists, nil
}

type tableSource struct {
	table *sstable.SSTable
}

func fromEntry(entry sstable.SSTableEntry, exists bool, err error) (keyvaluepair.KeyValuePair, bool, error) {
	return entry.ToKeyValuePair(), exists, err
}

func (me tableSource) seekGE(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	return fromEntry(me.table.SeekGE(key))
}

func (me tableSource) seekGT(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	return fromEntry(me.table.SeekGT(key))
}

func (me tableSource) seekLT(key []byte) (keyvaluepair.KeyValuePair, bool, error) {
	return fromEntry(me.table.SeekLT(key))
}

func (me tableSource) first() (keyvaluepair.KeyValuePair, bool, error) {
	return fromEntry(me.table.First())
}

func (me tableSource) last() (keyvaluepair.KeyValuePair, bool, error) {
	return fromEntry(me.table.Last())
}

// Iterator walks the live keys of a view in either direction. Newer sources win on equal
// keys and tombstones hide older values. It is not goroutine-safe.
type Iterator struct {
	view       view
	sources    []iteratorSource
	upperBound []byte

	current keyvaluepair.KeyValuePair
	valid   bool
	err     error
	closed  bool
}

// NewIterator reads from opts.Snapshot if set, otherwise from an implicit snapshot taken now.
// The iterator starts unpositioned.
func (me *LSMDB) NewIterator(opts ReadOptions) (*Iterator, error) {
	ctx := &dbCtx{}
	if err := me.checkStateError(ctx); err != nil {
		return nil, err
	}

	var v view
	if opts.Snapshot != nil {
		if opts.Snapshot.released.Load() {
			return nil, ErrSnapshotUsed
		}
		v = opts.Snapshot.view.ref()
	} else {
		v = me.acquireView(ctx)
	}

	out := &Iterator{view: v}
	if opts.IterateUpperBound != nil {
		out.upperBound = append([]byte{}, opts.IterateUpperBound...)
	}
	for _, memtable := range v.memtables {
		out.sources = append(out.sources, memtableSource{index: memtable})
	}
	for _, handle := range v.tables {
		out.sources = append(out.sources, tableSource{table: handle.table})
	}
	return out, nil
}

func (me *Iterator) Valid() bool {
	return me.valid
}

func (me *Iterator) ValidForPrefix(prefix []byte) bool {
	return me.valid && bytes.HasPrefix(me.current.Key, prefix)
}

func (me *Iterator) Key() []byte {
	if !me.valid {
		return nil
	}
	return me.current.Key
}

func (me *Iterator) Value() []byte {
	if !me.valid {
		return nil
	}
	return me.current.Value
}

func (me *Iterator) Err() error {
	return me.err
}

func (me *Iterator) SeekToFirst() {
	me.forward(iteratorSource.first)
}

func (me *Iterator) SeekToLast() {
	if me.upperBound != nil {
		bound := me.upperBound
		me.backward(func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
			return source.seekLT(bound)
		})
		return
	}
	me.backward(iteratorSource.last)
}

// Seek positions at the first key >= key.
func (me *Iterator) Seek(key []byte) {
	target := append([]byte{}, key...)
	me.forward(func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
		return source.seekGE(target)
	})
}

func (me *Iterator) Next() {
	if !me.valid {
		return
	}
	current := me.current.Key
	me.forward(func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
		return source.seekGT(current)
	})
}

func (me *Iterator) Prev() {
	if !me.valid {
		return
	}
	current := me.current.Key
	me.backward(func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
		return source.seekLT(current)
	})
}

// Close releases the iterator's table references. Closing twice is a no-op.
func (me *Iterator) Close() {
	if me.closed {
		return
	}
	me.closed = true
	me.valid = false
	me.view.release()
}

type seekFunc func(iteratorSource) (keyvaluepair.KeyValuePair, bool, error)

func (me *Iterator) forward(seek seekFunc) {
	me.step(seek, 1, func(key []byte) seekFunc {
		return func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
			return source.seekGT(key)
		}
	})
}

func (me *Iterator) backward(seek seekFunc) {
	me.step(seek, -1, func(key []byte) seekFunc {
		return func(source iteratorSource) (keyvaluepair.KeyValuePair, bool, error) {
			return source.seekLT(key)
		}
	})
}

// step picks the smallest (direction 1) or largest (direction -1) key among the sources,
// skipping past tombstones with skip until a live key is found.
func (me *Iterator) step(seek seekFunc, direction int, skip func([]byte) seekFunc) {
	me.valid = false
	if me.closed || me.err != nil {
		return
	}

	for {
		var (
			best  keyvaluepair.KeyValuePair
			found bool
		)
		// sources are newest first, so only a strictly better key replaces the current pick
		for _, source := range me.sources {
			kvp, exists, err := seek(source)
			if err != nil {
				me.err = err
				return
			}
			if !exists {
				continue
			}
			if !found || direction*bytes.Compare(kvp.Key, best.Key) < 0 {
				best, found = kvp, true
			}
		}

		if !found {
			return
		}
		if me.upperBound != nil && bytes.Compare(best.Key, me.upperBound) >= 0 {
			if direction > 0 {
				return
			}
			seek = skip(me.upperBound)
			continue
		}
		if best.IsDeleted {
			seek = skip(best.Key)
			continue
		}

		me.current = best
		me.valid = true
		return
	}
}
