package lsm

import (
	"bytes"

	"github.com/google/btree"

	"github.com/navijation/njrdb/storage/keyvaluepair"
)

const memtableDegree = 32

// InMemoryIndex is a memtable: an ordered, copy-on-write B-tree of the most recent write to
// each key, tombstones included. It is not goroutine-safe; LSMDB.lock guards the active one,
// and rotated or cloned ones are never written again.
type InMemoryIndex struct {
	tree *btree.BTreeG[keyvaluepair.KeyValuePair]
	size uint64
}

func NewInMemoryIndex() *InMemoryIndex {
	return &InMemoryIndex{
		tree: btree.NewG(memtableDegree, func(a, b keyvaluepair.KeyValuePair) bool {
			return bytes.Compare(a.Key, b.Key) < 0
		}),
	}
}

func (me *InMemoryIndex) Upsert(kvp keyvaluepair.KeyValuePair) {
	old, replaced := me.tree.ReplaceOrInsert(kvp)
	if replaced {
		me.size -= old.SizeOf()
	}
	me.size += kvp.SizeOf()
}

func (me *InMemoryIndex) Lookup(key []byte) (out keyvaluepair.KeyValuePair, exists bool) {
	return me.tree.Get(keyvaluepair.KeyValuePair{Key: key})
}

func (me *InMemoryIndex) Len() int {
	return me.tree.Len()
}

// Size approximates the bytes held by the index.
func (me *InMemoryIndex) Size() uint64 {
	return me.size
}

// Clone returns a point-in-time copy in O(1). It must not run concurrently with writes to
// me; afterwards both copies can be used independently.
func (me *InMemoryIndex) Clone() *InMemoryIndex {
	return &InMemoryIndex{
		tree: me.tree.Clone(),
		size: me.size,
	}
}

// All visits every pair in ascending key order.
func (me *InMemoryIndex) All(yield func(keyvaluepair.KeyValuePair) bool) {
	me.tree.Ascend(func(kvp keyvaluepair.KeyValuePair) bool {
		return yield(kvp)
	})
}

func (me *InMemoryIndex) SeekGE(key []byte) (out keyvaluepair.KeyValuePair, exists bool) {
	me.tree.AscendGreaterOrEqual(keyvaluepair.KeyValuePair{Key: key}, func(kvp keyvaluepair.KeyValuePair) bool {
		out, exists = kvp, true
		return false
	})
	return out, exists
}

func (me *InMemoryIndex) SeekGT(key []byte) (out keyvaluepair.KeyValuePair, exists bool) {
	me.tree.AscendGreaterOrEqual(keyvaluepair.KeyValuePair{Key: key}, func(kvp keyvaluepair.KeyValuePair) bool {
		if bytes.Equal(kvp.Key, key) {
			return true
		}
		out, exists = kvp, true
		return false
	})
	return out, exists
}

func (me *InMemoryIndex) SeekLT(key []byte) (out keyvaluepair.KeyValuePair, exists bool) {
	me.tree.DescendLessOrEqual(keyvaluepair.KeyValuePair{Key: key}, func(kvp keyvaluepair.KeyValuePair) bool {
		if bytes.Equal(kvp.Key, key) {
			return true
		}
		out, exists = kvp, true
		return false
	})
	return out, exists
}

func (me *InMemoryIndex) First() (keyvaluepair.KeyValuePair, bool) {
	return me.tree.Min()
}

func (me *InMemoryIndex) Last() (keyvaluepair.KeyValuePair, bool) {
	return me.tree.Max()
}
