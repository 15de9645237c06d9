package lsm

import "github.com/navijation/njrdb/storage/keyvaluepair"

// WriteBatch collects writes that are journaled as one entry and applied atomically.
// Keys and values are copied when added.
type WriteBatch struct {
	pairs []keyvaluepair.KeyValuePair
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

func (me *WriteBatch) Put(key, value []byte) {
	me.pairs = append(me.pairs, keyvaluepair.KeyValuePair{Key: key, Value: value}.Clone())
}

func (me *WriteBatch) Delete(key []byte) {
	me.pairs = append(me.pairs, keyvaluepair.KeyValuePair{Key: key, IsDeleted: true}.Clone())
}

func (me *WriteBatch) Count() int {
	return len(me.pairs)
}

func (me *WriteBatch) Clear() {
	me.pairs = me.pairs[:0]
}

func (me *WriteBatch) journalEntry() BatchEntry {
	out := BatchEntry{
		StoredKeyValuePairs: make([]keyvaluepair.StoredKeyValuePair, len(me.pairs)),
	}
	for i := range me.pairs {
		out.StoredKeyValuePairs[i] = me.pairs[i].ToStoredKeyValuePair()
	}
	return out
}
