package rdb

import "github.com/navijation/njrdb/db/lsm"

// WriteBatch groups writes that DB.Write applies atomically.
type WriteBatch struct {
	batch *lsm.WriteBatch
}

func NewWriteBatch() *WriteBatch {
	return &WriteBatch{batch: lsm.NewWriteBatch()}
}

func (me *WriteBatch) Put(key, value []byte) {
	me.batch.Put(key, value)
}

func (me *WriteBatch) Delete(key []byte) {
	me.batch.Delete(key)
}

func (me *WriteBatch) Count() int {
	return me.batch.Count()
}

func (me *WriteBatch) Clear() {
	me.batch.Clear()
}
