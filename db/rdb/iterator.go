package rdb

import "github.com/navijation/njrdb/db/lsm"

// Iterator walks the keyspace in order from a point-in-time view.
//
//	it := db.NewIterator(readOpts)
//	defer it.Close()
//
//	for it.Seek([]byte("foo")); it.Valid(); it.Next() {
//		fmt.Printf("Key: %v Value: %v\n", it.Key(), it.Value())
//	}
//	if err := it.Err(); err != nil {
//		return err
//	}
//
// Key and Value are valid until the iterator moves.
type Iterator struct {
	it *lsm.Iterator
}

func (me *Iterator) Valid() bool {
	return me.it.Valid()
}

// ValidForPrefix reports false once the iterator moved past the keys starting with prefix.
func (me *Iterator) ValidForPrefix(prefix []byte) bool {
	return me.it.ValidForPrefix(prefix)
}

func (me *Iterator) Key() []byte {
	return me.it.Key()
}

func (me *Iterator) Value() []byte {
	return me.it.Value()
}

func (me *Iterator) Next() {
	me.it.Next()
}

func (me *Iterator) Prev() {
	me.it.Prev()
}

func (me *Iterator) SeekToFirst() {
	me.it.SeekToFirst()
}

func (me *Iterator) SeekToLast() {
	me.it.SeekToLast()
}

// Seek moves to the first key >= key.
func (me *Iterator) Seek(key []byte) {
	me.it.Seek(key)
}

func (me *Iterator) Err() error {
	return me.it.Err()
}

func (me *Iterator) Close() {
	me.it.Close()
}
