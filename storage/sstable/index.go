package sstable

import (
	"bytes"
	"slices"
)

type SparseMemIndex struct {
	ChunkSize      uint64
	IndexedEntries []SparseMemIndexEntry
}

type SparseMemIndexEntry struct {
	Key      []byte
	Location EntryLocation
}

// Return the location within the SSTable file to start searching for a key, using binary search.
// Every entry with a key >= the given key lies at or after the returned location.
func (me *SparseMemIndex) LookupSearchLocation(key []byte) EntryLocation {
	index, exists := me.search(key)
	if exists {
		return me.IndexedEntries[index].Location
	}
	if index == 0 {
		return EntryLocation{}
	}
	return me.IndexedEntries[index-1].Location
}

// LookupBeforeLocation returns a location at or before the last entry with a key strictly
// less than the given key.
func (me *SparseMemIndex) LookupBeforeLocation(key []byte) EntryLocation {
	index, _ := me.search(key)
	if index == 0 {
		return EntryLocation{}
	}
	return me.IndexedEntries[index-1].Location
}

func (me *SparseMemIndex) search(key []byte) (int, bool) {
	return slices.BinarySearchFunc(
		me.IndexedEntries, key, func(entry SparseMemIndexEntry, key []byte) int {
			return bytes.Compare(entry.Key, key)
		},
	)
}
