package sstable

import (
	"bytes"
	"iter"

	"github.com/pkg/errors"

	"github.com/navijation/njrdb/storage/keyvaluepair"
	"github.com/navijation/njrdb/util/heap"
)

type MergeTablesArgs struct {
	// ordered newest first; on duplicate keys the earliest source wins
	Srcs []*SSTable
	// only safe when no older table can hold a value the tombstone shadows
	DropTombstones bool
}

var errAppendAborted = errors.New("append aborted early")

// Merge all entries from source tables into dest table. On error dest may hold a partial merge
// and should be discarded.
func (me *SSTable) MergeTables(args MergeTablesArgs) error {
	tableMux := newTableMux()

	for _, src := range args.Srcs {
		next, stop := iter.Pull2(src.Entries())
		defer stop()

		if err := tableMux.AddIterator(next); err != nil {
			return err
		}
	}

	var nextEntryErr error
	appendErr := me.AppendEntries(func(yield func(keyvaluepair.KeyValuePair) bool) {
		for {
			nextEntry, hasNext, err := tableMux.NextEntry()
			if err != nil {
				nextEntryErr = err
				return
			}
			if !hasNext {
				return
			}
			if nextEntry.IsDeleted && args.DropTombstones {
				continue
			}

			if !yield(nextEntry.KeyValuePair) {
				nextEntryErr = errAppendAborted
				return
			}
		}
	})

	if appendErr != nil {
		return appendErr
	}
	return nextEntryErr
}

type tableMuxEntry struct {
	current     SSTableEntry
	tableNumber int
	nextEntry   func() (SSTableEntry, error, bool)
}

// tableMux merges sorted entry streams into one sorted stream without duplicate keys.
type tableMux struct {
	heap         heap.Heap[tableMuxEntry]
	tableCount   int
	lastKey      []byte
	lastKeyIsSet bool
}

func newTableMux() tableMux {
	return tableMux{
		heap: heap.NewHeap(func(a, b tableMuxEntry) int {
			// pick lower keys first, and upon ties pick the earlier (newer) tables first; this
			// ensures later writes win
			bytesComp := bytes.Compare(a.current.Key, b.current.Key)
			if bytesComp != 0 {
				return bytesComp
			}

			return a.tableNumber - b.tableNumber
		}),
	}
}

func (me *tableMux) AddIterator(next func() (SSTableEntry, error, bool)) error {
	sstableEntry, err, exists := next()
	if err != nil {
		return err
	}
	tableNumber := me.tableCount
	me.tableCount++
	if !exists {
		return nil
	}

	me.heap.Push(tableMuxEntry{
		current:     sstableEntry,
		tableNumber: tableNumber,
		nextEntry:   next,
	})
	return nil
}

func (me *tableMux) NextEntry() (out SSTableEntry, hasNext bool, _ error) {
	for me.heap.Size() > 0 {
		entry := me.heap.Pop()

		sstableEntry, err, hasNext := entry.nextEntry()
		if err != nil {
			return entry.current, false, err
		}
		if hasNext {
			me.heap.Push(tableMuxEntry{
				current:     sstableEntry,
				tableNumber: entry.tableNumber,
				nextEntry:   entry.nextEntry,
			})
		}

		// don't rewrite keys that were already written
		if me.lastKeyIsSet && bytes.Equal(entry.current.Key, me.lastKey) {
			continue
		}

		me.lastKey = entry.current.Key
		me.lastKeyIsSet = true
		return entry.current, true, nil
	}

	return out, false, nil
}
