package lsm

import (
	"github.com/navijation/njrdb/storage/keyvaluepair"
)

type ReadOptions struct {
	// read from this point-in-time view instead of the latest state
	Snapshot *Snapshot
	// iterators stop before the first key >= IterateUpperBound
	IterateUpperBound []byte
}

// Get returns the live value of key. Deleted and missing keys both report exists == false.
func (me *LSMDB) Get(opts ReadOptions, key []byte) (value []byte, exists bool, _ error) {
	kvp, exists, err := me.lookup(opts, key)
	if err != nil || !exists || kvp.IsDeleted {
		return nil, false, err
	}
	return kvp.Value, true, nil
}

// Lookup returns the newest record for key; a tombstone is returned with IsDeleted set.
func (me *LSMDB) Lookup(key []byte) (out keyvaluepair.KeyValuePair, exists bool, _ error) {
	return me.lookup(ReadOptions{}, key)
}

func (me *LSMDB) lookup(opts ReadOptions, key []byte) (out keyvaluepair.KeyValuePair, exists bool, _ error) {
	ctx := &dbCtx{}
	if err := me.checkStateError(ctx); err != nil {
		return out, false, err
	}
	me.stats.lookups.Inc()

	if opts.Snapshot != nil {
		if opts.Snapshot.released.Load() {
			return out, false, ErrSnapshotUsed
		}
		if kvp, exists := me.lookupMemtables(opts.Snapshot.view.memtables, key); exists {
			return kvp, true, nil
		}
		return lookupTables(opts.Snapshot.view.tables, key)
	}

	ctx.RLock(&me.lock)
	if kvp, exists := me.lookupMemtables(me.inMemoryIndexes, key); exists {
		ctx.RUnlock(&me.lock)
		return kvp, true, nil
	}
	tables := refTables(me.sstables)
	ctx.RUnlock(&me.lock)

	defer unrefTables(tables)
	return lookupTables(tables, key)
}

func (me *LSMDB) lookupMemtables(
	memtables []*InMemoryIndex, key []byte,
) (out keyvaluepair.KeyValuePair, exists bool) {
	for _, memoryIndex := range memtables {
		kvp, exists := memoryIndex.Lookup(key)
		if exists {
			me.stats.memtableHits.Inc()
			return kvp, true
		}
	}
	return out, false
}

func lookupTables(tables []*tableHandle, key []byte) (out keyvaluepair.KeyValuePair, exists bool, _ error) {
	for _, handle := range tables {
		entry, exists, err := handle.table.LookupEntry(key)
		if err != nil {
			return out, false, err
		}
		if exists {
			return entry.ToKeyValuePair(), true, nil
		}
	}

	return out, false, nil
}
