package lsm

import "slices"

// ColumnFamilyHandle names a column family. Only the default family exists.
type ColumnFamilyHandle struct {
	name string
}

var defaultColumnFamily = &ColumnFamilyHandle{name: "default"}

func (me *ColumnFamilyHandle) Name() string {
	return me.name
}

func (me *LSMDB) DefaultColumnFamily() *ColumnFamilyHandle {
	return defaultColumnFamily
}

// ProbeResult answers KeyMayExist. ValueFound is set when the key was live in a memtable, in
// which case Value holds its value.
type ProbeResult struct {
	MayExist   bool
	Value      []byte
	ValueFound bool
}

// KeyMayExist answers from memory only: memtables, then each table's key range and bloom
// filter. MayExist == false is definitive; true may be a false positive. A nil cf means the
// default column family.
func (me *LSMDB) KeyMayExist(opts ReadOptions, cf *ColumnFamilyHandle, key []byte) ProbeResult {
	me.stats.keyMayExist.Inc()

	if opts.Snapshot != nil && !opts.Snapshot.released.Load() {
		return me.probe(opts.Snapshot.view.memtables, opts.Snapshot.view.tables, key)
	}

	me.lock.RLock()
	defer me.lock.RUnlock()

	return me.probe(me.inMemoryIndexes, me.sstables, key)
}

func (me *LSMDB) probe(memtables []*InMemoryIndex, tables []*tableHandle, key []byte) ProbeResult {
	for _, memtable := range memtables {
		kvp, exists := memtable.Lookup(key)
		if !exists {
			continue
		}
		if kvp.IsDeleted {
			// the deletion shadows every older table
			return ProbeResult{}
		}
		me.stats.memtableHits.Inc()
		return ProbeResult{
			MayExist:   true,
			Value:      slices.Clone(kvp.Value),
			ValueFound: true,
		}
	}

	for _, handle := range tables {
		if !handle.table.InRange(key) {
			continue
		}
		if !handle.table.MayContain(key) {
			me.stats.bloomUseful.Inc()
			continue
		}
		me.stats.bloomPositive.Inc()
		return ProbeResult{MayExist: true}
	}

	return ProbeResult{}
}
