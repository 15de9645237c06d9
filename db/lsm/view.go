package lsm

import (
	"sync/atomic"

	"github.com/navijation/njrdb/storage/sstable"
)

// tableHandle reference-counts an open table. The database holds one reference while the
// table is live; readers and snapshots take their own so compaction never closes a file in use.
type tableHandle struct {
	table  *sstable.SSTable
	number uint64
	refs   atomic.Int64
}

func newTableHandle(table *sstable.SSTable, number uint64) *tableHandle {
	out := &tableHandle{
		table:  table,
		number: number,
	}
	out.refs.Store(1)
	return out
}

func (me *tableHandle) ref() {
	me.refs.Add(1)
}

func (me *tableHandle) unref() {
	if me.refs.Add(-1) == 0 {
		_ = me.table.Close()
	}
}

func (me *tableHandle) sequence() uint64 {
	return me.table.Header().Sequence
}

// newest first: higher sequence, then higher file number
func compareTablesNewestFirst(a, b *tableHandle) int {
	if c := compareDesc(a.sequence(), b.sequence()); c != 0 {
		return c
	}
	return compareDesc(a.number, b.number)
}

func refTables(tables []*tableHandle) []*tableHandle {
	out := make([]*tableHandle, len(tables))
	for i, handle := range tables {
		handle.ref()
		out[i] = handle
	}
	return out
}

func unrefTables(tables []*tableHandle) {
	for _, handle := range tables {
		handle.unref()
	}
}

// view is a consistent, immutable read state: memtables that are never written again and
// referenced tables, both newest first.
type view struct {
	memtables []*InMemoryIndex
	tables    []*tableHandle
}

// acquireView clones the active memtable, so me.lock must be held for writing.
func (me *LSMDB) acquireView(ctx *dbCtx) view {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	memtables := make([]*InMemoryIndex, len(me.inMemoryIndexes))
	copy(memtables, me.inMemoryIndexes)
	memtables[0] = me.inMemoryIndexes[0].Clone()

	return view{
		memtables: memtables,
		tables:    refTables(me.sstables),
	}
}

func (me *view) ref() view {
	return view{
		memtables: me.memtables,
		tables:    refTables(me.tables),
	}
}

func (me *view) release() {
	unrefTables(me.tables)
}

// Snapshot is a point-in-time read view. Later writes, flushes and compactions are invisible
// through it.
type Snapshot struct {
	view     view
	released atomic.Bool
}

func (me *LSMDB) NewSnapshot() (*Snapshot, error) {
	ctx := &dbCtx{}
	if err := me.checkStateError(ctx); err != nil {
		return nil, err
	}
	return &Snapshot{view: me.acquireView(ctx)}, nil
}

// ReleaseSnapshot drops the snapshot's table references. Releasing twice is a no-op.
func (me *LSMDB) ReleaseSnapshot(snapshot *Snapshot) {
	if snapshot == nil || snapshot.released.Swap(true) {
		return
	}
	snapshot.view.release()
}
