package lsm

import (
	"fmt"
	"os"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

// CompactRange flushes the active memtable, then merges every table that may hold keys in
// [start, limit) into one. Nil bounds are unbounded.
func (me *LSMDB) CompactRange(start, limit []byte) error {
	if err := me.Flush(true); err != nil {
		return err
	}
	return me.compact(start, limit)
}

func (me *LSMDB) maybeCompact() {
	if me.disableAutoCompactions || me.l0CompactionTrigger <= 0 {
		return
	}

	me.lock.RLock()
	numTables := len(me.sstables)
	me.lock.RUnlock()

	if numTables < me.l0CompactionTrigger {
		return
	}
	if err := me.compact(nil, nil); err != nil {
		me.logger.WithError(err).Error("automatic compaction failed")
	}
}

// compact merges the contiguous newest-first span of tables overlapping [start, limit).
// Only compaction removes tables, and flushed tables are always newest, so the span stays
// contiguous while compactMu is held.
func (me *LSMDB) compact(start, limit []byte) error {
	ctx := &dbCtx{}
	if err := me.checkWritable(ctx); err != nil {
		return err
	}

	me.compactMu.Lock()
	defer me.compactMu.Unlock()

	ctx.Lock(&me.lock)
	if me.stateErr != nil {
		ctx.Unlock(&me.lock)
		return me.stateErr
	}

	first, last := -1, -1
	for i, handle := range me.sstables {
		if handle.table.Overlaps(start, limit) {
			if first < 0 {
				first = i
			}
			last = i
		}
	}
	if first < 0 || last == first {
		ctx.Unlock(&me.lock)
		return nil
	}

	span := refTables(me.sstables[first : last+1])
	// tombstones can only be dropped when no older table could hold a value they shadow
	dropTombstones := last == len(me.sstables)-1

	entry := MergeTablesEntry{DestTableNumber: me.nextSSTableNumber}
	me.nextSSTableNumber++

	var sequence uint64
	for _, handle := range span {
		sequence = max(sequence, handle.sequence())
		entry.SrcTableNumbers = append(entry.SrcTableNumbers, handle.number)
	}

	if err := me.appendEntry(ctx, &entry, true); err != nil {
		ctx.Unlock(&me.lock)
		unrefTables(span)
		return err
	}
	ctx.Unlock(&me.lock)

	defer unrefTables(span)

	logger := me.logger.WithFields(logrus.Fields{
		"dest": entry.DestTableNumber,
		"srcs": entry.SrcTableNumbers,
	})

	dest, err := me.mergeIntoTable(entry.DestTableNumber, sequence, span, dropTombstones)
	if err != nil {
		logger.WithError(err).Error("failed to merge tables")
		return err
	}

	ctx.Lock(&me.lock)
	idx := slices.Index(me.sstables, span[0])
	me.sstables = slices.Delete(me.sstables, idx, idx+len(span))
	if dest != nil {
		me.sstables = slices.Insert(me.sstables, idx, dest)
	}
	me.stats.liveTables.Set(float64(len(me.sstables)))
	ctx.Unlock(&me.lock)

	me.deleteTables(span)

	me.stats.compactions.Inc()
	logger.WithField("drop_tombstones", dropTombstones).Debug("compacted tables")
	return nil
}

// deleteTables removes table files oldest first, then drops the database's reference. Open
// readers keep reading the unlinked files until they release them.
func (me *LSMDB) deleteTables(tables []*tableHandle) {
	for i := len(tables) - 1; i >= 0; i-- {
		handle := tables[i]
		if err := os.Remove(handle.table.Path()); err != nil && !errors.Is(err, os.ErrNotExist) {
			me.logger.WithError(err).WithField("sstable", handle.number).Warn("failed to delete SSTable")
		}
		handle.unref()
	}
	if err := util.SyncDir(me.path); err != nil {
		me.logger.WithError(err).Warn("failed to sync database directory")
	}
}

// mergeIntoTable returns nil if every entry was a dropped tombstone.
func (me *LSMDB) mergeIntoTable(
	number, sequence uint64, srcs []*tableHandle, dropTombstones bool,
) (*tableHandle, error) {
	tmpPath := me.tmpPath(fmt.Sprintf("%s%d%s", sstablePrefix, number, sstableExtension))
	_ = os.Remove(tmpPath)

	dest, err := sstable.Open(sstable.OpenArgs{
		Path:            tmpPath,
		Create:          true,
		Version:         sstable.CurrentVersion,
		Sequence:        sequence,
		Compression:     me.compression,
		IndexChunkSize:  me.indexChunkSize,
		BloomBitsPerKey: me.bloomBitsPerKey,
		Logger:          me.logger,
	})
	if err != nil {
		return nil, err
	}

	tables := make([]*sstable.SSTable, len(srcs))
	for i, handle := range srcs {
		tables[i] = handle.table
	}

	if err := dest.MergeTables(sstable.MergeTablesArgs{
		Srcs:           tables,
		DropTombstones: dropTombstones,
	}); err != nil {
		_ = dest.Delete()
		return nil, err
	}

	if dest.NumEntries() == 0 {
		return nil, dest.Delete()
	}

	if err := dest.Rename(me.sstablePath(number)); err != nil {
		_ = dest.Delete()
		return nil, err
	}
	if err := util.SyncDir(me.path); err != nil {
		me.logger.WithError(err).Warn("failed to sync database directory")
	}

	return newTableHandle(&dest, number), nil
}

// replayMergeTablesEntry finishes deleting sources of a merge whose destination was installed.
func (me *LSMDB) replayMergeTablesEntry(ctx *dbCtx, entry MergeTablesEntry) error {
	me.compactMu.Lock()
	defer me.compactMu.Unlock()

	ctx.Lock(&me.lock)
	me.nextSSTableNumber = max(me.nextSSTableNumber, entry.DestTableNumber+1)

	exists, err := util.FileExists(me.sstablePath(entry.DestTableNumber))
	if err != nil || !exists {
		ctx.Unlock(&me.lock)
		return err
	}

	var leftovers []*tableHandle
	me.sstables = slices.DeleteFunc(me.sstables, func(handle *tableHandle) bool {
		if slices.Contains(entry.SrcTableNumbers, handle.number) {
			leftovers = append(leftovers, handle)
			return true
		}
		return false
	})
	me.stats.liveTables.Set(float64(len(me.sstables)))
	ctx.Unlock(&me.lock)

	if len(leftovers) == 0 {
		return nil
	}
	me.logger.WithField("dest", entry.DestTableNumber).Info("removing SSTables left over by a merge")
	if me.readOnly {
		unrefTables(leftovers)
		return nil
	}
	me.deleteTables(leftovers)
	return nil
}
