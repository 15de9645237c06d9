package lsm

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/storage/journal"
	"github.com/navijation/njrdb/storage/sstable"
	"github.com/navijation/njrdb/util"
)

const (
	minFlushRetryDelay = 10 * time.Millisecond
	maxFlushRetryDelay = 5 * time.Second
)

// Flush rotates the active memtable into a new table. With wait it blocks until every
// flush scheduled so far has been committed.
func (me *LSMDB) Flush(wait bool) error {
	return me.flush(true, wait)
}

// NOTE: enqueueing happens outside me.lock since the worker needs it to commit; flushMu keeps
// rotation and enqueueing in the same order.
func (me *LSMDB) flush(force, wait bool) error {
	ctx := &dbCtx{}
	if err := me.checkWritable(ctx); err != nil {
		return err
	}

	me.flushMu.Lock()
	defer me.flushMu.Unlock()

	entry, scheduled, err := me.rotateMemtable(ctx, force)
	if err != nil {
		return err
	}
	if scheduled {
		if err := me.enqueueFlush(entry); err != nil {
			return err
		}
	}

	if !wait {
		return nil
	}

	ctx.RLock(&me.lock)
	pending := me.pendingFlush
	ctx.RUnlock(&me.lock)
	if pending == nil {
		return nil
	}

	select {
	case <-pending:
		return me.checkStateError(ctx)
	case <-me.done:
		return ErrClosed
	}
}

// rotateMemtable journals a create-table entry, switches writes to a new write-ahead log and
// moves the active memtable to the immutable list.
func (me *LSMDB) rotateMemtable(ctx *dbCtx, force bool) (entry CreateSSTableEntry, scheduled bool, _ error) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	if me.stateErr != nil {
		return entry, false, me.stateErr
	}

	active := me.inMemoryIndexes[0]
	if active.Len() == 0 || (!force && active.Size() < me.writeBufferSize) {
		return entry, false, nil
	}

	entry = CreateSSTableEntry{
		SSTableNumber:       me.nextSSTableNumber,
		WriteAheadLogNumber: me.nextWriteAheadLogNumber,
	}

	if err := me.appendEntry(ctx, &entry, true); err != nil {
		return entry, false, err
	}

	me.nextSSTableNumber++
	me.nextWriteAheadLogNumber++

	if err := me.createNewWriteaheadLog(ctx, entry.WriteAheadLogNumber); err != nil {
		me.stateErr = err
		return entry, false, err
	}

	me.pushImmutable(ctx, &entry)
	return entry, true, nil
}

// first create new in-memory index, moving old primary to secondary
func (me *LSMDB) pushImmutable(ctx *dbCtx, entry *CreateSSTableEntry) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	entry.index = me.inMemoryIndexes[0]
	entry.done = make(chan struct{})
	me.inMemoryIndexes = slices.Insert(me.inMemoryIndexes, 0, NewInMemoryIndex())
	me.pendingFlush = entry.done
}

func (me *LSMDB) enqueueFlush(entry CreateSSTableEntry) error {
	select {
	case me.asyncEntryChan <- entry:
		return nil
	case <-me.done:
		return ErrClosed
	}
}

// replayCreateSSTableEntry either discards the active memtable, whose contents already made
// it into the table, or schedules the flush that was interrupted.
func (me *LSMDB) replayCreateSSTableEntry(ctx *dbCtx, entry CreateSSTableEntry) error {
	ctx.Lock(&me.lock)

	me.nextSSTableNumber = max(me.nextSSTableNumber, entry.SSTableNumber+1)
	me.nextWriteAheadLogNumber = max(me.nextWriteAheadLogNumber, entry.WriteAheadLogNumber+1)

	exists, err := util.FileExists(me.sstablePath(entry.SSTableNumber))
	if err != nil {
		ctx.Unlock(&me.lock)
		return err
	}
	if exists {
		me.logger.WithField("sstable", entry.SSTableNumber).Debug("SSTable already exists; skipping")
		me.inMemoryIndexes[0] = NewInMemoryIndex()
		ctx.Unlock(&me.lock)
		return nil
	}

	if !me.readOnly {
		if err := me.createNewWriteaheadLog(ctx, entry.WriteAheadLogNumber); err != nil {
			ctx.Unlock(&me.lock)
			return err
		}
	}

	if me.inMemoryIndexes[0].Len() == 0 {
		ctx.Unlock(&me.lock)
		return nil
	}

	me.pushImmutable(ctx, &entry)
	ctx.Unlock(&me.lock)

	if me.readOnly {
		// read-only databases serve the memtable until a writable open flushes it
		close(entry.done)
		return nil
	}
	return me.enqueueFlush(entry)
}

func (me *LSMDB) runAsyncWorker() {
	me.wg.Add(1)
	go func() {
		defer me.wg.Done()
		for {
			select {
			case entry := <-me.asyncEntryChan:
				if !me.processCreateSSTableEntryWithRetry(entry) {
					return
				}
				me.maybeCompact()
			case <-me.done:
				return
			}
		}
	}()
}

// processCreateSSTableEntryWithRetry returns false if the database closed before the table
// could be written.
func (me *LSMDB) processCreateSSTableEntryWithRetry(entry CreateSSTableEntry) bool {
	delay := minFlushRetryDelay
	for {
		err := me.processCreateSSTableEntryAsync(&dbCtx{}, entry)
		if err == nil {
			return true
		}
		me.logger.WithError(err).WithField("sstable", entry.SSTableNumber).Error("failed to create SSTable")

		select {
		case <-time.After(delay):
			delay = min(2*delay, maxFlushRetryDelay)
		case <-me.done:
			return false
		}
	}
}

func (me *LSMDB) processCreateSSTableEntryAsync(ctx *dbCtx, entry CreateSSTableEntry) error {
	// first create temporary SSTable to store items from in-memory index
	tmpPath := me.tmpPath(fmt.Sprintf("%s%d%s", sstablePrefix, entry.SSTableNumber, sstableExtension))
	_ = os.Remove(tmpPath)

	sstableFile, err := sstable.Open(sstable.OpenArgs{
		Path:            tmpPath,
		Create:          true,
		Version:         sstable.CurrentVersion,
		Sequence:        entry.SSTableNumber,
		Compression:     me.compression,
		IndexChunkSize:  me.indexChunkSize,
		BloomBitsPerKey: me.bloomBitsPerKey,
		Logger:          me.logger,
	})
	if err != nil {
		return err
	}

	// write entries from old in memory index to temporary file
	if err := sstableFile.AppendEntries(entry.index.All); err != nil {
		_ = sstableFile.Delete()
		return err
	}

	// then move the file to the SSTable canonical location
	if err := sstableFile.Rename(me.sstablePath(entry.SSTableNumber)); err != nil {
		_ = sstableFile.Delete()
		return err
	}
	if err := util.SyncDir(me.path); err != nil {
		me.logger.WithError(err).Warn("failed to sync database directory")
	}

	// remove in-memory index and insert new sstable into list
	ctx.Lock(&me.lock)
	me.insertTable(ctx, newTableHandle(&sstableFile, entry.SSTableNumber))
	me.inMemoryIndexes = slices.DeleteFunc(me.inMemoryIndexes, func(index *InMemoryIndex) bool {
		return index == entry.index
	})
	obsoleteLogs := me.removeWriteAheadLogsBefore(ctx, entry.WriteAheadLogNumber)
	ctx.Unlock(&me.lock)

	for _, log := range obsoleteLogs {
		if err := log.Delete(); err != nil {
			me.logger.WithError(err).WithField("journal", log.Path()).Warn("failed to delete write-ahead log")
		}
	}

	close(entry.done)
	me.stats.flushes.Inc()
	me.logger.WithFields(logrus.Fields{
		"sstable": entry.SSTableNumber,
		"entries": sstableFile.NumEntries(),
	}).Debug("flushed memtable")
	return nil
}

func (me *LSMDB) insertTable(ctx *dbCtx, handle *tableHandle) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	idx, _ := slices.BinarySearchFunc(me.sstables, handle, compareTablesNewestFirst)
	me.sstables = slices.Insert(me.sstables, idx, handle)
	me.stats.liveTables.Set(float64(len(me.sstables)))
}

// removeWriteAheadLogsBefore drops logs numbered below number from the list; the caller
// deletes the returned files.
func (me *LSMDB) removeWriteAheadLogsBefore(ctx *dbCtx, number uint64) (removed []*journal.JournalFile) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	me.writeAheadLogs = slices.DeleteFunc(me.writeAheadLogs, func(log *journal.JournalFile) bool {
		logNumber, _ := getFileNumber(log.Path(), writeAheadLogPrefix, writeAheadLogExtension)
		if logNumber < number {
			removed = append(removed, log)
			return true
		}
		return false
	})
	return removed
}

func (me *LSMDB) createNewWriteaheadLog(ctx *dbCtx, number uint64) error {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	canonicalPath := me.writeAheadLogPath(number)

	if exists, err := util.FileExists(canonicalPath); err != nil {
		return err
	} else if exists {
		me.logger.WithField("journal", number).Debug("write-ahead log file already exists; skipping")
		return nil
	}

	// first create temporary write-ahead log
	tmpPath := me.tmpPath(fmt.Sprintf("%s%d%s", writeAheadLogPrefix, number, writeAheadLogExtension))
	_ = os.Remove(tmpPath)

	writeAheadLog, err := journal.Open(journal.OpenArgs{
		Path:   tmpPath,
		Create: true,
		Logger: me.logger,
	})
	if err != nil {
		return errors.Wrap(err, "create write-ahead log")
	}

	if err := writeAheadLog.Rename(canonicalPath); err != nil {
		_ = writeAheadLog.Delete()
		return errors.Wrap(err, "install write-ahead log")
	}
	if err := util.SyncDir(me.path); err != nil {
		me.logger.WithError(err).Warn("failed to sync database directory")
	}

	me.writeAheadLogs = slices.Insert(me.writeAheadLogs, 0, &writeAheadLog)

	return nil
}
