package lsm

import (
	"io"

	"github.com/navijation/njrdb/storage/keyvaluepair"
)

type WriteOptions struct {
	// sync the write-ahead log before returning
	Sync bool
	// skip the write-ahead log; the write is lost on a crash before its memtable is flushed
	DisableWAL bool
}

func (me *LSMDB) Put(opts WriteOptions, key, value []byte) error {
	kvp := keyvaluepair.KeyValuePair{Key: key, Value: value}.Clone()
	entry := CUDKeyValueEntry{StoredKeyValuePair: kvp.ToStoredKeyValuePair()}
	return me.write(opts, &entry, kvp)
}

func (me *LSMDB) Delete(opts WriteOptions, key []byte) error {
	kvp := keyvaluepair.KeyValuePair{Key: key, IsDeleted: true}.Clone()
	entry := CUDKeyValueEntry{StoredKeyValuePair: kvp.ToStoredKeyValuePair()}
	return me.write(opts, &entry, kvp)
}

// Write applies every write of the batch or none of them.
func (me *LSMDB) Write(opts WriteOptions, batch *WriteBatch) error {
	if batch == nil || batch.Count() == 0 {
		return nil
	}
	entry := batch.journalEntry()
	return me.write(opts, &entry, batch.pairs...)
}

func (me *LSMDB) write(opts WriteOptions, entry io.WriterTo, kvps ...keyvaluepair.KeyValuePair) error {
	ctx := &dbCtx{}

	ctx.Lock(&me.lock)

	if err := me.checkWritable(ctx); err != nil {
		ctx.Unlock(&me.lock)
		return err
	}

	if !opts.DisableWAL {
		if err := me.appendEntry(ctx, entry, opts.Sync); err != nil {
			ctx.Unlock(&me.lock)
			return err
		}
	}

	var written uint64
	for _, kvp := range kvps {
		me.inMemoryIndexes[0].Upsert(kvp)
		written += uint64(len(kvp.Key) + len(kvp.Value))
	}
	shouldFlush := me.inMemoryIndexes[0].Size() >= me.writeBufferSize

	ctx.Unlock(&me.lock)

	me.stats.bytesWritten.Add(float64(written))

	// the write itself is already applied; a failed flush surfaces on the next write
	if shouldFlush {
		if err := me.flush(false, false); err != nil {
			me.logger.WithError(err).Warn("failed to schedule memtable flush")
		}
	}
	return nil
}

func (me *LSMDB) processCUDKeyValueEntry(ctx *dbCtx, entry CUDKeyValueEntry) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	me.inMemoryIndexes[0].Upsert(entry.StoredKeyValuePair.ToKeyValuePair())
}

func (me *LSMDB) processBatchEntry(ctx *dbCtx, entry BatchEntry) {
	ctx.Lock(&me.lock)
	defer ctx.Unlock(&me.lock)

	for i := range entry.StoredKeyValuePairs {
		me.inMemoryIndexes[0].Upsert(entry.StoredKeyValuePairs[i].ToKeyValuePair())
	}
}
