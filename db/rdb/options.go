package rdb

import (
	"github.com/sirupsen/logrus"

	"github.com/navijation/njrdb/db/lsm"
	"github.com/navijation/njrdb/storage/compression"
	"github.com/navijation/njrdb/util"
)

type CompressionType = compression.Type

const (
	NoCompression     = compression.None
	SnappyCompression = compression.Snappy
	LZ4Compression    = compression.LZ4
)

// bulkLoadCompactionTrigger effectively disables table-count triggered compactions.
const bulkLoadCompactionTrigger = 1 << 30

// Options configures OpenDb. The zero value is not usable; start from NewDefaultOptions.
type Options struct {
	args lsm.OpenArgs
}

func NewDefaultOptions() *Options {
	return &Options{}
}

func (me *Options) SetCreateIfMissing(value bool) {
	me.args.Create = value
}

func (me *Options) SetErrorIfExists(value bool) {
	me.args.ErrorIfExists = value
}

// SetWriteBufferSize sets the memtable size in bytes that schedules a flush.
func (me *Options) SetWriteBufferSize(value uint64) {
	me.args.WriteBufferSize = util.Some(value)
}

// SetMaxWriteBufferNumber bounds the memtables, active included, kept in memory. Writers stall
// once every immutable memtable is waiting on a flush.
func (me *Options) SetMaxWriteBufferNumber(value int) {
	me.args.MaxWriteBufferNumber = util.Some(value)
}

func (me *Options) SetLevel0FileNumCompactionTrigger(value int) {
	me.args.Level0FileNumCompactionTrigger = util.Some(value)
}

func (me *Options) SetDisableAutoCompactions(value bool) {
	me.args.DisableAutoCompactions = value
}

// SetBloomBitsPerKey sizes the bloom filter of every table; zero disables it.
func (me *Options) SetBloomBitsPerKey(value int) {
	me.args.BloomBitsPerKey = util.Some(value)
}

// SetIndexChunkSize sets the byte distance between sparse index entries of a table.
func (me *Options) SetIndexChunkSize(value uint64) {
	me.args.IndexChunkSize = util.Some(value)
}

func (me *Options) SetCompression(value CompressionType) {
	me.args.Compression = value
}

func (me *Options) SetLogger(logger logrus.FieldLogger) {
	me.args.Logger = logger
}

// PrepareForBulkLoad leaves compaction to an explicit CompactRange once loading is done.
func (me *Options) PrepareForBulkLoad() {
	me.args.DisableAutoCompactions = true
	me.args.Level0FileNumCompactionTrigger = util.Some(bulkLoadCompactionTrigger)
}

func (me *Options) openArgs(name string, readOnly bool) lsm.OpenArgs {
	args := me.args
	args.Path = name
	args.ReadOnly = readOnly
	return args
}

type ReadOptions struct {
	opts lsm.ReadOptions
}

func NewDefaultReadOptions() *ReadOptions {
	return &ReadOptions{}
}

// SetSnapshot makes reads observe snapshot; nil reads the latest state.
func (me *ReadOptions) SetSnapshot(snapshot *Snapshot) {
	if snapshot == nil {
		me.opts.Snapshot = nil
		return
	}
	me.opts.Snapshot = snapshot.snapshot
}

// SetIterateUpperBound makes iterators stop before the first key >= key. The key is copied.
func (me *ReadOptions) SetIterateUpperBound(key []byte) {
	if key == nil {
		me.opts.IterateUpperBound = nil
		return
	}
	me.opts.IterateUpperBound = append([]byte{}, key...)
}

func (me *ReadOptions) get() lsm.ReadOptions {
	if me == nil {
		return lsm.ReadOptions{}
	}
	return me.opts
}

type WriteOptions struct {
	opts lsm.WriteOptions
}

func NewDefaultWriteOptions() *WriteOptions {
	return &WriteOptions{}
}

// SetSync syncs the write-ahead log before a write returns.
func (me *WriteOptions) SetSync(value bool) {
	me.opts.Sync = value
}

// DisableWAL skips the write-ahead log. Such writes are lost if the process exits before their
// memtable is flushed.
func (me *WriteOptions) DisableWAL(value bool) {
	me.opts.DisableWAL = value
}

func (me *WriteOptions) get() lsm.WriteOptions {
	if me == nil {
		return lsm.WriteOptions{}
	}
	return me.opts
}

type FlushOptions struct {
	wait bool
}

// NewDefaultFlushOptions waits for the flush by default.
func NewDefaultFlushOptions() *FlushOptions {
	return &FlushOptions{wait: true}
}

func (me *FlushOptions) SetWait(value bool) {
	me.wait = value
}

// Range is the key range [Start, Limit). A nil bound is unbounded.
type Range struct {
	Start []byte
	Limit []byte
}
