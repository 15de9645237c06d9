// Package rdb is a handle-style binding over the lsm engine, shaped after the RocksDB Go
// wrappers: opaque option handles, Slice results and a single default column family.
package rdb

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/navijation/njrdb/db/lsm"
)

// ErrLogFileExists is returned by OpenDbForReadOnly when asked to refuse databases whose
// write-ahead logs still hold unflushed writes.
var ErrLogFileExists = errors.New("write-ahead log holds unflushed entries")

type DB struct {
	name string
	db   *lsm.LSMDB
}

// OpenDb opens the database at name, creating it if opts allow.
func OpenDb(opts *Options, name string) (*DB, error) {
	return openDb(opts, name, false, false)
}

// OpenDbForReadOnly opens the database at name without ever modifying it.
func OpenDbForReadOnly(opts *Options, name string, errorIfLogFileExist bool) (*DB, error) {
	return openDb(opts, name, true, errorIfLogFileExist)
}

func openDb(opts *Options, name string, readOnly, errorIfLogFileExist bool) (*DB, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}

	db, err := lsm.Open(opts.openArgs(name, readOnly))
	if err != nil {
		return nil, err
	}
	if err := db.Start(); err != nil {
		_ = db.Close()
		return nil, errors.Wrapf(err, "open %q", name)
	}
	if readOnly && errorIfLogFileExist && db.HasUnflushedLogEntries() {
		_ = db.Close()
		return nil, errors.Wrapf(ErrLogFileExists, "open %q", name)
	}

	return &DB{name: name, db: db}, nil
}

func (me *DB) Name() string {
	return me.name
}

func (me *DB) Put(opts *WriteOptions, key, value []byte) error {
	return me.db.Put(opts.get(), key, value)
}

func (me *DB) Delete(opts *WriteOptions, key []byte) error {
	return me.db.Delete(opts.get(), key)
}

// Write applies every write in batch or none of them.
func (me *DB) Write(opts *WriteOptions, batch *WriteBatch) error {
	if batch == nil {
		return nil
	}
	return me.db.Write(opts.get(), batch.batch)
}

// Get looks key up. A missing key yields a Slice for which Exists is false.
func (me *DB) Get(opts *ReadOptions, key []byte) (*Slice, error) {
	value, exists, err := me.db.Get(opts.get(), key)
	if err != nil {
		return nil, err
	}
	if exists && value == nil {
		value = []byte{}
	}
	return newSlice(value, exists), nil
}

// GetBytes is Get returning the value directly; nil for missing keys.
func (me *DB) GetBytes(opts *ReadOptions, key []byte) ([]byte, error) {
	value, _, err := me.db.Get(opts.get(), key)
	return value, err
}

func (me *DB) NewIterator(opts *ReadOptions) (*Iterator, error) {
	it, err := me.db.NewIterator(opts.get())
	if err != nil {
		return nil, err
	}
	return &Iterator{it: it}, nil
}

// Snapshot is a point-in-time view for ReadOptions.SetSnapshot.
type Snapshot struct {
	snapshot *lsm.Snapshot
}

func (me *DB) NewSnapshot() (*Snapshot, error) {
	snapshot, err := me.db.NewSnapshot()
	if err != nil {
		return nil, err
	}
	return &Snapshot{snapshot: snapshot}, nil
}

// ReleaseSnapshot invalidates snapshot; reads through it fail afterwards.
func (me *DB) ReleaseSnapshot(snapshot *Snapshot) {
	if snapshot == nil {
		return
	}
	me.db.ReleaseSnapshot(snapshot.snapshot)
}

func (me *DB) Flush(opts *FlushOptions) error {
	wait := true
	if opts != nil {
		wait = opts.wait
	}
	return me.db.Flush(wait)
}

// CompactRange flushes, then merges every table overlapping r into one.
func (me *DB) CompactRange(r Range) error {
	return me.db.CompactRange(r.Start, r.Limit)
}

// GetProperty returns "" for unknown properties.
func (me *DB) GetProperty(name string) string {
	return me.db.GetProperty(name)
}

// Registry exposes the database statistics for a prometheus exporter.
func (me *DB) Registry() *prometheus.Registry {
	return me.db.Registry()
}

func (me *DB) Close() error {
	return me.db.Close()
}
